package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// CreateServer configures an HTTP server with production timeout defaults.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ShutdownServer gracefully drains the HTTP server, waiting for active
// connections up to the timeout.
func ShutdownServer(server *http.Server, timeout time.Duration, log *slog.Logger) error {
	log.Info("shutting down http server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("http server shutdown error", "error", err)
		return err
	}

	log.Info("http server shutdown completed")
	return nil
}
