package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/pulsechat/pulsechat/internal/chat"
	"github.com/pulsechat/pulsechat/internal/server"
	"github.com/pulsechat/pulsechat/internal/storage"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := server.LoadConfig()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	store := storage.NewFileStore(cfg.DataFile, log)
	messages := chat.NewMessageStore(store, log)
	users := chat.NewUserRegistry()

	hub := server.NewHub(messages, users, log)
	go hub.Run()

	srv := server.NewServer(cfg, hub, messages, users, log)
	httpServer := server.CreateServer(cfg.Port, srv.Routes())

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "port", cfg.Port)
		serverErr <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}

	_ = server.ShutdownServer(httpServer, cfg.ShutdownTimeout, log)
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Warn("hub did not stop cleanly", "error", err)
	}
	messages.Close()
	log.Info("shutdown complete")
}
