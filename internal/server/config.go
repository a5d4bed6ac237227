// Package server hosts the transport layer: the session-coordinating hub,
// per-connection WebSocket clients, and the HTTP API.
package server

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the runtime settings for the service, loaded from the
// environment with sane defaults.
type Config struct {
	Port            string        `envconfig:"SERVER_PORT" default:":8080"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	MaxMessageSize  int64         `envconfig:"MAX_MESSAGE_SIZE" default:"512"`
	RateLimitBurst  int           `envconfig:"RATE_LIMIT_BURST" default:"5"`
	RateLimitRefill time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s"`
	DataFile        string        `envconfig:"DATA_FILE" default:"data/messages.json"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LoadConfig reads the configuration from environment variables and clamps
// invalid values back to their defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg.sanitized(), nil
}

// DefaultConfig returns the configuration used when no environment overrides
// are set.
func DefaultConfig() Config {
	return Config{
		Port:            ":8080",
		AllowedOrigins:  []string{"http://localhost:8080"},
		MaxMessageSize:  512,
		RateLimitBurst:  5,
		RateLimitRefill: time.Second,
		DataFile:        "data/messages.json",
		ShutdownTimeout: 10 * time.Second,
	}
}

func (c Config) sanitized() Config {
	def := DefaultConfig()
	if c.Port == "" {
		c.Port = def.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = def.RateLimitBurst
	}
	if c.RateLimitRefill <= 0 {
		c.RateLimitRefill = def.RateLimitRefill
	}
	if c.DataFile == "" {
		c.DataFile = def.DataFile
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}
