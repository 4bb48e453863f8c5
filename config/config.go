package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`

	// DatabaseURL falls back to PG_DSN when DATABASE_URL is unset.
	DatabaseURL string `env:"DATABASE_URL" validate:"required"`
	RabbitURL   string `env:"RABBIT_URL,required" validate:"required"`

	// LockBatch is the max number of due jobs claimed per dispatch tick.
	LockBatch int `env:"LOCK_BATCH" envDefault:"500" validate:"min=1,max=5000"`
	// TickMS is how long the dispatch loop sleeps when a batch found no work.
	TickMS int `env:"TICK_MS" envDefault:"500" validate:"min=10,max=60000"`
	// InboxPrefetch bounds unacked inbox deliveries per ingest connection.
	InboxPrefetch int `env:"INBOX_PREFETCH" envDefault:"256" validate:"min=1,max=10000"`
	// DrainTimeoutSec bounds graceful shutdown before forcing an exit.
	DrainTimeoutSec int `env:"DRAIN_TIMEOUT_SEC" envDefault:"10" validate:"min=1,max=300"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("PG_DSN")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
