package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelRaw string `env:"LOG_LEVEL" envDefault:"info"`
	LogLevel    slog.Level

	RedisURL     string `env:"REDIS_URL" envDefault:"localhost:6379"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"stories.db"`
	StaticDir    string `env:"STATIC_DIR" envDefault:"./web"`

	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SessionLockTTL time.Duration `env:"SESSION_LOCK_TTL" envDefault:"30s"`
	ActiveWindow   time.Duration `env:"ACTIVE_WINDOW" envDefault:"5m"`

	EmbeddedWorker bool   `env:"EMBEDDED_WORKER" envDefault:"true"`
	WorkerID       string `env:"WORKER_ID"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelRaw)
	if cfg.WorkerID == "" {
		cfg.WorkerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if cfg.SessionLockTTL <= 0 {
		return nil, fmt.Errorf("SESSION_LOCK_TTL must be positive")
	}
	if cfg.ActiveWindow <= 0 {
		return nil, fmt.Errorf("ACTIVE_WINDOW must be positive")
	}
	return &cfg, nil
}

// IsProduction reports whether logs should be structured JSON.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
