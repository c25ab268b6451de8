// Package config loads process settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"casino-engine/internal/models"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	Env      string `env:"ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	DBPath string `env:"DB_PATH" envDefault:"casino.db"`

	RedisURL  string `env:"REDIS_URL" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`

	CrashTick    time.Duration `env:"CRASH_TICK" envDefault:"100ms"`
	CrashWaiting time.Duration `env:"CRASH_WAITING" envDefault:"8s"`
	CrashPause   time.Duration `env:"CRASH_PAUSE" envDefault:"1s"`

	StartingBalance  decimal.Decimal `env:"STARTING_BALANCE" envDefault:"0"`
	BroadcastWorkers int             `env:"BROADCAST_WORKERS" envDefault:"64"`
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load parses the environment. Call godotenv.Load first to pick up a .env file.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("%w: JWT_SECRET is required", models.ErrValidation)
	}
	if c.IsProduction() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("%w: JWT_SECRET must be at least 32 characters in production", models.ErrValidation)
	}
	if c.CrashTick <= 0 || c.CrashWaiting <= 0 || c.CrashPause < 0 {
		return fmt.Errorf("%w: crash timings must be positive", models.ErrValidation)
	}
	if c.StartingBalance.IsNegative() {
		return fmt.Errorf("%w: STARTING_BALANCE must not be negative", models.ErrValidation)
	}
	if c.BroadcastWorkers <= 0 {
		return fmt.Errorf("%w: BROADCAST_WORKERS must be positive", models.ErrValidation)
	}
	return nil
}
