// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor
// principles, with an optional .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Lock backends.
const (
	LockMemory = "memory"
	LockRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Storage
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`

	// Redis is optional. When set it backs the auth cache and the
	// metering event stream, and may back the balance lock.
	RedisURL string `env:"REDIS_URL"`
	// AuthCacheTTL is how long a resolved credential stays cached.
	AuthCacheTTL time.Duration `env:"AUTH_CACHE_TTL" envDefault:"5m"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts. WriteTimeout must outlast a generation call.
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"45s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	// Generation service
	GeminiAPIKey   string        `env:"GEMINI_API_KEY"`
	GeminiBaseURL  string        `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiModel    string        `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"30s"`

	// Metering
	ChatCost        int64         `env:"CHAT_COST" envDefault:"100"`
	StartingBalance int64         `env:"STARTING_BALANCE" envDefault:"4000"`
	LockBackend     string        `env:"LOCK_BACKEND" envDefault:"memory"`
	LockTTL         time.Duration `env:"LOCK_TTL" envDefault:"10s"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks rules that span several fields.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres"))
		}
	case StoreMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StorePostgres, StoreMemory, c.StoreDriver))
	}

	switch c.LockBackend {
	case LockMemory:
	case LockRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when LOCK_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("LOCK_BACKEND must be %q or %q, got %q", LockMemory, LockRedis, c.LockBackend))
	}

	if c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required"))
	}
	if c.GatewayTimeout <= 0 {
		errs = append(errs, errors.New("GATEWAY_TIMEOUT must be positive"))
	} else if c.WriteTimeout > 0 && c.WriteTimeout <= c.GatewayTimeout {
		errs = append(errs, fmt.Errorf("WRITE_TIMEOUT (%s) must exceed GATEWAY_TIMEOUT (%s)", c.WriteTimeout, c.GatewayTimeout))
	}
	if c.ChatCost <= 0 {
		errs = append(errs, errors.New("CHAT_COST must be positive"))
	}
	if c.StartingBalance < 0 {
		errs = append(errs, errors.New("STARTING_BALANCE must not be negative"))
	}
	if c.LockTTL <= 0 {
		errs = append(errs, errors.New("LOCK_TTL must be positive"))
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// Load reads an optional .env file, parses environment variables and
// validates the result. Variables already set in the environment win over
// the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
