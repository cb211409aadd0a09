package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all runtime configuration, read from the environment.
type AppConfig struct {
	Port     string
	LogLevel string

	// FetchInterval controls how often the scheduler refreshes every
	// tracked city.
	FetchInterval time.Duration

	// RetentionWindow is the maximum age of stored samples.
	RetentionWindow time.Duration

	// DatabaseURL selects the PostgreSQL store; empty means in-memory.
	DatabaseURL string

	// OpenMeteoBaseURL overrides the forecast provider endpoint, mainly
	// for tests.
	OpenMeteoBaseURL string

	// HTTPTimeout bounds one outbound provider request.
	HTTPTimeout time.Duration
}

// Load reads configuration from the environment with sensible defaults.
func Load() (*AppConfig, error) {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := &AppConfig{
		Port:             getenvDefault("PORT", "8080"),
		LogLevel:         getenvDefault("LOG_LEVEL", "info"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		OpenMeteoBaseURL: os.Getenv("OPENMETEO_BASE_URL"),
	}

	interval, err := getenvDuration("FETCH_INTERVAL", 900*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.FetchInterval = interval

	retention, err := getenvDuration("RETENTION_WINDOW", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.RetentionWindow = retention

	timeout, err := getenvDuration("HTTP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.HTTPTimeout = timeout

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
