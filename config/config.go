// Package config loads secretgate server settings from the environment.
//
// An optional .env file in the working directory (or the file named by
// SECRETGATE_ENV_FILE) is loaded first; variables already set in the
// environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers
const (
	DriverFS        = "fs"
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverDatastore = "datastore"
)

// ProviderConfig holds the OAuth client registration for one provider
type ProviderConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL"`
}

// Enabled reports whether the provider has client credentials
func (p ProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Config is the full server configuration
type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	BaseURL  string `env:"SECRETGATE_BASE_URL" envDefault:"http://localhost:8080"`
	LogLevel string `env:"SECRETGATE_LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"SECRETGATE_LOG_JSON"`

	SessionSecret      string        `env:"SECRETGATE_SESSION_SECRET"`
	SessionLifetime    time.Duration `env:"SECRETGATE_SESSION_LIFETIME" envDefault:"24h"`
	SessionIdleTimeout time.Duration `env:"SECRETGATE_SESSION_IDLE_TIMEOUT"`
	CookieName         string        `env:"SECRETGATE_COOKIE_NAME" envDefault:"secretgate_session"`
	CookieSecure       bool          `env:"SECRETGATE_COOKIE_SECURE"`
	CookieDomains      []string      `env:"SECRETGATE_COOKIE_DOMAINS" envSeparator:","`

	StoreDriver        string `env:"SECRETGATE_STORE" envDefault:"fs"`
	StoragePath        string `env:"SECRETGATE_STORAGE_PATH" envDefault:"./data"`
	DatabaseURL        string `env:"DATABASE_URL"`
	DatastoreProject   string `env:"DATASTORE_PROJECT_ID"`
	DatastoreNamespace string `env:"DATASTORE_NAMESPACE"`

	Google   ProviderConfig `envPrefix:"OAUTH2_GOOGLE_"`
	Facebook ProviderConfig `envPrefix:"OAUTH2_FACEBOOK_"`
}

// Load reads the optional env file and parses the environment into a Config
func Load() (*Config, error) {
	envFile := os.Getenv("SECRETGATE_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	return Parse()
}

// Parse builds a Config from the current environment only
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that depend on each other
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverFS:
		if c.StoragePath == "" {
			return fmt.Errorf("SECRETGATE_STORAGE_PATH is required for the %s store", c.StoreDriver)
		}
	case DriverSQLite, DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s store", c.StoreDriver)
		}
	case DriverDatastore:
		if c.DatastoreProject == "" {
			return fmt.Errorf("DATASTORE_PROJECT_ID is required for the %s store", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown store %q", c.StoreDriver)
	}
	if c.SessionLifetime <= 0 {
		return fmt.Errorf("SECRETGATE_SESSION_LIFETIME must be positive")
	}
	return nil
}

// CallbackURL returns the provider callback, defaulting to BaseURL/auth/<provider>/callback/
func (c *Config) CallbackURL(p ProviderConfig, provider string) string {
	if p.CallbackURL != "" {
		return p.CallbackURL
	}
	return strings.TrimSuffix(c.BaseURL, "/") + "/auth/" + provider + "/callback/"
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
