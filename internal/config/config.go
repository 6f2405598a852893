// Package config loads the bot process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
	StorageCSV    = "csv"
)

// Update delivery modes
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// webhookSecretPattern keeps the secret a single unescaped path segment
var webhookSecretPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

// Config is the bot process configuration
type Config struct {
	BotToken    string   `env:"AIRDROP_BOT_TOKEN,required,notEmpty"`
	Channel     string   `env:"AIRDROP_CHANNEL,required,notEmpty"`
	Admins      []string `env:"AIRDROP_ADMINS,required,notEmpty" envSeparator:","`
	APIEndpoint string   `env:"AIRDROP_API_ENDPOINT"`

	Storage    string `env:"AIRDROP_STORAGE" envDefault:"csv"`
	RedisURL   string `env:"AIRDROP_REDIS_URL"`
	SQLitePath string `env:"AIRDROP_SQLITE_PATH"`
	CSVDir     string `env:"AIRDROP_CSV_DIR"`

	Mode          string `env:"AIRDROP_MODE" envDefault:"polling"`
	WebhookURL    string `env:"AIRDROP_WEBHOOK_URL"`
	WebhookSecret string `env:"AIRDROP_WEBHOOK_SECRET"`

	HTTPPort     int    `env:"AIRDROP_HTTP_PORT" envDefault:"8080"`
	APITokenHash string `env:"AIRDROP_API_TOKEN_HASH"`

	OracleTimeout time.Duration `env:"AIRDROP_ORACLE_TIMEOUT" envDefault:"5s"`
	StoreTimeout  time.Duration `env:"AIRDROP_STORE_TIMEOUT" envDefault:"5s"`
	LogLevel      string        `env:"AIRDROP_LOG_LEVEL" envDefault:"info"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the process configuration
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate normalizes the configuration and reports every problem found
func (c *Config) Validate() error {
	var errs []error

	c.BotToken = strings.TrimSpace(c.BotToken)
	c.Channel = strings.TrimSpace(c.Channel)
	if c.BotToken == "" {
		errs = append(errs, errors.New("AIRDROP_BOT_TOKEN is required"))
	}
	if c.Channel == "" {
		errs = append(errs, errors.New("AIRDROP_CHANNEL is required"))
	}

	admins := make([]string, 0, len(c.Admins))
	for _, a := range c.Admins {
		if a = strings.TrimSpace(a); a != "" {
			admins = append(admins, a)
		}
	}
	c.Admins = admins
	if len(c.Admins) == 0 {
		errs = append(errs, errors.New("AIRDROP_ADMINS must list at least one admin"))
	}

	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	switch c.Storage {
	case StorageMemory:
	case StorageRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("AIRDROP_REDIS_URL is required when AIRDROP_STORAGE=redis"))
		}
	case StorageSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("AIRDROP_SQLITE_PATH is required when AIRDROP_STORAGE=sqlite"))
		}
	case StorageCSV:
		if c.CSVDir == "" {
			errs = append(errs, errors.New("AIRDROP_CSV_DIR is required when AIRDROP_STORAGE=csv"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AIRDROP_STORAGE %q", c.Storage))
	}

	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	switch c.Mode {
	case ModePolling:
	case ModeWebhook:
		if u, err := url.Parse(c.WebhookURL); err != nil || u.Scheme != "https" || u.Host == "" {
			errs = append(errs, errors.New("AIRDROP_WEBHOOK_URL must be an https URL in webhook mode"))
		}
		switch {
		case c.WebhookSecret == "":
			errs = append(errs, errors.New("AIRDROP_WEBHOOK_SECRET is required in webhook mode"))
		case !webhookSecretPattern.MatchString(c.WebhookSecret):
			errs = append(errs, errors.New("AIRDROP_WEBHOOK_SECRET may only contain A-Z, a-z, 0-9, _ and -"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AIRDROP_MODE %q", c.Mode))
	}

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("AIRDROP_HTTP_PORT %d out of range", c.HTTPPort))
	}
	if c.OracleTimeout <= 0 {
		errs = append(errs, errors.New("AIRDROP_ORACLE_TIMEOUT must be positive"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("AIRDROP_STORE_TIMEOUT must be positive"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SlogLevel parses LogLevel
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid AIRDROP_LOG_LEVEL %q", c.LogLevel)
	}
	return level, nil
}

// ServesHTTP reports whether the process needs an HTTP listener
func (c *Config) ServesHTTP() bool {
	return c.Mode == ModeWebhook || c.APITokenHash != ""
}

// WebhookEndpoint returns the public URL the Bot API posts updates to.
// WebhookURL is the externally reachable base of the HTTP listener.
func (c *Config) WebhookEndpoint() string {
	return strings.TrimRight(c.WebhookURL, "/") + "/telegram/webhook/" + c.WebhookSecret
}
