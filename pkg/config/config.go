// Package config loads orderflow configuration from a JSON file with
// environment variable overrides applied on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// GatewayConfig configures the HTTP API surface.
type GatewayConfig struct {
	Host   string `json:"host" env:"ORDERFLOW_HOST"`
	Port   int    `json:"port" env:"ORDERFLOW_PORT"`
	APIKey string `json:"api_key" env:"ORDERFLOW_API_KEY"`
}

// QueueConfig tunes the notification delivery queue.
type QueueConfig struct {
	MaxConcurrent int `json:"max_concurrent" env:"ORDERFLOW_QUEUE_MAX_CONCURRENT"`
	// RateLimit is the number of dispatch batches allowed per minute.
	RateLimit   int `json:"rate_limit" env:"ORDERFLOW_QUEUE_RATE_LIMIT"`
	MaxAttempts int `json:"max_attempts" env:"ORDERFLOW_QUEUE_MAX_ATTEMPTS"`
	// DispatchTimeoutSeconds bounds a single channel send call.
	DispatchTimeoutSeconds int `json:"dispatch_timeout_seconds" env:"ORDERFLOW_QUEUE_DISPATCH_TIMEOUT"`
}

// DispatchTimeout returns the per-send timeout as a duration.
func (q QueueConfig) DispatchTimeout() time.Duration {
	if q.DispatchTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(q.DispatchTimeoutSeconds) * time.Second
}

// ProviderConfig holds credentials for one outbound channel provider.
type ProviderConfig struct {
	APIBase   string `json:"api_base"`
	AccountID string `json:"account_id"`
	AuthToken string `json:"auth_token"`
	From      string `json:"from"`
}

// ChannelsConfig groups the per-channel provider settings.
type ChannelsConfig struct {
	WhatsApp  ProviderConfig `json:"whatsapp"`
	Email     SMTPConfig     `json:"email"`
	SMS       ProviderConfig `json:"sms"`
	Instagram ProviderConfig `json:"instagram"`
	Voice     ProviderConfig `json:"voice"`
}

// SMTPConfig configures the email sender.
type SMTPConfig struct {
	Host string `json:"host" env:"ORDERFLOW_SMTP_HOST"`
	Port int    `json:"port" env:"ORDERFLOW_SMTP_PORT"`
	User string `json:"user" env:"ORDERFLOW_SMTP_USER"`
	Pass string `json:"pass" env:"ORDERFLOW_SMTP_PASS"`
	From string `json:"from" env:"ORDERFLOW_SMTP_FROM"`
}

// StorageConfig points at the durable history database and template packs.
type StorageConfig struct {
	HistoryDB    string   `json:"history_db" env:"ORDERFLOW_HISTORY_DB"`
	TemplateDirs []string `json:"template_dirs"`
}

// ArchiverConfig schedules the completed-conversation archiver.
type ArchiverConfig struct {
	Cron    string `json:"cron" env:"ORDERFLOW_ARCHIVER_CRON"`
	Enabled bool   `json:"enabled" env:"ORDERFLOW_ARCHIVER_ENABLED"`
}

// Config is the root orderflow configuration.
type Config struct {
	Environment     string         `json:"environment" env:"ORDERFLOW_ENV"`
	LogLevel        string         `json:"log_level" env:"ORDERFLOW_LOG_LEVEL"`
	RestaurantName  string         `json:"restaurant_name" env:"ORDERFLOW_RESTAURANT_NAME"`
	DefaultLanguage string         `json:"default_language" env:"ORDERFLOW_DEFAULT_LANGUAGE"`
	Gateway         GatewayConfig  `json:"gateway"`
	Queue           QueueConfig    `json:"queue"`
	Channels        ChannelsConfig `json:"channels"`
	Storage         StorageConfig  `json:"storage"`
	Archiver        ArchiverConfig `json:"archiver"`
}

// Default returns the configuration used when no file or env overrides exist.
func Default() *Config {
	return &Config{
		Environment:     "development",
		LogLevel:        "info",
		RestaurantName:  "Mealkitz",
		DefaultLanguage: "en",
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
		Queue: QueueConfig{
			MaxConcurrent:          5,
			RateLimit:              100,
			MaxAttempts:            3,
			DispatchTimeoutSeconds: 30,
		},
		Storage: StorageConfig{
			HistoryDB:    filepath.Join(dataDir(), "history.db"),
			TemplateDirs: []string{"templates/messages"},
		},
		Archiver: ArchiverConfig{
			Cron:    "*/15 * * * *",
			Enabled: true,
		},
	}
}

// Load reads the config file at path (if it exists) over the defaults, then
// applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Queue.MaxConcurrent < 1 {
		return fmt.Errorf("config: queue max_concurrent must be >= 1, got %d", c.Queue.MaxConcurrent)
	}
	if c.Queue.RateLimit < 1 {
		return fmt.Errorf("config: queue rate_limit must be >= 1, got %d", c.Queue.RateLimit)
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("config: queue max_attempts must be >= 1, got %d", c.Queue.MaxAttempts)
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("config: invalid gateway port %d", c.Gateway.Port)
	}
	return nil
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".orderflow"
	}
	return filepath.Join(home, ".orderflow")
}
