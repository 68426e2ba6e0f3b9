package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Queue.MaxConcurrent != 5 {
		t.Errorf("max_concurrent = %d, want 5", cfg.Queue.MaxConcurrent)
	}
	if cfg.Queue.RateLimit != 100 {
		t.Errorf("rate_limit = %d, want 100", cfg.Queue.RateLimit)
	}
	if cfg.Queue.MaxAttempts != 3 {
		t.Errorf("max_attempts = %d, want 3", cfg.Queue.MaxAttempts)
	}
	if cfg.Queue.DispatchTimeout() != 30*time.Second {
		t.Errorf("dispatch timeout = %s, want 30s", cfg.Queue.DispatchTimeout())
	}
	if cfg.DefaultLanguage != "en" {
		t.Errorf("default language = %s, want en", cfg.DefaultLanguage)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 8090 {
		t.Errorf("port = %d, want default 8090", cfg.Gateway.Port)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"restaurant_name": "Casa Sushi",
		"default_language": "es",
		"queue": {"max_concurrent": 2, "rate_limit": 10, "max_attempts": 5, "dispatch_timeout_seconds": 10}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RestaurantName != "Casa Sushi" {
		t.Errorf("restaurant = %q", cfg.RestaurantName)
	}
	if cfg.Queue.MaxConcurrent != 2 || cfg.Queue.MaxAttempts != 5 {
		t.Errorf("queue config not applied: %+v", cfg.Queue)
	}
	// Untouched sections keep their defaults.
	if cfg.Gateway.Port != 8090 {
		t.Errorf("port = %d, want default 8090", cfg.Gateway.Port)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("ORDERFLOW_QUEUE_RATE_LIMIT", "7")
	t.Setenv("ORDERFLOW_RESTAURANT_NAME", "Env Kitchen")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Queue.RateLimit != 7 {
		t.Errorf("rate_limit = %d, want env override 7", cfg.Queue.RateLimit)
	}
	if cfg.RestaurantName != "Env Kitchen" {
		t.Errorf("restaurant = %q, want env override", cfg.RestaurantName)
	}
}

func TestValidateRejectsBadQueueConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"queue": {"max_concurrent": 0, "rate_limit": 100, "max_attempts": 3}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for max_concurrent = 0")
	}
}
