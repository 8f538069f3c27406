package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HTTPAddr != ":8099" || cfg.PollInterval != time.Minute || cfg.TokenStore != TokenStoreSQLite {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.DBDir() != "/data" {
		t.Fatalf("DBDir() = %q", cfg.DBDir())
	}
	if cfg.Level() != slog.LevelInfo {
		t.Fatalf("Level() = %v", cfg.Level())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "90s")
	t.Setenv("TOKEN_STORE", " Redis ")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TOKEN_FRESHNESS", "EXPIRY")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.PollInterval != 90*time.Second {
		t.Fatalf("PollInterval = %s", cfg.PollInterval)
	}
	if cfg.TokenStore != TokenStoreRedis || cfg.TokenFreshness != "expiry" {
		t.Fatalf("unexpected token settings %+v", cfg)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Fatalf("Level() = %v", cfg.Level())
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "redis without url", env: map[string]string{"TOKEN_STORE": "redis", "REDIS_URL": ""}},
		{name: "unknown store", env: map[string]string{"TOKEN_STORE": "etcd"}},
		{name: "unknown freshness", env: map[string]string{"TOKEN_FRESHNESS": "jwks"}},
		{name: "poll interval too short", env: map[string]string{"POLL_INTERVAL": "5s"}},
		{name: "malformed duration", env: map[string]string{"POLL_INTERVAL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("Load() succeeded, want error")
			}
		})
	}
}
