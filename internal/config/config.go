package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	TokenStoreSQLite = "sqlite"
	TokenStoreRedis  = "redis"
)

// Config stores runtime settings loaded from environment variables.
type Config struct {
	HTTPAddr          string        `envconfig:"HTTP_ADDR" default:":8099"`
	DBPath            string        `envconfig:"DB_PATH" default:"/data/remeha_home.db"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFile           string        `envconfig:"LOG_FILE"`
	PollInterval      time.Duration `envconfig:"POLL_INTERVAL" default:"1m"`
	InitialSyncDelay  time.Duration `envconfig:"INITIAL_SYNC_DELAY" default:"2s"`
	TickTimeout       time.Duration `envconfig:"TICK_TIMEOUT" default:"30s"`
	TokenFreshness    string        `envconfig:"TOKEN_FRESHNESS" default:"claim"`
	TokenStore        string        `envconfig:"TOKEN_STORE" default:"sqlite"`
	RedisURL          string        `envconfig:"REDIS_URL"`
	HABaseURL         string        `envconfig:"HA_BASE_URL" default:"http://supervisor/core"`
	SupervisorToken   string        `envconfig:"SUPERVISOR_TOKEN"`
	RemehaAPIURL      string        `envconfig:"REMEHA_API_URL" default:"https://api.bdrthermea.net/Mobile/api"`
	RemehaAuthURL     string        `envconfig:"REMEHA_AUTH_URL" default:"https://remehalogin.bdrthermea.net/bdrb2cprod.onmicrosoft.com"`
	PairingSessionTTL time.Duration `envconfig:"PAIRING_SESSION_TTL" default:"10m"`
}

// Load builds Config from environment variables using stable defaults.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.TokenStore = strings.ToLower(strings.TrimSpace(cfg.TokenStore))
	cfg.TokenFreshness = strings.ToLower(strings.TrimSpace(cfg.TokenFreshness))
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.TokenStore {
	case TokenStoreSQLite:
	case TokenStoreRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required when TOKEN_STORE=redis")
		}
	default:
		return fmt.Errorf("unsupported TOKEN_STORE %q", c.TokenStore)
	}
	if c.TokenFreshness != "claim" && c.TokenFreshness != "expiry" {
		return fmt.Errorf("unsupported TOKEN_FRESHNESS %q", c.TokenFreshness)
	}
	if c.PollInterval < 10*time.Second {
		return fmt.Errorf("POLL_INTERVAL must be at least 10s, got %s", c.PollInterval)
	}
	return nil
}

// DBDir returns the target directory for DBPath.
func (c Config) DBDir() string {
	return filepath.Dir(c.DBPath)
}

// Level maps LOG_LEVEL to a slog level.
func (c Config) Level() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
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
