package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/micro-ha/remeha-home/addon/internal/auth"
	"github.com/micro-ha/remeha-home/addon/internal/config"
	"github.com/micro-ha/remeha-home/addon/internal/configsync"
	"github.com/micro-ha/remeha-home/addon/internal/devicesync"
	httpapi "github.com/micro-ha/remeha-home/addon/internal/http"
	"github.com/micro-ha/remeha-home/addon/internal/http/handlers"
	"github.com/micro-ha/remeha-home/addon/internal/logging"
	"github.com/micro-ha/remeha-home/addon/internal/model"
	"github.com/micro-ha/remeha-home/addon/internal/pairing"
	"github.com/micro-ha/remeha-home/addon/internal/remeha"
	"github.com/micro-ha/remeha-home/addon/internal/storage"
	"github.com/micro-ha/remeha-home/addon/internal/storage/redisstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger, logCloser := logging.New(cfg.Level(), cfg.LogFile)
	defer logCloser.Close()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server terminated with error", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.DBDir(), 0o755); err != nil {
		logger.Error("failed to create db directory", "err", err)
		return err
	}
	repo, err := storage.New(ctx, cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "err", err)
		return err
	}
	defer repo.Close()

	checks := map[string]handlers.HealthCheck{"sqlite": repo.Ping}

	var (
		tokens       devicesync.TokenStore = repo
		tokenDeleter handlers.TokenDeleter
	)
	if cfg.TokenStore == config.TokenStoreRedis {
		redisTokens, err := redisstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect token store", "err", err)
			return err
		}
		defer redisTokens.Close()
		tokens = redisTokens
		tokenDeleter = redisTokens
		checks["redis"] = redisTokens.CheckHealth
		logger.Info("tokens stored in redis")
	}

	authenticator := auth.New(auth.DefaultConfig(cfg.RemehaAuthURL), nil, logger)

	cfgClient := configsync.NewClient(cfg.HABaseURL, cfg.SupervisorToken)
	cfgManager := configsync.NewManager(cfgClient, cfg.PollInterval, logger)
	if _, err := cfgManager.Refresh(ctx); err != nil {
		logger.Warn("initial config refresh failed", "err", err)
	}
	pollInterval := cfgManager.PollInterval()

	registry := devicesync.NewRegistry(devicesync.Deps{
		Tokens: tokens,
		Sink:   repo,
		Debug:  repo,
		Auth:   authenticator,
		NewClient: func() devicesync.APIClient {
			return remeha.NewClient(cfg.RemehaAPIURL, "", nil, logger)
		},
		Freshness: auth.ParseFreshness(cfg.TokenFreshness),
		Logger:    logger,
	}, devicesync.Options{
		PollInterval: pollInterval,
		InitialDelay: cfg.InitialSyncDelay,
		TickTimeout:  cfg.TickTimeout,
	})
	defer registry.TeardownAll()

	pairingService := pairing.NewService(
		authenticator,
		func(accessToken string) pairing.Lister {
			return remeha.NewClient(cfg.RemehaAPIURL, accessToken, nil, logger)
		},
		repo,
		tokens,
		registry,
		cfg.PairingSessionTTL,
		logger,
	)

	devices, err := repo.ListDevices(ctx)
	if err != nil {
		logger.Error("failed to list paired devices", "err", err)
		return err
	}
	ids := make([]string, 0, len(devices))
	for _, device := range devices {
		ids = append(ids, device.ID)
	}
	if err := registry.ActivateAll(ctx, ids); err != nil {
		logger.Warn("device activation incomplete", "err", err)
	}
	logger.Info("device sync started", "devices", len(ids), "poll_interval", pollInterval.String())

	cfgManager.OnChange(func(settings model.Settings) {
		registry.Reconfigure(settings.PollInterval(cfg.PollInterval))
		registry.TriggerAll()
	})
	go runConfigFallbackRefresh(ctx, cfgManager, logger)
	if cfg.SupervisorToken != "" {
		watcher := configsync.NewWatcher(cfg.HABaseURL, cfg.SupervisorToken, logger)
		go watcher.Run(ctx, func() {
			refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := cfgManager.Refresh(refreshCtx); err != nil {
				logger.Warn("config refresh from event failed", "err", err)
			}
		})
	} else {
		logger.Warn("SUPERVISOR_TOKEN is empty; config sync watcher disabled")
	}

	api := handlers.New(repo, tokenDeleter, registry, pairingService, cfgManager, checks, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(api),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("server starting", "addr", httpServer.Addr)
	if err := httpapi.RunServer(ctx, httpServer, logger); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runConfigFallbackRefresh(ctx context.Context, cfg *configsync.Manager, logger *slog.Logger) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_, err := cfg.Refresh(refreshCtx)
			cancel()
			if err != nil {
				logger.Warn("periodic config refresh failed", "err", err)
			}
		}
	}
}
