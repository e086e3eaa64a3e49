package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wattsync/wattsync/internal/api"
	"github.com/wattsync/wattsync/internal/cache"
	"github.com/wattsync/wattsync/internal/config"
	"github.com/wattsync/wattsync/internal/logging"
	"github.com/wattsync/wattsync/internal/notify"
	"github.com/wattsync/wattsync/internal/provider/contact"
	syncsvc "github.com/wattsync/wattsync/internal/service/sync"
	"github.com/wattsync/wattsync/internal/service/usage"
	"github.com/wattsync/wattsync/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize logging
	logger := logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("starting wattsync server",
		slog.String("version", "0.1.0"),
		slog.Int("port", cfg.Server.Port))

	// Initialize database
	db, err := storage.New(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize stores
	usageStore := storage.NewUsageStore(db)
	accountStore := storage.NewAccountStore(db)

	// Initialize upstream client
	clientOpts := []contact.ClientOption{
		contact.WithLogger(logger),
		contact.WithMinInterval(cfg.Contact.MinInterval),
	}
	if cfg.Contact.BaseURL != "" {
		clientOpts = append(clientOpts, contact.WithBaseURL(cfg.Contact.BaseURL))
	}
	if cfg.Contact.APIKey != "" {
		clientOpts = append(clientOpts, contact.WithAPIKey(cfg.Contact.APIKey))
	}
	client := contact.NewClient(cfg.Contact.Username, cfg.Contact.Password, clientOpts...)

	// Initialize services
	readCache := cache.New(cfg.Cache.TTL)

	usageSvc := usage.New(client, usageStore, accountStore, readCache,
		usage.WithLogger(logger))

	notifier := notify.New(cfg.HomeAssistant, cfg.MQTT,
		notify.WithLogger(logger))

	orchestrator := syncsvc.New(client, usageStore, accountStore, notifier, readCache, cfg.Sync,
		syncsvc.WithLogger(logger))

	runner := syncsvc.NewRunner(orchestrator, cfg.Sync, logger)

	// Initialize API server
	server := api.New(usageSvc, orchestrator,
		api.WithLogger(logger),
		api.WithHost(cfg.Server.Host),
		api.WithPort(cfg.Server.Port))

	server.SetReady(true)

	// Start background sync
	runner.Start()

	// Handle shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down...")

		// Stop accepting new requests before tearing anything down
		server.SetReady(false)

		runner.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", slog.String("error", err.Error()))
		}
	}()

	// Start server
	if err := server.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
