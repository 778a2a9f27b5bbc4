package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/chainguard/tracker/internal/app"
	"github.com/chainguard/tracker/internal/cache"
	"github.com/chainguard/tracker/internal/indexer"
	"github.com/chainguard/tracker/pkg/config"
	"github.com/chainguard/tracker/pkg/logging"
	"github.com/chainguard/tracker/pkg/telemetry"
)

// The indexer follows a ledger written by another process and keeps the
// relational mirror caught up.
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting ChainGuard mirror indexer")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()

	backend, err := app.NewBackend(&cfg.Ledger, redisCache)
	if err != nil {
		logger.Fatal("Failed to open ledger", zap.Error(err))
	}

	database, err := app.OpenMirror(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open mirror database", zap.Error(err))
	}
	defer database.Close()

	follower := indexer.NewSync(database, backend)
	if err := follower.Run(ctx, cfg.Database.SyncInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Indexer stopped", zap.Error(err))
	}
	logger.Info("Indexer exited")
}
