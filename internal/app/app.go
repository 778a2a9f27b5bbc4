// Package app assembles the ledger, its optional Redis and Postgres backing
// services and the return desk from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/chainguard/tracker/internal/ai"
	"github.com/chainguard/tracker/internal/cache"
	"github.com/chainguard/tracker/internal/commerce"
	"github.com/chainguard/tracker/internal/db"
	"github.com/chainguard/tracker/internal/fraud"
	"github.com/chainguard/tracker/internal/importer"
	"github.com/chainguard/tracker/internal/indexer"
	"github.com/chainguard/tracker/internal/ledger"
	"github.com/chainguard/tracker/internal/notify"
	"github.com/chainguard/tracker/internal/policy"
	"github.com/chainguard/tracker/internal/returns"
	"github.com/chainguard/tracker/internal/tracker"
	"github.com/chainguard/tracker/pkg/config"
	"github.com/chainguard/tracker/pkg/logging"
)

// App holds the wired services. Cache and DB are nil when disabled.
type App struct {
	Config   *config.Config
	Cache    *cache.Cache
	DB       *db.DB
	Backend  ledger.Backend
	Store    *ledger.Store
	Tracker  *tracker.Tracker
	Returns  *returns.Service
	Importer *importer.Importer
	logger   *zap.Logger
}

// New connects the configured backing services, loads the chain and wires
// the tracker and return desk. With mirror true the relational mirror is
// attached as a block observer.
func New(ctx context.Context, cfg *config.Config, mirror bool) (*App, error) {
	a := &App{Config: cfg, Importer: importer.New(), logger: logging.WithComponent("app")}

	c, err := cache.New(&cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.Cache = c

	a.Backend, err = NewBackend(&cfg.Ledger, c)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = ledger.NewStore(a.Backend)
	if err := a.Store.Initialize(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	classifier, err := ai.New(ctx, &cfg.AI)
	if err != nil {
		a.logger.Warn("AI classifier unavailable, using fallbacks", zap.Error(err))
		classifier = ai.Unavailable{}
	}
	resilient := ai.WithFallback(classifier, cfg.AI.Timeout)

	opts := []tracker.Option{tracker.WithCache(c), tracker.WithClassifier(resilient)}
	if mirror {
		database, err := OpenMirror(ctx, cfg)
		switch {
		case errors.Is(err, db.ErrDatabaseDisabled):
			a.logger.Info("Relational mirror disabled")
		case err != nil:
			a.Close()
			return nil, err
		default:
			a.DB = database
			opts = append(opts, tracker.WithObserver(indexer.NewSync(database, a.Backend)))
		}
	}
	a.Tracker = tracker.New(a.Store, opts...)

	a.Returns = returns.NewService(
		commerce.NewLookup(time.Now),
		resilient,
		NewAnalyzer(&cfg.Fraud),
		policy.NewEngine(),
		a.Tracker,
		notify.NewLogSender(0),
	)
	return a, nil
}

// NewBackend returns the ledger backend named by cfg.
func NewBackend(cfg *config.LedgerConfig, c *cache.Cache) (ledger.Backend, error) {
	switch cfg.Backend {
	case "", "file":
		return ledger.NewFileBackend(cfg.Path), nil
	case "redis":
		if c == nil {
			return nil, fmt.Errorf("ledger backend redis: %w", cache.ErrCacheDisabled)
		}
		return cache.NewLedgerBackend(c, cfg.StorageKey), nil
	}
	return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
}

// OpenMirror connects to Postgres and migrates the mirror tables.
func OpenMirror(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// NewAnalyzer builds the fraud analyzer. Stochastic triggers are enabled only
// when sampling is configured; a zero seed uses the clock.
func NewAnalyzer(cfg *config.FraudConfig) *fraud.Analyzer {
	if !cfg.Sampling {
		return fraud.NewAnalyzer()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return fraud.NewAnalyzer(fraud.WithSampler(rand.New(rand.NewSource(seed))))
}

// Close releases the backing services.
func (a *App) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.logger.Warn("Failed to close database", zap.Error(err))
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.logger.Warn("Failed to close cache", zap.Error(err))
		}
	}
}
