// Package tracker is the ledger's write path. It validates requests against
// the current chain, mines one block per commit and appends it, all under a
// single lock, then hands the block to observers.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/chainguard/tracker/internal/ai"
	"github.com/chainguard/tracker/internal/cache"
	"github.com/chainguard/tracker/internal/indexer"
	"github.com/chainguard/tracker/internal/ledger"
	"github.com/chainguard/tracker/internal/lifecycle"
	"github.com/chainguard/tracker/pkg/logging"
	"github.com/chainguard/tracker/pkg/telemetry"
)

var (
	// ErrNotFound is returned when a product or order is not on the ledger.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest is returned for requests that fail validation before
	// any transition check.
	ErrInvalidRequest = errors.New("invalid request")
)

var errRefundPath = fmt.Errorf("%w: refunds are recorded by a refund decision", ErrInvalidRequest)

// Observer receives every appended block in ledger order.
type Observer interface {
	ProcessBlock(ctx context.Context, block ledger.Block) error
}

// Tracker owns the ledger write path.
type Tracker struct {
	mu        sync.Mutex
	store     *ledger.Store
	cache     *cache.Cache
	ai        *ai.Resilient
	observers []Observer
	now       func() time.Time
	logger    *zap.Logger

	minedBlocks metric.Int64Counter
	nonces      metric.Int64Histogram
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the clock used for transaction and block timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithCache caches product projections keyed by the ledger head.
func WithCache(c *cache.Cache) Option {
	return func(t *Tracker) { t.cache = c }
}

// WithClassifier enables product descriptions and history audits.
func WithClassifier(r *ai.Resilient) Option {
	return func(t *Tracker) { t.ai = r }
}

// WithObserver adds an observer of appended blocks.
func WithObserver(o Observer) Option {
	return func(t *Tracker) { t.observers = append(t.observers, o) }
}

// New returns a Tracker writing to store. The store must be initialized.
func New(store *ledger.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		now:    time.Now,
		logger: logging.GetLogger().With(zap.String("component", "tracker")),
	}
	for _, opt := range opts {
		opt(t)
	}

	meter := telemetry.Meter()
	var err error
	if t.minedBlocks, err = meter.Int64Counter("chainguard_blocks_mined_total",
		metric.WithDescription("Blocks mined and appended to the ledger")); err != nil {
		t.logger.Warn("Failed to create mined block counter", zap.Error(err))
	}
	if t.nonces, err = meter.Int64Histogram("chainguard_block_nonce",
		metric.WithDescription("Nonce that satisfied the difficulty target")); err != nil {
		t.logger.Warn("Failed to create nonce histogram", zap.Error(err))
	}
	return t
}

// buildFunc derives the transactions of the next block from the current chain.
type buildFunc func(blocks []ledger.Block) ([]ledger.Transaction, error)

// commit builds, mines and appends one block while holding the write lock.
func (t *Tracker) commit(ctx context.Context, build buildFunc) (ledger.Block, error) {
	ctx, span := telemetry.StartSpan(ctx, "tracker.commit")
	defer span.End()

	t.mu.Lock()
	defer t.mu.Unlock()

	blocks := t.store.Blocks()
	if len(blocks) == 0 {
		return ledger.Block{}, ledger.ErrEmptyLedger
	}
	txs, err := build(blocks)
	if err != nil {
		return ledger.Block{}, err
	}
	if len(txs) == 0 {
		return ledger.Block{}, fmt.Errorf("%w: nothing to commit", ErrInvalidRequest)
	}

	start := time.Now()
	block, err := ledger.Mine(txs, blocks[len(blocks)-1], t.now())
	if err != nil {
		return ledger.Block{}, err
	}
	if err := t.store.Append(ctx, block); err != nil {
		return ledger.Block{}, err
	}

	attrs := metric.WithAttributes(attribute.String("type", string(txs[0].Type)))
	if t.minedBlocks != nil {
		t.minedBlocks.Add(ctx, 1, attrs)
	}
	if t.nonces != nil {
		t.nonces.Record(ctx, block.Nonce)
	}
	span.SetAttributes(attribute.Int64("block.index", block.Index), attribute.Int64("block.nonce", block.Nonce))
	t.logger.Info("Mined block",
		zap.Int64("index", block.Index),
		zap.String("hash", block.Hash),
		zap.Int64("nonce", block.Nonce),
		zap.Int("transactions", len(block.Data)),
		zap.Duration("elapsed", time.Since(start)))

	for _, o := range t.observers {
		if err := o.ProcessBlock(ctx, block); err != nil {
			t.logger.Warn("Block observer failed", zap.Int64("index", block.Index), zap.Error(err))
		}
	}
	return block, nil
}

// Submit appends a single externally built transaction. Registrations are
// always accepted. Updates need a registered product, and their status change
// is checked against role unless role is empty. Refunds are rejected; they
// are only written by DecideRefund.
func (t *Tracker) Submit(ctx context.Context, tx ledger.Transaction, role lifecycle.Role) (ledger.Block, error) {
	if tx.Type == ledger.TxRefundDecision || tx.Status == lifecycle.StatusRefunded {
		return ledger.Block{}, errRefundPath
	}
	if tx.ID == "" {
		tx.ID = newTxID()
	}
	if tx.Timestamp == 0 {
		tx.Timestamp = t.now().UnixMilli()
	}
	return t.commit(ctx, func(blocks []ledger.Block) ([]ledger.Transaction, error) {
		switch tx.Type {
		case ledger.TxStatusUpdate, ledger.TxRefundDecision:
			state, ok := indexer.ProjectOne(blocks, tx.ProductUID)
			if !ok {
				return nil, fmt.Errorf("product %s: %w", tx.ProductUID, ErrNotFound)
			}
			if role != "" {
				if err := lifecycle.Validate(state.CurrentStatus, tx.Status, role); err != nil {
					return nil, err
				}
			}
		case ledger.TxAnalysisResult:
			if tx.Analysis == nil {
				return nil, fmt.Errorf("%w: analysis result without a payload", ErrInvalidRequest)
			}
		}
		return []ledger.Transaction{tx}, nil
	})
}

// Import appends already validated transactions from another node in one
// block. Transitions are not checked, but every update must name a product
// registered on the chain or earlier in the same import.
func (t *Tracker) Import(ctx context.Context, txs []ledger.Transaction) (ledger.Block, error) {
	if len(txs) == 0 {
		return ledger.Block{}, fmt.Errorf("%w: nothing to import", ErrInvalidRequest)
	}
	return t.commit(ctx, func(blocks []ledger.Block) ([]ledger.Transaction, error) {
		known := make(map[string]bool)
		for _, p := range indexer.ProjectAll(blocks) {
			known[p.UID] = true
		}
		out := make([]ledger.Transaction, len(txs))
		for i, tx := range txs {
			switch tx.Type {
			case ledger.TxRegistration:
				known[tx.ProductUID] = true
			case ledger.TxStatusUpdate, ledger.TxRefundDecision:
				if !known[tx.ProductUID] {
					return nil, fmt.Errorf("transaction %s: product %s: %w", tx.ID, tx.ProductUID, ErrNotFound)
				}
			}
			if tx.Timestamp == 0 {
				tx.Timestamp = t.now().UnixMilli()
			}
			out[i] = tx
		}
		return out, nil
	})
}

// RecordAnalysis appends the outcome of a return assessment.
func (t *Tracker) RecordAnalysis(ctx context.Context, rec ledger.ReturnRecord, actor string) (ledger.Block, ledger.Transaction, error) {
	tx := ledger.Transaction{
		ID:         newTxID(),
		Timestamp:  t.now().UnixMilli(),
		Type:       ledger.TxAnalysisResult,
		ProductUID: rec.OrderID,
		Actor:      actor,
		Analysis:   &rec,
	}
	block, err := t.commit(ctx, func([]ledger.Block) ([]ledger.Transaction, error) {
		return []ledger.Transaction{tx}, nil
	})
	return block, tx, err
}

// Blocks returns a snapshot of the chain.
func (t *Tracker) Blocks() []ledger.Block {
	return t.store.Blocks()
}

// Verify checks the integrity of the whole chain.
func (t *Tracker) Verify() error {
	return ledger.Verify(t.store.Blocks())
}

// Products returns every registered product. Projections are cached per
// ledger head when a cache is configured.
func (t *Tracker) Products(ctx context.Context) []indexer.ProductState {
	ctx, span := telemetry.StartSpan(ctx, "tracker.products")
	defer span.End()

	blocks := t.store.Blocks()
	if len(blocks) == 0 {
		return nil
	}
	key := cache.HashKey("products", blocks[len(blocks)-1].Hash)

	var cached []indexer.ProductState
	err := t.cache.GetJSON(ctx, key, &cached)
	if err == nil {
		return cached
	}
	if !errors.Is(err, cache.ErrCacheDisabled) && !errors.Is(err, cache.ErrCacheMiss) {
		t.logger.Warn("Product cache read failed", zap.Error(err))
	}

	replay := indexer.ReplayProducts(blocks)
	if replay.Dropped > 0 {
		t.logger.Debug("Dropped updates for unregistered products", zap.Int("count", replay.Dropped))
	}
	if err := t.cache.SetJSON(ctx, key, replay.Products, t.cache.TTL()); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		t.logger.Warn("Product cache write failed", zap.Error(err))
	}
	return replay.Products
}

// Product returns the state of one product.
func (t *Tracker) Product(ctx context.Context, uid string) (indexer.ProductState, error) {
	for _, p := range t.Products(ctx) {
		if p.UID == uid {
			return p, nil
		}
	}
	return indexer.ProductState{}, fmt.Errorf("product %s: %w", uid, ErrNotFound)
}

// RefundEligibility decides whether a product may be refunded now.
func (t *Tracker) RefundEligibility(ctx context.Context, uid string) (lifecycle.Eligibility, error) {
	p, err := t.Product(ctx, uid)
	if err != nil {
		return lifecycle.Eligibility{}, err
	}
	return p.RefundEligibility(), nil
}

// CustomerProducts returns products sold to the customer.
func (t *Tracker) CustomerProducts(ctx context.Context, customerID string) []indexer.ProductState {
	hash := ledger.HashCustomerID(customerID)
	out := []indexer.ProductState{}
	for _, p := range t.Products(ctx) {
		if p.Metadata != nil && p.Metadata.Invoice != nil && p.Metadata.Invoice.CustomerIDHash == hash {
			out = append(out, p)
		}
	}
	return out
}

// Orders returns the return history of every order.
func (t *Tracker) Orders() []indexer.OrderState {
	return indexer.ProjectOrders(t.store.Blocks())
}

// Order returns the return history of one order.
func (t *Tracker) Order(orderID string) (indexer.OrderState, error) {
	for _, o := range t.Orders() {
		if o.OrderID == orderID {
			return o, nil
		}
	}
	return indexer.OrderState{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
}

// Audit asks the classifier to review a product's journey.
func (t *Tracker) Audit(ctx context.Context, uid string) (string, error) {
	p, err := t.Product(ctx, uid)
	if err != nil {
		return "", err
	}
	if t.ai == nil {
		return "AI Audit unavailable.", nil
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode product: %w", err)
	}
	return t.ai.AuditHistory(ctx, string(data)), nil
}
