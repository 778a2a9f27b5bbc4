package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard/tracker/internal/ledger"
)

// LedgerBackend persists the block sequence as one JSON array under a single
// Redis key that never expires.
type LedgerBackend struct {
	cache *Cache
	key   string
}

// NewLedgerBackend returns a ledger.Backend storing the chain under key.
func NewLedgerBackend(c *Cache, key string) *LedgerBackend {
	return &LedgerBackend{cache: c, key: key}
}

// Load implements ledger.Backend.
func (b *LedgerBackend) Load(ctx context.Context) ([]ledger.Block, error) {
	raw, err := b.cache.Get(ctx, b.key)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load chain from redis: %w", err)
	}
	return ledger.DecodeChain([]byte(raw))
}

// Save implements ledger.Backend.
func (b *LedgerBackend) Save(ctx context.Context, blocks []ledger.Block) error {
	data, err := ledger.EncodeChain(blocks)
	if err != nil {
		return err
	}
	if err := b.cache.Set(ctx, b.key, data, 0); err != nil {
		return fmt.Errorf("save chain to redis: %w", err)
	}
	return nil
}
