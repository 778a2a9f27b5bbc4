package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chainguard/tracker/pkg/logging"
)

// ErrEmptyLedger is returned when the chain is read before Initialize.
var ErrEmptyLedger = errors.New("ledger is empty")

// Backend persists the full block sequence.
type Backend interface {
	// Load returns the persisted blocks, or nil when nothing was stored yet.
	Load(ctx context.Context) ([]Block, error)
	// Save replaces the persisted sequence with blocks.
	Save(ctx context.Context, blocks []Block) error
}

// Store holds the block sequence in memory and writes it through to a Backend.
// It does not order concurrent appends; callers keep a single writer.
type Store struct {
	backend Backend
	now     func() time.Time
	logger  *zap.Logger

	mu     sync.RWMutex
	blocks []Block
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for the genesis timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store backed by backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		logger:  logging.GetLogger().With(zap.String("component", "ledger")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize loads persisted blocks, creating and persisting a genesis block
// when the backend is empty.
func (s *Store) Initialize(ctx context.Context) error {
	blocks, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	if len(blocks) == 0 {
		genesis := Genesis(s.now())
		blocks = []Block{genesis}
		if err := s.backend.Save(ctx, blocks); err != nil {
			return fmt.Errorf("persist genesis block: %w", err)
		}
		s.logger.Info("Created genesis block", zap.String("hash", genesis.Hash))
	} else {
		s.logger.Info("Loaded ledger",
			zap.Int("blocks", len(blocks)),
			zap.String("head", blocks[len(blocks)-1].Hash))
	}

	s.mu.Lock()
	s.blocks = blocks
	s.mu.Unlock()
	return nil
}

// LatestBlock returns the last block in the chain.
func (s *Store) LatestBlock() (Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.blocks) == 0 {
		return Block{}, ErrEmptyLedger
	}
	return s.blocks[len(s.blocks)-1], nil
}

// Append adds b to the chain without validating it and persists the full
// sequence. The in-memory chain is left unchanged if persisting fails.
func (s *Store) Append(ctx context.Context, b Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.blocks) == 0 {
		return ErrEmptyLedger
	}

	next := make([]Block, len(s.blocks), len(s.blocks)+1)
	copy(next, s.blocks)
	next = append(next, b)

	if err := s.backend.Save(ctx, next); err != nil {
		return fmt.Errorf("persist block %d: %w", b.Index, err)
	}
	s.blocks = next

	s.logger.Debug("Appended block",
		zap.Int64("index", b.Index),
		zap.Int("transactions", len(b.Data)),
		zap.String("hash", b.Hash))
	return nil
}

// Blocks returns a snapshot of the chain. Callers must not modify the
// transactions it contains.
func (s *Store) Blocks() []Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Block, len(s.blocks))
	copy(out, s.blocks)
	return out
}

// Len returns the number of blocks in the chain.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

// MemoryBackend keeps blocks in process memory. It backs tests and the
// disabled-persistence mode.
type MemoryBackend struct {
	mu     sync.Mutex
	blocks []Block
}

// NewMemoryBackend returns a backend preloaded with blocks.
func NewMemoryBackend(blocks ...Block) *MemoryBackend {
	return &MemoryBackend{blocks: blocks}
}

// Load implements Backend.
func (m *MemoryBackend) Load(ctx context.Context) ([]Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.blocks) == 0 {
		return nil, nil
	}
	out := make([]Block, len(m.blocks))
	copy(out, m.blocks)
	return out, nil
}

// Save implements Backend.
func (m *MemoryBackend) Save(ctx context.Context, blocks []Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = make([]Block, len(blocks))
	copy(m.blocks, blocks)
	return nil
}
