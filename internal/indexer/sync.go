package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chainguard/tracker/internal/db"
	"github.com/chainguard/tracker/internal/ledger"
	"github.com/chainguard/tracker/internal/models"
	"github.com/chainguard/tracker/pkg/logging"
)

// BlockSource yields the current ledger.
type BlockSource interface {
	Load(ctx context.Context) ([]ledger.Block, error)
}

type headReader interface {
	Get(ctx context.Context) (*models.State, error)
}

type blockMirror interface {
	ProcessBlock(ctx context.Context, block ledger.Block) error
}

// Sync keeps the relational mirror caught up with the ledger
type Sync struct {
	source         BlockSource
	state          headReader
	blockProcessor blockMirror
	logger         *zap.Logger
}

// NewSync creates a new sync manager
func NewSync(database *db.DB, source BlockSource) *Sync {
	repo := db.NewRepository(database.DB)
	return &Sync{
		source:         source,
		state:          db.NewStateRepository(repo),
		blockProcessor: NewBlockProcessor(database),
		logger:         logging.GetLogger().With(zap.String("component", "indexer")),
	}
}

// Run catches up repeatedly until ctx is cancelled
func (s *Sync) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	s.logger.Info("Starting mirror sync", zap.Duration("interval", interval))

	for {
		if _, err := s.CatchUp(ctx); err != nil {
			s.logger.Error("Failed to sync mirror", zap.Error(err))
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ProcessBlock mirrors a freshly appended block. If the mirror has fallen
// behind, the missing blocks are replayed from the ledger first.
func (s *Sync) ProcessBlock(ctx context.Context, block ledger.Block) error {
	err := s.blockProcessor.ProcessBlock(ctx, block)
	if !errors.Is(err, ErrMirrorGap) {
		return err
	}
	s.logger.Warn("Mirror behind ledger, catching up", zap.Int64("block", block.Index), zap.Error(err))
	if _, err := s.CatchUp(ctx); err != nil {
		return err
	}
	return nil
}

// CatchUp mirrors every block after the last mirrored one and returns how
// many blocks were processed
func (s *Sync) CatchUp(ctx context.Context) (int, error) {
	blocks, err := s.source.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load ledger: %w", err)
	}

	state, err := s.state.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get mirror state: %w", err)
	}

	pending := PendingBlocks(blocks, state != nil, stateBlockNum(state))
	if len(pending) == 0 {
		s.logger.Debug("Mirror already synced", zap.Int("blocks", len(blocks)))
		return 0, nil
	}

	s.logger.Info("Syncing blocks",
		zap.Int64("from", pending[0].Index),
		zap.Int64("to", pending[len(pending)-1].Index))

	for _, block := range pending {
		if err := s.blockProcessor.ProcessBlock(ctx, block); err != nil {
			return 0, fmt.Errorf("failed to process block %d: %w", block.Index, err)
		}
	}
	return len(pending), nil
}

// PendingBlocks returns the blocks after head. With no head every block is
// pending.
func PendingBlocks(blocks []ledger.Block, hasHead bool, head int64) []ledger.Block {
	if !hasHead {
		return blocks
	}
	for i, b := range blocks {
		if b.Index > head {
			return blocks[i:]
		}
	}
	return nil
}
