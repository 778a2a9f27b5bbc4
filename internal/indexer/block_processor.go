package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chainguard/tracker/internal/db"
	"github.com/chainguard/tracker/internal/ledger"
	"github.com/chainguard/tracker/internal/models"
	"github.com/chainguard/tracker/pkg/logging"
)

// stateID is the single row of the mirror state table.
const stateID = 1

// ErrMirrorGap is returned for a block that does not directly follow the
// mirrored head.
var ErrMirrorGap = errors.New("block does not follow mirror head")

// BlockProcessor mirrors ledger blocks into the relational store
type BlockProcessor struct {
	db     *db.DB
	logger *zap.Logger
}

// NewBlockProcessor creates a new block processor
func NewBlockProcessor(database *db.DB) *BlockProcessor {
	return &BlockProcessor{
		db:     database,
		logger: logging.GetLogger().With(zap.String("component", "block-processor")),
	}
}

// ProcessBlock mirrors a single block in one database transaction
func (bp *BlockProcessor) ProcessBlock(ctx context.Context, block ledger.Block) error {
	tx := bp.db.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to start transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := bp.processBlockInTx(ctx, tx, block); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (bp *BlockProcessor) processBlockInTx(ctx context.Context, tx *gorm.DB, block ledger.Block) error {
	repo := db.NewRepository(tx)
	blocks := db.NewBlockRepository(repo)
	products := db.NewProductRepository(repo)
	txs := db.NewTransactionRepository(repo)
	state := db.NewStateRepository(repo)

	head, err := state.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get mirror state: %w", err)
	}
	skip, err := checkSequence(head, block.Index)
	if err != nil {
		return err
	}
	if skip {
		bp.logger.Debug("Block already mirrored", zap.Int64("block", block.Index))
		return nil
	}

	if err := blocks.Create(ctx, blockRow(block)); err != nil {
		return fmt.Errorf("failed to insert block %d: %w", block.Index, err)
	}

	for _, t := range block.Data {
		if err := bp.processTransaction(ctx, products, txs, block.Index, t); err != nil {
			return fmt.Errorf("failed to mirror transaction %s: %w", t.ID, err)
		}
	}

	if err := state.Update(ctx, &models.State{ID: stateID, BlockNum: block.Index, HeadHash: block.Hash}); err != nil {
		return fmt.Errorf("failed to update mirror state: %w", err)
	}
	return nil
}

func (bp *BlockProcessor) processTransaction(
	ctx context.Context,
	products *db.ProductRepository,
	txs *db.TransactionRepository,
	blockNum int64,
	t ledger.Transaction,
) error {
	if !mirrored(t.Type) {
		return nil
	}

	existing, err := products.GetByUID(ctx, t.ProductUID)
	if err != nil {
		return err
	}
	product, ok := applyTransaction(existing, t)
	if !ok {
		bp.logger.Debug("Skipping update for unregistered product",
			zap.String("uid", t.ProductUID),
			zap.Int64("block", blockNum))
		return nil
	}

	if err := products.Save(ctx, product); err != nil {
		return err
	}
	return txs.Create(ctx, transactionRow(product.ID, blockNum, t))
}

// checkSequence decides whether a block follows the mirrored head. Blocks at
// or below the head are skipped; a block past head+1 is a gap.
func checkSequence(head *models.State, index int64) (skip bool, err error) {
	want := stateBlockNum(head) + 1
	switch {
	case index < want:
		return true, nil
	case index > want:
		return false, fmt.Errorf("%w: head %d, got block %d", ErrMirrorGap, want-1, index)
	}
	return false, nil
}

// mirrored reports whether transactions of typ have a product row. Order
// analyses do not.
func mirrored(typ ledger.TxType) bool {
	switch typ {
	case ledger.TxRegistration, ledger.TxStatusUpdate, ledger.TxRefundDecision:
		return true
	}
	return false
}

func blockRow(block ledger.Block) *models.Block {
	return &models.Block{
		Num:       block.Index,
		Hash:      block.Hash,
		Prev:      block.PreviousHash,
		Nonce:     block.Nonce,
		TXs:       int32(len(block.Data)),
		CreatedAt: block.Timestamp.Time().UTC(),
	}
}

// applyTransaction folds t into the product row. Registrations create or
// replace the row; updates of a product with no row report false.
func applyTransaction(product *models.Product, t ledger.Transaction) (*models.Product, bool) {
	if t.Type == ledger.TxRegistration {
		if product == nil {
			product = &models.Product{UID: t.ProductUID, CreatedAt: time.UnixMilli(t.Timestamp).UTC()}
		}
		product.Name, product.Category, product.Batch = productFields(t.Metadata)
		product.Metadata = encodeMetadata(t.Metadata)
	} else {
		if product == nil {
			return nil, false
		}
		if t.Metadata != nil {
			meta := decodeMetadata(product.Metadata)
			meta.Merge(t.Metadata)
			product.Metadata = encodeMetadata(meta)
		}
	}
	product.CurrentStatus = string(t.Status)
	product.UpdatedAt = time.UnixMilli(t.Timestamp).UTC()
	product.Transactions = nil
	return product, true
}

func transactionRow(productID, blockNum int64, t ledger.Transaction) *models.Transaction {
	return &models.Transaction{
		TxID:      t.ID,
		ProductID: productID,
		BlockNum:  blockNum,
		TxType:    string(t.Type),
		Status:    string(t.Status),
		Actor:     t.Actor,
		Location:  t.Location,
		Notes:     t.Notes,
		Metadata:  encodeMetadata(t.Metadata),
		Timestamp: time.UnixMilli(t.Timestamp).UTC(),
	}
}

func productFields(m *ledger.ProductMetadata) (name, category, batch string) {
	if m == nil {
		return "", "Uncategorized", ""
	}
	category = m.Category
	if category == "" {
		category = "Uncategorized"
	}
	return m.Name, category, m.BatchNumber
}

func encodeMetadata(m *ledger.ProductMetadata) string {
	if m == nil {
		return ""
	}
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(data)
}

func decodeMetadata(s string) *ledger.ProductMetadata {
	meta := &ledger.ProductMetadata{}
	if s != "" {
		_ = json.Unmarshal([]byte(s), meta)
	}
	return meta
}

func stateBlockNum(s *models.State) int64 {
	if s == nil {
		return -1
	}
	return s.BlockNum
}
