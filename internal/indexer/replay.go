// Package indexer derives current product and order state from the ledger and
// mirrors appended blocks into the relational store.
package indexer

import (
	"github.com/chainguard/tracker/internal/ledger"
	"github.com/chainguard/tracker/internal/lifecycle"
)

// ProductState is the current view of one product, rebuilt from its
// transactions in ledger order.
type ProductState struct {
	UID           string                  `json:"uid"`
	CurrentStatus lifecycle.Status        `json:"currentStatus"`
	History       []ledger.Transaction    `json:"history"`
	Metadata      *ledger.ProductMetadata `json:"metadata"`
}

// StatusHistory lists the status of every transaction in the history.
func (p ProductState) StatusHistory() []lifecycle.Status {
	out := make([]lifecycle.Status, 0, len(p.History))
	for _, tx := range p.History {
		out = append(out, tx.Status)
	}
	return out
}

// HasInvoice reports whether a sale invoice was recorded for the product.
func (p ProductState) HasInvoice() bool {
	return p.Metadata != nil && p.Metadata.Invoice != nil
}

// RefundEligibility decides whether the product may be refunded.
func (p ProductState) RefundEligibility() lifecycle.Eligibility {
	return lifecycle.CheckRefundEligibility(p.CurrentStatus, p.StatusHistory(), p.HasInvoice())
}

// Replay is the result of folding a ledger into product state.
type Replay struct {
	Products []ProductState
	// Dropped counts updates that referenced a product never registered
	// before them.
	Dropped int
}

// ReplayProducts folds every product transaction of blocks, in block order and
// then transaction order, into product state. Registrations create a record,
// or replace an earlier one in place. Status updates and refund decisions
// update a registered product and are dropped otherwise.
func ReplayProducts(blocks []ledger.Block) Replay {
	var r Replay
	index := make(map[string]int)

	for _, block := range blocks {
		for _, tx := range block.Data {
			switch tx.Type {
			case ledger.TxRegistration:
				state := ProductState{
					UID:           tx.ProductUID,
					CurrentStatus: tx.Status,
					History:       []ledger.Transaction{cloneTransaction(tx)},
					Metadata:      tx.Metadata.Clone(),
				}
				if state.Metadata == nil {
					state.Metadata = &ledger.ProductMetadata{}
				}
				if i, ok := index[tx.ProductUID]; ok {
					r.Products[i] = state
				} else {
					index[tx.ProductUID] = len(r.Products)
					r.Products = append(r.Products, state)
				}

			case ledger.TxStatusUpdate, ledger.TxRefundDecision:
				i, ok := index[tx.ProductUID]
				if !ok {
					r.Dropped++
					continue
				}
				p := &r.Products[i]
				p.CurrentStatus = tx.Status
				p.History = append(p.History, cloneTransaction(tx))
				p.Metadata.Merge(tx.Metadata)
			}
		}
	}
	return r
}

// ProjectAll returns the state of every registered product in first
// registration order.
func ProjectAll(blocks []ledger.Block) []ProductState {
	return ReplayProducts(blocks).Products
}

// ProjectOne returns the state of the product with uid.
func ProjectOne(blocks []ledger.Block, uid string) (ProductState, bool) {
	for _, p := range ProjectAll(blocks) {
		if p.UID == uid {
			return p, true
		}
	}
	return ProductState{}, false
}

// OrderState is the return history of one order.
type OrderState struct {
	OrderID   string                `json:"orderId"`
	Latest    ledger.ReturnRecord   `json:"latest"`
	Decisions []ledger.ReturnRecord `json:"decisions"`
	UpdatedAt int64                 `json:"updatedAt"`
	BlockNum  int64                 `json:"blockNum"`
}

// ProjectOrders folds analysis results into per-order state in first-seen
// order. Analysis transactions without a payload are skipped.
func ProjectOrders(blocks []ledger.Block) []OrderState {
	var orders []OrderState
	index := make(map[string]int)

	for _, block := range blocks {
		for _, tx := range block.Data {
			if tx.Type != ledger.TxAnalysisResult || tx.Analysis == nil {
				continue
			}
			rec := cloneReturnRecord(*tx.Analysis)
			i, ok := index[tx.ProductUID]
			if !ok {
				index[tx.ProductUID] = len(orders)
				orders = append(orders, OrderState{OrderID: tx.ProductUID})
				i = len(orders) - 1
			}
			o := &orders[i]
			o.Latest = rec
			o.Decisions = append(o.Decisions, rec)
			o.UpdatedAt = tx.Timestamp
			o.BlockNum = block.Index
		}
	}
	return orders
}

func cloneTransaction(tx ledger.Transaction) ledger.Transaction {
	out := tx
	out.Metadata = tx.Metadata.Clone()
	if tx.RefundData != nil {
		rd := *tx.RefundData
		out.RefundData = &rd
	}
	if tx.Analysis != nil {
		rec := cloneReturnRecord(*tx.Analysis)
		out.Analysis = &rec
	}
	return out
}

func cloneReturnRecord(r ledger.ReturnRecord) ledger.ReturnRecord {
	out := r
	if r.Defects != nil {
		out.Defects = append([]string{}, r.Defects...)
	}
	if r.Patterns != nil {
		out.Patterns = append([]string{}, r.Patterns...)
	}
	return out
}
