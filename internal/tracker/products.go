package tracker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainguard/tracker/internal/indexer"
	"github.com/chainguard/tracker/internal/ledger"
	"github.com/chainguard/tracker/internal/lifecycle"
)

// Actors and places recorded by the automated paths.
const (
	RefundProcessor  = "System Automated Refund Processor"
	distribution     = "Central Distribution Center"
	demoRetailer     = "City Superstore"
	demoCustomer     = "demo_customer@email.com"
	refundApprovedOK = "Funds will be returned to original payment method within 3-5 business days."
)

// errRejected aborts a refund commit without appending a block.
var errRejected = errors.New("refund rejected")

func newTxID() string {
	return uuid.NewString()
}

// GenerateUID returns a product UID of the form PROD-XXXXXXXXX-TTTTTTTT:
// nine random base-36 characters followed by the base-36 creation time.
func GenerateUID(now time.Time) string {
	id := uuid.New()
	random := strconv.FormatUint(binary.BigEndian.Uint64(id[:8]), 36)
	for len(random) < 9 {
		random = "0" + random
	}
	return "PROD-" + strings.ToUpper(random[:9]) + "-" + strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
}

// Registration describes a new product.
type Registration struct {
	Name         string
	Category     string
	BatchNumber  string
	Model        string
	SerialNumber string
	ExpiryDate   string
	Warranty     string
	ImageURL     string
	Image        []byte
	Actor        string
	// Simulate drives the product through the remaining lifecycle up to a
	// demo sale.
	Simulate bool
}

// RegisterProduct registers a product and dispatches it from the factory.
// Each step is its own block.
func (t *Tracker) RegisterProduct(ctx context.Context, r Registration) (indexer.ProductState, error) {
	if r.Name == "" || r.Category == "" || r.Actor == "" {
		return indexer.ProductState{}, fmt.Errorf("%w: name, category and actor are required", ErrInvalidRequest)
	}

	now := t.now()
	uid := GenerateUID(now)
	meta := &ledger.ProductMetadata{
		Name:            r.Name,
		Category:        r.Category,
		BatchNumber:     r.BatchNumber,
		Model:           r.Model,
		SerialNumber:    r.SerialNumber,
		ManufactureDate: now.UTC().Format(time.RFC3339Nano),
		Manufacturer:    r.Actor,
		ExpiryDate:      r.ExpiryDate,
		Warranty:        r.Warranty,
		ImageURL:        r.ImageURL,
	}
	switch {
	case len(r.Image) > 0:
		meta.ImageHash = ledger.HashString(string(r.Image))
		meta.IPFSCID = ledger.ContentID(r.Image)
	case r.ImageURL != "":
		meta.ImageHash = ledger.HashString(r.ImageURL)
		meta.IPFSCID = ledger.ContentID([]byte(r.ImageURL))
	}
	if t.ai != nil {
		meta.Details = t.ai.DescribeProduct(ctx, r.Name, r.Category)
	}

	registration := ledger.Transaction{
		ID:         newTxID(),
		Timestamp:  now.UnixMilli(),
		Type:       ledger.TxRegistration,
		ProductUID: uid,
		Actor:      r.Actor,
		Status:     lifecycle.StatusCreated,
		Metadata:   meta,
	}
	if _, err := t.Submit(ctx, registration, ""); err != nil {
		return indexer.ProductState{}, err
	}

	dispatch := ledger.Transaction{
		ID:         newTxID(),
		Timestamp:  now.Add(time.Second).UnixMilli(),
		Type:       ledger.TxStatusUpdate,
		ProductUID: uid,
		Actor:      r.Actor,
		Status:     lifecycle.StatusDepartedManufacturer,
		Location:   "Factory Output",
		Notes:      "Auto-dispatch upon creation",
	}
	if _, err := t.Submit(ctx, dispatch, lifecycle.RoleManufacturer); err != nil {
		return indexer.ProductState{}, err
	}

	if r.Simulate {
		if err := t.simulateLifecycle(ctx, uid); err != nil {
			return indexer.ProductState{}, err
		}
	}
	return t.Product(ctx, uid)
}

// StatusUpdate requests a lifecycle step.
type StatusUpdate struct {
	UID      string
	Next     lifecycle.Status
	Role     lifecycle.Role
	Actor    string
	Location string
	Notes    string
	// CustomerID and SalePrice are required to sell a product; they go on
	// the invoice.
	CustomerID string
	SalePrice  string
}

// UpdateStatus records a lifecycle step after checking it against the
// transition table for the requesting role. Refunds go through DecideRefund.
func (t *Tracker) UpdateStatus(ctx context.Context, u StatusUpdate) (indexer.ProductState, error) {
	if u.UID == "" || u.Actor == "" {
		return indexer.ProductState{}, fmt.Errorf("%w: uid and actor are required", ErrInvalidRequest)
	}
	if !u.Next.Valid() {
		return indexer.ProductState{}, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, u.Next)
	}
	if u.Next == lifecycle.StatusRefunded {
		return indexer.ProductState{}, errRefundPath
	}

	_, err := t.commit(ctx, func(blocks []ledger.Block) ([]ledger.Transaction, error) {
		state, ok := indexer.ProjectOne(blocks, u.UID)
		if !ok {
			return nil, fmt.Errorf("product %s: %w", u.UID, ErrNotFound)
		}
		if err := lifecycle.Validate(state.CurrentStatus, u.Next, u.Role); err != nil {
			return nil, err
		}

		now := t.now()
		tx := ledger.Transaction{
			ID:         newTxID(),
			Timestamp:  now.UnixMilli(),
			Type:       ledger.TxStatusUpdate,
			ProductUID: u.UID,
			Actor:      u.Actor,
			Status:     u.Next,
			Location:   u.Location,
			Notes:      u.Notes,
		}
		if tx.Location == "" {
			tx.Location = u.Actor
			if u.Role == lifecycle.RoleWarehouse {
				tx.Location = distribution
			}
		}
		if u.Next == lifecycle.StatusSold {
			if u.CustomerID == "" {
				return nil, fmt.Errorf("%w: customer id is required for invoice", ErrInvalidRequest)
			}
			meta := state.Metadata.Clone()
			meta.Invoice = newInvoice(u.UID, meta, u.SalePrice, u.Actor, "Retail Location A", u.CustomerID, now)
			tx.Metadata = meta
			if tx.Notes == "" {
				tx.Notes = "Product sold via POS system"
			}
		}
		if tx.Notes == "" {
			tx.Notes = "Scanned by " + string(u.Role)
		}
		return []ledger.Transaction{tx}, nil
	})
	if err != nil {
		return indexer.ProductState{}, err
	}
	return t.Product(ctx, u.UID)
}

func newInvoice(uid string, meta *ledger.ProductMetadata, price, shop, location, customerID string, now time.Time) *ledger.InvoiceData {
	if price == "" {
		price = "0.00"
	}
	id := uuid.New()
	return &ledger.InvoiceData{
		InvoiceID:      fmt.Sprintf("INV-%d-%d", now.UnixMilli(), binary.BigEndian.Uint16(id[:2])%1000),
		ProductUID:     uid,
		ProductName:    meta.Name,
		Category:       meta.Category,
		BatchNumber:    meta.BatchNumber,
		Price:          price,
		Currency:       "USD",
		PurchaseDate:   now.UTC().Format(time.RFC3339Nano),
		ShopName:       shop,
		ShopLocation:   location,
		CustomerIDHash: ledger.HashCustomerID(customerID),
	}
}

// simulateLifecycle walks a dispatched product through the warehouse and the
// shop to a demo sale.
func (t *Tracker) simulateLifecycle(ctx context.Context, uid string) error {
	steps := []StatusUpdate{
		{Next: lifecycle.StatusArrivedWarehouse, Role: lifecycle.RoleWarehouse, Actor: distribution, Location: "Warehouse Dock 1"},
		{Next: lifecycle.StatusDepartedWarehouse, Role: lifecycle.RoleWarehouse, Actor: distribution, Location: "Logistics Truck #44"},
		{Next: lifecycle.StatusArrivedShop, Role: lifecycle.RoleRetailer, Actor: demoRetailer, Location: "Store Backroom"},
		{Next: lifecycle.StatusAvailableForSale, Role: lifecycle.RoleRetailer, Actor: demoRetailer, Location: "Shelf A1"},
		{Next: lifecycle.StatusSold, Role: lifecycle.RoleRetailer, Actor: demoRetailer, Location: "POS Terminal 1",
			CustomerID: demoCustomer, SalePrice: "199.99"},
	}
	for _, step := range steps {
		step.UID = uid
		if _, err := t.UpdateStatus(ctx, step); err != nil {
			return fmt.Errorf("simulate %s: %w", step.Next, err)
		}
	}
	return nil
}

// RefundRequest asks for a refund of a sold product.
type RefundRequest struct {
	UID string
	// InvoiceAttached reports whether the customer supplied the invoice
	// document.
	InvoiceAttached bool
}

// RefundOutcome is the answer to a refund request.
type RefundOutcome struct {
	Approved bool                 `json:"approved"`
	Title    string               `json:"title"`
	Message  string               `json:"message"`
	Record   *ledger.RefundRecord `json:"refundData,omitempty"`
	Block    *ledger.Block        `json:"block,omitempty"`
}

// DecideRefund checks refund eligibility and, when it passes, records an
// approved REFUND_DECISION moving the product to REFUNDED. Rejections are
// returned without touching the ledger.
func (t *Tracker) DecideRefund(ctx context.Context, r RefundRequest) (RefundOutcome, error) {
	var outcome RefundOutcome
	block, err := t.commit(ctx, func(blocks []ledger.Block) ([]ledger.Transaction, error) {
		state, ok := indexer.ProjectOne(blocks, r.UID)
		if !ok {
			return nil, fmt.Errorf("product %s: %w", r.UID, ErrNotFound)
		}
		if e := state.RefundEligibility(); !e.Eligible {
			outcome = RefundOutcome{Title: "Refund Rejected", Message: e.Reason}
			return nil, errRejected
		}
		if !r.InvoiceAttached {
			outcome = RefundOutcome{Title: "Validation Error", Message: "No invoice document detected."}
			return nil, errRejected
		}
		if err := lifecycle.Validate(state.CurrentStatus, lifecycle.StatusRefunded, lifecycle.RoleAdmin); err != nil {
			return nil, err
		}

		now := t.now()
		amount := "N/A"
		if state.Metadata.Invoice != nil && state.Metadata.Invoice.Price != "" {
			amount = state.Metadata.Invoice.Price
		}
		record := &ledger.RefundRecord{
			RequestID:    fmt.Sprintf("REQ-%d", now.UnixMilli()),
			Timestamp:    now.UnixMilli(),
			Status:       ledger.RefundApproved,
			RefundAmount: amount,
		}
		outcome = RefundOutcome{Approved: true, Title: "Refund Approved", Message: refundApprovedOK, Record: record}
		return []ledger.Transaction{{
			ID:         newTxID(),
			Timestamp:  now.UnixMilli(),
			Type:       ledger.TxRefundDecision,
			ProductUID: r.UID,
			Actor:      RefundProcessor,
			Status:     lifecycle.StatusRefunded,
			RefundData: record,
		}}, nil
	})
	if errors.Is(err, errRejected) {
		t.logger.Info("Refund rejected", zap.String("uid", r.UID), zap.String("reason", outcome.Message))
		return outcome, nil
	}
	if err != nil {
		return RefundOutcome{}, err
	}
	outcome.Block = &block
	return outcome, nil
}
