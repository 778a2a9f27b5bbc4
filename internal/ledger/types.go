// Package ledger holds the append-only, proof-of-work-stamped block chain that
// records every product lifecycle and return event.
package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/chainguard/tracker/internal/lifecycle"
)

// TxType is the kind of a ledger transaction.
type TxType string

// Transaction kinds.
const (
	TxRegistration   TxType = "REGISTRATION"
	TxStatusUpdate   TxType = "STATUS_UPDATE"
	TxRefundDecision TxType = "REFUND_DECISION"
	TxAnalysisResult TxType = "ANALYSIS_RESULT"
)

// Valid reports whether t is a known transaction kind.
func (t TxType) Valid() bool {
	switch t {
	case TxRegistration, TxStatusUpdate, TxRefundDecision, TxAnalysisResult:
		return true
	}
	return false
}

// InvoiceData is the digital invoice attached when a product is sold.
type InvoiceData struct {
	InvoiceID      string `json:"invoiceId"`
	ProductUID     string `json:"productUid"`
	ProductName    string `json:"productName"`
	Category       string `json:"category"`
	BatchNumber    string `json:"batchNumber"`
	Price          string `json:"price"`
	Currency       string `json:"currency"`
	PurchaseDate   string `json:"purchaseDate"`
	ShopName       string `json:"shopName"`
	ShopLocation   string `json:"shopLocation"`
	CustomerIDHash string `json:"customerIdHash"`
}

// ProductMetadata describes a registered product. Later transactions may carry
// a partial copy, typically only the invoice.
type ProductMetadata struct {
	Name            string       `json:"name"`
	Category        string       `json:"category"`
	ManufactureDate string       `json:"manufactureDate"`
	BatchNumber     string       `json:"batchNumber"`
	Manufacturer    string       `json:"manufacturer"`
	Model           string       `json:"model,omitempty"`
	SerialNumber    string       `json:"serialNumber,omitempty"`
	Warranty        string       `json:"warranty,omitempty"`
	ExpiryDate      string       `json:"expiryDate,omitempty"`
	ImageHash       string       `json:"imageHash,omitempty"`
	ImageURL        string       `json:"imageUrl,omitempty"`
	IPFSCID         string       `json:"ipfsCid,omitempty"`
	Details         string       `json:"details,omitempty"`
	Invoice         *InvoiceData `json:"invoice,omitempty"`
}

// Clone returns a deep copy of m.
func (m *ProductMetadata) Clone() *ProductMetadata {
	if m == nil {
		return nil
	}
	out := *m
	if m.Invoice != nil {
		inv := *m.Invoice
		out.Invoice = &inv
	}
	return &out
}

// Merge copies every non-empty field of patch onto m.
func (m *ProductMetadata) Merge(patch *ProductMetadata) {
	if m == nil || patch == nil {
		return
	}
	mergeString(&m.Name, patch.Name)
	mergeString(&m.Category, patch.Category)
	mergeString(&m.ManufactureDate, patch.ManufactureDate)
	mergeString(&m.BatchNumber, patch.BatchNumber)
	mergeString(&m.Manufacturer, patch.Manufacturer)
	mergeString(&m.Model, patch.Model)
	mergeString(&m.SerialNumber, patch.SerialNumber)
	mergeString(&m.Warranty, patch.Warranty)
	mergeString(&m.ExpiryDate, patch.ExpiryDate)
	mergeString(&m.ImageHash, patch.ImageHash)
	mergeString(&m.ImageURL, patch.ImageURL)
	mergeString(&m.IPFSCID, patch.IPFSCID)
	mergeString(&m.Details, patch.Details)
	if patch.Invoice != nil {
		inv := *patch.Invoice
		m.Invoice = &inv
	}
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Refund decision outcomes.
const (
	RefundApproved = "APPROVED"
	RefundRejected = "REJECTED"
)

// RefundRecord is the payload of a REFUND_DECISION transaction.
type RefundRecord struct {
	RequestID       string `json:"requestId"`
	Timestamp       int64  `json:"timestamp"`
	Status          string `json:"status"`
	RejectionReason string `json:"rejectionReason,omitempty"`
	RefundAmount    string `json:"refundAmount,omitempty"`
}

// ReturnRecord is the payload of an ANALYSIS_RESULT transaction: the assessed
// condition of a returned item together with the fraud and policy outcome.
type ReturnRecord struct {
	OrderID           string   `json:"orderId"`
	ProductName       string   `json:"productName,omitempty"`
	Category          string   `json:"category,omitempty"`
	ItemType          string   `json:"itemType"`
	Condition         string   `json:"condition"`
	Defects           []string `json:"defects"`
	AuthenticityScore int      `json:"authenticityScore"`
	EstimatedRefund   float64  `json:"estimatedRefund"`
	Reasoning         string   `json:"reasoning"`
	PolicyStatus      string   `json:"policyStatus"`
	PolicyReason      string   `json:"policyReason"`
	RiskScore         int      `json:"riskScore"`
	RiskLevel         string   `json:"riskLevel"`
	Patterns          []string `json:"detectedPatterns"`
	NetworkGraphID    string   `json:"networkGraphId,omitempty"`
}

// Transaction is one immutable ledger event.
type Transaction struct {
	ID         string           `json:"id"`
	Timestamp  int64            `json:"timestamp"`
	Type       TxType           `json:"type"`
	ProductUID string           `json:"productUid"`
	Actor      string           `json:"actor"`
	Status     lifecycle.Status `json:"status,omitempty"`
	Metadata   *ProductMetadata `json:"metadata,omitempty"`
	Location   string           `json:"location,omitempty"`
	Notes      string           `json:"notes,omitempty"`
	RefundData *RefundRecord    `json:"refundData,omitempty"`
	Analysis   *ReturnRecord    `json:"analysis,omitempty"`
}

// Timestamp is a block timestamp. Blocks written by this package carry Unix
// milliseconds; imported chains may carry an RFC 3339 string instead. The
// original form is kept so digests and round trips stay exact.
type Timestamp struct {
	Millis int64
	ISO    string
}

// MillisTimestamp builds a numeric timestamp from t.
func MillisTimestamp(t time.Time) Timestamp {
	return Timestamp{Millis: t.UnixMilli()}
}

// String renders the timestamp as it enters the block digest.
func (ts Timestamp) String() string {
	if ts.ISO != "" {
		return ts.ISO
	}
	return strconv.FormatInt(ts.Millis, 10)
}

// Time converts the timestamp to a time.Time.
func (ts Timestamp) Time() time.Time {
	if ts.ISO != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts.ISO); err == nil {
			return t
		}
	}
	return time.UnixMilli(ts.Millis)
}

// MarshalJSON implements json.Marshaler.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.ISO != "" {
		return json.Marshal(ts.ISO)
	}
	return []byte(strconv.FormatInt(ts.Millis, 10)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
			return fmt.Errorf("invalid block timestamp %q: %w", s, err)
		}
		*ts = Timestamp{ISO: s}
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("invalid block timestamp %s: %w", data, err)
	}
	*ts = Timestamp{Millis: ms}
	return nil
}

// Block is an append-only, linked container of transactions.
type Block struct {
	Index        int64         `json:"index"`
	Timestamp    Timestamp     `json:"timestamp"`
	Data         []Transaction `json:"data"`
	PreviousHash string        `json:"previousHash"`
	Hash         string        `json:"hash"`
	Nonce        int64         `json:"nonce"`
}

// IsGenesis reports whether b is the first block of a chain.
func (b Block) IsGenesis() bool {
	return b.Index == 0
}
