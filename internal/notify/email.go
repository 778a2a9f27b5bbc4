// Package notify tells customers how their return was decided.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chainguard/tracker/internal/commerce"
	"github.com/chainguard/tracker/internal/ledger"
	"github.com/chainguard/tracker/pkg/logging"
)

// ErrNoOrder is returned when a receipt has no order to address.
var ErrNoOrder = errors.New("no order details to address the receipt")

// Email is a rendered message.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers emails.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

// Compose renders the contract receipt for the return decision rec, recorded
// in block.
func Compose(block ledger.Block, order *commerce.Order, rec ledger.ReturnRecord) (Email, error) {
	if order == nil {
		return Email{}, ErrNoOrder
	}

	var subject, message string
	switch rec.PolicyStatus {
	case "APPROVED":
		subject = fmt.Sprintf("✅ Smart Contract Executed: Refund Approved for Order #%s", order.OrderID)
		message = fmt.Sprintf("Great news! Your return for order #%s has been verified by the blockchain. A refund of ₹%s has been released via smart contract.",
			order.OrderID, groupThousands(rec.EstimatedRefund))
	case "DECLINED":
		reason := rec.PolicyReason
		if reason == "" {
			reason = "Policy Violation"
		}
		subject = fmt.Sprintf("⛔ Smart Contract Result: Return Declined for Order #%s", order.OrderID)
		message = fmt.Sprintf("We processed your return request for order #%s. The consensus mechanism has declined the request. Reason: %s.",
			order.OrderID, reason)
	case "MANUAL_REVIEW":
		subject = fmt.Sprintf("⚠ Smart Contract Alert: Manual Review Required for Order #%s", order.OrderID)
		message = fmt.Sprintf("Your return request for order #%s has been flagged for human verification. The smart contract could not automatically execute. Reason: %s",
			order.OrderID, rec.PolicyReason)
	default:
		subject = fmt.Sprintf("Return Update: Order #%s", order.OrderID)
		message = "Update regarding your return."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n%s\n\n", order.UserID, message)
	b.WriteString("=============================================\n")
	b.WriteString("      BLOCKCHAIN CONTRACT RECEIPT\n")
	b.WriteString("=============================================\n\n")
	b.WriteString("Transaction Details:\n--------------------\n")
	fmt.Fprintf(&b, "Block Index:      %d\n", block.Index)
	fmt.Fprintf(&b, "Timestamp:        %s\n", block.Timestamp.Time().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	fmt.Fprintf(&b, "Product SKU:      %s\n", order.SKU)
	fmt.Fprintf(&b, "Condition:        %s\n", rec.Condition)
	fmt.Fprintf(&b, "Risk Score:       %d/100\n\n", rec.RiskScore)
	b.WriteString("Smart Contract Output:\n----------------------\n")
	fmt.Fprintf(&b, "Status:           %s\n", rec.PolicyStatus)
	fmt.Fprintf(&b, "Auth Score:       %d\n", rec.AuthenticityScore)
	fmt.Fprintf(&b, "Refund Value:     ₹%s\n\n", strconv.FormatFloat(rec.EstimatedRefund, 'f', -1, 64))
	b.WriteString("Cryptographic Proof:\n--------------------\n")
	fmt.Fprintf(&b, "Block Hash:\n%s\n\n", block.Hash)
	fmt.Fprintf(&b, "Previous Block Hash:\n%s\n\n", block.PreviousHash)
	b.WriteString("This email serves as your immutable proof of transaction.\n")
	b.WriteString("You can verify this block on the ChainReturn Explorer using your Hash ID.\n\n")
	b.WriteString("Regards,\nChainReturn Decentralized System\n")

	return Email{To: order.UserEmail, Subject: subject, Body: b.String()}, nil
}

// groupThousands renders an amount with comma separators and at most three
// fraction digits.
func groupThousands(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i:]
	}

	var out strings.Builder
	if neg {
		out.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(r)
	}
	out.WriteString(frac)
	return out.String()
}

// LogSender writes emails to the log instead of delivering them.
type LogSender struct {
	logger *zap.Logger
	delay  time.Duration
}

// NewLogSender returns a LogSender. A positive delay simulates delivery time.
func NewLogSender(delay time.Duration) *LogSender {
	return &LogSender{
		logger: logging.GetLogger().With(zap.String("component", "email")),
		delay:  delay,
	}
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, e Email) error {
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	s.logger.Info("Sending email",
		zap.String("to", e.To),
		zap.String("subject", e.Subject),
		zap.String("body", e.Body))
	return nil
}
