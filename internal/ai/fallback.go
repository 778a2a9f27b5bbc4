package ai

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/chainguard/tracker/pkg/logging"
	"github.com/chainguard/tracker/pkg/telemetry"
)

// Fallback texts returned when the classifier cannot be reached.
const (
	FallbackBotComment  = "Connection unstable. Bot could not be reached."
	FallbackDescription = "Failed to generate description."
	FallbackAudit       = "Audit failed due to API error."

	unavailableDescription = "AI Description unavailable (Missing API Key)."
	unavailableAudit       = "AI Audit unavailable."
)

// FallbackAnalysis is the conservative assessment used when the condition
// check fails. A zero authenticity score routes the return to a human.
func FallbackAnalysis() *Analysis {
	return &Analysis{
		ItemType:          "Analysis Failed",
		Condition:         ConditionUsed,
		Defects:           []string{"Unable to verify due to API error"},
		AuthenticityScore: 0,
		EstimatedRefund:   0,
		Reasoning:         "Analysis failed due to network or API configuration.",
	}
}

// FallbackReceipt is the receipt reading used when the receipt check fails.
func FallbackReceipt() *ReceiptAnalysis {
	return &ReceiptAnalysis{
		IsValid:      false,
		MerchantName: "Unknown",
		Date:         "Unknown",
		ItemsFound:   []string{},
	}
}

// FallbackOpinion is the reviewer verdict used when a bot cannot be reached.
func FallbackOpinion(bot Bot) *BotOpinion {
	return &BotOpinion{BotName: bot.Name, Role: bot.Role, Status: BotWarning, Comment: FallbackBotComment}
}

// Resilient wraps a Classifier with a per-call timeout and substitutes the
// fallback result for any failure. Its methods never return errors.
type Resilient struct {
	inner   Classifier
	timeout time.Duration
	logger  *zap.Logger
}

// WithFallback wraps inner. A zero timeout leaves calls bounded only by the
// caller's context.
func WithFallback(inner Classifier, timeout time.Duration) *Resilient {
	if inner == nil {
		inner = Unavailable{}
	}
	return &Resilient{
		inner:   inner,
		timeout: timeout,
		logger:  logging.GetLogger().With(zap.String("component", "ai")),
	}
}

func (r *Resilient) callContext(ctx context.Context, op string) (context.Context, func()) {
	ctx, span := telemetry.StartSpan(ctx, "ai."+op)
	if r.timeout <= 0 {
		return ctx, func() { span.End() }
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	return ctx, func() {
		cancel()
		span.End()
	}
}

func (r *Resilient) warn(op string, err error) {
	r.logger.Warn("Classifier call failed, using fallback", zap.String("op", op), zap.Error(err))
}

// AnalyzeCondition assesses a returned item.
func (r *Resilient) AnalyzeCondition(ctx context.Context, req ConditionRequest) *Analysis {
	ctx, done := r.callContext(ctx, "analyze_condition")
	defer done()

	res, err := r.inner.AnalyzeCondition(ctx, req)
	if err != nil || res == nil || !res.Condition.Valid() {
		r.warn("analyze_condition", err)
		return FallbackAnalysis()
	}
	if res.Defects == nil {
		res.Defects = []string{}
	}
	return res
}

// AnalyzeReceipt reads a proof of purchase.
func (r *Resilient) AnalyzeReceipt(ctx context.Context, req ReceiptRequest) *ReceiptAnalysis {
	ctx, done := r.callContext(ctx, "analyze_receipt")
	defer done()

	res, err := r.inner.AnalyzeReceipt(ctx, req)
	if err != nil || res == nil {
		r.warn("analyze_receipt", err)
		return FallbackReceipt()
	}
	return res
}

// ConsultBot asks one reviewer bot for a verdict.
func (r *Resilient) ConsultBot(ctx context.Context, bot Bot, c BotCase) *BotOpinion {
	ctx, done := r.callContext(ctx, "consult_bot")
	defer done()

	res, err := r.inner.ConsultBot(ctx, bot, c)
	if err != nil || res == nil {
		r.warn("consult_bot", err)
		return FallbackOpinion(bot)
	}
	switch res.Status {
	case BotApproved, BotDeclined, BotWarning:
	default:
		res.Status = BotWarning
	}
	res.BotName, res.Role = bot.Name, bot.Role
	return res
}

// DescribeProduct writes short marketing copy for a product.
func (r *Resilient) DescribeProduct(ctx context.Context, name, category string) string {
	ctx, done := r.callContext(ctx, "describe_product")
	defer done()

	text, err := r.inner.DescribeProduct(ctx, name, category)
	if errors.Is(err, ErrUnavailable) {
		return unavailableDescription
	}
	if err != nil {
		r.warn("describe_product", err)
		return FallbackDescription
	}
	if text == "" {
		return "No description generated."
	}
	return text
}

// AuditHistory summarizes a product's journey and flags inconsistencies.
func (r *Resilient) AuditHistory(ctx context.Context, productJSON string) string {
	ctx, done := r.callContext(ctx, "audit_history")
	defer done()

	text, err := r.inner.AuditHistory(ctx, productJSON)
	if errors.Is(err, ErrUnavailable) {
		return unavailableAudit
	}
	if err != nil {
		r.warn("audit_history", err)
		return FallbackAudit
	}
	if text == "" {
		return "Audit complete."
	}
	return text
}
