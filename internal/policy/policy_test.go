package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainguard/tracker/internal/ai"
	"github.com/chainguard/tracker/internal/commerce"
	"github.com/chainguard/tracker/internal/fraud"
)

var refNow = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(WithClock(func() time.Time { return refNow }))
}

// goodOrder passes every rule on its own.
func goodOrder() *commerce.Order {
	o := &commerce.Order{
		OrderID:           "ORD-1",
		ProductName:       "Ceramic Vase",
		Category:          "Home",
		PurchaseDate:      "2025-06-20",
		Price:             2400,
		FulfillmentStatus: commerce.FulfillmentDelivered,
	}
	o.SetReceiptVerified(true)
	return o
}

func goodAnalysis() *ai.Analysis {
	return &ai.Analysis{ItemType: "Vase", Condition: ai.ConditionNew, AuthenticityScore: 95, EstimatedRefund: 2400}
}

func TestEvaluate_Approved(t *testing.T) {
	v := newTestEngine().Evaluate(goodOrder(), goodAnalysis(), nil)
	assert.Equal(t, StatusApproved, v.Status)
	assert.Equal(t, "Instant Refund Approved: Receipt Valid & Condition Verified.", v.Reason)
	assert.Equal(t, RuleDefault, v.RuleID)
	assert.Equal(t, 0, v.RiskScore)
	assert.NotNil(t, v.Patterns)
}

func TestEvaluate_Rules(t *testing.T) {
	tests := []struct {
		name   string
		order  func(o *commerce.Order)
		an     func(a *ai.Analysis)
		risk   *fraud.Report
		status Status
		rule   string
		reason string
	}{
		{
			name:   "critical risk",
			risk:   &fraud.Report{RiskScore: 100, RiskLevel: fraud.LevelCritical, DetectedPatterns: []string{"A", "B"}},
			status: StatusDeclined,
			rule:   RuleFraudCritical,
			reason: "Security Block: Critical Risk Detected (A, B)",
		},
		{
			name:   "syndicate",
			risk:   &fraud.Report{RiskScore: 50, RiskLevel: fraud.LevelHigh, Flags: fraud.Flags{IsSyndicate: true}, NetworkGraphID: "RING-4242"},
			status: StatusDeclined,
			rule:   RuleFraudSyndicate,
			reason: "Security Block: Network Anomaly Linked to Fraud Ring RING-4242",
		},
		{
			name:   "serial returner above limit",
			an:     func(a *ai.Analysis) { a.EstimatedRefund = 5001 },
			risk:   &fraud.Report{RiskScore: 30, RiskLevel: fraud.LevelMedium, Flags: fraud.Flags{IsSerialReturner: true}},
			status: StatusManualReview,
			rule:   RuleSerialReturner,
			reason: "Serial Returner Policy: High value return requires agent approval.",
		},
		{
			name:   "serial returner at limit",
			an:     func(a *ai.Analysis) { a.EstimatedRefund = 5000 },
			risk:   &fraud.Report{RiskScore: 30, RiskLevel: fraud.LevelMedium, Flags: fraud.Flags{IsSerialReturner: true}},
			status: StatusApproved,
			rule:   RuleDefault,
			reason: approvedReason,
		},
		{
			name:   "wardrobing",
			risk:   &fraud.Report{RiskScore: 25, RiskLevel: fraud.LevelMedium, Flags: fraud.Flags{IsWardrobing: true}},
			status: StatusDeclined,
			rule:   RuleWardrobing,
			reason: "Policy Violation: Item usage pattern indicates Wardrobing.",
		},
		{
			name:   "not delivered",
			order:  func(o *commerce.Order) { o.FulfillmentStatus = commerce.FulfillmentShipped },
			status: StatusDeclined,
			rule:   RuleInventorySignal,
			reason: "Inventory Signal Alert: Item status is 'Shipped'. Cannot return item that has not been marked Delivered.",
		},
		{
			name: "serial number unverified",
			order: func(o *commerce.Order) {
				o.Category = "Electronics"
				o.SerialNumber = "SN12ABC"
			},
			an:     func(a *ai.Analysis) { a.AuthenticityScore = 79 },
			status: StatusDeclined,
			rule:   RuleSerialNumber,
			reason: "Serial Number Mismatch: Device serial (SN12ABC) could not be verified or matched.",
		},
		{
			name:   "product mismatch",
			an:     func(a *ai.Analysis) { a.Condition = ai.ConditionProductMismatch },
			status: StatusManualReview,
			rule:   RuleSKUMismatch,
			reason: "SKU Mismatch: Visual identification does not match sold SKU. Holding for manual inspection.",
		},
		{
			name:   "window expired",
			order:  func(o *commerce.Order) { o.PurchaseDate = "2025-05-01" },
			status: StatusDeclined,
			rule:   RuleReturnWindow,
			reason: "Return Window Expired. Purchased 61 days ago (Max 30).",
		},
		{
			name:   "window edge",
			order:  func(o *commerce.Order) { o.PurchaseDate = "2025-05-31T12:00:00Z" },
			status: StatusApproved,
			rule:   RuleDefault,
			reason: approvedReason,
		},
		{
			name:   "unparseable date skips window",
			order:  func(o *commerce.Order) { o.PurchaseDate = "last tuesday" },
			status: StatusApproved,
			rule:   RuleDefault,
			reason: approvedReason,
		},
		{
			name:   "damaged",
			an:     func(a *ai.Analysis) { a.Condition = ai.ConditionDamaged },
			status: StatusDeclined,
			rule:   RuleDamaged,
			reason: "Policy violation: Damaged items are not eligible for instant refund.",
		},
		{
			name:   "receipt missing low risk",
			order:  func(o *commerce.Order) { o.ReceiptVerified = nil },
			status: StatusManualReview,
			rule:   RuleReceipt,
			reason: "Receipt missing or invalid. Proof of purchase check failed.",
		},
		{
			name: "receipt rejected high risk",
			order: func(o *commerce.Order) {
				o.Category = "Beauty"
				o.SetReceiptVerified(false)
			},
			status: StatusDeclined,
			rule:   RuleReceipt,
			reason: "Missing Receipt: High-risk items require valid proof of purchase.",
		},
		{
			name:   "high risk low score",
			order:  func(o *commerce.Order) { o.Category = "Watches" },
			an:     func(a *ai.Analysis) { a.AuthenticityScore = 49 },
			status: StatusDeclined,
			rule:   RuleHighRiskScore,
			reason: "High Risk Alert: Security score too low for high-risk category.",
		},
		{
			name:   "high risk not new",
			order:  func(o *commerce.Order) { o.Category = "Jewelry" },
			an:     func(a *ai.Analysis) { a.Condition = ai.ConditionLikeNew },
			status: StatusManualReview,
			rule:   RuleHighRiskCond,
			reason: `High Value Jewelry item condition is "Like New". Review required.`,
		},
		{
			name:   "low authenticity with receipt",
			an:     func(a *ai.Analysis) { a.AuthenticityScore = 59 },
			status: StatusManualReview,
			rule:   RuleAuthenticity,
			reason: "AI Verification low confidence. Human inspection required.",
		},
		{
			name:   "authenticity at receipt threshold",
			an:     func(a *ai.Analysis) { a.AuthenticityScore = 60 },
			status: StatusApproved,
			rule:   RuleDefault,
			reason: approvedReason,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, a := goodOrder(), goodAnalysis()
			if tt.order != nil {
				tt.order(o)
			}
			if tt.an != nil {
				tt.an(a)
			}
			v := newTestEngine().Evaluate(o, a, tt.risk)
			assert.Equal(t, tt.status, v.Status)
			assert.Equal(t, tt.rule, v.RuleID)
			assert.Equal(t, tt.reason, v.Reason)
		})
	}
}

func TestEvaluate_NotDeliveredAlwaysDeclines(t *testing.T) {
	for _, c := range ai.Conditions {
		for _, score := range []int{0, 50, 100} {
			o := goodOrder()
			o.FulfillmentStatus = commerce.FulfillmentProcessing
			o.Category = "Electronics"
			a := goodAnalysis()
			a.Condition, a.AuthenticityScore = c, score

			v := newTestEngine().Evaluate(o, a, nil)
			assert.Equal(t, StatusDeclined, v.Status, "condition %s score %d", c, score)
			assert.Equal(t, RuleInventorySignal, v.RuleID)
		}
	}
}

func TestEvaluate_HighRiskWithoutReceipt(t *testing.T) {
	o := goodOrder()
	o.Category = "Electronics"
	o.ReceiptVerified = nil
	a := goodAnalysis()
	a.AuthenticityScore = 95

	v := newTestEngine().Evaluate(o, a, nil)
	assert.Equal(t, StatusDeclined, v.Status)
	assert.Equal(t, RuleReceipt, v.RuleID)
}

func TestEvaluate_CarriesRisk(t *testing.T) {
	risk := &fraud.Report{RiskScore: 20, RiskLevel: fraud.LevelMedium, DetectedPatterns: []string{fraud.PatternDeviceSpoofing}}
	v := newTestEngine().Evaluate(goodOrder(), goodAnalysis(), risk)

	assert.Equal(t, StatusApproved, v.Status)
	assert.Equal(t, 20, v.RiskScore)
	assert.Equal(t, []string{fraud.PatternDeviceSpoofing}, v.Patterns)

	v.Patterns[0] = "changed"
	assert.Equal(t, fraud.PatternDeviceSpoofing, risk.DetectedPatterns[0], "verdict must not alias the report")
}

func TestRuleIDs(t *testing.T) {
	ids := newTestEngine().RuleIDs()
	require.Len(t, ids, 13)
	assert.Equal(t, RuleFraudCritical, ids[0])
	assert.Equal(t, RuleAuthenticity, ids[len(ids)-1])
}

func TestApplyBotOpinions(t *testing.T) {
	approved := Verdict{Status: StatusApproved, Reason: approvedReason, RuleID: RuleDefault}
	declined := Verdict{Status: StatusDeclined, Reason: "no", RuleID: RuleDamaged}
	objection := []ai.BotOpinion{{Status: ai.BotApproved}, {Status: ai.BotDeclined}}

	v := ApplyBotOpinions(approved, objection)
	assert.Equal(t, StatusManualReview, v.Status)
	assert.Equal(t, "External Agent raised objection.", v.Reason)
	assert.Equal(t, RuleBotObjection, v.RuleID)

	assert.Equal(t, approved, ApplyBotOpinions(approved, []ai.BotOpinion{{Status: ai.BotWarning}}))
	assert.Equal(t, declined, ApplyBotOpinions(declined, objection))
}

func TestRefundAmount(t *testing.T) {
	assert.Equal(t, 1200.0, RefundAmount(Verdict{Status: StatusApproved}, 1200))
	assert.Equal(t, 0.0, RefundAmount(Verdict{Status: StatusManualReview}, 1200))
	assert.Equal(t, 0.0, RefundAmount(Verdict{Status: StatusDeclined}, 1200))
}

func TestDaysSince(t *testing.T) {
	tests := []struct {
		date string
		want int
		ok   bool
	}{
		{"2025-06-30", 1, true},
		{"2025-06-29", 2, true},
		{"2025-07-10", 10, true},
		{"2025-06-30T12:00:00Z", 0, true},
		{"not a date", 0, false},
	}
	for _, tt := range tests {
		got, ok := DaysSince(tt.date, refNow)
		if got != tt.want || ok != tt.ok {
			t.Errorf("DaysSince(%q) = %d, %v, want %d, %v", tt.date, got, ok, tt.want, tt.ok)
		}
	}
}
