// Package policy decides return requests with an ordered rule list. The first
// rule that matches decides; a request no rule stops is approved.
package policy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/chainguard/tracker/internal/ai"
	"github.com/chainguard/tracker/internal/commerce"
	"github.com/chainguard/tracker/internal/fraud"
)

// Status is a return decision.
type Status string

// Decisions.
const (
	StatusApproved     Status = "APPROVED"
	StatusDeclined     Status = "DECLINED"
	StatusManualReview Status = "MANUAL_REVIEW"
)

// Thresholds.
const (
	SerialReturnerRefundLimit = 5000
	SerialAuthenticityMin     = 80
	ReturnWindowDays          = 30
	HighRiskAuthenticityMin   = 50
	VerifiedAuthenticityMin   = 60
	UnverifiedAuthenticityMin = 80
)

// Rule identifiers, in evaluation order.
const (
	RuleFraudCritical   = "fraud-critical"
	RuleFraudSyndicate  = "fraud-syndicate"
	RuleSerialReturner  = "fraud-serial-returner"
	RuleWardrobing      = "fraud-wardrobing"
	RuleInventorySignal = "inventory-signal"
	RuleSerialNumber    = "serial-number"
	RuleSKUMismatch     = "sku-mismatch"
	RuleReturnWindow    = "return-window"
	RuleDamaged         = "damaged"
	RuleReceipt         = "receipt"
	RuleHighRiskScore   = "high-risk-score"
	RuleHighRiskCond    = "high-risk-condition"
	RuleAuthenticity    = "authenticity"
	RuleDefault         = "default-approve"
	RuleBotObjection    = "bot-objection"
)

const approvedReason = "Instant Refund Approved: Receipt Valid & Condition Verified."

// HighRiskCategories need a receipt and a new-condition item for an instant refund.
var HighRiskCategories = []string{"Electronics", "Jewelry", "Beauty", "Watches"}

// IsHighRisk reports whether category is high risk.
func IsHighRisk(category string) bool {
	for _, c := range HighRiskCategories {
		if c == category {
			return true
		}
	}
	return false
}

// Verdict is the outcome of a policy evaluation.
type Verdict struct {
	Status    Status   `json:"status"`
	Reason    string   `json:"reason"`
	RuleID    string   `json:"ruleId"`
	RiskScore int      `json:"riskScore"`
	Patterns  []string `json:"detectedPatterns"`
}

// Input is what a rule sees. Risk is nil when no fraud analysis ran.
type Input struct {
	Order    *commerce.Order
	Analysis *ai.Analysis
	Risk     *fraud.Report
	Now      time.Time
}

// Rule decides a request or passes it on.
type Rule struct {
	ID     string
	Decide func(in Input) (Status, string, bool)
}

// Engine evaluates rules in order.
type Engine struct {
	rules []Rule
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used by the return window rule.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an engine with the standard rule list.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{rules: DefaultRules(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RuleIDs lists the engine's rules in evaluation order.
func (e *Engine) RuleIDs() []string {
	ids := make([]string, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.ID
	}
	return ids
}

// Evaluate decides a return request.
func (e *Engine) Evaluate(order *commerce.Order, analysis *ai.Analysis, risk *fraud.Report) Verdict {
	in := Input{Order: order, Analysis: analysis, Risk: risk, Now: e.now()}

	v := Verdict{Status: StatusApproved, Reason: approvedReason, RuleID: RuleDefault, Patterns: []string{}}
	if risk != nil {
		v.RiskScore = risk.RiskScore
		v.Patterns = append(v.Patterns, risk.DetectedPatterns...)
	}
	for _, r := range e.rules {
		if status, reason, ok := r.Decide(in); ok {
			v.Status, v.Reason, v.RuleID = status, reason, r.ID
			break
		}
	}
	return v
}

// ApplyBotOpinions holds an approved verdict for review when any reviewer bot
// declined it.
func ApplyBotOpinions(v Verdict, opinions []ai.BotOpinion) Verdict {
	if v.Status != StatusApproved {
		return v
	}
	for _, op := range opinions {
		if op.Status == ai.BotDeclined {
			v.Status = StatusManualReview
			v.Reason = "External Agent raised objection."
			v.RuleID = RuleBotObjection
			return v
		}
	}
	return v
}

// RefundAmount is the amount paid out for a verdict.
func RefundAmount(v Verdict, estimated float64) float64 {
	if v.Status != StatusApproved {
		return 0
	}
	return estimated
}

// DefaultRules returns the standard rule list.
func DefaultRules() []Rule {
	return []Rule{
		{RuleFraudCritical, func(in Input) (Status, string, bool) {
			if in.Risk == nil || in.Risk.RiskLevel != fraud.LevelCritical {
				return "", "", false
			}
			return StatusDeclined, fmt.Sprintf("Security Block: Critical Risk Detected (%s)",
				strings.Join(in.Risk.DetectedPatterns, ", ")), true
		}},
		{RuleFraudSyndicate, func(in Input) (Status, string, bool) {
			if in.Risk == nil || !in.Risk.Flags.IsSyndicate {
				return "", "", false
			}
			return StatusDeclined, "Security Block: Network Anomaly Linked to Fraud Ring " + in.Risk.NetworkGraphID, true
		}},
		{RuleSerialReturner, func(in Input) (Status, string, bool) {
			if in.Risk == nil || !in.Risk.Flags.IsSerialReturner || in.Analysis.EstimatedRefund <= SerialReturnerRefundLimit {
				return "", "", false
			}
			return StatusManualReview, "Serial Returner Policy: High value return requires agent approval.", true
		}},
		{RuleWardrobing, func(in Input) (Status, string, bool) {
			if in.Risk == nil || !in.Risk.Flags.IsWardrobing {
				return "", "", false
			}
			return StatusDeclined, "Policy Violation: Item usage pattern indicates Wardrobing.", true
		}},
		{RuleInventorySignal, func(in Input) (Status, string, bool) {
			if in.Order.FulfillmentStatus == commerce.FulfillmentDelivered {
				return "", "", false
			}
			return StatusDeclined, fmt.Sprintf("Inventory Signal Alert: Item status is '%s'. Cannot return item that has not been marked Delivered.",
				in.Order.FulfillmentStatus), true
		}},
		{RuleSerialNumber, func(in Input) (Status, string, bool) {
			if in.Order.Category != "Electronics" || in.Order.SerialNumber == "" || in.Analysis.AuthenticityScore >= SerialAuthenticityMin {
				return "", "", false
			}
			return StatusDeclined, fmt.Sprintf("Serial Number Mismatch: Device serial (%s) could not be verified or matched.",
				in.Order.SerialNumber), true
		}},
		{RuleSKUMismatch, func(in Input) (Status, string, bool) {
			if in.Analysis.Condition != ai.ConditionProductMismatch {
				return "", "", false
			}
			return StatusManualReview, "SKU Mismatch: Visual identification does not match sold SKU. Holding for manual inspection.", true
		}},
		{RuleReturnWindow, func(in Input) (Status, string, bool) {
			days, ok := DaysSince(in.Order.PurchaseDate, in.Now)
			if !ok || days <= ReturnWindowDays {
				return "", "", false
			}
			return StatusDeclined, fmt.Sprintf("Return Window Expired. Purchased %d days ago (Max %d).", days, ReturnWindowDays), true
		}},
		{RuleDamaged, func(in Input) (Status, string, bool) {
			if in.Analysis.Condition != ai.ConditionDamaged {
				return "", "", false
			}
			return StatusDeclined, "Policy violation: Damaged items are not eligible for instant refund.", true
		}},
		{RuleReceipt, func(in Input) (Status, string, bool) {
			if in.Order.HasVerifiedReceipt() {
				return "", "", false
			}
			if IsHighRisk(in.Order.Category) {
				return StatusDeclined, "Missing Receipt: High-risk items require valid proof of purchase.", true
			}
			return StatusManualReview, "Receipt missing or invalid. Proof of purchase check failed.", true
		}},
		{RuleHighRiskScore, func(in Input) (Status, string, bool) {
			if !IsHighRisk(in.Order.Category) || in.Analysis.AuthenticityScore >= HighRiskAuthenticityMin {
				return "", "", false
			}
			return StatusDeclined, "High Risk Alert: Security score too low for high-risk category.", true
		}},
		{RuleHighRiskCond, func(in Input) (Status, string, bool) {
			if !IsHighRisk(in.Order.Category) || in.Analysis.Condition == ai.ConditionNew {
				return "", "", false
			}
			return StatusManualReview, fmt.Sprintf("High Value %s item condition is %q. Review required.",
				in.Order.Category, string(in.Analysis.Condition)), true
		}},
		{RuleAuthenticity, func(in Input) (Status, string, bool) {
			threshold := UnverifiedAuthenticityMin
			if in.Order.HasVerifiedReceipt() {
				threshold = VerifiedAuthenticityMin
			}
			if in.Analysis.AuthenticityScore >= threshold {
				return "", "", false
			}
			return StatusManualReview, "AI Verification low confidence. Human inspection required.", true
		}},
	}
}

// DaysSince returns the whole days between a purchase date and now, rounded
// up and taken as an absolute value. Dates are YYYY-MM-DD (UTC midnight) or
// RFC 3339. ok is false when the date cannot be parsed.
func DaysSince(purchaseDate string, now time.Time) (days int, ok bool) {
	t, err := time.Parse("2006-01-02", purchaseDate)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, purchaseDate); err != nil {
			return 0, false
		}
	}
	diff := math.Abs(float64(now.Sub(t)))
	return int(math.Ceil(diff / float64(24*time.Hour))), true
}
