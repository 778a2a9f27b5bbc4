// Package fraud scores a return request against known abuse patterns.
package fraud

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/chainguard/tracker/internal/ai"
	"github.com/chainguard/tracker/internal/commerce"
	"github.com/chainguard/tracker/pkg/logging"
	"github.com/chainguard/tracker/pkg/telemetry"
)

// Level is a coarse risk bucket.
type Level string

// Risk levels.
const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Detected pattern labels.
const (
	PatternWardrobing     = "Potential Wardrobing (Wear & Return)"
	PatternSerialReturner = "Serial Returner Pattern (High Frequency)"
	PatternSyndicate      = "Syndicate Link Detected (Known Fraud Ring IP)"
	PatternDeviceSpoofing = "Device Fingerprint Anomaly (VPN/Emulator)"
	PatternAccountHopping = "Account Hopping (Linked to banned accounts)"
	PatternFakeReceipt    = "Invalid/Manipulated Receipt"
	PatternHighValueAsset = "High-Value Asset Risk"
)

// Trigger weights and sampling rates.
const (
	weightWardrobing     = 25
	weightSerialReturner = 30
	weightSyndicate      = 50
	weightDeviceSpoofing = 20
	weightAccountHopping = 15
	weightFakeReceipt    = 40
	weightHighValueAsset = 20

	rateSerialReturner = 0.15
	rateSyndicate      = 0.05
	rateDeviceSpoofing = 0.10
	rateAccountHopping = 0.08

	highValuePrice        = 50000
	highValueAuthenticity = 85
	maxScore              = 100
)

var (
	wardrobingCategories = []string{"Fashion", "Electronics", "Footwear"}
	highValueCategories  = []string{"Jewelry", "Electronics"}
)

// Flags records which patterns fired.
type Flags struct {
	IsWardrobing     bool `json:"isWardrobing"`
	IsSerialReturner bool `json:"isSerialReturner"`
	IsSyndicate      bool `json:"isSyndicate"`
	IsDeviceSpoofing bool `json:"isDeviceSpoofing"`
	IsAccountHopping bool `json:"isAccountHopping"`
	IsFakeReceipt    bool `json:"isFakeReceipt"`
}

// Report is the outcome of a fraud analysis.
type Report struct {
	RiskScore        int      `json:"riskScore"`
	RiskLevel        Level    `json:"riskLevel"`
	DetectedPatterns []string `json:"detectedPatterns"`
	Flags            Flags    `json:"flags"`
	NetworkGraphID   string   `json:"networkGraphId,omitempty"`
}

// Sampler yields uniform values in [0, 1). *rand.Rand satisfies it.
type Sampler interface {
	Float64() float64
}

// Analyzer evaluates fraud triggers. Without a sampler only the triggers
// derived from the request fire, so results are deterministic.
type Analyzer struct {
	mu      sync.Mutex
	sampler Sampler
	logger  *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithSampler enables the stochastic triggers.
func WithSampler(s Sampler) Option {
	return func(a *Analyzer) { a.sampler = s }
}

// NewAnalyzer returns an Analyzer.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{logger: logging.GetLogger().With(zap.String("component", "fraud"))}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// sample reports whether a stochastic trigger with the given rate fires.
// Callers hold a.mu.
func (a *Analyzer) sample(rate float64) bool {
	return a.sampler != nil && a.sampler.Float64() < rate
}

// Analyze scores order and its condition analysis. The sampler is consulted
// only for triggers not already fired by the order id.
func (a *Analyzer) Analyze(ctx context.Context, order *commerce.Order, analysis *ai.Analysis) *Report {
	_, span := telemetry.StartSpan(ctx, "fraud.analyze")
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	r := &Report{DetectedPatterns: []string{}}
	score := 0
	hit := func(weight int, pattern string) {
		score += weight
		r.DetectedPatterns = append(r.DetectedPatterns, pattern)
	}

	if contains(wardrobingCategories, order.Category) &&
		(analysis.Condition == ai.ConditionUsed || analysis.Condition == ai.ConditionLikeNew) {
		r.Flags.IsWardrobing = true
		hit(weightWardrobing, PatternWardrobing)
	}
	if strings.Contains(order.OrderID, "SERIAL") || a.sample(rateSerialReturner) {
		r.Flags.IsSerialReturner = true
		hit(weightSerialReturner, PatternSerialReturner)
	}
	if strings.Contains(order.OrderID, "SYNDICATE") || a.sample(rateSyndicate) {
		r.Flags.IsSyndicate = true
		hit(weightSyndicate, PatternSyndicate)
	}
	if strings.Contains(order.OrderID, "IP") || a.sample(rateDeviceSpoofing) {
		r.Flags.IsDeviceSpoofing = true
		hit(weightDeviceSpoofing, PatternDeviceSpoofing)
	}
	if a.sample(rateAccountHopping) {
		r.Flags.IsAccountHopping = true
		hit(weightAccountHopping, PatternAccountHopping)
	}
	if order.ReceiptRejected() {
		r.Flags.IsFakeReceipt = true
		hit(weightFakeReceipt, PatternFakeReceipt)
	}
	if contains(highValueCategories, order.Category) && order.Price > highValuePrice &&
		analysis.AuthenticityScore < highValueAuthenticity {
		hit(weightHighValueAsset, PatternHighValueAsset)
	}

	r.RiskLevel = LevelFor(score)
	r.RiskScore = score
	if r.RiskScore > maxScore {
		r.RiskScore = maxScore
	}
	if r.Flags.IsSyndicate {
		r.NetworkGraphID = a.ringID(order.OrderID)
	}

	if r.RiskLevel == LevelHigh || r.RiskLevel == LevelCritical {
		a.logger.Info("Elevated fraud risk",
			zap.String("order_id", order.OrderID),
			zap.Int("score", score),
			zap.String("level", string(r.RiskLevel)),
			zap.Strings("patterns", r.DetectedPatterns))
	}
	return r
}

// LevelFor buckets an uncapped score.
func LevelFor(score int) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 50:
		return LevelHigh
	case score >= 20:
		return LevelMedium
	}
	return LevelLow
}

// ringID names the fraud ring a syndicate hit is linked to, in RING-1000
// through RING-9999. Callers hold a.mu.
func (a *Analyzer) ringID(orderID string) string {
	var n int
	if a.sampler != nil {
		n = int(a.sampler.Float64() * 9000)
	} else {
		h := fnv.New32a()
		h.Write([]byte(orderID))
		n = int(h.Sum32() % 9000)
	}
	if n > 8999 {
		n = 8999
	}
	return fmt.Sprintf("RING-%d", n+1000)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
