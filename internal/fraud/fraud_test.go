package fraud

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainguard/tracker/internal/ai"
	"github.com/chainguard/tracker/internal/commerce"
)

// fixedSampler replays values in order, then repeats the last one.
type fixedSampler struct {
	values []float64
	calls  int
}

func (s *fixedSampler) Float64() float64 {
	i := s.calls
	if i >= len(s.values) {
		i = len(s.values) - 1
	}
	s.calls++
	return s.values[i]
}

func order(id, category string, price float64) *commerce.Order {
	return &commerce.Order{OrderID: id, Category: category, Price: price, FulfillmentStatus: commerce.FulfillmentDelivered}
}

func analysis(c ai.Condition, auth int) *ai.Analysis {
	return &ai.Analysis{Condition: c, AuthenticityScore: auth}
}

func TestAnalyze_Clean(t *testing.T) {
	r := NewAnalyzer().Analyze(context.Background(), order("ORD-1", "Home", 900), analysis(ai.ConditionNew, 95))

	assert.Equal(t, 0, r.RiskScore)
	assert.Equal(t, LevelLow, r.RiskLevel)
	assert.Empty(t, r.DetectedPatterns)
	assert.NotNil(t, r.DetectedPatterns)
	assert.Equal(t, Flags{}, r.Flags)
	assert.Empty(t, r.NetworkGraphID)
}

func TestAnalyze_KeywordTriggers(t *testing.T) {
	tests := []struct {
		name     string
		order    *commerce.Order
		analysis *ai.Analysis
		score    int
		level    Level
		patterns []string
	}{
		{
			name:     "wardrobing",
			order:    order("ORD-2", "Footwear", 5000),
			analysis: analysis(ai.ConditionLikeNew, 90),
			score:    25,
			level:    LevelMedium,
			patterns: []string{PatternWardrobing},
		},
		{
			name:     "serial returner",
			order:    order("SERIAL-9", "Home", 500),
			analysis: analysis(ai.ConditionNew, 90),
			score:    30,
			level:    LevelMedium,
			patterns: []string{PatternSerialReturner},
		},
		{
			name:     "syndicate",
			order:    order("SYNDICATE-7", "Home", 500),
			analysis: analysis(ai.ConditionNew, 90),
			score:    50,
			level:    LevelHigh,
			patterns: []string{PatternSyndicate},
		},
		{
			name:     "device spoofing",
			order:    order("SHIP-3", "Home", 500),
			analysis: analysis(ai.ConditionNew, 90),
			score:    20,
			level:    LevelMedium,
			patterns: []string{PatternDeviceSpoofing},
		},
		{
			name:     "high value asset",
			order:    order("ORD-4", "Jewelry", 75000),
			analysis: analysis(ai.ConditionNew, 84),
			score:    20,
			level:    LevelMedium,
			patterns: []string{PatternHighValueAsset},
		},
		{
			name:     "high value asset at threshold",
			order:    order("ORD-5", "Jewelry", 75000),
			analysis: analysis(ai.ConditionNew, 85),
			score:    0,
			level:    LevelLow,
			patterns: []string{},
		},
		{
			name:     "stacked and capped",
			order:    order("SERIAL-SYNDICATE-IP", "Electronics", 90000),
			analysis: analysis(ai.ConditionUsed, 40),
			score:    100,
			level:    LevelCritical,
			patterns: []string{PatternWardrobing, PatternSerialReturner, PatternSyndicate, PatternDeviceSpoofing, PatternHighValueAsset},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewAnalyzer().Analyze(context.Background(), tt.order, tt.analysis)
			assert.Equal(t, tt.score, r.RiskScore)
			assert.Equal(t, tt.level, r.RiskLevel)
			assert.Equal(t, tt.patterns, r.DetectedPatterns)
		})
	}
}

func TestAnalyze_Receipt(t *testing.T) {
	a := NewAnalyzer()
	o := order("ORD-6", "Home", 100)

	r := a.Analyze(context.Background(), o, analysis(ai.ConditionNew, 90))
	assert.False(t, r.Flags.IsFakeReceipt, "unchecked receipt is not fake")

	o.SetReceiptVerified(false)
	r = a.Analyze(context.Background(), o, analysis(ai.ConditionNew, 90))
	assert.True(t, r.Flags.IsFakeReceipt)
	assert.Equal(t, 40, r.RiskScore)
	assert.Equal(t, []string{PatternFakeReceipt}, r.DetectedPatterns)

	o.SetReceiptVerified(true)
	r = a.Analyze(context.Background(), o, analysis(ai.ConditionNew, 90))
	assert.False(t, r.Flags.IsFakeReceipt)
}

func TestAnalyze_RingIDDeterministic(t *testing.T) {
	o := order("SYNDICATE-42", "Home", 100)
	first := NewAnalyzer().Analyze(context.Background(), o, analysis(ai.ConditionNew, 90))
	second := NewAnalyzer().Analyze(context.Background(), o, analysis(ai.ConditionNew, 90))

	require.True(t, first.Flags.IsSyndicate)
	assert.Regexp(t, `^RING-[1-9]\d{3}$`, first.NetworkGraphID)
	assert.Equal(t, first.NetworkGraphID, second.NetworkGraphID)
}

func TestAnalyze_Sampler(t *testing.T) {
	// Draw order: serial, syndicate, device, hopping, ring.
	s := &fixedSampler{values: []float64{0.9, 0.01, 0.9, 0.07, 0.5}}
	r := NewAnalyzer(WithSampler(s)).Analyze(context.Background(), order("ORD-7", "Home", 100), analysis(ai.ConditionNew, 90))

	assert.Equal(t, 5, s.calls)
	assert.True(t, r.Flags.IsSyndicate)
	assert.True(t, r.Flags.IsAccountHopping)
	assert.False(t, r.Flags.IsSerialReturner)
	assert.Equal(t, 65, r.RiskScore)
	assert.Equal(t, LevelHigh, r.RiskLevel)
	assert.Equal(t, "RING-5500", r.NetworkGraphID)
}

func TestAnalyze_SamplerSkippedByKeyword(t *testing.T) {
	s := &fixedSampler{values: []float64{0.99}}
	NewAnalyzer(WithSampler(s)).Analyze(context.Background(), order("SERIAL-IP", "Home", 100), analysis(ai.ConditionNew, 90))
	// Only the syndicate and hopping triggers draw.
	assert.Equal(t, 2, s.calls)
}

func TestAnalyze_SeededReproducible(t *testing.T) {
	o := order("ORD-8", "Electronics", 60000)
	run := func() *Report {
		return NewAnalyzer(WithSampler(rand.New(rand.NewSource(7)))).Analyze(context.Background(), o, analysis(ai.ConditionUsed, 70))
	}
	assert.Equal(t, run(), run())
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		score int
		want  Level
	}{
		{0, LevelLow},
		{19, LevelLow},
		{20, LevelMedium},
		{49, LevelMedium},
		{50, LevelHigh},
		{79, LevelHigh},
		{80, LevelCritical},
		{175, LevelCritical},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.score); got != tt.want {
			t.Errorf("LevelFor(%d) = %v, want %v", tt.score, got, tt.want)
		}
	}
}
