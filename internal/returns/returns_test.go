package returns

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainguard/tracker/internal/ai"
	"github.com/chainguard/tracker/internal/commerce"
	"github.com/chainguard/tracker/internal/fraud"
	"github.com/chainguard/tracker/internal/ledger"
	"github.com/chainguard/tracker/internal/notify"
	"github.com/chainguard/tracker/internal/policy"
	"github.com/chainguard/tracker/internal/tracker"
)

var refNow = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

// fakeClassifier returns fixed answers, or fails every call when broken.
type fakeClassifier struct {
	analysis ai.Analysis
	receipt  bool
	botSays  string
	broken   bool
	seen     ai.ConditionRequest
}

var errOffline = errors.New("offline")

func (f *fakeClassifier) AnalyzeCondition(_ context.Context, req ai.ConditionRequest) (*ai.Analysis, error) {
	f.seen = req
	if f.broken {
		return nil, errOffline
	}
	a := f.analysis
	return &a, nil
}

func (f *fakeClassifier) AnalyzeReceipt(context.Context, ai.ReceiptRequest) (*ai.ReceiptAnalysis, error) {
	if f.broken {
		return nil, errOffline
	}
	return &ai.ReceiptAnalysis{IsValid: f.receipt, MerchantName: "Amazon", ItemsFound: []string{}}, nil
}

func (f *fakeClassifier) ConsultBot(context.Context, ai.Bot, ai.BotCase) (*ai.BotOpinion, error) {
	if f.broken {
		return nil, errOffline
	}
	return &ai.BotOpinion{Status: f.botSays, Comment: "checked"}, nil
}

func (f *fakeClassifier) DescribeProduct(context.Context, string, string) (string, error) {
	return "", errOffline
}

func (f *fakeClassifier) AuditHistory(context.Context, string) (string, error) {
	return "", errOffline
}

type captureSender struct {
	sent []notify.Email
}

func (c *captureSender) Send(_ context.Context, e notify.Email) error {
	c.sent = append(c.sent, e)
	return nil
}

type fixture struct {
	svc     *Service
	tracker *tracker.Tracker
	sender  *captureSender
}

func newFixture(t *testing.T, classifier ai.Classifier) fixture {
	t.Helper()
	clock := func() time.Time { return refNow }
	store := ledger.NewStore(ledger.NewMemoryBackend(), ledger.WithClock(clock))
	require.NoError(t, store.Initialize(context.Background()))
	tr := tracker.New(store, tracker.WithClock(clock))
	sender := &captureSender{}

	svc := NewService(
		commerce.NewLookup(clock),
		ai.WithFallback(classifier, time.Second),
		fraud.NewAnalyzer(),
		policy.NewEngine(policy.WithClock(clock)),
		tr,
		sender,
	)
	return fixture{svc: svc, tracker: tr, sender: sender}
}

func goodClassifier() *fakeClassifier {
	return &fakeClassifier{
		analysis: ai.Analysis{ItemType: "Keyboard", Condition: ai.ConditionNew, AuthenticityScore: 95, EstimatedRefund: 4500, Defects: []string{}},
		receipt:  true,
		botSays:  ai.BotApproved,
	}
}

func itemMedia() Media {
	return Media{Data: []byte("jpeg"), MIMEType: "image/jpeg"}
}

func keyboardOrder() *commerce.Order {
	return &commerce.Order{
		Platform:          "Amazon",
		OrderID:           "ORD-1001",
		ProductName:       "Mechanical Gaming Keyboard",
		Category:          "Electronics",
		PurchaseDate:      "2025-06-10",
		Price:             4500,
		SKU:               "MEC-4411-ELE",
		SerialNumber:      "SN3F9A",
		FulfillmentStatus: commerce.FulfillmentDelivered,
		UserID:            "USR-1F",
		UserEmail:         "user.1f@example.com",
	}
}

func TestProcess_Approved(t *testing.T) {
	classifier := goodClassifier()
	f := newFixture(t, classifier)

	res, err := f.svc.Process(context.Background(), Request{
		Order:   keyboardOrder(),
		Receipt: &Media{Data: []byte("receipt"), MIMEType: "image/png"},
		Item:    itemMedia(),
	})
	require.NoError(t, err)

	require.NotNil(t, res.Passport)
	assert.Equal(t, "MEC-4411-ELE", res.Passport.UniqueID)
	assert.True(t, res.Order.HasVerifiedReceipt())
	assert.True(t, classifier.seen.ReceiptVerified)
	assert.Equal(t, "Mechanical Gaming Keyboard", classifier.seen.ExpectedProduct)
	assert.Equal(t, fraud.LevelLow, res.Risk.RiskLevel)

	assert.Equal(t, policy.StatusApproved, res.Verdict.Status)
	assert.Equal(t, 4500.0, res.Record.EstimatedRefund)
	assert.Equal(t, "APPROVED", res.Record.PolicyStatus)
	assert.Equal(t, int64(1), res.Block.Index)

	o, err := f.tracker.Order("ORD-1001")
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", o.Latest.PolicyStatus)

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "✅ Smart Contract Executed: Refund Approved for Order #ORD-1001", f.sender.sent[0].Subject)
	assert.Equal(t, "user.1f@example.com", f.sender.sent[0].To)
}

func TestProcess_LooksUpOrder(t *testing.T) {
	f := newFixture(t, goodClassifier())

	res, err := f.svc.Process(context.Background(), Request{Platform: "amazon", OrderID: "ord-1001", Item: itemMedia()})
	require.NoError(t, err)

	assert.Equal(t, "ORD-1001", res.Order.OrderID)
	assert.Equal(t, "Amazon", res.Order.Platform)
	require.NotNil(t, res.Passport)
	assert.Equal(t, res.Order.SKU, res.Passport.UniqueID)
	assert.Same(t, res.Passport, res.Order.Passport)
	assert.Nil(t, res.Receipt)
	assert.Equal(t, int64(1), res.Block.Index)

	_, err = f.tracker.Order("ORD-1001")
	assert.NoError(t, err)
}

func TestProcess_BotObjection(t *testing.T) {
	classifier := goodClassifier()
	classifier.botSays = ai.BotDeclined
	f := newFixture(t, classifier)
	f.svc.ConnectBot(ai.Bot{Name: "LexBot", Role: "Legal", SystemInstruction: "Be strict."})

	res, err := f.svc.Process(context.Background(), Request{
		Order:   keyboardOrder(),
		Receipt: &Media{Data: []byte("receipt"), MIMEType: "image/png"},
		Item:    itemMedia(),
	})
	require.NoError(t, err)

	require.Len(t, res.Bots, 1)
	assert.Equal(t, "LexBot", res.Bots[0].BotName)
	assert.Equal(t, policy.StatusManualReview, res.Verdict.Status)
	assert.Equal(t, "External Agent raised objection.", res.Verdict.Reason)
	assert.Equal(t, 0.0, res.Record.EstimatedRefund)
}

func TestProcess_BridgedOrderNotDelivered(t *testing.T) {
	f := newFixture(t, goodClassifier())
	order := &commerce.Order{
		OrderID: "BRIDGE-1", ProductName: "Lamp", Category: "Home", Price: 800, PurchaseDate: "2025-06-25",
		SKU: "LAMP-1", FulfillmentStatus: commerce.FulfillmentShipped, UserEmail: "a@b.c",
	}

	res, err := f.svc.Process(context.Background(), Request{Order: order, Item: itemMedia()})
	require.NoError(t, err)

	require.NotNil(t, res.Passport, "passport fetched by SKU")
	assert.Equal(t, "LAMP-1", res.Passport.UniqueID)
	assert.Equal(t, policy.StatusDeclined, res.Verdict.Status)
	assert.Equal(t, policy.RuleInventorySignal, res.Verdict.RuleID)
	assert.Equal(t, 0.0, res.Record.EstimatedRefund)
	require.NotNil(t, res.Email)
	assert.Contains(t, res.Email.Subject, "Return Declined")
}

func TestProcess_ClassifierDown(t *testing.T) {
	f := newFixture(t, &fakeClassifier{broken: true})
	f.svc.ConnectBot(ai.Bot{Name: "FinBot", Role: "Finance", SystemInstruction: "Count."})

	res, err := f.svc.Process(context.Background(), Request{
		Order:   keyboardOrder(),
		Receipt: &Media{Data: []byte("receipt"), MIMEType: "image/png"},
		Item:    itemMedia(),
	})
	require.NoError(t, err)

	assert.Equal(t, "Analysis Failed", res.Analysis.ItemType)
	assert.True(t, res.Order.ReceiptRejected())
	assert.True(t, res.Risk.Flags.IsFakeReceipt)
	assert.True(t, res.Risk.Flags.IsWardrobing)
	assert.Equal(t, 65, res.Risk.RiskScore)
	assert.Equal(t, ai.BotWarning, res.Bots[0].Status)
	assert.Equal(t, policy.StatusDeclined, res.Verdict.Status)
	assert.Equal(t, policy.RuleWardrobing, res.Verdict.RuleID)
}

func TestProcess_InvalidInput(t *testing.T) {
	f := newFixture(t, goodClassifier())
	ctx := context.Background()

	_, err := f.svc.Process(ctx, Request{Platform: "amazon", OrderID: "ord-1001"})
	assert.ErrorIs(t, err, ErrUnsupportedMedia)

	_, err = f.svc.Process(ctx, Request{Platform: "amazon", OrderID: "ord-1001", Item: Media{Data: []byte("x"), MIMEType: "image/avif"}})
	assert.ErrorIs(t, err, ErrUnsupportedMedia)

	_, err = f.svc.Process(ctx, Request{Platform: "amazon", OrderID: "x", Item: itemMedia()})
	assert.ErrorIs(t, err, commerce.ErrInvalidOrderID)

	assert.Len(t, f.tracker.Blocks(), 1, "failed requests must not append")
}

func TestBots(t *testing.T) {
	f := newFixture(t, goodClassifier())

	a := f.svc.ConnectBot(ai.Bot{Name: "A", Role: "Legal", SystemInstruction: "x"})
	f.svc.ConnectBot(ai.Bot{ID: "fixed", Name: "B", Role: "Finance", SystemInstruction: "y"})
	assert.Len(t, a.ID, 9)
	assert.Len(t, f.svc.Bots(), 2)

	assert.True(t, f.svc.DisconnectBot("fixed"))
	assert.False(t, f.svc.DisconnectBot("fixed"))
	assert.Equal(t, []ai.Bot{a}, f.svc.Bots())
}

func TestReceiptLabel(t *testing.T) {
	yes, no := true, false
	assert.Equal(t, "undefined", receiptLabel(nil))
	assert.Equal(t, "true", receiptLabel(&yes))
	assert.Equal(t, "false", receiptLabel(&no))
}

func TestProcess_CustomerOverride(t *testing.T) {
	f := newFixture(t, goodClassifier())

	res, err := f.svc.Process(context.Background(), Request{
		Platform: "amazon", OrderID: "ord-2002", Item: itemMedia(),
		UserID: "Asha", UserEmail: "asha@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Asha", res.Order.UserID)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "asha@example.com", f.sender.sent[0].To)
}
