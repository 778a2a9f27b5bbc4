// Package returns runs a customer return from order lookup to a recorded,
// notified decision.
package returns

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/chainguard/tracker/internal/ai"
	"github.com/chainguard/tracker/internal/commerce"
	"github.com/chainguard/tracker/internal/fraud"
	"github.com/chainguard/tracker/internal/ledger"
	"github.com/chainguard/tracker/internal/notify"
	"github.com/chainguard/tracker/internal/policy"
	"github.com/chainguard/tracker/pkg/logging"
	"github.com/chainguard/tracker/pkg/telemetry"
)

// Actor is recorded on every return decision.
const Actor = "ChainReturn Smart Contract"

// ErrUnsupportedMedia is returned for media the classifier cannot read.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// Recorder appends return decisions to the ledger.
type Recorder interface {
	RecordAnalysis(ctx context.Context, rec ledger.ReturnRecord, actor string) (ledger.Block, ledger.Transaction, error)
}

// Media is an uploaded file.
type Media struct {
	Data     []byte
	MIMEType string
}

func (m *Media) present() bool {
	return m != nil && len(m.Data) > 0
}

// Request is a return request. Either Order (already looked up or bridged
// in) or Platform and OrderID must be set. UserID and UserEmail, when set,
// replace the customer on a looked up order.
type Request struct {
	Platform  string
	OrderID   string
	Order     *commerce.Order
	Passport  *commerce.Passport
	Receipt   *Media
	Item      Media
	UserID    string
	UserEmail string
}

// Result is the full outcome of a processed return.
type Result struct {
	Order    *commerce.Order     `json:"order"`
	Passport *commerce.Passport  `json:"productPassport,omitempty"`
	Receipt  *ai.ReceiptAnalysis `json:"receiptAnalysis,omitempty"`
	Analysis *ai.Analysis        `json:"analysis"`
	Risk     *fraud.Report       `json:"fraudRisk"`
	Bots     []ai.BotOpinion     `json:"botConsensus"`
	Verdict  policy.Verdict      `json:"verdict"`
	Record   ledger.ReturnRecord `json:"record"`
	Block    ledger.Block        `json:"block"`
	Email    *notify.Email       `json:"email,omitempty"`
}

// Service processes returns.
type Service struct {
	lookup   *commerce.Lookup
	ai       *ai.Resilient
	fraud    *fraud.Analyzer
	policy   *policy.Engine
	recorder Recorder
	sender   notify.Sender
	logger   *zap.Logger

	mu   sync.RWMutex
	bots []ai.Bot
}

// NewService wires a return service. sender may be nil to skip email.
func NewService(lookup *commerce.Lookup, classifier *ai.Resilient, analyzer *fraud.Analyzer,
	engine *policy.Engine, recorder Recorder, sender notify.Sender) *Service {
	return &Service{
		lookup:   lookup,
		ai:       classifier,
		fraud:    analyzer,
		policy:   engine,
		recorder: recorder,
		sender:   sender,
		logger:   logging.GetLogger().With(zap.String("component", "returns")),
	}
}

// FetchOrder looks up an order and its product passport.
func (s *Service) FetchOrder(ctx context.Context, platform, orderID string) (*commerce.Order, *commerce.Passport, error) {
	order, err := s.lookup.FetchOrder(ctx, platform, orderID)
	if err != nil {
		return nil, nil, err
	}
	passport, err := s.lookup.FetchPassport(ctx, order.SKU)
	if err != nil {
		return nil, nil, err
	}
	order.Passport = passport
	return order, passport, nil
}

// CheckReceipt reads a receipt image and marks the order verified or not.
func (s *Service) CheckReceipt(ctx context.Context, order *commerce.Order, receipt Media) (*ai.ReceiptAnalysis, error) {
	if err := checkMedia(receipt.MIMEType); err != nil {
		return nil, err
	}
	res := s.ai.AnalyzeReceipt(ctx, ai.ReceiptRequest{Image: receipt.Data, MIMEType: receipt.MIMEType, ExpectedPlatform: order.Platform})
	order.SetReceiptVerified(res.IsValid)
	return res, nil
}

// Process runs a return end to end. Classifier and email failures are
// absorbed; only lookup, input and ledger errors are returned.
func (s *Service) Process(ctx context.Context, req Request) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "returns.process")
	defer span.End()

	if !req.Item.present() {
		return nil, fmt.Errorf("%w: item media is required", ErrUnsupportedMedia)
	}
	if err := checkMedia(req.Item.MIMEType); err != nil {
		return nil, err
	}

	res := &Result{Order: req.Order, Passport: req.Passport}
	if res.Order == nil {
		order, passport, err := s.FetchOrder(ctx, req.Platform, req.OrderID)
		if err != nil {
			return nil, err
		}
		if req.UserID != "" {
			order.UserID = req.UserID
		}
		if req.UserEmail != "" {
			order.UserEmail = req.UserEmail
		}
		res.Order, res.Passport = order, passport
	}
	order := res.Order
	if res.Passport == nil {
		passport, err := s.lookup.FetchPassport(ctx, order.SKU)
		if err != nil {
			return nil, err
		}
		res.Passport = passport
		order.Passport = passport
	}
	span.SetAttributes(attribute.String("order.id", order.OrderID))

	if req.Receipt.present() {
		receipt, err := s.CheckReceipt(ctx, order, *req.Receipt)
		if err != nil {
			return nil, err
		}
		res.Receipt = receipt
	}

	res.Analysis = s.ai.AnalyzeCondition(ctx, ai.ConditionRequest{
		Media:           req.Item.Data,
		MIMEType:        req.Item.MIMEType,
		ExpectedProduct: order.ProductName,
		ExpectedPrice:   order.Price,
		ReceiptVerified: order.HasVerifiedReceipt(),
	})
	res.Risk = s.fraud.Analyze(ctx, order, res.Analysis)
	res.Bots = s.consultBots(ctx, order, res.Analysis, res.Risk)

	verdict := s.policy.Evaluate(order, res.Analysis, res.Risk)
	res.Verdict = policy.ApplyBotOpinions(verdict, res.Bots)
	res.Record = record(order, res.Analysis, res.Risk, res.Verdict)

	block, _, err := s.recorder.RecordAnalysis(ctx, res.Record, Actor)
	if err != nil {
		return nil, fmt.Errorf("record return decision: %w", err)
	}
	res.Block = block

	s.logger.Info("Return decided",
		zap.String("order_id", order.OrderID),
		zap.String("status", string(res.Verdict.Status)),
		zap.String("rule", res.Verdict.RuleID),
		zap.Int("risk_score", res.Risk.RiskScore),
		zap.Int64("block", block.Index))

	if email, err := notify.Compose(block, order, res.Record); err == nil {
		res.Email = &email
		if s.sender != nil {
			if err := s.sender.Send(ctx, email); err != nil {
				s.logger.Warn("Failed to send return email", zap.String("order_id", order.OrderID), zap.Error(err))
			}
		}
	}
	return res, nil
}

func (s *Service) consultBots(ctx context.Context, order *commerce.Order, a *ai.Analysis, risk *fraud.Report) []ai.BotOpinion {
	bots := s.Bots()
	opinions := make([]ai.BotOpinion, 0, len(bots))
	if len(bots) == 0 {
		return opinions
	}
	c := ai.BotCase{
		ProductName:     order.ProductName,
		Category:        order.Category,
		Price:           order.Price,
		Condition:       a.Condition,
		ReceiptVerified: receiptLabel(order.ReceiptVerified),
		RiskLevel:       string(risk.RiskLevel),
		EstimatedRefund: a.EstimatedRefund,
	}
	for _, bot := range bots {
		opinions = append(opinions, *s.ai.ConsultBot(ctx, bot, c))
	}
	return opinions
}

// record builds the ledger payload. The refund is paid only on approval.
func record(order *commerce.Order, a *ai.Analysis, risk *fraud.Report, v policy.Verdict) ledger.ReturnRecord {
	return ledger.ReturnRecord{
		OrderID:           order.OrderID,
		ProductName:       order.ProductName,
		Category:          order.Category,
		ItemType:          a.ItemType,
		Condition:         string(a.Condition),
		Defects:           append([]string{}, a.Defects...),
		AuthenticityScore: a.AuthenticityScore,
		EstimatedRefund:   policy.RefundAmount(v, a.EstimatedRefund),
		Reasoning:         a.Reasoning,
		PolicyStatus:      string(v.Status),
		PolicyReason:      v.Reason,
		RiskScore:         risk.RiskScore,
		RiskLevel:         string(risk.RiskLevel),
		Patterns:          append([]string{}, risk.DetectedPatterns...),
		NetworkGraphID:    risk.NetworkGraphID,
	}
}

func receiptLabel(v *bool) string {
	if v == nil {
		return "undefined"
	}
	return strconv.FormatBool(*v)
}

// checkMedia rejects formats the classifier cannot read.
func checkMedia(mime string) error {
	if mime == "image/avif" {
		return fmt.Errorf("%w: AVIF images are not supported, use JPG, PNG or WEBP", ErrUnsupportedMedia)
	}
	return nil
}

// Bots returns the connected reviewer bots.
func (s *Service) Bots() []ai.Bot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ai.Bot(nil), s.bots...)
}

// ConnectBot registers a reviewer bot and returns it with its id.
func (s *Service) ConnectBot(bot ai.Bot) ai.Bot {
	if bot.ID == "" {
		bot.ID = uuid.NewString()[:9]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots = append(s.bots, bot)
	s.logger.Info("Reviewer bot connected", zap.String("bot", bot.Name), zap.String("role", bot.Role))
	return bot
}

// DisconnectBot removes a reviewer bot. It reports whether one was removed.
func (s *Service) DisconnectBot(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.bots {
		if b.ID == id {
			s.bots = append(s.bots[:i], s.bots[i+1:]...)
			return true
		}
	}
	return false
}
