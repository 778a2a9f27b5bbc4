package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/chainguard/tracker/pkg/config"
	"github.com/chainguard/tracker/pkg/logging"
)

// DefaultModel is used when the configuration names no model.
const DefaultModel = "gemini-2.5-flash"

// Gemini is a Classifier backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// New returns the configured classifier. Without an API key it returns
// Unavailable so every call falls back.
func New(ctx context.Context, cfg *config.AIConfig) (Classifier, error) {
	if cfg == nil || cfg.APIKey == "" {
		return Unavailable{}, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %v", ErrExternalService, err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{
		client: client,
		model:  model,
		logger: logging.GetLogger().With(zap.String("component", "gemini")),
	}, nil
}

var receiptSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"isValid":         {Type: genai.TypeBoolean, Description: "True if it looks like a genuine receipt."},
		"merchantName":    {Type: genai.TypeString},
		"date":            {Type: genai.TypeString},
		"confidenceScore": {Type: genai.TypeNumber, Description: "0-100 score of document clarity"},
		"itemsFound":      {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"isValid", "merchantName", "date", "confidenceScore", "itemsFound"},
}

var conditionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"itemType": {Type: genai.TypeString},
		"condition": {
			Type: genai.TypeString,
			Enum: []string{"New", "Like New", "Used", "Damaged", "Product Mismatch"},
		},
		"defects":           {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"authenticityScore": {Type: genai.TypeNumber},
		"estimatedRefund":   {Type: genai.TypeNumber},
		"reasoning":         {Type: genai.TypeString},
	},
	Required: []string{"itemType", "condition", "defects", "authenticityScore", "estimatedRefund", "reasoning"},
}

var botSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"status":  {Type: genai.TypeString, Enum: []string{BotApproved, BotDeclined, BotWarning}},
		"comment": {Type: genai.TypeString},
	},
	Required: []string{"status", "comment"},
}

func (g *Gemini) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExternalService, err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrExternalService)
	}
	return text, nil
}

func (g *Gemini) generateJSON(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig, out interface{}) error {
	cfg.ResponseMIMEType = "application/json"
	text, err := g.generate(ctx, contents, cfg)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		g.logger.Debug("Unparseable classifier response", zap.String("body", text))
		return fmt.Errorf("%w: decode response: %v", ErrExternalService, err)
	}
	return nil
}

// AnalyzeReceipt implements Classifier.
func (g *Gemini) AnalyzeReceipt(ctx context.Context, req ReceiptRequest) (*ReceiptAnalysis, error) {
	prompt := fmt.Sprintf(`Analyze this image. Is it a valid purchase receipt or invoice?

Check for:
1. Merchant Name (Look for "%s" or similar).
2. A visible Date.
3. List of items.

Return JSON.`, req.ExpectedPlatform)

	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(req.Image, req.MIMEType),
		genai.NewPartFromText(prompt),
	}, genai.RoleUser)}

	var out ReceiptAnalysis
	if err := g.generateJSON(ctx, contents, &genai.GenerateContentConfig{ResponseSchema: receiptSchema}, &out); err != nil {
		return nil, err
	}
	if out.ItemsFound == nil {
		out.ItemsFound = []string{}
	}
	return &out, nil
}

// conditionPrompt builds the assessment instructions for an expected product.
func conditionPrompt(req ConditionRequest) string {
	task := "Identify the item in the image."
	if req.ExpectedProduct != "" {
		trust := "NO VALID RECEIPT (Low Trust)"
		if req.ReceiptVerified {
			trust = "VALID RECEIPT PROVIDED (High Trust)"
		}
		task = fmt.Sprintf(`CONTEXT: The user is returning a "%s" (₹%s).
RECEIPT STATUS: %s.

VERIFICATION TASK:
1. Identify the item.
2. COMPARE strictly against "%s".
3. Be generous with visual matching. If the item is the correct category and looks reasonably similar (e.g. correct brand, correct type of object), mark it as a match.
4. ONLY set 'Product Mismatch' if it is undeniable (e.g., a brick instead of a phone, or a banana instead of a shoe).
5. If receipt is valid, lean towards trusting the user unless damage is obvious.`,
			req.ExpectedProduct, formatAmount(req.ExpectedPrice), trust, req.ExpectedProduct)
	}

	price := ""
	if req.ExpectedPrice > 0 {
		price = fmt.Sprintf("Original Price: ₹%s.", formatAmount(req.ExpectedPrice))
	}

	return fmt.Sprintf(`You are an expert product quality assurance AI.
%s

Analyze the image/video.

Outputs:
- itemType: What you see.
- condition: 'New', 'Like New', 'Used', 'Damaged', or 'Product Mismatch'.
- estimatedRefund: In INR.
  %s
  Rules:
  - Mismatch/Damaged = 0.
  - New = 100%% of original.
  - Like New = 90%%.
  - Used = 60%%.
  - If 'Product Mismatch', set refund to 0.

Provide reasoning.`, task, price)
}

// AnalyzeCondition implements Classifier.
func (g *Gemini) AnalyzeCondition(ctx context.Context, req ConditionRequest) (*Analysis, error) {
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(req.Media, req.MIMEType),
		genai.NewPartFromText(conditionPrompt(req)),
	}, genai.RoleUser)}

	var raw struct {
		ItemType          string    `json:"itemType"`
		Condition         Condition `json:"condition"`
		Defects           []string  `json:"defects"`
		AuthenticityScore float64   `json:"authenticityScore"`
		EstimatedRefund   float64   `json:"estimatedRefund"`
		Reasoning         string    `json:"reasoning"`
	}
	if err := g.generateJSON(ctx, contents, &genai.GenerateContentConfig{ResponseSchema: conditionSchema}, &raw); err != nil {
		return nil, err
	}
	if !raw.Condition.Valid() {
		return nil, fmt.Errorf("%w: unknown condition %q", ErrExternalService, raw.Condition)
	}
	return &Analysis{
		ItemType:          raw.ItemType,
		Condition:         raw.Condition,
		Defects:           raw.Defects,
		AuthenticityScore: clampScore(raw.AuthenticityScore),
		EstimatedRefund:   math.Max(raw.EstimatedRefund, 0),
		Reasoning:         raw.Reasoning,
	}, nil
}

// BotPrompt renders the case summary sent to a reviewer bot.
func BotPrompt(bot Bot, c BotCase) string {
	return fmt.Sprintf(`CASE DETAILS:
Product: %s (%s)
Price: ₹%s
Condition Detected: %s
Receipt Verified: %s
Fraud Risk Level: %s
Estimated Refund: ₹%s

YOUR TASK:
Based on your System Instructions (Role: %s), do you APPROVE, DECLINE, or WARNING this return?
Provide a short comment explaining why.`,
		c.ProductName, c.Category, formatAmount(c.Price), c.Condition, c.ReceiptVerified,
		c.RiskLevel, formatAmount(c.EstimatedRefund), bot.Role)
}

// ConsultBot implements Classifier.
func (g *Gemini) ConsultBot(ctx context.Context, bot Bot, c BotCase) (*BotOpinion, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseSchema:    botSchema,
		SystemInstruction: genai.NewContentFromText(bot.SystemInstruction, genai.RoleUser),
	}
	var out struct {
		Status  string `json:"status"`
		Comment string `json:"comment"`
	}
	if err := g.generateJSON(ctx, genai.Text(BotPrompt(bot, c)), cfg, &out); err != nil {
		return nil, err
	}
	return &BotOpinion{BotName: bot.Name, Role: bot.Role, Status: out.Status, Comment: out.Comment}, nil
}

// DescribeProduct implements Classifier.
func (g *Gemini) DescribeProduct(ctx context.Context, name, category string) (string, error) {
	prompt := fmt.Sprintf(`Write a short, premium marketing description (max 2 sentences) for a product named "%s" in the category "%s".`, name, category)
	return g.generate(ctx, genai.Text(prompt), nil)
}

// AuditHistory implements Classifier.
func (g *Gemini) AuditHistory(ctx context.Context, productJSON string) (string, error) {
	prompt := fmt.Sprintf(`Analyze the following supply chain history for a product.
Check for logical inconsistencies in timing or sequence.
The sequence should normally be: PRODUCT_CREATED -> DEPARTED_MANUFACTURER -> ARRIVED_WAREHOUSE -> DEPARTED_WAREHOUSE -> ARRIVED_SHOP -> AVAILABLE_FOR_SALE -> SOLD_TO_CUSTOMER.

Product Data: %s

Return a short paragraph summarizing the journey and if it looks authentic.`, productJSON)
	return g.generate(ctx, genai.Text(prompt), nil)
}

func clampScore(v float64) int {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	}
	return int(math.Round(v))
}

// formatAmount prints whole rupee amounts without a fraction.
func formatAmount(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
