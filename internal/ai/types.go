// Package ai is the boundary to the external vision and text classifier used
// for return assessment, receipt checks, reviewer bots and product copy.
package ai

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrExternalService wraps every failure of the external classifier.
	ErrExternalService = errors.New("external classifier failed")
	// ErrUnavailable is returned when no classifier is configured.
	ErrUnavailable = fmt.Errorf("%w: no api key configured", ErrExternalService)
)

// Condition is the assessed physical condition of a returned item.
type Condition string

// Assessed conditions.
const (
	ConditionNew             Condition = "New"
	ConditionLikeNew         Condition = "Like New"
	ConditionUsed            Condition = "Used"
	ConditionDamaged         Condition = "Damaged"
	ConditionProductMismatch Condition = "Product Mismatch"
)

// Conditions lists every condition the classifier may return.
var Conditions = []Condition{
	ConditionNew, ConditionLikeNew, ConditionUsed, ConditionDamaged, ConditionProductMismatch,
}

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	for _, known := range Conditions {
		if c == known {
			return true
		}
	}
	return false
}

// Analysis is the classifier's assessment of a returned item.
type Analysis struct {
	ItemType          string    `json:"itemType"`
	Condition         Condition `json:"condition"`
	Defects           []string  `json:"defects"`
	AuthenticityScore int       `json:"authenticityScore"`
	EstimatedRefund   float64   `json:"estimatedRefund"`
	Reasoning         string    `json:"reasoning"`
}

// ReceiptAnalysis is the classifier's reading of a proof of purchase.
type ReceiptAnalysis struct {
	IsValid         bool     `json:"isValid"`
	MerchantName    string   `json:"merchantName"`
	Date            string   `json:"date"`
	ConfidenceScore float64  `json:"confidenceScore"`
	ItemsFound      []string `json:"itemsFound"`
}

// Bot verdicts.
const (
	BotApproved = "APPROVED"
	BotDeclined = "DECLINED"
	BotWarning  = "WARNING"
)

// Bot is an external reviewer persona consulted before a decision.
type Bot struct {
	ID                string `json:"id"`
	Name              string `json:"name" binding:"required"`
	Role              string `json:"role" binding:"required,oneof=Legal Finance Logistics Supervisor"`
	SystemInstruction string `json:"systemInstruction" binding:"required"`
}

// BotOpinion is one reviewer's verdict.
type BotOpinion struct {
	BotName string `json:"botName"`
	Role    string `json:"role"`
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

// ConditionRequest carries the media and order context for an assessment.
type ConditionRequest struct {
	Media           []byte
	MIMEType        string
	ExpectedProduct string
	ExpectedPrice   float64
	ReceiptVerified bool
}

// ReceiptRequest carries a receipt image.
type ReceiptRequest struct {
	Image            []byte
	MIMEType         string
	ExpectedPlatform string
}

// BotCase summarizes a return for a reviewer bot.
type BotCase struct {
	ProductName     string
	Category        string
	Price           float64
	Condition       Condition
	ReceiptVerified string
	RiskLevel       string
	EstimatedRefund float64
}

// Classifier is the external classifier. Implementations return errors
// wrapping ErrExternalService; callers wrap them with WithFallback.
type Classifier interface {
	AnalyzeCondition(ctx context.Context, req ConditionRequest) (*Analysis, error)
	AnalyzeReceipt(ctx context.Context, req ReceiptRequest) (*ReceiptAnalysis, error)
	ConsultBot(ctx context.Context, bot Bot, c BotCase) (*BotOpinion, error)
	DescribeProduct(ctx context.Context, name, category string) (string, error)
	AuditHistory(ctx context.Context, productJSON string) (string, error)
}

// Unavailable is the classifier used when no API key is configured. Every
// call fails with ErrUnavailable.
type Unavailable struct{}

func (Unavailable) AnalyzeCondition(context.Context, ConditionRequest) (*Analysis, error) {
	return nil, ErrUnavailable
}

func (Unavailable) AnalyzeReceipt(context.Context, ReceiptRequest) (*ReceiptAnalysis, error) {
	return nil, ErrUnavailable
}

func (Unavailable) ConsultBot(context.Context, Bot, BotCase) (*BotOpinion, error) {
	return nil, ErrUnavailable
}

func (Unavailable) DescribeProduct(context.Context, string, string) (string, error) {
	return "", ErrUnavailable
}

func (Unavailable) AuditHistory(context.Context, string) (string, error) {
	return "", ErrUnavailable
}
