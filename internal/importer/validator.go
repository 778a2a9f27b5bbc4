// Package importer validates data bridged in by hand: ledger transactions
// exported from another node and marketplace orders pasted as JSON.
package importer

import (
	"errors"
	"fmt"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/chainguard/tracker/internal/ledger"
)

// ErrMalformedImport is returned for imported data that is not valid JSON or
// is missing required fields.
var ErrMalformedImport = errors.New("malformed import")

// NewValidator returns a validator with the ledger transaction rules
// registered.
func NewValidator() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterStructValidation(transactionRules, ledger.Transaction{})
	return v
}

// transactionRules checks the fields every imported transaction must carry.
// Analysis results are keyed by order and carry no lifecycle status.
func transactionRules(sl validatorv10.StructLevel) {
	tx := sl.Current().Interface().(ledger.Transaction)

	required := func(value, field, name string) {
		if strings.TrimSpace(value) == "" {
			sl.ReportError(value, field, name, "required", "")
		}
	}
	required(tx.ID, "id", "ID")
	required(tx.ProductUID, "productUid", "ProductUID")
	required(tx.Actor, "actor", "Actor")

	if !tx.Type.Valid() {
		sl.ReportError(tx.Type, "type", "Type", "oneof", string(tx.Type))
		return
	}
	if tx.Type == ledger.TxAnalysisResult {
		if tx.Analysis == nil {
			sl.ReportError(tx.Analysis, "analysis", "Analysis", "required", "")
		}
		return
	}
	switch {
	case tx.Status == "":
		sl.ReportError(tx.Status, "status", "Status", "required", "")
	case !tx.Status.Valid():
		sl.ReportError(tx.Status, "status", "Status", "oneof", string(tx.Status))
	}
}

// describe flattens validation errors into one readable line.
func describe(err error) string {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s %q is not recognised", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, ", ")
}
