package importer

import (
	"bytes"
	"encoding/json"
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/chainguard/tracker/internal/ledger"
)

// Importer decodes and validates bridged data.
type Importer struct {
	validate *validatorv10.Validate
}

// New creates an importer.
func New() *Importer {
	return &Importer{validate: NewValidator()}
}

// Transactions decodes a single transaction object or an array of them and
// validates each one. Nothing is returned unless every transaction is valid.
func (im *Importer) Transactions(data []byte) ([]ledger.Transaction, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedImport)
	}

	var txs []ledger.Transaction
	if data[0] == '[' {
		if err := json.Unmarshal(data, &txs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedImport, err)
		}
	} else {
		var tx ledger.Transaction
		if err := json.Unmarshal(data, &tx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedImport, err)
		}
		txs = append(txs, tx)
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("%w: no transactions", ErrMalformedImport)
	}

	for i := range txs {
		if err := im.Transaction(txs[i]); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
	}
	return txs, nil
}

// Transaction validates one transaction.
func (im *Importer) Transaction(tx ledger.Transaction) error {
	if err := im.validate.Struct(tx); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedImport, describe(err))
	}
	return nil
}

// Validator exposes the configured validator for request binding.
func (im *Importer) Validator() *validatorv10.Validate {
	return im.validate
}
