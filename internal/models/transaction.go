package models

import (
	"time"
)

// Transaction mirrors one ledger transaction that touched a product
type Transaction struct {
	ID        int64     `gorm:"primaryKey;column:id" json:"id"`
	TxID      string    `gorm:"type:varchar(64);not null;uniqueIndex:chain_transactions_ux1;column:tx_id" json:"txId"`
	ProductID int64     `gorm:"not null;index:chain_transactions_ix1;column:product_id" json:"productId"`
	BlockNum  int64     `gorm:"not null;column:block_num" json:"blockNum"`
	TxType    string    `gorm:"type:varchar(32);not null;column:tx_type" json:"txType"`
	Status    string    `gorm:"type:varchar(32);column:status" json:"status"`
	Actor     string    `gorm:"type:varchar(255);not null;column:actor" json:"actor"`
	Location  string    `gorm:"type:varchar(255);column:location" json:"location,omitempty"`
	Notes     string    `gorm:"type:text;column:notes" json:"notes,omitempty"`
	Metadata  string    `gorm:"type:text;column:metadata" json:"metadata,omitempty"`
	Timestamp time.Time `gorm:"not null;column:timestamp" json:"timestamp"`
}

// TableName specifies the table name for Transaction
func (Transaction) TableName() string {
	return "chain_transactions"
}

// All lists every mirrored model for migrations.
func All() []interface{} {
	return []interface{}{&Block{}, &Product{}, &Transaction{}, &State{}}
}
