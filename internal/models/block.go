package models

import (
	"time"
)

// Block mirrors one ledger block
type Block struct {
	Num       int64     `gorm:"primaryKey;autoIncrement:false;column:num"`
	Hash      string    `gorm:"type:char(64);not null;uniqueIndex:chain_blocks_ux1"`
	Prev      string    `gorm:"type:char(64);not null;column:prev"`
	Nonce     int64     `gorm:"not null;default:0;column:nonce"`
	TXs       int32     `gorm:"type:integer;not null;default:0;column:txs"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Block
func (Block) TableName() string {
	return "chain_blocks"
}
