package models

// State tracks how far the relational mirror has followed the ledger
type State struct {
	ID       int16  `gorm:"primaryKey;autoIncrement:false;column:id"`
	BlockNum int64  `gorm:"not null;column:block_num"`
	HeadHash string `gorm:"type:char(64);not null;column:head_hash"`
}

// TableName specifies the table name for State
func (State) TableName() string {
	return "chain_state"
}
