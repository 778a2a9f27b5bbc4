package models

import (
	"time"
)

// Product is the relational projection of a registered product
type Product struct {
	ID            int64     `gorm:"primaryKey;column:id" json:"id"`
	UID           string    `gorm:"type:varchar(64);not null;uniqueIndex:products_ux1;column:uid" json:"uid"`
	Name          string    `gorm:"type:varchar(255);not null;column:name" json:"name"`
	Category      string    `gorm:"type:varchar(64);not null;default:'Uncategorized';column:category" json:"category"`
	Batch         string    `gorm:"type:varchar(64);column:batch" json:"batch,omitempty"`
	CurrentStatus string    `gorm:"type:varchar(32);not null;index:products_ix1;column:current_status" json:"currentStatus"`
	Metadata      string    `gorm:"type:text;column:metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time `gorm:"not null;column:created_at" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"not null;column:updated_at" json:"updatedAt"`

	Transactions []Transaction `gorm:"foreignKey:ProductID;references:ID" json:"transactions,omitempty"`
}

// TableName specifies the table name for Product
func (Product) TableName() string {
	return "products"
}
