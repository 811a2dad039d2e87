package models

import (
	"time"

	"github.com/google/uuid"
)

// Product carries the aggregate stock figures; per-size counts live in
// SizeStock rows and total_stock is recomputed as their sum.
type Product struct {
	ID         uuid.UUID   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name       string      `gorm:"column:name;not null"`
	SKU        string      `gorm:"column:sku;not null;uniqueIndex"`
	Price      int64       `gorm:"column:price;not null"`
	TotalStock int         `gorm:"column:total_stock;not null;default:0"`
	SoldCount  int         `gorm:"column:sold_count;not null;default:0"`
	Sizes      []SizeStock `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}
