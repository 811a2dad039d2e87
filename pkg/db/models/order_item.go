package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem is a price-at-order-time snapshot of one line in an order.
// Unit price is never recomputed from the current catalog price.
type OrderItem struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID  `gorm:"column:order_id;type:uuid;not null"`
	ProductID       *uuid.UUID `gorm:"column:product_id;type:uuid"`
	Name            string     `gorm:"column:name;not null"`
	Size            string     `gorm:"column:size;not null"`
	Quantity        int        `gorm:"column:quantity;not null"`
	UnitPrice       int64      `gorm:"column:unit_price;not null"`
	Subtotal        int64      `gorm:"column:subtotal;not null"`
	CustomDesignURL *string    `gorm:"column:custom_design_url"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// IsCustom reports whether the line carries a custom-design descriptor.
func (i OrderItem) IsCustom() bool {
	return i.CustomDesignURL != nil && *i.CustomDesignURL != ""
}
