package models

import (
	"time"

	"github.com/google/uuid"
)

// SizeStock tracks remaining quantity for one (product, size) pair.
// Decrements happen via atomic SQL updates, never read-modify-write.
type SizeStock struct {
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	Size      string    `gorm:"column:size;primaryKey"`
	Quantity  int       `gorm:"column:quantity;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
