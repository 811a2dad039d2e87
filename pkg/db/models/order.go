package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
	"github.com/huyanhvn/threadcraft-backend/pkg/types"
)

// Order is the aggregate root for a purchase. The order number is the
// externally visible correlation key carried by gateway callbacks.
type Order struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber     string                 `gorm:"column:order_number;not null;uniqueIndex"`
	UserID          uuid.UUID              `gorm:"column:user_id;type:uuid;not null"`
	CustomerEmail   string                 `gorm:"column:customer_email;not null"`
	ShippingAddress *types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	SubtotalAmount  int64                  `gorm:"column:subtotal_amount;not null"`
	ShippingFee     int64                  `gorm:"column:shipping_fee;not null;default:0"`
	TaxAmount       int64                  `gorm:"column:tax_amount;not null;default:0"`
	DiscountAmount  int64                  `gorm:"column:discount_amount;not null;default:0"`
	TotalAmount     int64                  `gorm:"column:total_amount;not null"`
	PaymentMethod   enums.PaymentMethod    `gorm:"column:payment_method;type:payment_method;not null"`
	PaymentStatus   enums.PaymentStatus    `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	OrderStatus     enums.OrderStatus      `gorm:"column:order_status;type:order_status;not null;default:'pending'"`
	PaymentDetails  *types.PaymentDetails  `gorm:"column:payment_details;type:jsonb;serializer:json"`
	StatusHistory   types.StatusHistory    `gorm:"column:status_history;type:jsonb;serializer:json"`
	TrackingNumber  *string                `gorm:"column:tracking_number"`
	HasCustomItems  bool                   `gorm:"column:has_custom_items;not null;default:false"`
	Items           []OrderItem            `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	DeliveredAt     *time.Time             `gorm:"column:delivered_at"`
	CancelledAt     *time.Time             `gorm:"column:cancelled_at"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
