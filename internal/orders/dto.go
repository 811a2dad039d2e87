package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
	"github.com/huyanhvn/threadcraft-backend/pkg/types"
)

// CreateOrderItemInput is one requested line. Name, size and unit price are
// snapshotted onto the order; later catalog edits never reprice an order.
type CreateOrderItemInput struct {
	ProductID       *uuid.UUID
	Name            string
	Size            string
	Quantity        int
	UnitPrice       int64
	CustomDesignURL *string
}

// CreateOrderInput carries everything needed to open a new order.
type CreateOrderInput struct {
	UserID          uuid.UUID
	CustomerEmail   string
	PaymentMethod   enums.PaymentMethod
	ShippingAddress *types.ShippingAddress
	Items           []CreateOrderItemInput
	ShippingFee     int64
	TaxAmount       int64
	DiscountAmount  int64
}

// AdvanceInput moves an order forward through the fulfillment statuses.
type AdvanceInput struct {
	OrderNumber    string
	Target         enums.OrderStatus
	TrackingNumber *string
	Note           string
	ActorEmail     string
}

// CancelInput cancels an order on behalf of a customer or staff member.
type CancelInput struct {
	OrderNumber string
	Reason      string
	ActorEmail  string
	// ActorUserID is set for customer cancellations and enforces ownership.
	ActorUserID *uuid.UUID
}

// ConfirmReceiptInput acknowledges delivery of a shipped order.
type ConfirmReceiptInput struct {
	OrderNumber string
	UserID      uuid.UUID
}

// AttachDesignInput sets the custom design artwork on one order line.
type AttachDesignInput struct {
	OrderNumber string
	ItemID      uuid.UUID
	DesignURL   string
	UserID      uuid.UUID
}

// Filters narrow order listings.
type Filters struct {
	OrderStatus   *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	PaymentMethod *enums.PaymentMethod
	DateFrom      *time.Time
	DateTo        *time.Time
	Query         string
}

// OrderSummary is the listing projection.
type OrderSummary struct {
	OrderNumber   string              `json:"order_number"`
	CreatedAt     time.Time           `json:"created_at"`
	TotalAmount   int64               `json:"total_amount"`
	TotalItems    int                 `json:"total_items"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	OrderStatus   enums.OrderStatus   `json:"order_status"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
