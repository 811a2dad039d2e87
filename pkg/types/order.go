package types

import (
	"time"

	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
)

// StatusChange is one append-only entry in an order's status history.
type StatusChange struct {
	Status    enums.OrderStatus `json:"status"`
	Note      string            `json:"note,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	ChangedAt time.Time         `json:"changedAt"`
}

// StatusHistory is the ordered audit trail of order status transitions.
type StatusHistory []StatusChange

// Last returns the most recent entry, or a zero value when empty.
func (h StatusHistory) Last() StatusChange {
	if len(h) == 0 {
		return StatusChange{}
	}
	return h[len(h)-1]
}

// PaymentDetails holds gateway correlation data, written once when an order
// is reconciled and never overwritten by later gateway messages.
type PaymentDetails struct {
	Gateway          enums.PaymentMethod `json:"gateway"`
	GatewayReference string              `json:"gatewayReference"`
	RawCode          string              `json:"rawCode,omitempty"`
	PaidAt           *time.Time          `json:"paidAt,omitempty"`
	FailureReason    string              `json:"failureReason,omitempty"`
}

// ShippingAddress captures the delivery destination snapshot on the order.
type ShippingAddress struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Line1    string `json:"line1"`
	Ward     string `json:"ward,omitempty"`
	District string `json:"district,omitempty"`
	City     string `json:"city"`
}
