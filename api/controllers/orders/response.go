package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/huyanhvn/threadcraft-backend/pkg/db/models"
	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
	"github.com/huyanhvn/threadcraft-backend/pkg/types"
)

type orderItemView struct {
	ID              uuid.UUID  `json:"id"`
	ProductID       *uuid.UUID `json:"product_id,omitempty"`
	Name            string     `json:"name"`
	Size            string     `json:"size"`
	Quantity        int        `json:"quantity"`
	UnitPrice       int64      `json:"unit_price"`
	Subtotal        int64      `json:"subtotal"`
	CustomDesignURL *string    `json:"custom_design_url,omitempty"`
}

type orderView struct {
	OrderNumber     string                 `json:"order_number"`
	CustomerEmail   string                 `json:"customer_email"`
	ShippingAddress *types.ShippingAddress `json:"shipping_address,omitempty"`
	SubtotalAmount  int64                  `json:"subtotal_amount"`
	ShippingFee     int64                  `json:"shipping_fee"`
	TaxAmount       int64                  `json:"tax_amount"`
	DiscountAmount  int64                  `json:"discount_amount"`
	TotalAmount     int64                  `json:"total_amount"`
	PaymentMethod   enums.PaymentMethod    `json:"payment_method"`
	PaymentStatus   enums.PaymentStatus    `json:"payment_status"`
	OrderStatus     enums.OrderStatus      `json:"order_status"`
	PaymentDetails  *types.PaymentDetails  `json:"payment_details,omitempty"`
	StatusHistory   types.StatusHistory    `json:"status_history"`
	TrackingNumber  *string                `json:"tracking_number,omitempty"`
	HasCustomItems  bool                   `json:"has_custom_items"`
	Items           []orderItemView        `json:"items"`
	DeliveredAt     *time.Time             `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time             `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

func viewFromModel(order *models.Order) orderView {
	items := make([]orderItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemView{
			ID:              item.ID,
			ProductID:       item.ProductID,
			Name:            item.Name,
			Size:            item.Size,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			Subtotal:        item.Subtotal,
			CustomDesignURL: item.CustomDesignURL,
		})
	}
	return orderView{
		OrderNumber:     order.OrderNumber,
		CustomerEmail:   order.CustomerEmail,
		ShippingAddress: order.ShippingAddress,
		SubtotalAmount:  order.SubtotalAmount,
		ShippingFee:     order.ShippingFee,
		TaxAmount:       order.TaxAmount,
		DiscountAmount:  order.DiscountAmount,
		TotalAmount:     order.TotalAmount,
		PaymentMethod:   order.PaymentMethod,
		PaymentStatus:   order.PaymentStatus,
		OrderStatus:     order.OrderStatus,
		PaymentDetails:  order.PaymentDetails,
		StatusHistory:   order.StatusHistory,
		TrackingNumber:  order.TrackingNumber,
		HasCustomItems:  order.HasCustomItems,
		Items:           items,
		DeliveredAt:     order.DeliveredAt,
		CancelledAt:     order.CancelledAt,
		CreatedAt:       order.CreatedAt,
	}
}
