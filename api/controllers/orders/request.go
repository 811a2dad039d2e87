package orders

import (
	"github.com/google/uuid"

	internalorders "github.com/huyanhvn/threadcraft-backend/internal/orders"
	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
	pkgerrors "github.com/huyanhvn/threadcraft-backend/pkg/errors"
	"github.com/huyanhvn/threadcraft-backend/pkg/types"
)

type createOrderItemRequest struct {
	ProductID       *string `json:"product_id,omitempty" validate:"omitempty,uuid4"`
	Name            string  `json:"name" validate:"required,max=200"`
	Size            string  `json:"size" validate:"required,max=10"`
	Quantity        int     `json:"quantity" validate:"required,min=1,max=100"`
	UnitPrice       int64   `json:"unit_price" validate:"required,min=1"`
	CustomDesignURL *string `json:"custom_design_url,omitempty" validate:"omitempty,url"`
}

type shippingAddressRequest struct {
	FullName string `json:"full_name" validate:"required,max=120"`
	Phone    string `json:"phone" validate:"required,max=20"`
	Line1    string `json:"line1" validate:"required,max=200"`
	Ward     string `json:"ward,omitempty" validate:"max=120"`
	District string `json:"district,omitempty" validate:"max=120"`
	City     string `json:"city" validate:"required,max=120"`
}

type createOrderRequest struct {
	PaymentMethod   string                   `json:"payment_method" validate:"required,oneof=cod vnpay stripe"`
	ShippingAddress shippingAddressRequest   `json:"shipping_address" validate:"required"`
	Items           []createOrderItemRequest `json:"items" validate:"required,min=1,max=50,dive"`
	ShippingFee     int64                    `json:"shipping_fee" validate:"min=0"`
	TaxAmount       int64                    `json:"tax_amount" validate:"min=0"`
	DiscountAmount  int64                    `json:"discount_amount" validate:"min=0"`
}

func (req createOrderRequest) toInput(userID uuid.UUID, email string) (internalorders.CreateOrderInput, error) {
	method, err := enums.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return internalorders.CreateOrderInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
	}

	items := make([]internalorders.CreateOrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		line := internalorders.CreateOrderItemInput{
			Name:            item.Name,
			Size:            item.Size,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			CustomDesignURL: item.CustomDesignURL,
		}
		if item.ProductID != nil {
			parsed, err := uuid.Parse(*item.ProductID)
			if err != nil {
				return internalorders.CreateOrderInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
			}
			line.ProductID = &parsed
		}
		items = append(items, line)
	}

	return internalorders.CreateOrderInput{
		UserID:        userID,
		CustomerEmail: email,
		PaymentMethod: method,
		ShippingAddress: &types.ShippingAddress{
			FullName: req.ShippingAddress.FullName,
			Phone:    req.ShippingAddress.Phone,
			Line1:    req.ShippingAddress.Line1,
			Ward:     req.ShippingAddress.Ward,
			District: req.ShippingAddress.District,
			City:     req.ShippingAddress.City,
		},
		Items:          items,
		ShippingFee:    req.ShippingFee,
		TaxAmount:      req.TaxAmount,
		DiscountAmount: req.DiscountAmount,
	}, nil
}

type advanceOrderRequest struct {
	Target         string  `json:"target" validate:"required,oneof=confirmed processing shipped delivered"`
	TrackingNumber *string `json:"tracking_number,omitempty" validate:"omitempty,max=100"`
	Note           string  `json:"note,omitempty" validate:"max=500"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type attachDesignRequest struct {
	ItemID    string `json:"item_id" validate:"required,uuid4"`
	DesignURL string `json:"design_url" validate:"required,url,max=500"`
}
