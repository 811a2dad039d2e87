package payments

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/huyanhvn/threadcraft-backend/api/middleware"
	"github.com/huyanhvn/threadcraft-backend/api/responses"
	"github.com/huyanhvn/threadcraft-backend/api/validators"
	"github.com/huyanhvn/threadcraft-backend/internal/gateways/stripecheckout"
	"github.com/huyanhvn/threadcraft-backend/internal/gateways/vnpay"
	internalorders "github.com/huyanhvn/threadcraft-backend/internal/orders"
	"github.com/huyanhvn/threadcraft-backend/pkg/db/models"
	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
	pkgerrors "github.com/huyanhvn/threadcraft-backend/pkg/errors"
	"github.com/huyanhvn/threadcraft-backend/pkg/logger"
)

// VNPayRedirector builds signed redirect URLs for the hosted VNPAY page.
type VNPayRedirector interface {
	BuildPayURL(input vnpay.PayURLInput) (string, error)
}

// StripeSessionCreator opens hosted checkout sessions.
type StripeSessionCreator interface {
	CreateCheckoutSession(ctx context.Context, input stripecheckout.SessionInput) (string, string, error)
}

type initiateRequest struct {
	OrderNumber string `json:"order_number" validate:"required,max=40"`
}

type initiateResponse struct {
	OrderNumber string              `json:"order_number"`
	Gateway     enums.PaymentMethod `json:"gateway"`
	PaymentURL  string              `json:"payment_url"`
	SessionID   string              `json:"session_id,omitempty"`
}

// Initiate opens a gateway payment flow for an order awaiting payment. The
// charge amount always comes from the stored order, never the request.
func Initiate(repo internalorders.Repository, vnp VNPayRedirector, str StripeSessionCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders repository unavailable"))
			return
		}

		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var req initiateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := loadOwnedOrder(r, repo, req.OrderNumber)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if order.UserID != userID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}

		if order.OrderStatus != enums.OrderStatusAwaitingPayment || order.PaymentStatus != enums.PaymentStatusPending {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderNumber(ctx, order.OrderNumber)
		}
		switch order.PaymentMethod {
		case enums.PaymentMethodVNPay:
			if vnp == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "vnpay gateway not configured"))
				return
			}
			payURL, err := vnp.BuildPayURL(vnpay.PayURLInput{
				OrderNumber: order.OrderNumber,
				Amount:      order.TotalAmount,
				OrderInfo:   "ThreadCraft order " + order.OrderNumber,
				ClientIP:    clientIP(r),
			})
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, initiateResponse{
				OrderNumber: order.OrderNumber,
				Gateway:     enums.PaymentMethodVNPay,
				PaymentURL:  payURL,
			})
		case enums.PaymentMethodStripe:
			if str == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "stripe gateway not configured"))
				return
			}
			sessionID, sessionURL, err := str.CreateCheckoutSession(ctx, stripecheckout.SessionInput{
				OrderNumber:   order.OrderNumber,
				Amount:        order.TotalAmount,
				Description:   "ThreadCraft order " + order.OrderNumber,
				CustomerEmail: order.CustomerEmail,
			})
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, initiateResponse{
				OrderNumber: order.OrderNumber,
				Gateway:     enums.PaymentMethodStripe,
				PaymentURL:  sessionURL,
				SessionID:   sessionID,
			})
		default:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "cash on delivery orders have no payment flow"))
		}
	}
}

type statusResponse struct {
	OrderNumber    string              `json:"order_number"`
	PaymentMethod  enums.PaymentMethod `json:"payment_method"`
	PaymentStatus  enums.PaymentStatus `json:"payment_status"`
	OrderStatus    enums.OrderStatus   `json:"order_status"`
	PaymentDetails *paymentDetailsView `json:"payment_details,omitempty"`
}

type paymentDetailsView struct {
	Gateway          enums.PaymentMethod `json:"gateway"`
	GatewayReference string              `json:"gateway_reference,omitempty"`
	PaidAt           *string             `json:"paid_at,omitempty"`
	FailureReason    string              `json:"failure_reason,omitempty"`
}

// Status reports where an order's payment stands. Customers poll this after
// returning from a hosted gateway page.
func Status(repo internalorders.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders repository unavailable"))
			return
		}

		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		order, err := loadOwnedOrder(r, repo, chi.URLParam(r, "orderNumber"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if order.UserID != userID && !middleware.RoleFromContext(r.Context()).IsStaff() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}

		resp := statusResponse{
			OrderNumber:   order.OrderNumber,
			PaymentMethod: order.PaymentMethod,
			PaymentStatus: order.PaymentStatus,
			OrderStatus:   order.OrderStatus,
		}
		if details := order.PaymentDetails; details != nil {
			view := &paymentDetailsView{
				Gateway:          details.Gateway,
				GatewayReference: details.GatewayReference,
				FailureReason:    details.FailureReason,
			}
			if details.PaidAt != nil {
				formatted := details.PaidAt.UTC().Format(time.RFC3339)
				view.PaidAt = &formatted
			}
			resp.PaymentDetails = view
		}
		responses.WriteSuccess(w, resp)
	}
}

func loadOwnedOrder(r *http.Request, repo internalorders.Repository, orderNumber string) (*models.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	order, err := repo.FindByOrderNumber(r.Context(), orderNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
