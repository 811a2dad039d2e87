package reconcile

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/huyanhvn/threadcraft-backend/internal/gateways"
	"github.com/huyanhvn/threadcraft-backend/internal/inventory"
	"github.com/huyanhvn/threadcraft-backend/internal/notifications"
	"github.com/huyanhvn/threadcraft-backend/internal/orders"
	"github.com/huyanhvn/threadcraft-backend/pkg/db/models"
	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
	pkgerrors "github.com/huyanhvn/threadcraft-backend/pkg/errors"
	"github.com/huyanhvn/threadcraft-backend/pkg/logger"
	"github.com/huyanhvn/threadcraft-backend/pkg/metrics"
	"github.com/huyanhvn/threadcraft-backend/pkg/types"
)

// Result classifies what applying a gateway outcome did to the order.
// Controllers translate these into gateway-specific response vocabularies.
type Result string

const (
	// ResultApplied means the payment transition was persisted by this call.
	ResultApplied Result = "applied"
	// ResultDuplicate means the order was already reconciled; redeliveries
	// are acknowledged without touching the row.
	ResultDuplicate Result = "duplicate"
	// ResultFailedPayment means a failed outcome cancelled the order.
	ResultFailedPayment Result = "failed_payment"
	// ResultAmountMismatch means the gateway amount disagreed with the
	// order total; nothing was applied and the outcome needs manual review.
	ResultAmountMismatch Result = "amount_mismatch"
	// ResultOrderNotFound means the outcome referenced an unknown order.
	ResultOrderNotFound Result = "order_not_found"
	// ResultRejected means the order was in a state that does not accept
	// this outcome, e.g. already cancelled by the expiry sweep.
	ResultRejected Result = "rejected"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	NotifyAsync(ctx context.Context, msg notifications.Message)
}

// Service applies verified gateway outcomes to orders exactly once.
type Service struct {
	repo     orders.Repository
	tx       txRunner
	stock    inventory.Adjuster
	notifier notifier
	metrics  *metrics.ReconcileMetrics
	logg     *logger.Logger

	now func() time.Time
}

// ServiceParams configure the reconciliation service.
type ServiceParams struct {
	Repo     orders.Repository
	Tx       txRunner
	Stock    inventory.Adjuster
	Notifier notifier
	Metrics  *metrics.ReconcileMetrics
	Logger   *logger.Logger
}

// NewService builds a reconciliation service with the required dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Stock == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock adjuster required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	if params.Metrics == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "metrics required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		repo:     params.Repo,
		tx:       params.Tx,
		stock:    params.Stock,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

// Apply reconciles one verified gateway outcome. The returned Result is
// meaningful even when err is nil; err is reserved for infrastructure
// failures where the gateway should retry.
func (s *Service) Apply(ctx context.Context, outcome gateways.PaymentOutcome) (Result, error) {
	if !outcome.Verified {
		return ResultRejected, pkgerrors.New(pkgerrors.CodeVerificationFailed, "unverified outcome must not be reconciled")
	}
	if outcome.OrderNumber == "" {
		return ResultRejected, pkgerrors.New(pkgerrors.CodeValidation, "outcome missing order number")
	}

	ctx = s.logg.WithGateway(s.logg.WithOrderNumber(ctx, outcome.OrderNumber), string(outcome.Gateway))

	var result Result
	var paidOrder *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByOrderNumber(ctx, outcome.OrderNumber)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				result = ResultOrderNotFound
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		// Paid is terminal on the payment axis: redeliveries and late
		// failure messages are both acknowledged without effect.
		if order.PaymentStatus == enums.PaymentStatusPaid {
			result = ResultDuplicate
			return nil
		}

		switch outcome.Outcome {
		case gateways.OutcomePaid:
			return s.applyPaid(ctx, repo, order, outcome, &result, &paidOrder)
		case gateways.OutcomeFailed:
			return s.applyFailed(ctx, repo, order, outcome, &result)
		default:
			result = ResultRejected
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown outcome %q", outcome.Outcome))
		}
	})
	if err != nil {
		s.metrics.IncOutcome(string(outcome.Gateway), string(ResultRejected))
		return result, err
	}

	s.metrics.IncOutcome(string(outcome.Gateway), string(result))
	if result == ResultApplied && paidOrder != nil {
		s.runSideEffects(ctx, paidOrder, outcome)
	}
	return result, nil
}

func (s *Service) applyPaid(ctx context.Context, repo orders.Repository, order *models.Order, outcome gateways.PaymentOutcome, result *Result, paidOrder **models.Order) error {
	if outcome.Amount != order.TotalAmount {
		// Zero tolerance: park the outcome for a human instead of
		// guessing which side is right.
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"gateway_amount": outcome.Amount,
			"order_amount":   order.TotalAmount,
			"reference":      outcome.GatewayReference,
		})
		s.logg.Error(logCtx, "gateway amount disagrees with order total", nil)
		*result = ResultAmountMismatch
		return nil
	}

	now := s.now().UTC()
	paidAt := outcome.PaidAt
	if paidAt == nil {
		paidAt = &now
	}
	details, err := orders.DetailsValue(&types.PaymentDetails{
		Gateway:          outcome.Gateway,
		GatewayReference: outcome.GatewayReference,
		RawCode:          outcome.RawCode,
		PaidAt:           paidAt,
	})
	if err != nil {
		return err
	}
	history, err := orders.HistoryValue(append(order.StatusHistory, types.StatusChange{
		Status:    enums.OrderStatusConfirmed,
		Note:      fmt.Sprintf("payment confirmed via %s", outcome.Gateway),
		Actor:     "system",
		ChangedAt: now,
	}))
	if err != nil {
		return err
	}

	awaiting := enums.OrderStatusAwaitingPayment
	pending := enums.PaymentStatusPending
	applied, err := repo.UpdateGuarded(ctx, order.ID,
		orders.StatusGuard{OrderStatus: &awaiting, PaymentStatus: &pending},
		map[string]any{
			"order_status":    enums.OrderStatusConfirmed,
			"payment_status":  enums.PaymentStatusPaid,
			"payment_details": details,
			"status_history":  history,
		})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm paid order")
	}
	if !applied {
		// Lost the race: either a concurrent delivery already confirmed
		// the order, or the expiry sweep cancelled it first.
		fresh, err := repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload contested order")
		}
		if fresh.PaymentStatus == enums.PaymentStatusPaid {
			*result = ResultDuplicate
		} else {
			*result = ResultRejected
		}
		return nil
	}

	order.PaymentStatus = enums.PaymentStatusPaid
	order.OrderStatus = enums.OrderStatusConfirmed
	*result = ResultApplied
	*paidOrder = order
	return nil
}

func (s *Service) applyFailed(ctx context.Context, repo orders.Repository, order *models.Order, outcome gateways.PaymentOutcome, result *Result) error {
	now := s.now().UTC()
	details, err := orders.DetailsValue(&types.PaymentDetails{
		Gateway:          outcome.Gateway,
		GatewayReference: outcome.GatewayReference,
		RawCode:          outcome.RawCode,
		FailureReason:    outcome.RawCode,
	})
	if err != nil {
		return err
	}
	history, err := orders.HistoryValue(append(order.StatusHistory, types.StatusChange{
		Status:    enums.OrderStatusCancelled,
		Note:      fmt.Sprintf("payment failed via %s (code %s)", outcome.Gateway, outcome.RawCode),
		Actor:     "system",
		ChangedAt: now,
	}))
	if err != nil {
		return err
	}

	awaiting := enums.OrderStatusAwaitingPayment
	pending := enums.PaymentStatusPending
	applied, err := repo.UpdateGuarded(ctx, order.ID,
		orders.StatusGuard{OrderStatus: &awaiting, PaymentStatus: &pending},
		map[string]any{
			"order_status":    enums.OrderStatusCancelled,
			"payment_status":  enums.PaymentStatusFailed,
			"payment_details": details,
			"status_history":  history,
			"cancelled_at":    now,
		})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel failed order")
	}
	if !applied {
		*result = ResultRejected
		return nil
	}

	*result = ResultFailedPayment
	s.notifier.NotifyAsync(ctx, notifications.Message{
		Kind:        enums.NotificationKindOrderCancelled,
		Recipient:   order.CustomerEmail,
		OrderNumber: order.OrderNumber,
		Data:        map[string]string{"reason": "payment failed"},
	})
	return nil
}

// runSideEffects performs the post-commit work for a freshly paid order.
// Both effects are best effort: the payment transition is already durable
// and a failure here must never surface to the gateway.
func (s *Service) runSideEffects(ctx context.Context, order *models.Order, outcome gateways.PaymentOutcome) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.stock.DecrementForOrder(ctx, tx, order.Items)
	})
	if err != nil {
		s.metrics.IncSideEffectFailure("stock_decrement")
		s.logg.Error(ctx, "stock decrement after payment", err)
	}

	s.notifier.NotifyAsync(ctx, notifications.Message{
		Kind:        enums.NotificationKindPaymentSuccess,
		Recipient:   order.CustomerEmail,
		OrderNumber: order.OrderNumber,
		Data:        map[string]string{"gateway_reference": outcome.GatewayReference},
	})
}
