package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/huyanhvn/threadcraft-backend/internal/notifications"
	"github.com/huyanhvn/threadcraft-backend/internal/orders"
	"github.com/huyanhvn/threadcraft-backend/pkg/db/models"
	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
	"github.com/huyanhvn/threadcraft-backend/pkg/logger"
	"github.com/huyanhvn/threadcraft-backend/pkg/types"
)

const autoDeliverBatchSize = 100

// AutoDeliverJobParams configure the shipped-order dwell job.
type AutoDeliverJobParams struct {
	Logger   *logger.Logger
	DB       txRunner
	Repo     orders.Repository
	Notifier notifier
	Dwell    time.Duration
}

// NewAutoDeliverJob builds the job that marks shipped orders delivered once
// the dwell window passes without the customer confirming receipt.
func NewAutoDeliverJob(params AutoDeliverJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Dwell <= 0 {
		return nil, fmt.Errorf("dwell duration must be positive")
	}
	return &autoDeliverJob{
		logg:     params.Logger,
		db:       params.DB,
		repo:     params.Repo,
		notifier: params.Notifier,
		dwell:    params.Dwell,
		now:      time.Now,
	}, nil
}

type autoDeliverJob struct {
	logg     *logger.Logger
	db       txRunner
	repo     orders.Repository
	notifier notifier
	dwell    time.Duration
	now      func() time.Time
}

func (j *autoDeliverJob) Name() string { return "auto-deliver" }

func (j *autoDeliverJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.dwell)

	shipped, err := j.repo.FindShippedBefore(ctx, cutoff, autoDeliverBatchSize)
	if err != nil {
		return fmt.Errorf("query dwelling shipped orders: %w", err)
	}

	var errs []error
	delivered := 0
	for _, order := range shipped {
		applied, err := j.deliverOrder(ctx, &order, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if applied {
			delivered++
			j.notifier.NotifyAsync(ctx, notifications.Message{
				Kind:        enums.NotificationKindStatusChange,
				Recipient:   order.CustomerEmail,
				OrderNumber: order.OrderNumber,
				Data:        map[string]string{"status": string(enums.OrderStatusDelivered)},
			})
		}
	}

	if delivered > 0 {
		j.logg.Info(j.logg.WithField(ctx, "delivered", delivered), "auto-delivered shipped orders past the dwell window")
	}
	return multierr.Combine(errs...)
}

func (j *autoDeliverJob) deliverOrder(ctx context.Context, order *models.Order, now time.Time) (bool, error) {
	history, err := orders.HistoryValue(append(order.StatusHistory, types.StatusChange{
		Status:    enums.OrderStatusDelivered,
		Note:      "auto-confirmed after delivery window",
		Actor:     "system",
		ChangedAt: now,
	}))
	if err != nil {
		return false, err
	}

	updates := map[string]any{
		"order_status":   enums.OrderStatusDelivered,
		"delivered_at":   now,
		"status_history": history,
	}
	if order.PaymentMethod == enums.PaymentMethodCOD && order.PaymentStatus == enums.PaymentStatusPending {
		updates["payment_status"] = enums.PaymentStatusPaid
		if order.PaymentDetails == nil {
			details, err := orders.DetailsValue(&types.PaymentDetails{
				Gateway: enums.PaymentMethodCOD,
				PaidAt:  &now,
			})
			if err != nil {
				return false, err
			}
			updates["payment_details"] = details
		}
	}

	applied := false
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		shipped := enums.OrderStatusShipped
		ok, err := j.repo.WithTx(tx).UpdateGuarded(ctx, order.ID,
			orders.StatusGuard{OrderStatus: &shipped}, updates)
		if err != nil {
			return fmt.Errorf("auto-deliver order %s: %w", order.OrderNumber, err)
		}
		applied = ok
		return nil
	})
	return applied, err
}
