package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/huyanhvn/threadcraft-backend/internal/notifications"
	"github.com/huyanhvn/threadcraft-backend/internal/orders"
	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
	"github.com/huyanhvn/threadcraft-backend/pkg/logger"
	"github.com/huyanhvn/threadcraft-backend/pkg/types"
)

const expiryBatchSize = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	NotifyAsync(ctx context.Context, msg notifications.Message)
}

// OrderExpiryJobParams configure the unpaid order sweeper.
type OrderExpiryJobParams struct {
	Logger   *logger.Logger
	DB       txRunner
	Repo     orders.Repository
	Notifier notifier
	Timeout  time.Duration
}

// NewOrderExpiryJob builds the job that cancels orders whose payment window
// has lapsed. The per-row status guard is the race barrier against a
// payment confirmation arriving mid-sweep.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
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
	if params.Timeout <= 0 {
		return nil, fmt.Errorf("payment timeout must be positive")
	}
	return &orderExpiryJob{
		logg:     params.Logger,
		db:       params.DB,
		repo:     params.Repo,
		notifier: params.Notifier,
		timeout:  params.Timeout,
		now:      time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg     *logger.Logger
	db       txRunner
	repo     orders.Repository
	notifier notifier
	timeout  time.Duration
	now      func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.timeout)

	stale, err := j.repo.FindAwaitingPaymentBefore(ctx, cutoff, expiryBatchSize)
	if err != nil {
		return fmt.Errorf("query expired orders: %w", err)
	}

	var errs []error
	expired := 0
	for _, order := range stale {
		cancelled, err := j.expireOrder(ctx, order.ID, order.OrderNumber, order.StatusHistory, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if cancelled {
			expired++
			j.notifier.NotifyAsync(ctx, notifications.Message{
				Kind:        enums.NotificationKindOrderCancelled,
				Recipient:   order.CustomerEmail,
				OrderNumber: order.OrderNumber,
				Data:        map[string]string{"reason": "payment window expired"},
			})
		}
	}

	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "expired", expired), "cancelled unpaid orders past the payment window")
	}
	return multierr.Combine(errs...)
}

func (j *orderExpiryJob) expireOrder(ctx context.Context, orderID uuid.UUID, orderNumber string, previous types.StatusHistory, now time.Time) (bool, error) {
	history, err := orders.HistoryValue(append(previous, types.StatusChange{
		Status:    enums.OrderStatusCancelled,
		Note:      "payment window expired",
		Actor:     "system",
		ChangedAt: now,
	}))
	if err != nil {
		return false, err
	}

	cancelled := false
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		awaiting := enums.OrderStatusAwaitingPayment
		pending := enums.PaymentStatusPending
		applied, err := j.repo.WithTx(tx).UpdateGuarded(ctx, orderID,
			orders.StatusGuard{OrderStatus: &awaiting, PaymentStatus: &pending},
			map[string]any{
				"order_status":   enums.OrderStatusCancelled,
				"cancelled_at":   now,
				"status_history": history,
			})
		if err != nil {
			return fmt.Errorf("expire order %s: %w", orderNumber, err)
		}
		cancelled = applied
		return nil
	})
	return cancelled, err
}
