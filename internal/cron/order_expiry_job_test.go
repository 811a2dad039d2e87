package cron

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/huyanhvn/threadcraft-backend/internal/notifications"
	"github.com/huyanhvn/threadcraft-backend/internal/orders"
	"github.com/huyanhvn/threadcraft-backend/pkg/db/models"
	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
	"github.com/huyanhvn/threadcraft-backend/pkg/logger"
	"github.com/huyanhvn/threadcraft-backend/pkg/pagination"
	"github.com/huyanhvn/threadcraft-backend/pkg/types"
)

type stubOrdersRepo struct {
	orders []*models.Order
}

func (r *stubOrdersRepo) find(id uuid.UUID) *models.Order {
	for _, order := range r.orders {
		if order.ID == id {
			return order
		}
	}
	return nil
}

func (r *stubOrdersRepo) WithTx(tx *gorm.DB) orders.Repository { return r }

func (r *stubOrdersRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	r.orders = append(r.orders, order)
	return order, nil
}

func (r *stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if order := r.find(id); order != nil {
		return order, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubOrdersRepo) FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	for _, order := range r.orders {
		if order.OrderNumber == orderNumber {
			return order, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubOrdersRepo) List(ctx context.Context, params pagination.Params, filters orders.Filters) (*orders.OrderList, error) {
	return &orders.OrderList{}, nil
}

func (r *stubOrdersRepo) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params, filters orders.Filters) (*orders.OrderList, error) {
	return &orders.OrderList{}, nil
}

func (r *stubOrdersRepo) UpdateGuarded(ctx context.Context, orderID uuid.UUID, guard orders.StatusGuard, updates map[string]any) (bool, error) {
	order := r.find(orderID)
	if order == nil {
		return false, nil
	}
	if guard.OrderStatus != nil && order.OrderStatus != *guard.OrderStatus {
		return false, nil
	}
	if guard.PaymentStatus != nil && order.PaymentStatus != *guard.PaymentStatus {
		return false, nil
	}
	for key, value := range updates {
		switch key {
		case "order_status":
			order.OrderStatus = value.(enums.OrderStatus)
		case "payment_status":
			order.PaymentStatus = value.(enums.PaymentStatus)
		case "status_history":
			var history types.StatusHistory
			if err := json.Unmarshal([]byte(value.(string)), &history); err != nil {
				return false, err
			}
			order.StatusHistory = history
		case "payment_details":
			var details types.PaymentDetails
			if err := json.Unmarshal([]byte(value.(string)), &details); err != nil {
				return false, err
			}
			order.PaymentDetails = &details
		case "cancelled_at":
			at := value.(time.Time)
			order.CancelledAt = &at
		case "delivered_at":
			at := value.(time.Time)
			order.DeliveredAt = &at
		}
	}
	return true, nil
}

func (r *stubOrdersRepo) UpdateItemDesignURL(ctx context.Context, itemID uuid.UUID, designURL string) error {
	return nil
}

func (r *stubOrdersRepo) FindAwaitingPaymentBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var out []models.Order
	for _, order := range r.orders {
		if order.OrderStatus == enums.OrderStatusAwaitingPayment &&
			order.PaymentStatus == enums.PaymentStatusPending &&
			order.CreatedAt.Before(cutoff) {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (r *stubOrdersRepo) FindShippedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var out []models.Order
	for _, order := range r.orders {
		if order.OrderStatus == enums.OrderStatusShipped && order.UpdatedAt.Before(cutoff) {
			out = append(out, *order)
		}
	}
	return out, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubNotifier struct {
	messages []notifications.Message
}

func (n *stubNotifier) NotifyAsync(ctx context.Context, msg notifications.Message) {
	n.messages = append(n.messages, msg)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Level: zerolog.ErrorLevel})
}

func cronOrder(number string, status enums.OrderStatus, payment enums.PaymentStatus, created time.Time) *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		OrderNumber:   number,
		UserID:        uuid.New(),
		CustomerEmail: "customer@example.com",
		TotalAmount:   400000,
		PaymentMethod: enums.PaymentMethodVNPay,
		PaymentStatus: payment,
		OrderStatus:   status,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestOrderExpiryJobCancelsStaleOrders(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubOrdersRepo{}
	stale := cronOrder("TC-20250901-0001", enums.OrderStatusAwaitingPayment, enums.PaymentStatusPending, now.Add(-2*time.Hour))
	fresh := cronOrder("TC-20250901-0002", enums.OrderStatusAwaitingPayment, enums.PaymentStatusPending, now.Add(-10*time.Minute))
	paid := cronOrder("TC-20250901-0003", enums.OrderStatusConfirmed, enums.PaymentStatusPaid, now.Add(-3*time.Hour))
	repo.orders = []*models.Order{stale, fresh, paid}

	notif := &stubNotifier{}
	job, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:   testLogger(),
		DB:       stubTxRunner{},
		Repo:     repo,
		Notifier: notif,
		Timeout:  time.Hour,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	job.(*orderExpiryJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if stale.OrderStatus != enums.OrderStatusCancelled || stale.CancelledAt == nil {
		t.Fatalf("stale order not cancelled: %+v", stale)
	}
	if stale.StatusHistory.Last().Note != "payment window expired" {
		t.Fatalf("missing automatic history note")
	}
	if fresh.OrderStatus != enums.OrderStatusAwaitingPayment {
		t.Fatalf("fresh order must be untouched")
	}
	if paid.OrderStatus != enums.OrderStatusConfirmed {
		t.Fatalf("paid order must be untouched")
	}
	if len(notif.messages) != 1 || notif.messages[0].Kind != enums.NotificationKindOrderCancelled {
		t.Fatalf("expected one cancellation email, got %+v", notif.messages)
	}
}

func TestOrderExpiryJobGuardLoss(t *testing.T) {
	// The read sees the order as stale but a payment lands before the
	// guarded update runs.
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubOrdersRepo{}
	contested := cronOrder("TC-20250901-0001", enums.OrderStatusAwaitingPayment, enums.PaymentStatusPending, now.Add(-2*time.Hour))
	repo.orders = []*models.Order{contested}

	notif := &stubNotifier{}
	job, _ := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:   testLogger(),
		DB:       racingTxRunner{order: contested},
		Repo:     repo,
		Notifier: notif,
		Timeout:  time.Hour,
	})
	job.(*orderExpiryJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if contested.OrderStatus != enums.OrderStatusConfirmed {
		t.Fatalf("confirmed order clobbered by sweeper: %s", contested.OrderStatus)
	}
	if len(notif.messages) != 0 {
		t.Fatalf("no email when the guard loses")
	}
}

// racingTxRunner confirms the order right before the sweep's transaction,
// simulating a reconciliation that wins the race.
type racingTxRunner struct {
	order *models.Order
}

func (r racingTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	r.order.OrderStatus = enums.OrderStatusConfirmed
	r.order.PaymentStatus = enums.PaymentStatusPaid
	return fn(nil)
}
