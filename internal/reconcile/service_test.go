package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/huyanhvn/threadcraft-backend/internal/gateways"
	"github.com/huyanhvn/threadcraft-backend/internal/notifications"
	"github.com/huyanhvn/threadcraft-backend/internal/orders"
	"github.com/huyanhvn/threadcraft-backend/pkg/db/models"
	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
	"github.com/huyanhvn/threadcraft-backend/pkg/logger"
	"github.com/huyanhvn/threadcraft-backend/pkg/metrics"
	"github.com/huyanhvn/threadcraft-backend/pkg/pagination"
	"github.com/huyanhvn/threadcraft-backend/pkg/types"
)

type stubRepo struct {
	orders map[string]*models.Order
	// raced, when set, flips the order to this payment status right before
	// the guarded update runs, simulating a concurrent writer.
	raced *enums.PaymentStatus
}

func newStubRepo() *stubRepo {
	return &stubRepo{orders: map[string]*models.Order{}}
}

func (r *stubRepo) put(order *models.Order) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	r.orders[order.OrderNumber] = order
}

func (r *stubRepo) WithTx(tx *gorm.DB) orders.Repository { return r }

func (r *stubRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	r.put(order)
	return order, nil
}

func (r *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	for _, order := range r.orders {
		if order.ID == id {
			return order, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubRepo) FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	order, ok := r.orders[orderNumber]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return order, nil
}

func (r *stubRepo) List(ctx context.Context, params pagination.Params, filters orders.Filters) (*orders.OrderList, error) {
	return &orders.OrderList{}, nil
}

func (r *stubRepo) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params, filters orders.Filters) (*orders.OrderList, error) {
	return &orders.OrderList{}, nil
}

func (r *stubRepo) UpdateGuarded(ctx context.Context, orderID uuid.UUID, guard orders.StatusGuard, updates map[string]any) (bool, error) {
	order, err := r.FindByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if r.raced != nil {
		order.PaymentStatus = *r.raced
		if *r.raced == enums.PaymentStatusPaid {
			order.OrderStatus = enums.OrderStatusConfirmed
		} else {
			order.OrderStatus = enums.OrderStatusCancelled
		}
		r.raced = nil
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
		case "payment_details":
			var details types.PaymentDetails
			if err := json.Unmarshal([]byte(value.(string)), &details); err != nil {
				return false, err
			}
			order.PaymentDetails = &details
		case "status_history":
			var history types.StatusHistory
			if err := json.Unmarshal([]byte(value.(string)), &history); err != nil {
				return false, err
			}
			order.StatusHistory = history
		case "cancelled_at":
			at := value.(time.Time)
			order.CancelledAt = &at
		}
	}
	return true, nil
}

func (r *stubRepo) UpdateItemDesignURL(ctx context.Context, itemID uuid.UUID, designURL string) error {
	return nil
}

func (r *stubRepo) FindAwaitingPaymentBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (r *stubRepo) FindShippedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubAdjuster struct {
	calls [][]models.OrderItem
	err   error
}

func (a *stubAdjuster) DecrementForOrder(ctx context.Context, tx *gorm.DB, items []models.OrderItem) error {
	a.calls = append(a.calls, items)
	return a.err
}

type stubNotifier struct {
	messages []notifications.Message
}

func (n *stubNotifier) NotifyAsync(ctx context.Context, msg notifications.Message) {
	n.messages = append(n.messages, msg)
}

type fixture struct {
	svc      *Service
	repo     *stubRepo
	stock    *stubAdjuster
	notifier *stubNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newStubRepo()
	stock := &stubAdjuster{}
	notif := &stubNotifier{}
	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Tx:       stubTxRunner{},
		Stock:    stock,
		Notifier: notif,
		Metrics:  metrics.NewReconcileMetrics(prometheus.NewRegistry()),
		Logger:   logger.New(logger.Options{Level: zerolog.ErrorLevel}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.now = func() time.Time { return time.Date(2025, 9, 1, 10, 30, 0, 0, time.UTC) }
	return &fixture{svc: svc, repo: repo, stock: stock, notifier: notif}
}

func awaitingOrder() *models.Order {
	productID := uuid.New()
	return &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "TC-20250901-4821",
		UserID:        uuid.New(),
		CustomerEmail: "linh@example.com",
		TotalAmount:   500000,
		PaymentMethod: enums.PaymentMethodVNPay,
		PaymentStatus: enums.PaymentStatusPending,
		OrderStatus:   enums.OrderStatusAwaitingPayment,
		Items: []models.OrderItem{{
			ID: uuid.New(), ProductID: &productID, Name: "Classic Tee", Size: "M",
			Quantity: 2, UnitPrice: 250000, Subtotal: 500000,
		}},
	}
}

func paidOutcome() gateways.PaymentOutcome {
	paidAt := time.Date(2025, 9, 1, 10, 29, 45, 0, time.UTC)
	return gateways.PaymentOutcome{
		Gateway:          enums.PaymentMethodVNPay,
		OrderNumber:      "TC-20250901-4821",
		Verified:         true,
		Outcome:          gateways.OutcomePaid,
		Amount:           500000,
		GatewayReference: "14226112",
		RawCode:          "00",
		PaidAt:           &paidAt,
	}
}

func TestApplyPaidConfirmsOrder(t *testing.T) {
	f := newFixture(t)
	order := awaitingOrder()
	f.repo.put(order)

	result, err := f.svc.Apply(context.Background(), paidOutcome())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result != ResultApplied {
		t.Fatalf("expected applied, got %s", result)
	}

	if order.PaymentStatus != enums.PaymentStatusPaid || order.OrderStatus != enums.OrderStatusConfirmed {
		t.Fatalf("order not confirmed: %s/%s", order.OrderStatus, order.PaymentStatus)
	}
	if order.PaymentDetails == nil || order.PaymentDetails.GatewayReference != "14226112" {
		t.Fatalf("payment details not written: %+v", order.PaymentDetails)
	}
	if order.PaymentDetails.PaidAt == nil || !order.PaymentDetails.PaidAt.Equal(time.Date(2025, 9, 1, 10, 29, 45, 0, time.UTC)) {
		t.Fatalf("gateway paid-at not preserved")
	}
	if order.StatusHistory.Last().Status != enums.OrderStatusConfirmed {
		t.Fatalf("history not appended")
	}

	if len(f.stock.calls) != 1 || len(f.stock.calls[0]) != 1 {
		t.Fatalf("stock decrement not invoked once: %d", len(f.stock.calls))
	}
	if len(f.notifier.messages) != 1 || f.notifier.messages[0].Kind != enums.NotificationKindPaymentSuccess {
		t.Fatalf("expected payment success email, got %+v", f.notifier.messages)
	}
}

func TestApplyPaidRedeliveryIsNoOp(t *testing.T) {
	f := newFixture(t)
	order := awaitingOrder()
	f.repo.put(order)

	if _, err := f.svc.Apply(context.Background(), paidOutcome()); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	result, err := f.svc.Apply(context.Background(), paidOutcome())
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if result != ResultDuplicate {
		t.Fatalf("expected duplicate, got %s", result)
	}
	if len(f.stock.calls) != 1 {
		t.Fatalf("stock must decrement exactly once, got %d", len(f.stock.calls))
	}
	if len(f.notifier.messages) != 1 {
		t.Fatalf("duplicate must not re-send email")
	}
}

func TestApplyAmountMismatchNotApplied(t *testing.T) {
	f := newFixture(t)
	order := awaitingOrder()
	f.repo.put(order)

	outcome := paidOutcome()
	outcome.Amount = 499999

	result, err := f.svc.Apply(context.Background(), outcome)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result != ResultAmountMismatch {
		t.Fatalf("expected amount mismatch, got %s", result)
	}
	if order.PaymentStatus != enums.PaymentStatusPending || order.OrderStatus != enums.OrderStatusAwaitingPayment {
		t.Fatalf("mismatched outcome must not touch the order")
	}
	if len(f.stock.calls) != 0 || len(f.notifier.messages) != 0 {
		t.Fatalf("mismatched outcome must have no side effects")
	}
}

func TestApplyOrderNotFound(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Apply(context.Background(), paidOutcome())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result != ResultOrderNotFound {
		t.Fatalf("expected order not found, got %s", result)
	}
}

func TestApplyFailedCancelsOrder(t *testing.T) {
	f := newFixture(t)
	order := awaitingOrder()
	f.repo.put(order)

	outcome := paidOutcome()
	outcome.Outcome = gateways.OutcomeFailed
	outcome.RawCode = "24"
	outcome.PaidAt = nil

	result, err := f.svc.Apply(context.Background(), outcome)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result != ResultFailedPayment {
		t.Fatalf("expected failed payment, got %s", result)
	}
	if order.PaymentStatus != enums.PaymentStatusFailed || order.OrderStatus != enums.OrderStatusCancelled {
		t.Fatalf("failed outcome must cancel: %s/%s", order.OrderStatus, order.PaymentStatus)
	}
	if order.CancelledAt == nil {
		t.Fatalf("cancelled_at not set")
	}
	if len(f.stock.calls) != 0 {
		t.Fatalf("failed payment must not touch stock")
	}
	if len(f.notifier.messages) != 1 || f.notifier.messages[0].Kind != enums.NotificationKindOrderCancelled {
		t.Fatalf("expected cancellation email, got %+v", f.notifier.messages)
	}
}

func TestApplyFailedAfterPaidIsIgnored(t *testing.T) {
	f := newFixture(t)
	order := awaitingOrder()
	order.PaymentStatus = enums.PaymentStatusPaid
	order.OrderStatus = enums.OrderStatusConfirmed
	f.repo.put(order)

	outcome := paidOutcome()
	outcome.Outcome = gateways.OutcomeFailed

	result, err := f.svc.Apply(context.Background(), outcome)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result != ResultDuplicate {
		t.Fatalf("late failure must not override paid, got %s", result)
	}
	if order.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("paid status clobbered")
	}
}

func TestApplyRejectsUnverifiedOutcome(t *testing.T) {
	f := newFixture(t)
	outcome := paidOutcome()
	outcome.Verified = false

	result, err := f.svc.Apply(context.Background(), outcome)
	if err == nil {
		t.Fatalf("unverified outcome must error")
	}
	if result != ResultRejected {
		t.Fatalf("expected rejected, got %s", result)
	}
}

func TestApplyPaidLosesRaceToSweeper(t *testing.T) {
	f := newFixture(t)
	order := awaitingOrder()
	f.repo.put(order)
	cancelled := enums.PaymentStatusFailed
	f.repo.raced = &cancelled

	result, err := f.svc.Apply(context.Background(), paidOutcome())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result != ResultRejected {
		t.Fatalf("expected rejected after losing race, got %s", result)
	}
	if len(f.stock.calls) != 0 {
		t.Fatalf("no side effects after losing the race")
	}
}

func TestApplyPaidLosesRaceToOtherDelivery(t *testing.T) {
	f := newFixture(t)
	order := awaitingOrder()
	f.repo.put(order)
	paid := enums.PaymentStatusPaid
	f.repo.raced = &paid

	result, err := f.svc.Apply(context.Background(), paidOutcome())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result != ResultDuplicate {
		t.Fatalf("guard loss to a paid row is a duplicate, got %s", result)
	}
}

func TestApplyStockFailureDoesNotFailReconcile(t *testing.T) {
	f := newFixture(t)
	order := awaitingOrder()
	f.repo.put(order)
	f.stock.err = errors.New("deadlock")

	result, err := f.svc.Apply(context.Background(), paidOutcome())
	if err != nil {
		t.Fatalf("side effect failure must not surface: %v", err)
	}
	if result != ResultApplied {
		t.Fatalf("expected applied, got %s", result)
	}
	if order.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("payment transition must stay durable")
	}
	if len(f.notifier.messages) != 1 {
		t.Fatalf("email still dispatched after stock failure")
	}
}
