package cron

import (
	"context"
	"testing"
	"time"

	"github.com/huyanhvn/threadcraft-backend/pkg/db/models"
	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
)

func TestAutoDeliverJobMarksDwellingOrders(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubOrdersRepo{}
	dwelling := cronOrder("TC-20250820-0001", enums.OrderStatusShipped, enums.PaymentStatusPaid, now.Add(-10*24*time.Hour))
	recent := cronOrder("TC-20250830-0002", enums.OrderStatusShipped, enums.PaymentStatusPaid, now.Add(-2*24*time.Hour))
	repo.orders = []*models.Order{dwelling, recent}

	notif := &stubNotifier{}
	job, err := NewAutoDeliverJob(AutoDeliverJobParams{
		Logger:   testLogger(),
		DB:       stubTxRunner{},
		Repo:     repo,
		Notifier: notif,
		Dwell:    7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	job.(*autoDeliverJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if dwelling.OrderStatus != enums.OrderStatusDelivered || dwelling.DeliveredAt == nil {
		t.Fatalf("dwelling order not delivered: %+v", dwelling)
	}
	if dwelling.StatusHistory.Last().Note != "auto-confirmed after delivery window" {
		t.Fatalf("missing automatic history note")
	}
	if recent.OrderStatus != enums.OrderStatusShipped {
		t.Fatalf("recently shipped order must be untouched")
	}
	if len(notif.messages) != 1 || notif.messages[0].Kind != enums.NotificationKindStatusChange {
		t.Fatalf("expected one status email, got %+v", notif.messages)
	}
	if notif.messages[0].Data["status"] != "delivered" {
		t.Fatalf("email must carry the new status")
	}
}

func TestAutoDeliverJobSettlesCOD(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubOrdersRepo{}
	cod := cronOrder("TC-20250820-0001", enums.OrderStatusShipped, enums.PaymentStatusPending, now.Add(-10*24*time.Hour))
	cod.PaymentMethod = enums.PaymentMethodCOD
	repo.orders = []*models.Order{cod}

	notif := &stubNotifier{}
	job, _ := NewAutoDeliverJob(AutoDeliverJobParams{
		Logger:   testLogger(),
		DB:       stubTxRunner{},
		Repo:     repo,
		Notifier: notif,
		Dwell:    7 * 24 * time.Hour,
	})
	job.(*autoDeliverJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if cod.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("COD balance must settle on delivery, got %s", cod.PaymentStatus)
	}
	if cod.PaymentDetails == nil || cod.PaymentDetails.Gateway != enums.PaymentMethodCOD {
		t.Fatalf("missing cash settlement details: %+v", cod.PaymentDetails)
	}
	if cod.PaymentDetails.PaidAt == nil || !cod.PaymentDetails.PaidAt.Equal(now) {
		t.Fatalf("settlement timestamp must match delivery time")
	}
}
