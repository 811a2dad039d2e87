package orders

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"gorm.io/gorm"

	"github.com/huyanhvn/threadcraft-backend/internal/notifications"
	"github.com/huyanhvn/threadcraft-backend/pkg/db"
	"github.com/huyanhvn/threadcraft-backend/pkg/db/models"
	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
	pkgerrors "github.com/huyanhvn/threadcraft-backend/pkg/errors"
	"github.com/huyanhvn/threadcraft-backend/pkg/logger"
	"github.com/huyanhvn/threadcraft-backend/pkg/types"
)

const orderNumberConstraint = "orders_order_number_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	NotifyAsync(ctx context.Context, msg notifications.Message)
}

// Service defines order lifecycle operations beyond repository reads.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Advance(ctx context.Context, input AdvanceInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	ConfirmReceipt(ctx context.Context, input ConfirmReceiptInput) (*models.Order, error)
	AttachDesign(ctx context.Context, input AttachDesignInput) error
}

type service struct {
	repo     Repository
	tx       txRunner
	notifier notifier
	logg     *logger.Logger

	now            func() time.Time
	newOrderNumber func(now time.Time) (string, error)
}

// ServiceParams configure the orders service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Notifier notifier
	Logger   *logger.Logger
}

// NewService builds an orders service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &service{
		repo:           params.Repo,
		tx:             params.Tx,
		notifier:       params.Notifier,
		logg:           params.Logger,
		now:            time.Now,
		newOrderNumber: generateOrderNumber,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	items := make([]models.OrderItem, 0, len(input.Items))
	var subtotal int64
	hasCustom := false
	for _, line := range input.Items {
		lineTotal := int64(line.Quantity) * line.UnitPrice
		subtotal += lineTotal
		item := models.OrderItem{
			ProductID:       line.ProductID,
			Name:            line.Name,
			Size:            line.Size,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			Subtotal:        lineTotal,
			CustomDesignURL: line.CustomDesignURL,
		}
		if item.IsCustom() {
			hasCustom = true
		}
		items = append(items, item)
	}

	total := subtotal + input.ShippingFee + input.TaxAmount - input.DiscountAmount
	if total < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds order total")
	}

	initialStatus := enums.OrderStatusAwaitingPayment
	if input.PaymentMethod == enums.PaymentMethodCOD {
		initialStatus = enums.OrderStatusPending
	}

	number, err := s.newOrderNumber(now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
	}

	order := &models.Order{
		OrderNumber:     number,
		UserID:          input.UserID,
		CustomerEmail:   input.CustomerEmail,
		ShippingAddress: input.ShippingAddress,
		SubtotalAmount:  subtotal,
		ShippingFee:     input.ShippingFee,
		TaxAmount:       input.TaxAmount,
		DiscountAmount:  input.DiscountAmount,
		TotalAmount:     total,
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   enums.PaymentStatusPending,
		OrderStatus:     initialStatus,
		HasCustomItems:  hasCustom,
		Items:           items,
		StatusHistory: types.StatusHistory{{
			Status:    initialStatus,
			Note:      "order created",
			Actor:     input.CustomerEmail,
			ChangedAt: now,
		}},
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		_, createErr := repo.Create(ctx, order)
		if createErr == nil {
			return nil
		}
		if !db.IsUniqueViolation(createErr, orderNumberConstraint) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, createErr, "create order")
		}

		// Random collision on the order number. One retry, then give up.
		s.logg.Warn(s.logg.WithOrderNumber(ctx, order.OrderNumber), "order number collision, retrying once")
		retry, genErr := s.newOrderNumber(now)
		if genErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, genErr, "regenerate order number")
		}
		order.OrderNumber = retry
		if _, createErr = repo.Create(ctx, order); createErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, createErr, "create order after retry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyAsync(ctx, notifications.Message{
		Kind:        enums.NotificationKindOrderConfirmation,
		Recipient:   order.CustomerEmail,
		OrderNumber: order.OrderNumber,
	})
	return order, nil
}

func (s *service) Advance(ctx context.Context, input AdvanceInput) (*models.Order, error) {
	if input.OrderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, repo, input.OrderNumber)
		if err != nil {
			return err
		}
		if !advanceAllowed(order, input.Target) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot advance %s order to %s", order.OrderStatus, input.Target))
		}
		if input.Target == enums.OrderStatusShipped &&
			(input.TrackingNumber == nil || *input.TrackingNumber == "") {
			return pkgerrors.New(pkgerrors.CodeValidation, "tracking number required to ship")
		}

		now := s.now().UTC()
		note := input.Note
		if note == "" {
			note = "status updated by staff"
		}
		updates, err := s.transitionUpdates(order, input.Target, note, input.ActorEmail, now)
		if err != nil {
			return err
		}
		if input.TrackingNumber != nil {
			updates["tracking_number"] = *input.TrackingNumber
		}

		current := order.OrderStatus
		applied, err := repo.UpdateGuarded(ctx, order.ID, StatusGuard{OrderStatus: &current}, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance order")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}

		updated, err = repo.FindByID(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	data := map[string]string{"status": string(input.Target)}
	if updated.TrackingNumber != nil {
		data["tracking_number"] = *updated.TrackingNumber
	}
	s.notifier.NotifyAsync(ctx, notifications.Message{
		Kind:        enums.NotificationKindStatusChange,
		Recipient:   updated.CustomerEmail,
		OrderNumber: updated.OrderNumber,
		Data:        data,
	})
	return updated, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.OrderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, repo, input.OrderNumber)
		if err != nil {
			return err
		}
		if input.ActorUserID != nil {
			if order.UserID != *input.ActorUserID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
			}
			if !customerCancellable(order.OrderStatus) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled")
			}
		} else if !staffCancellable(order.OrderStatus) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled")
		}
		if order.PaymentStatus == enums.PaymentStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "paid orders require a manual refund before cancellation")
		}

		now := s.now().UTC()
		note := input.Reason
		if note == "" {
			note = "order cancelled"
		}
		history, err := HistoryValue(append(order.StatusHistory, types.StatusChange{
			Status:    enums.OrderStatusCancelled,
			Note:      note,
			Actor:     input.ActorEmail,
			ChangedAt: now,
		}))
		if err != nil {
			return err
		}

		current := order.OrderStatus
		pending := enums.PaymentStatusPending
		applied, err := repo.UpdateGuarded(ctx, order.ID,
			StatusGuard{OrderStatus: &current, PaymentStatus: &pending},
			map[string]any{
				"order_status":   enums.OrderStatusCancelled,
				"cancelled_at":   now,
				"status_history": history,
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}

		updated, err = repo.FindByID(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyAsync(ctx, notifications.Message{
		Kind:        enums.NotificationKindOrderCancelled,
		Recipient:   updated.CustomerEmail,
		OrderNumber: updated.OrderNumber,
		Data:        map[string]string{"reason": input.Reason},
	})
	return updated, nil
}

func (s *service) ConfirmReceipt(ctx context.Context, input ConfirmReceiptInput) (*models.Order, error) {
	if input.OrderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, repo, input.OrderNumber)
		if err != nil {
			return err
		}
		if order.UserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		if order.OrderStatus != enums.OrderStatusShipped {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only shipped orders can be confirmed received")
		}

		now := s.now().UTC()
		updates, err := s.transitionUpdates(order, enums.OrderStatusDelivered, "receipt confirmed by customer", order.CustomerEmail, now)
		if err != nil {
			return err
		}

		current := order.OrderStatus
		applied, err := repo.UpdateGuarded(ctx, order.ID, StatusGuard{OrderStatus: &current}, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm receipt")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}

		updated, err = repo.FindByID(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) AttachDesign(ctx context.Context, input AttachDesignInput) error {
	if input.OrderNumber == "" || input.DesignURL == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order number and design url required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, repo, input.OrderNumber)
		if err != nil {
			return err
		}
		if order.UserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		if !designAttachable(order.OrderStatus) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "designs can only be attached before production starts")
		}

		for _, item := range order.Items {
			if item.ID == input.ItemID {
				if err := repo.UpdateItemDesignURL(ctx, item.ID, input.DesignURL); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach design")
				}
				if !order.HasCustomItems {
					_, err := repo.UpdateGuarded(ctx, order.ID, StatusGuard{}, map[string]any{"has_custom_items": true})
					if err != nil {
						return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag custom items")
					}
				}
				return nil
			}
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
	})
}

func (s *service) loadOrder(ctx context.Context, repo Repository, orderNumber string) (*models.Order, error) {
	order, err := repo.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// transitionUpdates builds the column map for one forward status change,
// including the delivered bookkeeping shared by staff advance and customer
// receipt confirmation.
func (s *service) transitionUpdates(order *models.Order, target enums.OrderStatus, note, actor string, now time.Time) (map[string]any, error) {
	history, err := HistoryValue(append(order.StatusHistory, types.StatusChange{
		Status:    target,
		Note:      note,
		Actor:     actor,
		ChangedAt: now,
	}))
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"order_status":   target,
		"status_history": history,
	}
	if target == enums.OrderStatusDelivered {
		updates["delivered_at"] = now
		// Cash on delivery settles at the door.
		if order.PaymentMethod == enums.PaymentMethodCOD && order.PaymentStatus == enums.PaymentStatusPending {
			updates["payment_status"] = enums.PaymentStatusPaid
			if order.PaymentDetails == nil {
				details, derr := DetailsValue(&types.PaymentDetails{
					Gateway: enums.PaymentMethodCOD,
					PaidAt:  &now,
				})
				if derr != nil {
					return nil, derr
				}
				updates["payment_details"] = details
			}
		}
	}
	return updates, nil
}

var staffTransitions = map[enums.OrderStatus]enums.OrderStatus{
	enums.OrderStatusPending:    enums.OrderStatusConfirmed,
	enums.OrderStatusConfirmed:  enums.OrderStatusProcessing,
	enums.OrderStatusProcessing: enums.OrderStatusShipped,
	enums.OrderStatusShipped:    enums.OrderStatusDelivered,
}

func advanceAllowed(order *models.Order, target enums.OrderStatus) bool {
	next, ok := staffTransitions[order.OrderStatus]
	if !ok || next != target {
		return false
	}
	// Online orders confirm through payment reconciliation, never by hand.
	if order.OrderStatus == enums.OrderStatusPending && order.PaymentMethod.IsOnline() {
		return false
	}
	return true
}

func customerCancellable(status enums.OrderStatus) bool {
	return status == enums.OrderStatusPending || status == enums.OrderStatusConfirmed
}

func staffCancellable(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusPending, enums.OrderStatusAwaitingPayment,
		enums.OrderStatusConfirmed, enums.OrderStatusProcessing:
		return true
	default:
		return false
	}
}

func designAttachable(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusPending, enums.OrderStatusAwaitingPayment, enums.OrderStatusConfirmed:
		return true
	default:
		return false
	}
}

func validateCreateInput(input CreateOrderInput) error {
	if input.CustomerEmail == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer email required")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if input.ShippingAddress == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	for _, line := range input.Items {
		if line.Name == "" || line.Size == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "item name and size required")
		}
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		if line.UnitPrice < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item price cannot be negative")
		}
	}
	if input.ShippingFee < 0 || input.TaxAmount < 0 || input.DiscountAmount < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amounts cannot be negative")
	}
	return nil
}

// HistoryValue marshals the history for a column-map update, since gorm's
// serializer only runs on struct writes.
func HistoryValue(history types.StatusHistory) (string, error) {
	raw, err := json.Marshal(history)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode status history")
	}
	return string(raw), nil
}

// DetailsValue marshals gateway payment details for a column-map update.
func DetailsValue(details *types.PaymentDetails) (string, error) {
	raw, err := json.Marshal(details)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode payment details")
	}
	return string(raw), nil
}

// generateOrderNumber returns a date-prefixed random order number. Collisions
// are resolved by the unique constraint plus a single retry.
func generateOrderNumber(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<24))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TC-%s-%06X", now.Format("20060102"), n.Int64()), nil
}
