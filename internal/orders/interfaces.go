package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/huyanhvn/threadcraft-backend/pkg/db/models"
	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
	"github.com/huyanhvn/threadcraft-backend/pkg/pagination"
)

// StatusGuard is the expected-state half of a conditional order update.
// Updates apply only while the row still matches the guard, which is how
// concurrent writers (reconciler, sweeper, staff) stay serialized without
// row locks.
type StatusGuard struct {
	OrderStatus   *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
}

// Repository defines persistence operations for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	List(ctx context.Context, params pagination.Params, filters Filters) (*OrderList, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params, filters Filters) (*OrderList, error)
	UpdateGuarded(ctx context.Context, orderID uuid.UUID, guard StatusGuard, updates map[string]any) (bool, error)
	UpdateItemDesignURL(ctx context.Context, itemID uuid.UUID, designURL string) error
	FindAwaitingPaymentBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	FindShippedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}
