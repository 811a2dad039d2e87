package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/huyanhvn/threadcraft-backend/pkg/db/models"
	pkgerrors "github.com/huyanhvn/threadcraft-backend/pkg/errors"
	"github.com/huyanhvn/threadcraft-backend/pkg/logger"
)

// Adjuster applies stock movements for paid orders. All writes go through
// guarded SQL so two concurrent callers can never double-apply a movement.
type Adjuster interface {
	DecrementForOrder(ctx context.Context, tx *gorm.DB, items []models.OrderItem) error
}

type adjuster struct {
	logg *logger.Logger
}

// NewAdjuster builds the default stock adjuster.
func NewAdjuster(logg *logger.Logger) (Adjuster, error) {
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &adjuster{logg: logg}, nil
}

// DecrementForOrder takes sold quantities out of the per-size ledger and
// refreshes the product aggregates. Lines without a catalog product (pure
// custom work) carry no stock and are skipped.
func (a *adjuster) DecrementForOrder(ctx context.Context, tx *gorm.DB, items []models.OrderItem) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock decrement")
	}

	touched := make(map[uuid.UUID]int)
	for _, item := range items {
		if item.ProductID == nil || item.Quantity <= 0 {
			continue
		}
		if err := a.decrementSize(ctx, tx, *item.ProductID, item.Size, item.Quantity); err != nil {
			return err
		}
		touched[*item.ProductID] += item.Quantity
	}

	for productID, qty := range touched {
		if err := a.refreshProduct(ctx, tx, productID, qty); err != nil {
			return err
		}
	}
	return nil
}

func (a *adjuster) decrementSize(ctx context.Context, tx *gorm.DB, productID uuid.UUID, size string, qty int) error {
	res := tx.WithContext(ctx).Exec(`
		UPDATE size_stocks
		SET quantity = quantity - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND size = ? AND quantity >= ?
	`, qty, productID, size, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement size stock")
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Oversold or unknown size: floor at zero rather than going negative,
	// and leave a trace for the catalog team.
	floored := tx.WithContext(ctx).Exec(`
		UPDATE size_stocks
		SET quantity = 0,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND size = ? AND quantity > 0
	`, productID, size)
	if floored.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, floored.Error, "floor size stock")
	}

	logCtx := a.logg.WithFields(ctx, map[string]any{
		"product_id": productID.String(),
		"size":       size,
		"quantity":   qty,
	})
	if floored.RowsAffected > 0 {
		a.logg.Warn(logCtx, "stock underflow floored at zero")
	} else {
		a.logg.Warn(logCtx, "stock row missing for sold size")
	}
	return nil
}

func (a *adjuster) refreshProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID, soldQty int) error {
	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET sold_count = sold_count + ?,
			total_stock = (
				SELECT COALESCE(SUM(quantity), 0)
				FROM size_stocks
				WHERE product_id = ?
			),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, soldQty, productID, productID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, fmt.Sprintf("refresh product %s", productID))
	}
	return nil
}
