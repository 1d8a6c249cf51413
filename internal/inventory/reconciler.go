package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lucasferreyra/webshop-backend/internal/products"
	"github.com/lucasferreyra/webshop-backend/pkg/db"
	"github.com/lucasferreyra/webshop-backend/pkg/db/models"
	pkgerrors "github.com/lucasferreyra/webshop-backend/pkg/errors"
	"github.com/lucasferreyra/webshop-backend/pkg/logger"
)

// Reconciler returns stock to the catalog when order items are refunded
// or an order is cancelled. restocked_quantity on each item records how
// much has already gone back, so repeated calls never double-restock.
type Reconciler struct {
	client   *db.Client
	products *products.Repository
	logg     *logger.Logger
}

// NewReconciler builds a reconciler over the shared DB client.
func NewReconciler(client *db.Client, productsRepo *products.Repository, logg *logger.Logger) (*Reconciler, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if productsRepo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	return &Reconciler{client: client, products: productsRepo, logg: logg}, nil
}

// RestoreRefunded restocks every refunded-but-not-yet-restocked unit of
// the order's items.
func (r *Reconciler) RestoreRefunded(ctx context.Context, orderID uuid.UUID) error {
	return r.restore(ctx, orderID, func(item models.OrderItem) int {
		return item.RefundedQuantity - item.RestockedQuantity
	})
}

// RestoreRemaining restocks everything not yet restocked, refunded or
// not. Used when an order is cancelled outright.
func (r *Reconciler) RestoreRemaining(ctx context.Context, orderID uuid.UUID) error {
	return r.restore(ctx, orderID, func(item models.OrderItem) int {
		return item.Quantity - item.RestockedQuantity
	})
}

func (r *Reconciler) restore(ctx context.Context, orderID uuid.UUID, delta func(models.OrderItem) int) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	err := r.client.WithTx(ctx, func(tx *gorm.DB) error {
		var items []models.OrderItem
		if err := tx.Where("order_id = ?", orderID).Find(&items).Error; err != nil {
			return err
		}

		productsTx := r.products.WithTx(tx)
		for _, item := range items {
			qty := delta(item)
			if qty <= 0 {
				continue
			}
			if item.ProductID != nil {
				if err := productsTx.IncrementStock(ctx, *item.ProductID, qty); err != nil {
					return err
				}
			}
			if err := tx.Model(&models.OrderItem{}).
				Where("id = ?", item.ID).
				UpdateColumn("restocked_quantity", gorm.Expr("restocked_quantity + ?", qty)).Error; err != nil {
				return err
			}
			r.debug(ctx, item, qty)
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
	}
	return nil
}

func (r *Reconciler) debug(ctx context.Context, item models.OrderItem, qty int) {
	if r.logg == nil {
		return
	}
	r.logg.Debug(ctx, fmt.Sprintf("restocked %d unit(s) of item %s", qty, item.ID))
}
