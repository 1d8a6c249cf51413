package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lucasferreyra/webshop-backend/pkg/db/models"
	"github.com/lucasferreyra/webshop-backend/pkg/enums"
	pkgerrors "github.com/lucasferreyra/webshop-backend/pkg/errors"
	"github.com/lucasferreyra/webshop-backend/pkg/logger"
	"github.com/lucasferreyra/webshop-backend/pkg/pagination"
)

// Refunder issues a refund of the full outstanding amount, including
// per-item and order-level bookkeeping. Implemented by the refunds
// service.
type Refunder interface {
	RefundOutstanding(ctx context.Context, orderID uuid.UUID, processedBy string) error
}

// Restocker returns stock for the order's not-yet-restocked items.
type Restocker interface {
	RestoreRemaining(ctx context.Context, orderID uuid.UUID) error
}

// Mailer sends customer-facing lifecycle notifications.
type Mailer interface {
	OrderCancelled(ctx context.Context, order *models.Order) error
}

// Service defines order lifecycle operations beyond repository reads.
type Service interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetCustomerOrder(ctx context.Context, customerID, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, params pagination.Params, filters OrderFilters) (*OrderList, error)
	ListCustomerOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error)
	UpdateStatus(ctx context.Context, input AdminStatusUpdateInput) (*models.Order, error)
	Cancel(ctx context.Context, input CustomerCancelInput) (*models.Order, error)
}

type service struct {
	repo      Repository
	refunder  Refunder
	inventory Restocker
	mailer    Mailer
	logg      *logger.Logger
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, refunder Refunder, inventory Restocker, mailer Mailer, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if refunder == nil {
		return nil, fmt.Errorf("refunder required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory restocker required")
	}
	if mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	return &service{
		repo:      repo,
		refunder:  refunder,
		inventory: inventory,
		mailer:    mailer,
		logg:      logg,
	}, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) GetCustomerOrder(ctx context.Context, customerID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Customer.ID == nil || *order.Customer.ID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to customer")
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, params pagination.Params, filters OrderFilters) (*OrderList, error) {
	list, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

func (s *service) ListCustomerOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}
	list, err := s.repo.ListByCustomer(ctx, customerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list customer orders")
	}
	return list, nil
}

func (s *service) UpdateStatus(ctx context.Context, input AdminStatusUpdateInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.GetOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}

	// Per-item delivery marking is independent of order-level status.
	if input.Status == enums.OrderStatusDelivered && input.ItemID != nil {
		if err := s.markItemDelivered(ctx, order, *input.ItemID); err != nil {
			return nil, err
		}
		return s.GetOrder(ctx, input.OrderID)
	}

	if err := ValidateTransition(order.Status, input.Status); err != nil {
		return nil, err
	}
	if order.Status == input.Status {
		return order, nil
	}

	switch input.Status {
	case enums.OrderStatusCancelled:
		if err := s.cancel(ctx, order, input.ActorEmail); err != nil {
			return nil, err
		}

	case enums.OrderStatusDelivered:
		now := time.Now().UTC()
		for _, item := range order.Items {
			if item.RefundedQuantity > 0 {
				continue
			}
			updates := map[string]any{"delivered": true, "delivered_at": now}
			if err := s.repo.UpdateItem(ctx, item.ID, updates); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark item delivered")
			}
		}
		if err := s.repo.Update(ctx, order.ID, map[string]any{"status": input.Status}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

	default:
		if err := s.repo.Update(ctx, order.ID, map[string]any{"status": input.Status}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
	}

	return s.GetOrder(ctx, input.OrderID)
}

func (s *service) Cancel(ctx context.Context, input CustomerCancelInput) (*models.Order, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}

	order, err := s.GetCustomerOrder(ctx, input.CustomerID, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := ValidateCancellation(order.Status); err != nil {
		return nil, err
	}

	if err := s.cancel(ctx, order, order.Customer.Email); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, input.OrderID)
}

func (s *service) markItemDelivered(ctx context.Context, order *models.Order, itemID uuid.UUID) error {
	var target *models.OrderItem
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			target = &order.Items[i]
			break
		}
	}
	if target == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "item not found in order")
	}
	if target.RefundedQuantity > 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot mark a refunded item as delivered")
	}
	updates := map[string]any{"delivered": true, "delivered_at": time.Now().UTC()}
	if err := s.repo.UpdateItem(ctx, target.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark item delivered")
	}
	return nil
}

// cancel refunds the outstanding amount when payment succeeded, then
// restores stock, marks the order cancelled, and notifies the customer.
// The refund runs before the status change so a processor failure
// leaves the order untouched.
func (s *service) cancel(ctx context.Context, order *models.Order, actor string) error {
	paid := order.PaymentStatus == enums.PaymentStatusSucceeded && order.PaymentIntentID != nil

	if paid && order.MaxRefundableCents() > 0 {
		if err := s.refunder.RefundOutstanding(ctx, order.ID, actor); err != nil {
			return err
		}
	}

	if err := s.inventory.RestoreRemaining(ctx, order.ID); err != nil {
		// Stock restoration must not block the cancellation itself.
		s.warn(ctx, "inventory restore failed during cancellation", err)
	}

	if err := s.repo.Update(ctx, order.ID, map[string]any{"status": enums.OrderStatusCancelled}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}

	if err := s.mailer.OrderCancelled(ctx, order); err != nil {
		s.warn(ctx, "cancellation notification failed", err)
	}
	return nil
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(ctx, msg, err)
}
