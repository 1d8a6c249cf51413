package orders

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lucasferreyra/webshop-backend/pkg/db/models"
	"github.com/lucasferreyra/webshop-backend/pkg/enums"
	pkgerrors "github.com/lucasferreyra/webshop-backend/pkg/errors"
	"github.com/lucasferreyra/webshop-backend/pkg/pagination"
	"github.com/lucasferreyra/webshop-backend/pkg/types"
)

type stubOrdersRepo struct {
	orders      map[uuid.UUID]*models.Order
	orderUpdate map[string]any
	itemUpdates map[uuid.UUID]map[string]any
}

func newStubOrdersRepo(order *models.Order) *stubOrdersRepo {
	repo := &stubOrdersRepo{
		orders:      make(map[uuid.UUID]*models.Order),
		itemUpdates: make(map[uuid.UUID]map[string]any),
	}
	if order != nil {
		repo.orders[order.ID] = order
	}
	return repo
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubOrdersRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	s.orders[order.ID] = order
	return order, nil
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return order, nil
}

func (s *stubOrdersRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.FindByID(ctx, id)
}

func (s *stubOrdersRepo) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	for _, order := range s.orders {
		if order.PaymentIntentID != nil && *order.PaymentIntentID == paymentIntentID {
			return order, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error) {
	for _, order := range s.orders {
		for i := range order.Items {
			if order.Items[i].ID == itemID {
				return &order.Items[i], nil
			}
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) List(ctx context.Context, params pagination.Params, filters OrderFilters) (*OrderList, error) {
	panic("not implemented")
}

func (s *stubOrdersRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	panic("not implemented")
}

func (s *stubOrdersRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.orderUpdate = updates
	if order, ok := s.orders[id]; ok {
		if status, ok := updates["status"].(enums.OrderStatus); ok {
			order.Status = status
		}
	}
	return nil
}

func (s *stubOrdersRepo) UpdateItem(ctx context.Context, itemID uuid.UUID, updates map[string]any) error {
	s.itemUpdates[itemID] = updates
	return nil
}

func (s *stubOrdersRepo) CreateRefundRecord(ctx context.Context, record *models.RefundRecord) (*models.RefundRecord, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return record, nil
}

type stubRefunder struct {
	calls []uuid.UUID
	err   error
}

func (s *stubRefunder) RefundOutstanding(ctx context.Context, orderID uuid.UUID, processedBy string) error {
	s.calls = append(s.calls, orderID)
	return s.err
}

type stubRestocker struct {
	calls []uuid.UUID
}

func (s *stubRestocker) RestoreRemaining(ctx context.Context, orderID uuid.UUID) error {
	s.calls = append(s.calls, orderID)
	return nil
}

type stubMailer struct {
	cancelled []string
}

func (s *stubMailer) OrderCancelled(ctx context.Context, order *models.Order) error {
	s.cancelled = append(s.cancelled, order.OrderNumber)
	return nil
}

func paidOrder(status enums.OrderStatus) *models.Order {
	customerID := uuid.New()
	pi := "pi_test"
	return &models.Order{
		ID:          uuid.New(),
		OrderNumber: "ORD-260901-1234",
		Customer: types.Customer{
			ID:    &customerID,
			Email: "ana@example.com",
		},
		Status:         status,
		TotalCents:     10000,
		RefundedAmount: decimal.Zero,
		PaymentStatus:  enums.PaymentStatusSucceeded,
		PaymentIntentID: &pi,
		Items: []models.OrderItem{
			{ID: uuid.New(), Name: "Phone Case", Price: decimal.NewFromInt(50), Quantity: 2},
		},
	}
}

func newTestService(t *testing.T, repo Repository, refunder Refunder, restocker Restocker, mailer Mailer) Service {
	t.Helper()
	svc, err := NewService(repo, refunder, restocker, mailer, nil)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func TestUpdateStatusShipsOrder(t *testing.T) {
	order := paidOrder(enums.OrderStatusProcessing)
	repo := newStubOrdersRepo(order)
	refunder := &stubRefunder{}
	svc := newTestService(t, repo, refunder, &stubRestocker{}, &stubMailer{})

	updated, err := svc.UpdateStatus(context.Background(), AdminStatusUpdateInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusShipped,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != enums.OrderStatusShipped {
		t.Fatalf("expected shipped, got %s", updated.Status)
	}
	if len(refunder.calls) != 0 {
		t.Fatal("shipping must not trigger a refund")
	}
}

func TestUpdateStatusRejectsCancellingShippedOrder(t *testing.T) {
	order := paidOrder(enums.OrderStatusShipped)
	repo := newStubOrdersRepo(order)
	svc := newTestService(t, repo, &stubRefunder{}, &stubRestocker{}, &stubMailer{})

	_, err := svc.UpdateStatus(context.Background(), AdminStatusUpdateInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusCancelled,
	})
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	if typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %s", typed.Code())
	}
	if pkgerrors.MetadataFor(typed.Code()).HTTPStatus != http.StatusUnprocessableEntity {
		t.Fatal("state conflicts should map to 422")
	}
}

func TestUpdateStatusCancelPaidOrderRefundsFirst(t *testing.T) {
	order := paidOrder(enums.OrderStatusProcessing)
	repo := newStubOrdersRepo(order)
	refunder := &stubRefunder{}
	restocker := &stubRestocker{}
	mailer := &stubMailer{}
	svc := newTestService(t, repo, refunder, restocker, mailer)

	updated, err := svc.UpdateStatus(context.Background(), AdminStatusUpdateInput{
		OrderID:    order.ID,
		Status:     enums.OrderStatusCancelled,
		ActorEmail: "admin@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.Status)
	}
	if len(refunder.calls) != 1 || refunder.calls[0] != order.ID {
		t.Fatalf("expected one refund call for the order, got %v", refunder.calls)
	}
	if len(restocker.calls) != 1 {
		t.Fatalf("expected inventory restore, got %v", restocker.calls)
	}
	if len(mailer.cancelled) != 1 {
		t.Fatal("expected cancellation notification")
	}
}

func TestUpdateStatusCancelAbortsWhenRefundFails(t *testing.T) {
	order := paidOrder(enums.OrderStatusProcessing)
	repo := newStubOrdersRepo(order)
	refunder := &stubRefunder{err: pkgerrors.New(pkgerrors.CodeDependency, "stripe unavailable")}
	restocker := &stubRestocker{}
	svc := newTestService(t, repo, refunder, restocker, &stubMailer{})

	_, err := svc.UpdateStatus(context.Background(), AdminStatusUpdateInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusCancelled,
	})
	if err == nil {
		t.Fatal("expected refund failure to abort cancellation")
	}
	if order.Status != enums.OrderStatusProcessing {
		t.Fatalf("order status must be untouched, got %s", order.Status)
	}
	if len(restocker.calls) != 0 {
		t.Fatal("inventory must not be restored when the refund fails")
	}
}

func TestUpdateStatusCancelUnpaidOrderSkipsRefund(t *testing.T) {
	order := paidOrder(enums.OrderStatusProcessing)
	order.PaymentStatus = enums.PaymentStatusProcessing
	repo := newStubOrdersRepo(order)
	refunder := &stubRefunder{}
	restocker := &stubRestocker{}
	svc := newTestService(t, repo, refunder, restocker, &stubMailer{})

	updated, err := svc.UpdateStatus(context.Background(), AdminStatusUpdateInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusCancelled,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.Status)
	}
	if len(refunder.calls) != 0 {
		t.Fatal("unpaid orders must not trigger money movement")
	}
	if len(restocker.calls) != 1 {
		t.Fatal("inventory should still be restored")
	}
}

func TestUpdateStatusMarksSingleItemDelivered(t *testing.T) {
	order := paidOrder(enums.OrderStatusProcessing)
	repo := newStubOrdersRepo(order)
	svc := newTestService(t, repo, &stubRefunder{}, &stubRestocker{}, &stubMailer{})

	itemID := order.Items[0].ID
	_, err := svc.UpdateStatus(context.Background(), AdminStatusUpdateInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusDelivered,
		ItemID:  &itemID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	updates, ok := repo.itemUpdates[itemID]
	if !ok {
		t.Fatal("expected item update")
	}
	if delivered, _ := updates["delivered"].(bool); !delivered {
		t.Fatal("expected delivered=true update")
	}
	if order.Status != enums.OrderStatusProcessing {
		t.Fatal("per-item delivery must not touch order-level status")
	}
}

func TestUpdateStatusRejectsDeliveringRefundedItem(t *testing.T) {
	order := paidOrder(enums.OrderStatusProcessing)
	order.Items[0].RefundedQuantity = 1
	repo := newStubOrdersRepo(order)
	svc := newTestService(t, repo, &stubRefunder{}, &stubRestocker{}, &stubMailer{})

	itemID := order.Items[0].ID
	_, err := svc.UpdateStatus(context.Background(), AdminStatusUpdateInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusDelivered,
		ItemID:  &itemID,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCancelChecksOwnership(t *testing.T) {
	order := paidOrder(enums.OrderStatusProcessing)
	repo := newStubOrdersRepo(order)
	svc := newTestService(t, repo, &stubRefunder{}, &stubRestocker{}, &stubMailer{})

	_, err := svc.Cancel(context.Background(), CustomerCancelInput{
		OrderID:    order.ID,
		CustomerID: uuid.New(),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCancelOnlyFromProcessing(t *testing.T) {
	order := paidOrder(enums.OrderStatusShipped)
	repo := newStubOrdersRepo(order)
	svc := newTestService(t, repo, &stubRefunder{}, &stubRestocker{}, &stubMailer{})

	_, err := svc.Cancel(context.Background(), CustomerCancelInput{
		OrderID:    order.ID,
		CustomerID: *order.Customer.ID,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if !strings.Contains(typed.Message(), "request a refund instead") {
		t.Fatalf("shipped cancellation should steer to a refund, got %q", typed.Message())
	}
}

func TestCancelHappyPath(t *testing.T) {
	order := paidOrder(enums.OrderStatusProcessing)
	repo := newStubOrdersRepo(order)
	refunder := &stubRefunder{}
	svc := newTestService(t, repo, refunder, &stubRestocker{}, &stubMailer{})

	updated, err := svc.Cancel(context.Background(), CustomerCancelInput{
		OrderID:    order.ID,
		CustomerID: *order.Customer.ID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.Status)
	}
	if len(refunder.calls) != 1 {
		t.Fatal("expected full refund of the outstanding amount")
	}
}
