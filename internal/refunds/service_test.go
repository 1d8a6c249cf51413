package refunds

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lucasferreyra/webshop-backend/internal/orders"
	"github.com/lucasferreyra/webshop-backend/pkg/db"
	"github.com/lucasferreyra/webshop-backend/pkg/db/models"
	"github.com/lucasferreyra/webshop-backend/pkg/enums"
	pkgerrors "github.com/lucasferreyra/webshop-backend/pkg/errors"
	"github.com/lucasferreyra/webshop-backend/pkg/types"
)

type stubStripeGateway struct {
	requests []*stripe.RefundParams
	err      error
}

func (s *stubStripeGateway) Create(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.requests = append(s.requests, params)
	return &stripe.Refund{
		ID:     fmt.Sprintf("re_test_%d", len(s.requests)),
		Reason: stripe.RefundReasonRequestedByCustomer,
	}, nil
}

type stubRestorer struct {
	calls []uuid.UUID
}

func (s *stubRestorer) RestoreRefunded(ctx context.Context, orderID uuid.UUID) error {
	s.calls = append(s.calls, orderID)
	return nil
}

type refundFixture struct {
	svc      *Service
	conn     *gorm.DB
	repo     orders.Repository
	gateway  *stubStripeGateway
	restorer *stubRestorer
}

func setupRefundTest(t *testing.T) *refundFixture {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.RefundRecord{},
	))

	repo := orders.NewRepository(conn)
	gateway := &stubStripeGateway{}
	restorer := &stubRestorer{}
	svc, err := NewService(db.FromConn(conn), repo, gateway, restorer, nil, nil)
	require.NoError(t, err)

	return &refundFixture{svc: svc, conn: conn, repo: repo, gateway: gateway, restorer: restorer}
}

// seedOrder creates a paid order with subtotal 100, shipping 5, tax 8,
// a total of 11300 cents, and a single $50 item x2.
func (f *refundFixture) seedOrder(t *testing.T) *models.Order {
	t.Helper()

	pi := fmt.Sprintf("pi_%s", uuid.NewString()[:8])
	customerID := uuid.New()
	order := &models.Order{
		OrderNumber: fmt.Sprintf("ORD-260901-%s", uuid.NewString()[:4]),
		OrderDate:   time.Now().UTC(),
		Customer: types.Customer{
			ID:    &customerID,
			Name:  "Ana Torres",
			Email: "ana@example.com",
		},
		Status:          enums.OrderStatusProcessing,
		Subtotal:        decimal.NewFromInt(100),
		ShippingCost:    decimal.NewFromInt(5),
		TaxAmount:       decimal.NewFromInt(8),
		TaxRate:         decimal.NewFromFloat(0.08),
		TotalCents:      11300,
		Currency:        "eur",
		PaymentStatus:   enums.PaymentStatusSucceeded,
		PaymentIntentID: &pi,
		RefundedAmount:  decimal.Zero,
		Items: []models.OrderItem{
			{Name: "Phone Case", Price: decimal.NewFromInt(50), Quantity: 2},
		},
	}
	created, err := f.repo.Create(context.Background(), order)
	require.NoError(t, err)

	reloaded, err := f.repo.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	return reloaded
}

// seedTwoItemOrder mirrors seedOrder's totals but splits the subtotal
// across two $50 single-unit items.
func (f *refundFixture) seedTwoItemOrder(t *testing.T) *models.Order {
	t.Helper()

	pi := fmt.Sprintf("pi_%s", uuid.NewString()[:8])
	customerID := uuid.New()
	order := &models.Order{
		OrderNumber: fmt.Sprintf("ORD-260901-%s", uuid.NewString()[:4]),
		OrderDate:   time.Now().UTC(),
		Customer: types.Customer{
			ID:    &customerID,
			Name:  "Ana Torres",
			Email: "ana@example.com",
		},
		Status:          enums.OrderStatusProcessing,
		Subtotal:        decimal.NewFromInt(100),
		ShippingCost:    decimal.NewFromInt(5),
		TaxAmount:       decimal.NewFromInt(8),
		TaxRate:         decimal.NewFromFloat(0.08),
		TotalCents:      11300,
		Currency:        "eur",
		PaymentStatus:   enums.PaymentStatusSucceeded,
		PaymentIntentID: &pi,
		RefundedAmount:  decimal.Zero,
		Items: []models.OrderItem{
			{Name: "Phone Case", Price: decimal.NewFromInt(50), Quantity: 1},
			{Name: "Charging Cable", Price: decimal.NewFromInt(50), Quantity: 1},
		},
	}
	created, err := f.repo.Create(context.Background(), order)
	require.NoError(t, err)

	reloaded, err := f.repo.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	return reloaded
}

func TestItemizedRefundAllocatesTaxAndShipping(t *testing.T) {
	f := setupRefundTest(t)
	order := f.seedOrder(t)

	// One of two $50 units: half the subtotal, so half of tax and
	// shipping come along. 5000 + 400 + 250 = 5650 cents.
	result, err := f.svc.Process(context.Background(), Input{
		OrderID:     order.ID,
		Items:       []ItemRequest{{ItemID: order.Items[0].ID, Quantity: 1, Reason: "damaged"}},
		Reason:      "customer request",
		ProcessedBy: "admin@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5650), result.AmountCents)
	assert.Equal(t, "Successfully processed refund of $56.50", result.Message)
	assert.NotEmpty(t, result.RefundID)

	reloaded, err := f.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPartiallyRefunded, reloaded.Status)
	assert.True(t, reloaded.PartiallyRefunded)
	assert.False(t, reloaded.Refunded)
	assert.True(t, reloaded.RefundedAmount.Equal(decimal.NewFromFloat(56.50)),
		"refunded amount = %s", reloaded.RefundedAmount)
	assert.Equal(t, 1, reloaded.Items[0].RefundedQuantity)
	require.NotNil(t, reloaded.Items[0].RefundReason)
	assert.Equal(t, "damaged", *reloaded.Items[0].RefundReason)

	require.Len(t, reloaded.Refunds, 1)
	record := reloaded.Refunds[0]
	assert.Equal(t, result.RefundID, record.StripeRefundID)
	assert.Equal(t, "customer request", record.Reason)
	assert.Equal(t, "admin@example.com", record.ProcessedBy)
	require.Len(t, record.Items, 1)
	assert.Equal(t, 1, record.Items[0].Quantity)

	require.Len(t, f.restorer.calls, 1)
	assert.True(t, result.SideEffects.InventoryRestored)
}

func TestPartialAmountRefundRejected(t *testing.T) {
	f := setupRefundTest(t)
	order := f.seedOrder(t)

	amount := decimal.NewFromInt(10)
	_, err := f.svc.Process(context.Background(), Input{
		OrderID:     order.ID,
		Amount:      &amount,
		Reason:      "partial goodwill",
		ProcessedBy: "admin@example.com",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Contains(t, typed.Message(), "itemized")
	assert.Empty(t, f.gateway.requests)
}

func TestRefundingTheRestCompletesTheOrder(t *testing.T) {
	f := setupRefundTest(t)
	order := f.seedOrder(t)

	_, err := f.svc.Process(context.Background(), Input{
		OrderID:     order.ID,
		Items:       []ItemRequest{{ItemID: order.Items[0].ID, Quantity: 1}},
		Reason:      "first half",
		ProcessedBy: "admin@example.com",
	})
	require.NoError(t, err)

	second, err := f.svc.Process(context.Background(), Input{
		OrderID:     order.ID,
		Items:       []ItemRequest{{ItemID: order.Items[0].ID, Quantity: 1}},
		Reason:      "second half",
		ProcessedBy: "admin@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5650), second.AmountCents)

	reloaded, err := f.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusRefunded, reloaded.Status)
	assert.True(t, reloaded.Refunded)
	assert.False(t, reloaded.PartiallyRefunded)
	assert.Equal(t, int64(11300), reloaded.RefundedAmountCents())
	assert.Equal(t, 2, reloaded.Items[0].RefundedQuantity)
	assert.Len(t, reloaded.Refunds, 2)
}

func TestAmountRefundMarksOutstandingQuantities(t *testing.T) {
	f := setupRefundTest(t)
	order := f.seedOrder(t)

	amount := decimal.NewFromFloat(113)
	result, err := f.svc.Process(context.Background(), Input{
		OrderID:     order.ID,
		Amount:      &amount,
		Reason:      "goodwill",
		ProcessedBy: "admin@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11300), result.AmountCents)

	reloaded, err := f.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusRefunded, reloaded.Status)
	assert.Equal(t, 2, reloaded.Items[0].RefundedQuantity)
}

func TestRefundRejectsAmountOverOutstandingBalance(t *testing.T) {
	f := setupRefundTest(t)
	order := f.seedOrder(t)

	amount := decimal.NewFromInt(200)
	_, err := f.svc.Process(context.Background(), Input{
		OrderID:     order.ID,
		Amount:      &amount,
		Reason:      "too much",
		ProcessedBy: "admin@example.com",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Contains(t, typed.Message(), "113.00")
	assert.Empty(t, f.gateway.requests, "no money may move on a rejected request")
}

func TestRefundRejectsQuantityOverAvailable(t *testing.T) {
	f := setupRefundTest(t)
	order := f.seedOrder(t)

	_, err := f.svc.Process(context.Background(), Input{
		OrderID:     order.ID,
		Items:       []ItemRequest{{ItemID: order.Items[0].ID, Quantity: 3}},
		ProcessedBy: "admin@example.com",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Contains(t, typed.Message(), "2 unit(s)")
}

func TestRefundRejectsDuplicateItemLinesOverAvailable(t *testing.T) {
	f := setupRefundTest(t)
	order := f.seedOrder(t)

	_, err := f.svc.Process(context.Background(), Input{
		OrderID:     order.ID,
		Items:       []ItemRequest{{ItemID: order.Items[0].ID, Quantity: 1}},
		ProcessedBy: "admin@example.com",
	})
	require.NoError(t, err)

	// One unit left; two lines naming the same item must not each be
	// checked against it independently.
	_, err = f.svc.Process(context.Background(), Input{
		OrderID: order.ID,
		Items: []ItemRequest{
			{ItemID: order.Items[0].ID, Quantity: 1},
			{ItemID: order.Items[0].ID, Quantity: 1},
		},
		ProcessedBy: "admin@example.com",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Contains(t, typed.Message(), "0 unit(s)")
	assert.Len(t, f.gateway.requests, 1, "the rejected request must not reach stripe")

	reloaded, err := f.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Items[0].RefundedQuantity)
	assert.Equal(t, int64(5650), reloaded.RefundedAmountCents())
}

func TestDuplicateItemLinesAggregateInLedger(t *testing.T) {
	f := setupRefundTest(t)
	order := f.seedOrder(t)

	// Two lines for the same item that fit together: one refund, and the
	// item ledger reflects both units, not a single overwritten write.
	result, err := f.svc.Process(context.Background(), Input{
		OrderID: order.ID,
		Items: []ItemRequest{
			{ItemID: order.Items[0].ID, Quantity: 1, Reason: "scratched"},
			{ItemID: order.Items[0].ID, Quantity: 1, Reason: "wrong colour"},
		},
		ProcessedBy: "admin@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11300), result.AmountCents)

	reloaded, err := f.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Items[0].RefundedQuantity)
	assert.Equal(t, enums.OrderStatusRefunded, reloaded.Status)
	require.NotNil(t, reloaded.Items[0].RefundReason)
	assert.Equal(t, "wrong colour", *reloaded.Items[0].RefundReason)
}

func TestRecordRejectsConcurrentItemClaim(t *testing.T) {
	f := setupRefundTest(t)
	order := f.seedTwoItemOrder(t)

	input := Input{
		OrderID:     order.ID,
		Items:       []ItemRequest{{ItemID: order.Items[0].ID, Quantity: 1}},
		ProcessedBy: "admin@example.com",
	}
	cents, adjustments, err := f.svc.plan(order, input)
	require.NoError(t, err)

	// Another refund of the same line lands between the stale read and
	// the bookkeeping. The order ceiling still has room thanks to the
	// second item, so only the per-item re-check can catch it.
	_, err = f.svc.Process(context.Background(), input)
	require.NoError(t, err)

	err = f.svc.record(context.Background(), order, input, &stripe.Refund{
		ID:     "re_stale",
		Reason: stripe.RefundReasonRequestedByCustomer,
	}, cents, adjustments)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())

	reloaded, err := f.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	refunded := findItem(reloaded, order.Items[0].ID)
	require.NotNil(t, refunded)
	assert.Equal(t, 1, refunded.RefundedQuantity)
	assert.Equal(t, int64(5650), reloaded.RefundedAmountCents())
	assert.Len(t, reloaded.Refunds, 1, "the stale bookkeeping must roll back entirely")
}

func TestRefundRequiresCapturedPayment(t *testing.T) {
	f := setupRefundTest(t)
	order := f.seedOrder(t)
	require.NoError(t, f.conn.Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("payment_status", enums.PaymentStatusProcessing).Error)

	amount := decimal.NewFromInt(10)
	_, err := f.svc.Process(context.Background(), Input{
		OrderID:     order.ID,
		Amount:      &amount,
		ProcessedBy: "admin@example.com",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestRefundRequiresItemsOrAmount(t *testing.T) {
	f := setupRefundTest(t)
	order := f.seedOrder(t)

	_, err := f.svc.Process(context.Background(), Input{
		OrderID:     order.ID,
		ProcessedBy: "admin@example.com",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestRefundSendsStripeParams(t *testing.T) {
	f := setupRefundTest(t)
	order := f.seedOrder(t)

	_, err := f.svc.Process(context.Background(), Input{
		OrderID:     order.ID,
		Items:       []ItemRequest{{ItemID: order.Items[0].ID, Quantity: 1}},
		Reason:      "defective unit",
		ProcessedBy: "admin@example.com",
	})
	require.NoError(t, err)

	require.Len(t, f.gateway.requests, 1)
	params := f.gateway.requests[0]
	assert.Equal(t, *order.PaymentIntentID, *params.PaymentIntent)
	assert.Equal(t, int64(5650), *params.Amount)
	assert.Equal(t, "items", params.Metadata["refund_type"])
	assert.Equal(t, "admin@example.com", params.Metadata["processed_by"])
	assert.Equal(t, "defective unit", params.Metadata["custom_reason"])
}

func TestRefundStripeFailureLeavesOrderUntouched(t *testing.T) {
	f := setupRefundTest(t)
	order := f.seedOrder(t)
	f.gateway.err = fmt.Errorf("stripe: connection reset")

	_, err := f.svc.Process(context.Background(), Input{
		OrderID:     order.ID,
		Items:       []ItemRequest{{ItemID: order.Items[0].ID, Quantity: 1}},
		ProcessedBy: "admin@example.com",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())

	reloaded, err := f.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, reloaded.Status)
	assert.True(t, reloaded.RefundedAmount.IsZero())
	assert.Empty(t, f.restorer.calls)
}

func TestRefundOutstandingCoversTheRemainder(t *testing.T) {
	f := setupRefundTest(t)
	order := f.seedOrder(t)

	_, err := f.svc.Process(context.Background(), Input{
		OrderID:     order.ID,
		Items:       []ItemRequest{{ItemID: order.Items[0].ID, Quantity: 1}},
		ProcessedBy: "admin@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.RefundOutstanding(context.Background(), order.ID, "system"))

	reloaded, err := f.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusRefunded, reloaded.Status)
	assert.Equal(t, int64(11300), reloaded.RefundedAmountCents())

	// Fully refunded orders are a no-op, not an error.
	require.NoError(t, f.svc.RefundOutstanding(context.Background(), order.ID, "system"))
	assert.Len(t, f.gateway.requests, 2)
}
