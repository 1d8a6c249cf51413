package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lucasferreyra/webshop-backend/pkg/db/models"
	"github.com/lucasferreyra/webshop-backend/pkg/enums"
	"github.com/lucasferreyra/webshop-backend/pkg/pagination"
	"github.com/lucasferreyra/webshop-backend/pkg/types"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.RefundRecord{},
	))

	return db
}

func buildTestOrder(customerID uuid.UUID, paymentIntentID string) *models.Order {
	pi := paymentIntentID
	return &models.Order{
		OrderNumber: GenerateOrderNumber(time.Now()),
		OrderDate:   time.Now().UTC(),
		Customer: types.Customer{
			ID:    &customerID,
			Name:  "Ana Torres",
			Email: "ana@example.com",
		},
		Status:        enums.OrderStatusProcessing,
		Subtotal:      decimal.NewFromInt(100),
		ShippingCost:  decimal.NewFromInt(5),
		TaxAmount:     decimal.NewFromInt(8),
		TaxRate:       decimal.NewFromFloat(0.08),
		TotalCents:    11300,
		Currency:      "eur",
		PaymentStatus: enums.PaymentStatusSucceeded,
		PaymentIntentID: func() *string {
			if pi == "" {
				return nil
			}
			return &pi
		}(),
		Items: []models.OrderItem{
			{
				Name:     "Phone Case",
				Price:    decimal.NewFromInt(50),
				Quantity: 2,
			},
		},
	}
}

func TestRepositoryCreateAndFind(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	customerID := uuid.New()
	created, err := repo.Create(ctx, buildTestOrder(customerID, "pi_123"))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	require.Len(t, created.Items, 1)
	require.NotEqual(t, uuid.Nil, created.Items[0].ID)
	assert.Equal(t, created.ID, created.Items[0].OrderID)

	found, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.OrderNumber, found.OrderNumber)
	require.Len(t, found.Items, 1)
	assert.Equal(t, "Phone Case", found.Items[0].Name)
	require.NotNil(t, found.Customer.ID)
	assert.Equal(t, customerID, *found.Customer.ID)

	byIntent, err := repo.FindByPaymentIntentID(ctx, "pi_123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byIntent.ID)
}

func TestRepositoryPaymentIntentUnique(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, buildTestOrder(uuid.New(), "pi_dup"))
	require.NoError(t, err)

	_, err = repo.Create(ctx, buildTestOrder(uuid.New(), "pi_dup"))
	require.Error(t, err)
}

func TestRepositoryUpdateItem(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, buildTestOrder(uuid.New(), "pi_upd"))
	require.NoError(t, err)
	itemID := created.Items[0].ID

	now := time.Now().UTC()
	require.NoError(t, repo.UpdateItem(ctx, itemID, map[string]any{
		"refunded_quantity": 1,
		"refund_reason":     "damaged",
		"last_refunded_at":  now,
	}))

	item, err := repo.FindItem(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 1, item.RefundedQuantity)
	require.NotNil(t, item.RefundReason)
	assert.Equal(t, "damaged", *item.RefundReason)
}

func TestRepositoryListByCustomer(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	mine := uuid.New()
	theirs := uuid.New()
	_, err := repo.Create(ctx, buildTestOrder(mine, "pi_mine"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, buildTestOrder(theirs, "pi_theirs"))
	require.NoError(t, err)

	list, err := repo.ListByCustomer(ctx, mine, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, "ana@example.com", list.Orders[0].CustomerEmail)
}

func TestRepositoryListFiltersByStatus(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first, err := repo.Create(ctx, buildTestOrder(uuid.New(), "pi_a"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, buildTestOrder(uuid.New(), "pi_b"))
	require.NoError(t, err)

	require.NoError(t, repo.Update(ctx, first.ID, map[string]any{"status": enums.OrderStatusShipped}))

	shipped := enums.OrderStatusShipped
	list, err := repo.List(ctx, pagination.Params{}, OrderFilters{Status: &shipped})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, first.ID, list.Orders[0].ID)
}

func TestRepositoryListPagination(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		order := buildTestOrder(uuid.New(), uuid.NewString())
		order.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		_, err := repo.Create(ctx, order)
		require.NoError(t, err)
	}

	page, err := repo.List(ctx, pagination.Params{Limit: 2}, OrderFilters{})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := repo.List(ctx, pagination.Params{Limit: 2, Cursor: page.NextCursor}, OrderFilters{})
	require.NoError(t, err)
	require.Len(t, rest.Orders, 1)
	assert.Empty(t, rest.NextCursor)
}
