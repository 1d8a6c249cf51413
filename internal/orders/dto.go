package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lucasferreyra/webshop-backend/pkg/db/models"
	"github.com/lucasferreyra/webshop-backend/pkg/enums"
)

// OrderFilters describe the inputs supported by the admin order list.
type OrderFilters struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	DateFrom      *time.Time
	DateTo        *time.Time
	Query         string
}

// OrderSummary exposes the aggregated fields returned in order lists.
type OrderSummary struct {
	ID             uuid.UUID         `json:"id"`
	OrderNumber    string            `json:"order_number"`
	OrderDate      time.Time         `json:"order_date"`
	Status         enums.OrderStatus `json:"status"`
	TotalCents     int64             `json:"total_cents"`
	Currency       string            `json:"currency"`
	TotalItems     int               `json:"total_items"`
	CustomerName   string            `json:"customer_name"`
	CustomerEmail  string            `json:"customer_email"`
	RefundedAmount decimal.Decimal   `json:"refunded_amount"`
}

// OrderList wraps the paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// AdminStatusUpdateInput carries an admin status change request. When
// ItemID is set alongside a delivered status, only that line item is
// marked delivered.
type AdminStatusUpdateInput struct {
	OrderID    uuid.UUID
	Status     enums.OrderStatus
	ItemID     *uuid.UUID
	ActorEmail string
}

// CustomerCancelInput carries a customer-initiated cancellation.
type CustomerCancelInput struct {
	OrderID    uuid.UUID
	CustomerID uuid.UUID
}

func summarize(order models.Order) OrderSummary {
	totalItems := 0
	for _, item := range order.Items {
		totalItems += item.Quantity
	}
	return OrderSummary{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		OrderDate:      order.OrderDate,
		Status:         order.Status,
		TotalCents:     order.TotalCents,
		Currency:       order.Currency,
		TotalItems:     totalItems,
		CustomerName:   order.Customer.Name,
		CustomerEmail:  order.Customer.Email,
		RefundedAmount: order.RefundedAmount,
	}
}
