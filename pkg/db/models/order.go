package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lucasferreyra/webshop-backend/pkg/enums"
	"github.com/lucasferreyra/webshop-backend/pkg/types"
)

// Order is the canonical record of a purchase. Monetary fields follow
// the storefront's storage convention: TotalCents is integer minor
// units, everything else is major units on a numeric column.
type Order struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber       string               `gorm:"column:order_number;not null;uniqueIndex"`
	OrderDate         time.Time            `gorm:"column:order_date;not null"`
	Customer          types.Customer       `gorm:"column:customer;type:jsonb"`
	Status            enums.OrderStatus    `gorm:"column:status;type:text;not null;default:'processing'"`
	Subtotal          decimal.Decimal      `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ShippingCost      decimal.Decimal      `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	TaxAmount         decimal.Decimal      `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	TaxRate           decimal.Decimal      `gorm:"column:tax_rate;type:numeric(8,4);not null"`
	Discount          decimal.Decimal      `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	TotalCents        int64                `gorm:"column:total;not null"`
	Currency          string               `gorm:"column:currency;not null;default:'eur'"`
	ShippingAddress   types.Address        `gorm:"column:shipping_address;type:jsonb"`
	ShippingMethod    enums.ShippingMethod `gorm:"column:shipping_method;type:text;not null;default:'standard'"`
	TrackingNumber    *string              `gorm:"column:tracking_number"`
	EstimatedDelivery *time.Time           `gorm:"column:estimated_delivery"`
	PaymentMethod     string               `gorm:"column:payment_method;not null;default:'card'"`
	PaymentStatus     enums.PaymentStatus  `gorm:"column:payment_status;type:text;not null"`
	PaymentIntentID   *string              `gorm:"column:payment_intent_id;uniqueIndex"`
	TransactionID     *string              `gorm:"column:transaction_id"`
	Notes             *string              `gorm:"column:notes"`
	Source            string               `gorm:"column:source;not null;default:'web'"`
	IPAddress         string               `gorm:"column:ip_address"`
	UserAgent         string               `gorm:"column:user_agent"`
	Refunded          bool                 `gorm:"column:refunded;not null;default:false"`
	PartiallyRefunded bool                 `gorm:"column:partially_refunded;not null;default:false"`
	RefundedAmount    decimal.Decimal      `gorm:"column:refunded_amount;type:numeric(12,2);not null;default:0"`
	RefundedAt        *time.Time           `gorm:"column:refunded_at"`
	Items             []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Refunds           []RefundRecord       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// RefundedAmountCents converts the major-unit refund tally to minor
// units for comparison against TotalCents.
func (o Order) RefundedAmountCents() int64 {
	return o.RefundedAmount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// MaxRefundableCents is the outstanding amount still eligible for
// refund.
func (o Order) MaxRefundableCents() int64 {
	return o.TotalCents - o.RefundedAmountCents()
}

func (Order) TableName() string {
	return "orders"
}
