package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lucasferreyra/webshop-backend/pkg/types"
)

// OrderItem is one line of an order. Price and name are snapshotted at
// order time so later catalog changes never alter historical orders.
type OrderItem struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID         *uuid.UUID              `gorm:"column:product_id;type:uuid"`
	Name              string                  `gorm:"column:name;not null"`
	Price             decimal.Decimal         `gorm:"column:price;type:numeric(12,2);not null"`
	Quantity          int                     `gorm:"column:quantity;not null"`
	Color             *types.ColorSelection   `gorm:"column:color;type:jsonb"`
	Storage           *types.StorageSelection `gorm:"column:storage;type:jsonb"`
	ImageURL          string                  `gorm:"column:image_url"`
	Delivered         bool                    `gorm:"column:delivered;not null;default:false"`
	DeliveredAt       *time.Time              `gorm:"column:delivered_at"`
	RefundedQuantity  int                     `gorm:"column:refunded_quantity;not null;default:0"`
	RestockedQuantity int                     `gorm:"column:restocked_quantity;not null;default:0"`
	RefundReason      *string                 `gorm:"column:refund_reason"`
	LastRefundedAt    *time.Time              `gorm:"column:last_refunded_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// OutstandingQuantity is the quantity not yet refunded.
func (i OrderItem) OutstandingQuantity() int {
	return i.Quantity - i.RefundedQuantity
}

func (OrderItem) TableName() string {
	return "order_items"
}
