package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lucasferreyra/webshop-backend/pkg/types"
)

// CartItem is one line of a user's in-progress cart. The intake
// pipeline clears the cart once the paid order is persisted.
type CartItem struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	ProductID uuid.UUID               `gorm:"column:product_id;type:uuid;not null"`
	Quantity  int                     `gorm:"column:quantity;not null"`
	Color     *types.ColorSelection   `gorm:"column:color;type:jsonb"`
	Storage   *types.StorageSelection `gorm:"column:storage;type:jsonb"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartItem) TableName() string {
	return "cart_items"
}
