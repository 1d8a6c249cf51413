package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lucasferreyra/webshop-backend/pkg/types"
)

// RefundRecord is the audit trail of one processed refund. The items
// payload lists exactly which lines and quantities it covered.
type RefundRecord struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	StripeRefundID string            `gorm:"column:stripe_refund_id;not null;uniqueIndex"`
	Amount         decimal.Decimal   `gorm:"column:amount;type:numeric(12,2);not null"`
	Reason         string            `gorm:"column:reason;not null"`
	StripeReason   string            `gorm:"column:stripe_reason"`
	Items          types.RefundItems `gorm:"column:items;type:jsonb"`
	ProcessedBy    string            `gorm:"column:processed_by;not null"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (RefundRecord) TableName() string {
	return "refund_records"
}
