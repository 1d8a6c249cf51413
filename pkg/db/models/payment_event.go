package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lucasferreyra/webshop-backend/pkg/enums"
)

// PaymentEvent records every webhook delivery we accepted, so intake
// failures after the 2xx acknowledgement can be retried by the cron
// worker instead of being lost.
type PaymentEvent struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	StripeEventID   string                   `gorm:"column:stripe_event_id;not null;uniqueIndex"`
	EventType       string                   `gorm:"column:event_type;not null"`
	PaymentIntentID string                   `gorm:"column:payment_intent_id;not null;index"`
	Payload         []byte                   `gorm:"column:payload;type:jsonb;not null"`
	Status          enums.PaymentEventStatus `gorm:"column:status;type:text;not null;default:'received'"`
	Attempts        int                      `gorm:"column:attempts;not null;default:0"`
	LastError       *string                  `gorm:"column:last_error"`
	ProcessedAt     *time.Time               `gorm:"column:processed_at"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentEvent) TableName() string {
	return "payment_events"
}
