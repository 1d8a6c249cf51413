package stripewebhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lucasferreyra/webshop-backend/pkg/db"
	"github.com/lucasferreyra/webshop-backend/pkg/db/models"
	"github.com/lucasferreyra/webshop-backend/pkg/enums"
)

// EventsRepository persists incoming payment events so a failed intake
// is recoverable instead of silently acknowledged.
type EventsRepository struct {
	db *gorm.DB
}

// NewEventsRepository binds the repository to the provided DB handle.
func NewEventsRepository(conn *gorm.DB) *EventsRepository {
	return &EventsRepository{db: conn}
}

// Record stores the event. Returns false when the stripe event id was
// already recorded.
func (r *EventsRepository) Record(ctx context.Context, event *models.PaymentEvent) (bool, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = enums.PaymentEventStatusReceived
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		if db.IsUniqueViolation(err, "stripe_event_id") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FindByStripeEventID loads one stored event.
func (r *EventsRepository) FindByStripeEventID(ctx context.Context, stripeEventID string) (*models.PaymentEvent, error) {
	var event models.PaymentEvent
	if err := r.db.WithContext(ctx).First(&event, "stripe_event_id = ?", stripeEventID).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// MarkProcessed stamps the event as handled.
func (r *EventsRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.PaymentEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       enums.PaymentEventStatusProcessed,
			"processed_at": now,
			"updated_at":   now,
		}).Error
}

// MarkFailed records the failure and bumps the attempt counter.
func (r *EventsRepository) MarkFailed(ctx context.Context, id uuid.UUID, cause string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.PaymentEventStatusFailed,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause,
			"updated_at": time.Now().UTC(),
		}).Error
}

// ListRetryable returns failed or stuck events still under the attempt
// cap, oldest first.
func (r *EventsRepository) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	err := r.db.WithContext(ctx).
		Where("status IN ?", []enums.PaymentEventStatus{
			enums.PaymentEventStatusReceived,
			enums.PaymentEventStatusFailed,
		}).
		Where("attempts < ?", maxAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
