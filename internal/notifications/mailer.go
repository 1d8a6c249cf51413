package notifications

import (
	"context"
	"fmt"

	"github.com/lucasferreyra/webshop-backend/pkg/config"
	"github.com/lucasferreyra/webshop-backend/pkg/db/models"
	"github.com/lucasferreyra/webshop-backend/pkg/logger"
)

// Mailer sends customer lifecycle emails.
type Mailer interface {
	OrderCancelled(ctx context.Context, order *models.Order) error
}

// logMailer records the email that would have been sent. It stands in
// until a real provider integration lands; the Sendgrid config is
// threaded through so swapping implementations is a constructor change.
type logMailer struct {
	cfg  config.SendgridConfig
	logg *logger.Logger
}

// NewMailer builds the default mailer.
func NewMailer(cfg config.SendgridConfig, logg *logger.Logger) Mailer {
	return &logMailer{cfg: cfg, logg: logg}
}

func (m *logMailer) OrderCancelled(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order required")
	}
	if m.logg == nil {
		return nil
	}
	ctx = m.logg.WithFields(ctx, map[string]any{
		"order_number": order.OrderNumber,
		"recipient":    order.Customer.Email,
		"from":         m.cfg.DefaultFrom,
		"template":     "order_cancelled",
	})
	m.logg.Info(ctx, "order cancellation email queued")
	return nil
}
