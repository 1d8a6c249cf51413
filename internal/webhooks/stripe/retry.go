package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"
)

// RetryStats summarizes one retry sweep.
type RetryStats struct {
	Scanned   int
	Recovered int
	Failed    int
}

// RetryPending reprocesses stored payment events that never produced an
// order, oldest first. Each event is retried independently; one bad
// payload never blocks the rest of the batch.
func (s *Service) RetryPending(ctx context.Context, maxAttempts, batchSize int) (RetryStats, error) {
	var stats RetryStats

	events, err := s.events.ListRetryable(ctx, maxAttempts, batchSize)
	if err != nil {
		return stats, fmt.Errorf("list retryable payment events: %w", err)
	}
	stats.Scanned = len(events)

	var errs error
	for _, event := range events {
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Payload, &intent); err != nil {
			stats.Failed++
			errs = multierr.Append(errs, fmt.Errorf("event %s: decode payload: %w", event.StripeEventID, err))
			if markErr := s.events.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
				errs = multierr.Append(errs, markErr)
			}
			continue
		}

		if err := s.CreateOrderFromIntent(ctx, &intent); err != nil {
			stats.Failed++
			errs = multierr.Append(errs, fmt.Errorf("event %s: %w", event.StripeEventID, err))
			if markErr := s.events.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
				errs = multierr.Append(errs, markErr)
			}
			continue
		}

		stats.Recovered++
		if err := s.events.MarkProcessed(ctx, event.ID); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return stats, errs
}
