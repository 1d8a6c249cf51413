package cron

import (
	"context"
	"fmt"

	stripewebhook "github.com/lucasferreyra/webshop-backend/internal/webhooks/stripe"
	"github.com/lucasferreyra/webshop-backend/pkg/logger"
)

const (
	retryDefaultMaxAttempts = 10
	retryDefaultBatchSize   = 25
)

// paymentEventRetrier reprocesses stored webhook events that never
// produced an order.
type paymentEventRetrier interface {
	RetryPending(ctx context.Context, maxAttempts, batchSize int) (stripewebhook.RetryStats, error)
}

type PaymentEventRetryJobParams struct {
	Logger      *logger.Logger
	Intake      paymentEventRetrier
	MaxAttempts int
	BatchSize   int
}

func NewPaymentEventRetryJob(params PaymentEventRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Intake == nil {
		return nil, fmt.Errorf("webhook intake service required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = retryDefaultMaxAttempts
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = retryDefaultBatchSize
	}
	return &paymentEventRetryJob{
		logg:        params.Logger,
		intake:      params.Intake,
		maxAttempts: maxAttempts,
		batchSize:   batchSize,
	}, nil
}

type paymentEventRetryJob struct {
	logg        *logger.Logger
	intake      paymentEventRetrier
	maxAttempts int
	batchSize   int
}

func (j *paymentEventRetryJob) Name() string { return "payment-event-retry" }

func (j *paymentEventRetryJob) Run(ctx context.Context) error {
	stats, err := j.intake.RetryPending(ctx, j.maxAttempts, j.batchSize)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":   stats.Scanned,
		"recovered": stats.Recovered,
		"failed":    stats.Failed,
	})
	if err != nil {
		// Partial progress still counts; surface the rest for the next run.
		j.logg.Warn(logCtx, "payment event retry finished with errors")
		return fmt.Errorf("payment event retry: %w", err)
	}
	j.logg.Info(logCtx, "payment event retry complete")
	return nil
}
