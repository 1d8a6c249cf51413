package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lucasferreyra/webshop-backend/internal/cart"
	"github.com/lucasferreyra/webshop-backend/internal/cron"
	"github.com/lucasferreyra/webshop-backend/internal/orders"
	"github.com/lucasferreyra/webshop-backend/internal/products"
	stripewebhook "github.com/lucasferreyra/webshop-backend/internal/webhooks/stripe"
	"github.com/lucasferreyra/webshop-backend/pkg/config"
	"github.com/lucasferreyra/webshop-backend/pkg/db"
	"github.com/lucasferreyra/webshop-backend/pkg/logger"
	"github.com/lucasferreyra/webshop-backend/pkg/metrics"
	"github.com/lucasferreyra/webshop-backend/pkg/migrate"
	"github.com/lucasferreyra/webshop-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	// The intake service runs here without the Redis guard: events in
	// payment_events already passed webhook-time dedup, and the row
	// status is the source of truth for what still needs processing.
	intakeService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Events:            stripewebhook.NewEventsRepository(dbClient.DB()),
		Orders:            orders.NewRepository(dbClient.DB()),
		Products:          products.NewRepository(dbClient.DB()),
		Cart:              cart.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Metrics:           metrics.NewPaymentMetrics(prometheus.DefaultRegisterer),
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook intake service", err)
		os.Exit(1)
	}

	retryJob, err := cron.NewPaymentEventRetryJob(cron.PaymentEventRetryJobParams{
		Logger:      logg,
		Intake:      intakeService,
		MaxAttempts: cfg.Cron.PaymentEventMaxAttempts,
		BatchSize:   cfg.Cron.PaymentEventBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment event retry job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(retryJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.PaymentEventRetryInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
