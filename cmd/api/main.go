package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lucasferreyra/webshop-backend/api/routes"
	"github.com/lucasferreyra/webshop-backend/internal/cart"
	"github.com/lucasferreyra/webshop-backend/internal/inventory"
	"github.com/lucasferreyra/webshop-backend/internal/notifications"
	"github.com/lucasferreyra/webshop-backend/internal/orders"
	"github.com/lucasferreyra/webshop-backend/internal/products"
	"github.com/lucasferreyra/webshop-backend/internal/refunds"
	stripewebhook "github.com/lucasferreyra/webshop-backend/internal/webhooks/stripe"
	"github.com/lucasferreyra/webshop-backend/pkg/config"
	"github.com/lucasferreyra/webshop-backend/pkg/db"
	"github.com/lucasferreyra/webshop-backend/pkg/logger"
	"github.com/lucasferreyra/webshop-backend/pkg/metrics"
	"github.com/lucasferreyra/webshop-backend/pkg/migrate"
	"github.com/lucasferreyra/webshop-backend/pkg/redis"
	"github.com/lucasferreyra/webshop-backend/pkg/stripe"
)

const webhookGuardTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)

	ordersRepo := orders.NewRepository(dbClient.DB())
	productsRepo := products.NewRepository(dbClient.DB())
	cartRepo := cart.NewRepository(dbClient.DB())

	reconciler, err := inventory.NewReconciler(dbClient, productsRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory reconciler", err)
		os.Exit(1)
	}

	refundsService, err := refunds.NewService(
		dbClient,
		ordersRepo,
		refunds.NewStripeClient(stripeClient),
		reconciler,
		paymentMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create refunds service", err)
		os.Exit(1)
	}

	mailer := notifications.NewMailer(cfg.Sendgrid, logg)

	ordersService, err := orders.NewService(ordersRepo, refundsService, reconciler, mailer, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookGuardTTL, stripewebhook.GuardScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	intakeService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Guard:             webhookGuard,
		Events:            stripewebhook.NewEventsRepository(dbClient.DB()),
		Orders:            ordersRepo,
		Products:          productsRepo,
		Cart:              cartRepo,
		TransactionRunner: dbClient,
		Metrics:           paymentMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook intake service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			stripeClient,
			ordersService,
			refundsService,
			intakeService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
