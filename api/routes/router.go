package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lucasferreyra/webshop-backend/api/controllers"
	webhookcontrollers "github.com/lucasferreyra/webshop-backend/api/controllers/webhooks"
	"github.com/lucasferreyra/webshop-backend/api/middleware"
	"github.com/lucasferreyra/webshop-backend/internal/orders"
	"github.com/lucasferreyra/webshop-backend/internal/refunds"
	stripewebhook "github.com/lucasferreyra/webshop-backend/internal/webhooks/stripe"
	"github.com/lucasferreyra/webshop-backend/pkg/config"
	"github.com/lucasferreyra/webshop-backend/pkg/db"
	"github.com/lucasferreyra/webshop-backend/pkg/logger"
	"github.com/lucasferreyra/webshop-backend/pkg/redis"
	"github.com/lucasferreyra/webshop-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	stripeClient *stripe.Client,
	ordersService orders.Service,
	refundsService *refunds.Service,
	intakeService *stripewebhook.Service,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins...),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbClient, redisClient, logg))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Stripe authenticates with its signature header, not a bearer token.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(intakeService, stripeClient, logg))
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Get("/", controllers.CustomerOrders(ordersService, logg))
		r.Get("/{orderId}", controllers.CustomerOrderDetail(ordersService, logg))
		r.Post("/{orderId}/cancel", controllers.CustomerCancelOrder(ordersService, logg))
	})

	r.Route("/api/admin/v1/orders", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Get("/", controllers.AdminOrders(ordersService, logg))
		r.Get("/{orderId}", controllers.AdminOrderDetail(ordersService, logg))
		r.Patch("/{orderId}/status", controllers.AdminUpdateOrderStatus(ordersService, logg))
		r.Post("/{orderId}/refund", controllers.AdminRefundOrder(refundsService, logg))
	})

	return r
}
