package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/lucasferreyra/webshop-backend/internal/cart"
	"github.com/lucasferreyra/webshop-backend/internal/orders"
	"github.com/lucasferreyra/webshop-backend/internal/products"
	"github.com/lucasferreyra/webshop-backend/pkg/db"
	"github.com/lucasferreyra/webshop-backend/pkg/db/models"
	"github.com/lucasferreyra/webshop-backend/pkg/enums"
	pkgerrors "github.com/lucasferreyra/webshop-backend/pkg/errors"
	"github.com/lucasferreyra/webshop-backend/pkg/logger"
	"github.com/lucasferreyra/webshop-backend/pkg/metrics"
	"github.com/lucasferreyra/webshop-backend/pkg/types"
)

const (
	// GuardScope namespaces the redis idempotency keys for this intake.
	GuardScope = "stripe-event"

	orderNumberAttempts = 5
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams wires the intake service dependencies.
type ServiceParams struct {
	Guard             *IdempotencyGuard
	Events            *EventsRepository
	Orders            orders.Repository
	Products          *products.Repository
	Cart              *cart.Repository
	TransactionRunner txRunner
	Metrics           *metrics.PaymentMetrics
	Logger            *logger.Logger
}

// Service turns verified Stripe events into orders. Every
// payment_intent.succeeded is persisted before processing so a failure
// is a retryable row, not a lost sale.
type Service struct {
	guard    *IdempotencyGuard
	events   *EventsRepository
	orders   orders.Repository
	products *products.Repository
	cart     *cart.Repository
	txRunner txRunner
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment events repo required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "products repo required")
	}
	if params.Cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		guard:    params.Guard,
		events:   params.Events,
		orders:   params.Orders,
		products: params.Products,
		cart:     params.Cart,
		txRunner: params.TransactionRunner,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// HandleEvent processes one verified webhook event. It only returns an
// error for malformed input; processing failures are recorded on the
// stored event and acknowledged, leaving recovery to the retry job.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	start := time.Now()
	eventType := string(event.Type)
	outcome := "ignored"
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveWebhook(eventType, outcome, time.Since(start))
		}
	}()

	if s.logg != nil {
		ctx = s.logg.WithStripeEventID(ctx, event.ID)
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		outcome = s.handlePaymentSucceeded(ctx, event)
		return nil

	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err == nil && s.logg != nil {
			s.logg.Warn(ctx, "payment failed: "+intent.ID)
		}
		outcome = "logged"
		return nil

	case "refund.created", "refund.updated", "charge.refunded", "charge.refund.updated":
		// Expected echoes of our own refund processing.
		return nil

	default:
		if s.logg != nil {
			s.logg.Debug(ctx, "unhandled event type: "+eventType)
		}
		return nil
	}
}

func (s *Service) handlePaymentSucceeded(ctx context.Context, event *stripe.Event) string {
	if s.guard != nil {
		duplicate, err := s.guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			// Redis being down must not drop the sale; the unique
			// payment intent index still catches replays.
			s.warn(ctx, "idempotency guard unavailable", err)
		} else if duplicate {
			return "duplicate"
		}
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		s.warn(ctx, "decode payment intent", err)
		return "error"
	}

	stored := &models.PaymentEvent{
		StripeEventID:   event.ID,
		EventType:       string(event.Type),
		PaymentIntentID: intent.ID,
		Payload:         event.Data.Raw,
	}
	created, err := s.events.Record(ctx, stored)
	if err != nil {
		s.warn(ctx, "record payment event", err)
		// Release the mark so the next delivery can reach the database
		// again instead of being swallowed as a duplicate.
		if s.guard != nil {
			if delErr := s.guard.Delete(ctx, event.ID); delErr != nil {
				s.warn(ctx, "release idempotency mark", delErr)
			}
		}
		return "error"
	}
	if !created {
		return "duplicate"
	}

	if err := s.CreateOrderFromIntent(ctx, &intent); err != nil {
		s.warn(ctx, "create order from payment intent", err)
		if markErr := s.events.MarkFailed(ctx, stored.ID, err.Error()); markErr != nil {
			s.warn(ctx, "mark payment event failed", markErr)
		}
		return "failed"
	}

	if err := s.events.MarkProcessed(ctx, stored.ID); err != nil {
		s.warn(ctx, "mark payment event processed", err)
	}
	return "success"
}

// cartLine is the checkout cart snapshot serialized into the payment
// intent metadata.
type cartLine struct {
	ProductID string                  `json:"productId"`
	Quantity  int                     `json:"quantity"`
	Color     *types.ColorSelection   `json:"color,omitempty"`
	Storage   *types.StorageSelection `json:"storage,omitempty"`
}

// CreateOrderFromIntent builds and stores the order a captured payment
// describes. Safe to call again for the same intent: an existing order
// with the same payment intent id makes it a no-op.
func (s *Service) CreateOrderFromIntent(ctx context.Context, intent *stripe.PaymentIntent) error {
	if intent == nil || intent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent required")
	}

	userRaw := intent.Metadata["userId"]
	if userRaw == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "no user id in payment intent metadata")
	}
	userID, err := uuid.Parse(userRaw)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id in payment intent metadata")
	}

	if _, err := s.orders.FindByPaymentIntentID(ctx, intent.ID); err == nil {
		return nil
	} else if err != gorm.ErrRecordNotFound {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing order")
	}

	lines, err := parseCartLines(intent.Metadata["cart"])
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse cart metadata")
	}

	items, err := s.snapshotItems(ctx, lines)
	if err != nil {
		return err
	}

	order := buildOrder(userID, intent, items)
	if err := s.insertOrder(ctx, order, userID); err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order created: "+order.OrderNumber)
	}
	return nil
}

// insertOrder stores the order and clears the buyer's cart in one
// transaction, regenerating the order number on a rare collision.
func (s *Service) insertOrder(ctx context.Context, order *models.Order, userID uuid.UUID) error {
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txOrders := s.orders.WithTx(tx)

		var createErr error
		for attempt := 0; attempt < orderNumberAttempts; attempt++ {
			_, createErr = txOrders.Create(ctx, order)
			if createErr == nil {
				break
			}
			if db.IsUniqueViolation(createErr, "payment_intent_id") {
				// Raced with another delivery of the same intent.
				return nil
			}
			if !db.IsUniqueViolation(createErr, "order_number") {
				return createErr
			}
			order.OrderNumber = orders.GenerateOrderNumber(time.Now())
		}
		if createErr != nil {
			return createErr
		}

		return s.cart.WithTx(tx).ClearByUser(ctx, userID)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store order")
	}
	return nil
}

func (s *Service) snapshotItems(ctx context.Context, lines []cartLine) ([]models.OrderItem, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if id, err := uuid.Parse(line.ProductID); err == nil {
			ids = append(ids, id)
		}
	}
	catalog, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products for snapshot")
	}

	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		quantity := line.Quantity
		if quantity < 1 {
			quantity = 1
		}
		item := models.OrderItem{
			Name:     "Unknown Product",
			Price:    decimal.Zero,
			Quantity: quantity,
			Color:    line.Color,
			Storage:  line.Storage,
		}
		if id, err := uuid.Parse(line.ProductID); err == nil {
			if product, ok := catalog[id]; ok {
				productID := product.ID
				item.ProductID = &productID
				item.Name = product.Name
				item.Price = product.Price
				item.ImageURL = product.ImageURL
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func parseCartLines(raw string) ([]cartLine, error) {
	if raw == "" {
		raw = "[]"
	}
	var lines []cartLine
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func buildOrder(userID uuid.UUID, intent *stripe.PaymentIntent, items []models.OrderItem) *models.Order {
	meta := intent.Metadata
	now := time.Now().UTC()

	shippingMethod, err := enums.ParseShippingMethod(meta["shippingMethod"])
	if err != nil {
		shippingMethod = enums.ShippingMethodStandard
	}
	estimated := now.AddDate(0, 0, shippingMethod.DeliveryDays())

	customer := types.Customer{
		ID:        &userID,
		Email:     intent.ReceiptEmail,
		VATNumber: meta["vatNumber"],
		VATValid:  meta["vatValid"] == "true",
		Guest:     false,
	}
	address := types.Address{}
	if intent.Shipping != nil {
		customer.Name = intent.Shipping.Name
		customer.Phone = intent.Shipping.Phone
		if intent.Shipping.Address != nil {
			var line2 *string
			if intent.Shipping.Address.Line2 != "" {
				value := intent.Shipping.Address.Line2
				line2 = &value
			}
			address = types.Address{
				Line1:      intent.Shipping.Address.Line1,
				Line2:      line2,
				City:       intent.Shipping.Address.City,
				State:      intent.Shipping.Address.State,
				PostalCode: intent.Shipping.Address.PostalCode,
				Country:    intent.Shipping.Address.Country,
			}
		}
	}

	paymentMethod := "card"
	if len(intent.PaymentMethodTypes) > 0 {
		paymentMethod = intent.PaymentMethodTypes[0]
	}
	paymentIntentID := intent.ID
	var transactionID *string
	if intent.LatestCharge != nil && intent.LatestCharge.ID != "" {
		chargeID := intent.LatestCharge.ID
		transactionID = &chargeID
	}
	var notes *string
	if meta["notes"] != "" {
		text := meta["notes"]
		notes = &text
	}

	return &models.Order{
		OrderNumber:       orders.GenerateOrderNumber(now),
		OrderDate:         now,
		Customer:          customer,
		Status:            enums.OrderStatusProcessing,
		Subtotal:          metaDecimal(meta, "subtotal"),
		ShippingCost:      metaDecimal(meta, "shippingCost"),
		TaxAmount:         metaDecimal(meta, "taxAmount"),
		TaxRate:           metaDecimal(meta, "taxRate"),
		Discount:          decimal.Zero,
		TotalCents:        intent.Amount,
		Currency:          string(intent.Currency),
		ShippingAddress:   address,
		ShippingMethod:    shippingMethod,
		EstimatedDelivery: &estimated,
		PaymentMethod:     paymentMethod,
		PaymentStatus:     enums.PaymentStatus(intent.Status),
		PaymentIntentID:   &paymentIntentID,
		TransactionID:     transactionID,
		Notes:             notes,
		Source:            "web",
		IPAddress:         meta["clientIp"],
		UserAgent:         meta["userAgent"],
		RefundedAmount:    decimal.Zero,
		Items:             items,
	}
}

func metaDecimal(meta map[string]string, key string) decimal.Decimal {
	value, err := decimal.NewFromString(meta[key])
	if err != nil {
		return decimal.Zero
	}
	return value
}

func (s *Service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(ctx, msg, err)
}
