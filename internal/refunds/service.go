package refunds

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/lucasferreyra/webshop-backend/internal/orders"
	"github.com/lucasferreyra/webshop-backend/pkg/db"
	"github.com/lucasferreyra/webshop-backend/pkg/db/models"
	"github.com/lucasferreyra/webshop-backend/pkg/enums"
	pkgerrors "github.com/lucasferreyra/webshop-backend/pkg/errors"
	"github.com/lucasferreyra/webshop-backend/pkg/logger"
	"github.com/lucasferreyra/webshop-backend/pkg/metrics"
	"github.com/lucasferreyra/webshop-backend/pkg/money"
	"github.com/lucasferreyra/webshop-backend/pkg/types"
)

// StockRestorer returns refunded units to the catalog. Implemented by
// the inventory reconciler.
type StockRestorer interface {
	RestoreRefunded(ctx context.Context, orderID uuid.UUID) error
}

// Service processes partial and full refunds against Stripe and keeps
// the order's refund bookkeeping consistent with the money moved.
type Service struct {
	client    *db.Client
	repo      orders.Repository
	stripe    StripeRefundClient
	inventory StockRestorer
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
}

// NewService builds a refund service with the required dependencies.
func NewService(client *db.Client, repo orders.Repository, stripeClient StripeRefundClient, inventory StockRestorer, paymentMetrics *metrics.PaymentMetrics, logg *logger.Logger) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if stripeClient == nil {
		return nil, fmt.Errorf("stripe refund client required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory restorer required")
	}
	return &Service{
		client:    client,
		repo:      repo,
		stripe:    stripeClient,
		inventory: inventory,
		metrics:   paymentMetrics,
		logg:      logg,
	}, nil
}

// itemAdjustment is the per-line bookkeeping a refund will apply.
type itemAdjustment struct {
	item     models.OrderItem
	quantity int
	reason   string
}

// Process validates, charges back through Stripe, and records the
// refund. The Stripe call happens before the local transaction; if the
// bookkeeping then fails the stored payment event retry loop is the
// recovery path, never a second charge.
func (s *Service) Process(ctx context.Context, input Input) (*Result, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if len(input.Items) == 0 && input.Amount == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "either items or amount must be provided")
	}

	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != enums.PaymentStatusSucceeded || order.PaymentIntentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no captured payment to refund")
	}
	if order.MaxRefundableCents() <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already fully refunded")
	}

	mode := modeAmount
	if len(input.Items) > 0 {
		mode = modeItems
	}

	cents, adjustments, err := s.plan(order, input)
	if err != nil {
		s.observe(mode, "rejected", 0)
		return nil, err
	}

	stripeRefund, err := s.createStripeRefund(ctx, order, input, mode, cents)
	if err != nil {
		s.observe(mode, "error", 0)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe refund")
	}

	if err := s.record(ctx, order, input, stripeRefund, cents, adjustments); err != nil {
		s.observe(mode, "error", 0)
		return nil, err
	}

	effects := SideEffects{InventoryRestored: true}
	if err := s.inventory.RestoreRefunded(ctx, order.ID); err != nil {
		// Stock is reconcilable later; the refund itself already stands.
		s.warn(ctx, "restock after refund failed", err)
		effects = SideEffects{InventoryError: err.Error()}
	}

	s.observe(mode, "success", cents)
	return &Result{
		RefundID:    stripeRefund.ID,
		AmountCents: cents,
		Amount:      money.FromCents(cents),
		Message:     fmt.Sprintf("Successfully processed refund of $%s", money.CentsString(cents)),
		SideEffects: effects,
	}, nil
}

// RefundOutstanding refunds everything not yet refunded on the order.
// Used by cancellations. Orders with nothing outstanding are a no-op.
func (s *Service) RefundOutstanding(ctx context.Context, orderID uuid.UUID, processedBy string) error {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	outstanding := order.MaxRefundableCents()
	if outstanding <= 0 {
		return nil
	}
	amount := money.FromCents(outstanding)
	_, err = s.Process(ctx, Input{
		OrderID:     orderID,
		Amount:      &amount,
		Reason:      "order cancelled",
		ProcessedBy: processedBy,
	})
	return err
}

func (s *Service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// plan computes the refund amount in cents and the per-item bookkeeping.
//
// Itemized refunds allocate tax and shipping proportionally to each
// line's share of the subtotal, rounding once per line:
//
//	line = price*qty*100 + tax*100*share + shipping*100*share
//
// Flat-amount refunds convert the requested major-unit figure and mark
// every line's outstanding quantity as refunded.
func (s *Service) plan(order *models.Order, input Input) (int64, []itemAdjustment, error) {
	var cents int64
	var adjustments []itemAdjustment

	if len(input.Items) > 0 {
		// Quantities claimed by earlier lines of this same request, so a
		// request repeating an item id cannot outrun the item ceiling.
		claimed := map[uuid.UUID]int{}
		for _, request := range input.Items {
			item := findItem(order, request.ItemID)
			if item == nil {
				return 0, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %s not found in order", request.ItemID))
			}
			available := item.OutstandingQuantity() - claimed[item.ID]
			if request.Quantity < 1 || request.Quantity > available {
				return 0, nil, pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("only %d unit(s) of %q available for refund", available, item.Name))
			}
			claimed[item.ID] += request.Quantity

			qty := decimal.NewFromInt(int64(request.Quantity))
			lineTotal := item.Price.Mul(hundred).Mul(qty)
			share := money.Proportion(item.Price.Mul(qty), order.Subtotal)
			lineTax := order.TaxAmount.Mul(hundred).Mul(share)
			lineShipping := order.ShippingCost.Mul(hundred).Mul(share)
			cents += lineTotal.Add(lineTax).Add(lineShipping).Round(0).IntPart()

			reason := request.Reason
			if reason == "" {
				reason = input.Reason
			}
			adjustments = append(adjustments, itemAdjustment{item: *item, quantity: request.Quantity, reason: reason})
		}
	} else {
		// A flat amount always settles the whole remainder. Anything
		// smaller must name the items it covers, otherwise the per-item
		// bookkeeping would drift from the money moved.
		cents = money.ToCents(*input.Amount)
		if outstanding := order.MaxRefundableCents(); cents != outstanding {
			return 0, nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("amount must equal the outstanding refundable amount $%s; use itemized refunds for partial refunds", money.CentsString(outstanding)))
		}
		for _, item := range order.Items {
			outstanding := item.OutstandingQuantity()
			if outstanding <= 0 {
				continue
			}
			adjustments = append(adjustments, itemAdjustment{item: item, quantity: outstanding, reason: input.Reason})
		}
	}

	if cents <= 0 {
		return 0, nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if max := order.MaxRefundableCents(); cents > max {
		return 0, nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("refund exceeds outstanding balance; maximum refundable amount is $%s", money.CentsString(max)))
	}
	return cents, adjustments, nil
}

func (s *Service) createStripeRefund(ctx context.Context, order *models.Order, input Input, mode string, cents int64) (*stripe.Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(*order.PaymentIntentID),
		Amount:        stripe.Int64(cents),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
		Metadata: map[string]string{
			"order_id":      order.ID.String(),
			"order_number":  order.OrderNumber,
			"refund_type":   mode,
			"processed_by":  input.ProcessedBy,
			"custom_reason": input.Reason,
		},
	}
	return s.stripe.Create(ctx, params)
}

// record applies the bookkeeping in one transaction: the refund audit
// record, per-item refunded quantities, and the order's running total
// and resulting status. The row lock re-checks both the order ceiling
// and every item's outstanding quantity against the locked row, so two
// concurrent refunds cannot both fit under either, and quantities never
// derive from the pre-lock read.
func (s *Service) record(ctx context.Context, order *models.Order, input Input, stripeRefund *stripe.Refund, cents int64, adjustments []itemAdjustment) error {
	now := time.Now().UTC()

	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		locked, err := txRepo.FindByIDForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		if cents > locked.MaxRefundableCents() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "concurrent refund exceeded the outstanding balance")
		}

		record := &models.RefundRecord{
			ID:             uuid.New(),
			OrderID:        locked.ID,
			StripeRefundID: stripeRefund.ID,
			Amount:         money.FromCents(cents),
			Reason:         refundReason(input),
			StripeReason:   string(stripeRefund.Reason),
			Items:          recordedItems(adjustments),
			ProcessedBy:    input.ProcessedBy,
		}
		if _, err := txRepo.CreateRefundRecord(ctx, record); err != nil {
			return err
		}

		for _, adj := range aggregateByItem(adjustments) {
			lockedItem := findItem(locked, adj.item.ID)
			if lockedItem == nil {
				return pkgerrors.New(pkgerrors.CodeStateConflict,
					fmt.Sprintf("item %s no longer on order", adj.item.ID))
			}
			if adj.quantity > lockedItem.OutstandingQuantity() {
				return pkgerrors.New(pkgerrors.CodeStateConflict,
					fmt.Sprintf("a concurrent refund already claimed units of %q", lockedItem.Name))
			}
			updates := map[string]any{
				"refunded_quantity": lockedItem.RefundedQuantity + adj.quantity,
				"last_refunded_at":  now,
			}
			if adj.reason != "" {
				updates["refund_reason"] = adj.reason
			}
			if err := txRepo.UpdateItem(ctx, lockedItem.ID, updates); err != nil {
				return err
			}
		}

		newRefundedCents := locked.RefundedAmountCents() + cents
		updates := map[string]any{
			"refunded_amount": money.FromCents(newRefundedCents),
			"refunded_at":     now,
		}
		if newRefundedCents >= locked.TotalCents {
			updates["status"] = enums.OrderStatusRefunded
			updates["refunded"] = true
			updates["partially_refunded"] = false
		} else {
			updates["status"] = enums.OrderStatusPartiallyRefunded
			updates["partially_refunded"] = true
		}
		return txRepo.Update(ctx, locked.ID, updates)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return typed
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
	}
	return nil
}

func (s *Service) observe(mode, outcome string, cents int64) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveRefund(mode, outcome, cents)
}

func (s *Service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(ctx, msg, err)
}

var hundred = decimal.NewFromInt(100)

func findItem(order *models.Order, itemID uuid.UUID) *models.OrderItem {
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			return &order.Items[i]
		}
	}
	return nil
}

func refundReason(input Input) string {
	if input.Reason != "" {
		return input.Reason
	}
	return "requested_by_customer"
}

// aggregateByItem folds adjustment lines that name the same item into
// one, summing quantities. The last line-level reason wins, matching
// the overwrite semantics of refund_reason on the item itself.
func aggregateByItem(adjustments []itemAdjustment) []itemAdjustment {
	index := map[uuid.UUID]int{}
	folded := make([]itemAdjustment, 0, len(adjustments))
	for _, adj := range adjustments {
		if i, ok := index[adj.item.ID]; ok {
			folded[i].quantity += adj.quantity
			if adj.reason != "" {
				folded[i].reason = adj.reason
			}
			continue
		}
		index[adj.item.ID] = len(folded)
		folded = append(folded, adj)
	}
	return folded
}

func recordedItems(adjustments []itemAdjustment) types.RefundItems {
	items := make(types.RefundItems, 0, len(adjustments))
	for _, adj := range adjustments {
		items = append(items, types.RefundItem{
			ItemID:   adj.item.ID,
			Quantity: adj.quantity,
			Reason:   adj.reason,
		})
	}
	return items
}
