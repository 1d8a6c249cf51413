package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lucasferreyra/webshop-backend/api/middleware"
	"github.com/lucasferreyra/webshop-backend/api/responses"
	"github.com/lucasferreyra/webshop-backend/api/validators"
	internalorders "github.com/lucasferreyra/webshop-backend/internal/orders"
	"github.com/lucasferreyra/webshop-backend/internal/refunds"
	"github.com/lucasferreyra/webshop-backend/pkg/db/models"
	"github.com/lucasferreyra/webshop-backend/pkg/enums"
	pkgerrors "github.com/lucasferreyra/webshop-backend/pkg/errors"
	"github.com/lucasferreyra/webshop-backend/pkg/logger"
	"github.com/lucasferreyra/webshop-backend/pkg/pagination"
)

type adminOrderService interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, params pagination.Params, filters internalorders.OrderFilters) (*internalorders.OrderList, error)
	UpdateStatus(ctx context.Context, input internalorders.AdminStatusUpdateInput) (*models.Order, error)
}

type refundProcessor interface {
	Process(ctx context.Context, input refunds.Input) (*refunds.Result, error)
}

type statusUpdateRequest struct {
	Status string  `json:"status" validate:"required"`
	ItemID *string `json:"item_id,omitempty" validate:"omitempty,uuid"`
}

type refundItemRequest struct {
	ItemID   string `json:"item_id" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
	Reason   string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type refundRequest struct {
	Items  []refundItemRequest `json:"items,omitempty" validate:"omitempty,dive"`
	Amount *decimal.Decimal    `json:"amount,omitempty"`
	Reason string              `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type refundResponse struct {
	Success           bool            `json:"success"`
	RefundID          string          `json:"refund_id"`
	Amount            decimal.Decimal `json:"amount"`
	AmountCents       int64           `json:"amount_cents"`
	Message           string          `json:"message"`
	InventoryRestored bool            `json:"inventory_restored"`
	InventoryError    string          `json:"inventory_error,omitempty"`
}

// AdminOrders returns the filtered, paginated order list for the back office.
func AdminOrders(svc adminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		filters, err := parseOrderFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListOrders(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminOrderDetail returns one order with its items and refund history.
func AdminOrderDetail(svc adminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// AdminUpdateOrderStatus moves an order (or a single item, when item_id
// is present with a delivered status) through the fulfilment lifecycle.
func AdminUpdateOrderStatus(svc adminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body statusUpdateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseOrderStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}

		input := internalorders.AdminStatusUpdateInput{
			OrderID:    orderID,
			Status:     status,
			ActorEmail: middleware.EmailFromContext(r.Context()),
		}
		if body.ItemID != nil {
			itemID, parseErr := uuid.Parse(*body.ItemID)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid item id"))
				return
			}
			input.ItemID = &itemID
		}

		order, err := svc.UpdateStatus(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// AdminRefundOrder issues a partial (itemized) or full refund against
// the order's captured payment.
func AdminRefundOrder(svc refundProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}

		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body refundRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := refunds.Input{
			OrderID:     orderID,
			Amount:      body.Amount,
			Reason:      strings.TrimSpace(body.Reason),
			ProcessedBy: middleware.EmailFromContext(r.Context()),
		}
		for _, item := range body.Items {
			itemID, parseErr := uuid.Parse(item.ItemID)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid item id"))
				return
			}
			input.Items = append(input.Items, refunds.ItemRequest{
				ItemID:   itemID,
				Quantity: item.Quantity,
				Reason:   strings.TrimSpace(item.Reason),
			})
		}

		result, err := svc.Process(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, refundResponse{
			Success:           true,
			RefundID:          result.RefundID,
			Amount:            result.Amount,
			AmountCents:       result.AmountCents,
			Message:           result.Message,
			InventoryRestored: result.SideEffects.InventoryRestored,
			InventoryError:    result.SideEffects.InventoryError,
		})
	}
}

func parseOrderFilters(r *http.Request) (internalorders.OrderFilters, error) {
	filters := internalorders.OrderFilters{
		Query: strings.TrimSpace(r.URL.Query().Get("q")),
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("payment_status")); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment status filter")
		}
		filters.PaymentStatus = &status
	}

	dateFrom, err := validators.ParseQueryTime(r, "date_from")
	if err != nil {
		return filters, err
	}
	filters.DateFrom = dateFrom

	dateTo, err := validators.ParseQueryTime(r, "date_to")
	if err != nil {
		return filters, err
	}
	filters.DateTo = dateTo

	return filters, nil
}
