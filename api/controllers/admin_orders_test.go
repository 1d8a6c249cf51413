package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lucasferreyra/webshop-backend/api/middleware"
	internalorders "github.com/lucasferreyra/webshop-backend/internal/orders"
	"github.com/lucasferreyra/webshop-backend/internal/refunds"
	"github.com/lucasferreyra/webshop-backend/pkg/db/models"
	"github.com/lucasferreyra/webshop-backend/pkg/enums"
	"github.com/lucasferreyra/webshop-backend/pkg/pagination"
)

type stubAdminOrderService struct {
	getFn    func(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	listFn   func(ctx context.Context, params pagination.Params, filters internalorders.OrderFilters) (*internalorders.OrderList, error)
	updateFn func(ctx context.Context, input internalorders.AdminStatusUpdateInput) (*models.Order, error)
}

func (s stubAdminOrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.getFn(ctx, orderID)
}

func (s stubAdminOrderService) ListOrders(ctx context.Context, params pagination.Params, filters internalorders.OrderFilters) (*internalorders.OrderList, error) {
	return s.listFn(ctx, params, filters)
}

func (s stubAdminOrderService) UpdateStatus(ctx context.Context, input internalorders.AdminStatusUpdateInput) (*models.Order, error) {
	return s.updateFn(ctx, input)
}

type stubRefundProcessor struct {
	processFn func(ctx context.Context, input refunds.Input) (*refunds.Result, error)
}

func (s stubRefundProcessor) Process(ctx context.Context, input refunds.Input) (*refunds.Result, error) {
	return s.processFn(ctx, input)
}

func TestAdminOrdersFiltersAndPagination(t *testing.T) {
	orderID := uuid.New()
	svc := stubAdminOrderService{
		listFn: func(_ context.Context, params pagination.Params, filters internalorders.OrderFilters) (*internalorders.OrderList, error) {
			if params.Limit != 10 {
				t.Fatalf("unexpected limit %d", params.Limit)
			}
			if filters.Status == nil || *filters.Status != enums.OrderStatusShipped {
				t.Fatalf("unexpected status filter %v", filters.Status)
			}
			if filters.Query != "WS-2026" {
				t.Fatalf("unexpected query %q", filters.Query)
			}
			if filters.DateFrom == nil {
				t.Fatal("expected date_from filter")
			}
			return &internalorders.OrderList{
				Orders: []internalorders.OrderSummary{{ID: orderID, OrderNumber: "WS-2026-000001"}},
			}, nil
		},
	}

	handler := AdminOrders(svc, nil)
	req := httptest.NewRequest(http.MethodGet, "/?limit=10&status=shipped&q=WS-2026&date_from=2026-01-01T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Data internalorders.OrderList `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Orders) != 1 || envelope.Data.Orders[0].ID != orderID {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestAdminOrdersRejectsUnknownStatusFilter(t *testing.T) {
	svc := stubAdminOrderService{
		listFn: func(context.Context, pagination.Params, internalorders.OrderFilters) (*internalorders.OrderList, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	handler := AdminOrders(svc, nil)
	req := httptest.NewRequest(http.MethodGet, "/?status=bogus", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAdminUpdateOrderStatus(t *testing.T) {
	orderID := uuid.New()
	var captured internalorders.AdminStatusUpdateInput
	svc := stubAdminOrderService{
		updateFn: func(_ context.Context, input internalorders.AdminStatusUpdateInput) (*models.Order, error) {
			captured = input
			return &models.Order{Status: input.Status}, nil
		},
	}

	router := chi.NewRouter()
	router.Patch("/api/admin/v1/orders/{orderId}/status", AdminUpdateOrderStatus(svc, nil))

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/v1/orders/"+orderID.String()+"/status", strings.NewReader(`{"status":"shipped"}`))
	req = req.WithContext(middleware.WithIdentity(req.Context(), uuid.NewString(), "admin@webshop.dev", string(enums.UserRoleAdmin)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.OrderID != orderID {
		t.Fatalf("unexpected order id %s", captured.OrderID)
	}
	if captured.Status != enums.OrderStatusShipped {
		t.Fatalf("unexpected status %s", captured.Status)
	}
	if captured.ActorEmail != "admin@webshop.dev" {
		t.Fatalf("unexpected actor %q", captured.ActorEmail)
	}
	if captured.ItemID != nil {
		t.Fatalf("item id should be nil, got %v", captured.ItemID)
	}
}

func TestAdminUpdateOrderStatusSingleItem(t *testing.T) {
	orderID := uuid.New()
	itemID := uuid.New()
	var captured internalorders.AdminStatusUpdateInput
	svc := stubAdminOrderService{
		updateFn: func(_ context.Context, input internalorders.AdminStatusUpdateInput) (*models.Order, error) {
			captured = input
			return &models.Order{}, nil
		},
	}

	router := chi.NewRouter()
	router.Patch("/api/admin/v1/orders/{orderId}/status", AdminUpdateOrderStatus(svc, nil))

	body := `{"status":"delivered","item_id":"` + itemID.String() + `"}`
	req := httptest.NewRequest(http.MethodPatch, "/api/admin/v1/orders/"+orderID.String()+"/status", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.ItemID == nil || *captured.ItemID != itemID {
		t.Fatalf("unexpected item id %v", captured.ItemID)
	}
}

func TestAdminUpdateOrderStatusRejectsUnknownStatus(t *testing.T) {
	svc := stubAdminOrderService{
		updateFn: func(context.Context, internalorders.AdminStatusUpdateInput) (*models.Order, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	router := chi.NewRouter()
	router.Patch("/api/admin/v1/orders/{orderId}/status", AdminUpdateOrderStatus(svc, nil))

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/v1/orders/"+uuid.NewString()+"/status", strings.NewReader(`{"status":"teleported"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAdminRefundOrderItemized(t *testing.T) {
	orderID := uuid.New()
	itemID := uuid.New()
	var captured refunds.Input
	svc := stubRefundProcessor{
		processFn: func(_ context.Context, input refunds.Input) (*refunds.Result, error) {
			captured = input
			return &refunds.Result{
				RefundID:    "re_test_1",
				AmountCents: 5650,
				Amount:      decimal.RequireFromString("56.50"),
				Message:     "Successfully processed refund of $56.50",
				SideEffects: refunds.SideEffects{InventoryRestored: true},
			}, nil
		},
	}

	router := chi.NewRouter()
	router.Post("/api/admin/v1/orders/{orderId}/refund", AdminRefundOrder(svc, nil))

	body := `{"items":[{"item_id":"` + itemID.String() + `","quantity":1,"reason":"damaged"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/orders/"+orderID.String()+"/refund", strings.NewReader(body))
	req = req.WithContext(middleware.WithIdentity(req.Context(), uuid.NewString(), "admin@webshop.dev", string(enums.UserRoleAdmin)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.OrderID != orderID {
		t.Fatalf("unexpected order id %s", captured.OrderID)
	}
	if len(captured.Items) != 1 || captured.Items[0].ItemID != itemID || captured.Items[0].Quantity != 1 {
		t.Fatalf("unexpected items %+v", captured.Items)
	}
	if captured.ProcessedBy != "admin@webshop.dev" {
		t.Fatalf("unexpected processed_by %q", captured.ProcessedBy)
	}

	var envelope struct {
		Data refundResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data.Success || envelope.Data.RefundID != "re_test_1" {
		t.Fatalf("unexpected response %+v", envelope.Data)
	}
	if envelope.Data.AmountCents != 5650 || !envelope.Data.InventoryRestored {
		t.Fatalf("unexpected response %+v", envelope.Data)
	}
}

func TestAdminRefundOrderRejectsMalformedItemID(t *testing.T) {
	svc := stubRefundProcessor{
		processFn: func(context.Context, refunds.Input) (*refunds.Result, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	router := chi.NewRouter()
	router.Post("/api/admin/v1/orders/{orderId}/refund", AdminRefundOrder(svc, nil))

	body := `{"items":[{"item_id":"not-a-uuid","quantity":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/orders/"+uuid.NewString()+"/refund", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d (%s)", rec.Code, rec.Body.String())
	}
}
