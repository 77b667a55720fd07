package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/threadcraft/api/internal/domain"
	"github.com/threadcraft/api/internal/services"
)

type stubInventoryService struct {
	lowStockFn func(context.Context, services.LowStockQuery) (domain.Page[services.StockSnapshot], error)
}

func (s *stubInventoryService) ListLowStock(ctx context.Context, query services.LowStockQuery) (domain.Page[services.StockSnapshot], error) {
	if s.lowStockFn != nil {
		return s.lowStockFn(ctx, query)
	}
	return domain.Page[services.StockSnapshot]{}, nil
}

func newAdminRouter(service services.InventoryService) chi.Router {
	handler := NewAdminInventoryHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)
	return router
}

func TestListLowStockHandler(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var captured services.LowStockQuery
	service := &stubInventoryService{
		lowStockFn: func(_ context.Context, query services.LowStockQuery) (domain.Page[services.StockSnapshot], error) {
			captured = query
			return domain.Page[services.StockSnapshot]{
				Items: []services.StockSnapshot{
					{ProductID: "prod-1", Name: "Classic Tee", SKU: "TEE-L-BLK", Size: "L", Color: "black", Stock: 2, UpdatedAt: now},
				},
				Page:  1,
				Limit: 10,
				Total: 1,
				Pages: 1,
			}, nil
		},
	}

	router := newAdminRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/admin/inventory/low-stock?threshold=3", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Threshold != 3 {
		t.Fatalf("expected threshold 3, got %d", captured.Threshold)
	}

	var resp lowStockResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Total != 1 || len(resp.Items) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Items[0].SKU != "TEE-L-BLK" || resp.Items[0].Stock != 2 {
		t.Fatalf("unexpected snapshot %+v", resp.Items[0])
	}
}

func TestListLowStockHandlerDefaultsThreshold(t *testing.T) {
	var captured services.LowStockQuery
	service := &stubInventoryService{
		lowStockFn: func(_ context.Context, query services.LowStockQuery) (domain.Page[services.StockSnapshot], error) {
			captured = query
			return domain.Page[services.StockSnapshot]{Page: 1, Limit: 10}, nil
		},
	}

	router := newAdminRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/admin/inventory/low-stock", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Threshold != 0 {
		t.Fatalf("expected zero threshold passthrough, got %d", captured.Threshold)
	}
}

func TestListLowStockHandlerRejectsBadThreshold(t *testing.T) {
	router := newAdminRouter(&stubInventoryService{})
	req := httptest.NewRequest(http.MethodGet, "/admin/inventory/low-stock?threshold=many", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestListLowStockHandlerInvalidInput(t *testing.T) {
	service := &stubInventoryService{
		lowStockFn: func(context.Context, services.LowStockQuery) (domain.Page[services.StockSnapshot], error) {
			return domain.Page[services.StockSnapshot]{}, fmt.Errorf("%w: threshold must not be negative", services.ErrInventoryInvalidInput)
		},
	}

	router := newAdminRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/admin/inventory/low-stock?threshold=-1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
