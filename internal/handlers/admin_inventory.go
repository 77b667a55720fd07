package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/threadcraft/api/internal/domain"
	"github.com/threadcraft/api/internal/platform/auth"
	"github.com/threadcraft/api/internal/platform/httpx"
	"github.com/threadcraft/api/internal/platform/pagination"
	"github.com/threadcraft/api/internal/services"
)

// AdminInventoryHandlers exposes stock reporting endpoints for operators.
type AdminInventoryHandlers struct {
	authn     *auth.Authenticator
	inventory services.InventoryService
	pager     pagination.Options
}

// NewAdminInventoryHandlers constructs admin inventory handlers.
func NewAdminInventoryHandlers(authn *auth.Authenticator, inventory services.InventoryService) *AdminInventoryHandlers {
	return &AdminInventoryHandlers{
		authn:     authn,
		inventory: inventory,
		pager:     pagination.Options{},
	}
}

// Routes registers the /admin endpoints.
func (h *AdminInventoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin, auth.RoleSuperAdmin))
	}
	r.Get("/inventory/low-stock", h.listLowStock)
}

type lowStockResponse struct {
	Items []stockSnapshotPayload `json:"items"`
	Page  int                    `json:"page"`
	Limit int                    `json:"limit"`
	Total int64                  `json:"total"`
	Pages int                    `json:"pages"`
}

type stockSnapshotPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Size      string `json:"size"`
	Color     string `json:"color,omitempty"`
	Stock     int    `json:"stock"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func (h *AdminInventoryHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, h.pager)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidation, err.Error(), http.StatusBadRequest))
		return
	}

	query := services.LowStockQuery{
		Pagination: domain.Pagination{Page: params.Page, Limit: params.Limit},
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("threshold")); raw != "" {
		threshold, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidation, "threshold must be an integer", http.StatusBadRequest))
			return
		}
		query.Threshold = threshold
	}

	page, err := h.inventory.ListLowStock(ctx, query)
	if err != nil {
		if errors.Is(err, services.ErrInventoryInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidation, err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInternal, "failed to list low stock", http.StatusInternalServerError))
		return
	}

	items := make([]stockSnapshotPayload, 0, len(page.Items))
	for _, snapshot := range page.Items {
		items = append(items, stockSnapshotPayload{
			ProductID: snapshot.ProductID,
			Name:      snapshot.Name,
			SKU:       snapshot.SKU,
			Size:      snapshot.Size,
			Color:     snapshot.Color,
			Stock:     snapshot.Stock,
			UpdatedAt: formatTime(snapshot.UpdatedAt),
		})
	}

	writeJSONResponse(w, http.StatusOK, lowStockResponse{
		Items: items,
		Page:  page.Page,
		Limit: page.Limit,
		Total: page.Total,
		Pages: page.Pages,
	})
}
