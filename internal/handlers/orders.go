package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/threadcraft/api/internal/domain"
	"github.com/threadcraft/api/internal/platform/auth"
	"github.com/threadcraft/api/internal/platform/httpx"
	"github.com/threadcraft/api/internal/platform/pagination"
	"github.com/threadcraft/api/internal/services"
)

const maxOrderBodySize = 64 * 1024

// OrderHandlers exposes order placement, reads, and admin lifecycle updates.
type OrderHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	pager   pagination.Options
	limiter rateLimiter
}

// OrderHandlerOption customises order handler construction.
type OrderHandlerOption func(*OrderHandlers)

// WithPlacementRateLimit throttles order creation per user to limit requests
// within the given window.
func WithPlacementRateLimit(limit int, window time.Duration) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlerOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
		pager:  pagination.Options{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	authed := func(next http.Handler) http.Handler { return next }
	adminOnly := authed
	if h.authn != nil {
		authed = h.authn.RequireAuth()
		adminOnly = h.authn.RequireAuth(auth.RoleAdmin, auth.RoleSuperAdmin)
	}

	r.With(authed).Post("/", h.createOrder)
	r.With(authed).Get("/", h.listOrders)
	r.With(authed).Get("/{orderID}", h.getOrder)
	r.With(adminOnly).Put("/{orderID}", h.updateOrder)
}

type createOrderRequest struct {
	Customer        customerPayload  `json:"customer"`
	Items           []orderLineInput `json:"items"`
	ShippingAddress addressPayload   `json:"shippingAddress"`
	BillingAddress  *addressPayload  `json:"billingAddress,omitempty"`
	Shipping        *shippingInput   `json:"shipping,omitempty"`
	ShippingMethod  string           `json:"shippingMethod,omitempty"`
	PaymentMethod   string           `json:"paymentMethod"`
	CouponCode      string           `json:"couponCode,omitempty"`
	Notes           string           `json:"notes,omitempty"`
}

// shippingInput is the nested shipping selection. Cost, when present, is the
// client-quoted charge in minor units; the service rejects negative values
// and falls back to configured defaults when it is omitted.
type shippingInput struct {
	Method string `json:"method"`
	Cost   *int64 `json:"cost,omitempty"`
}

type orderLineInput struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Color     string `json:"color,omitempty"`
	Quantity  int    `json:"quantity"`
}

type updateOrderRequest struct {
	Status         *string `json:"status,omitempty"`
	PaymentStatus  *string `json:"paymentStatus,omitempty"`
	TrackingNumber *string `json:"trackingNumber,omitempty"`
	Notes          *string `json:"notes,omitempty"`
	Location       string  `json:"location,omitempty"`
	Description    string  `json:"description,omitempty"`
	CancelReason   string  `json:"cancelReason,omitempty"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnauthorized, "authentication required", http.StatusUnauthorized))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(identity.UserID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many order requests, retry later", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidation, "invalid JSON body", http.StatusBadRequest))
		return
	}

	items := make([]services.CreateOrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		items = append(items, services.CreateOrderItem{
			ProductID: line.ProductID,
			Size:      line.Size,
			Color:     line.Color,
			Quantity:  line.Quantity,
		})
	}

	cmd := services.CreateOrderCommand{
		UserID:          identity.UserID,
		Customer:        req.Customer.toDomain(),
		Items:           items,
		ShippingAddress: req.ShippingAddress.toDomain(),
		ShippingMethod:  req.ShippingMethod,
		PaymentMethod:   req.PaymentMethod,
		CouponCode:      req.CouponCode,
		Notes:           req.Notes,
	}
	// The nested shipping object wins over the flat legacy field.
	if req.Shipping != nil {
		if req.Shipping.Method != "" {
			cmd.ShippingMethod = req.Shipping.Method
		}
		cmd.ShippingCost = req.Shipping.Cost
	}
	if req.BillingAddress != nil {
		billing := req.BillingAddress.toDomain()
		cmd.BillingAddress = &billing
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnauthorized, "authentication required", http.StatusUnauthorized))
		return
	}

	params, err := pagination.FromRequest(r, h.pager)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidation, err.Error(), http.StatusBadRequest))
		return
	}

	query := services.OrderListQuery{
		Actor:      actorFromIdentity(identity),
		UserID:     strings.TrimSpace(r.URL.Query().Get("userId")),
		Pagination: domain.Pagination{Page: params.Page, Limit: params.Limit},
	}

	for _, raw := range parseFilterValues(r.URL.Query()["status"]) {
		query.Status = append(query.Status, domain.OrderStatus(strings.ToLower(raw)))
	}
	for _, raw := range parseFilterValues(r.URL.Query()["paymentStatus"]) {
		query.PaymentStatus = append(query.PaymentStatus, domain.PaymentStatus(strings.ToLower(raw)))
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidation, "from must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		query.From = &ts
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidation, "to must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		query.To = &ts
	}

	page, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items: items,
		Page:  page.Page,
		Limit: page.Limit,
		Total: page.Total,
		Pages: page.Pages,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnauthorized, "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidation, "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, actorFromIdentity(identity))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, _ := auth.IdentityFromContext(ctx)
	actorID := ""
	if identity != nil {
		actorID = identity.UserID
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidation, "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req updateOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidation, "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.UpdateOrderCommand{
		OrderID:        orderID,
		TrackingNumber: req.TrackingNumber,
		Notes:          req.Notes,
		Location:       req.Location,
		Description:    req.Description,
		CancelReason:   req.CancelReason,
		ActorID:        actorID,
	}
	if req.Status != nil {
		status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		cmd.Status = &status
	}
	if req.PaymentStatus != nil {
		status := domain.PaymentStatus(strings.ToLower(strings.TrimSpace(*req.PaymentStatus)))
		cmd.PaymentStatus = &status
	}

	order, err := h.orders.UpdateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// Response payloads ----------------------------------------------------------

type orderListResponse struct {
	Items []orderPayload `json:"items"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Total int64          `json:"total"`
	Pages int            `json:"pages"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID              string                 `json:"id"`
	OrderNumber     string                 `json:"orderNumber"`
	UserID          string                 `json:"userId,omitempty"`
	Customer        customerPayload        `json:"customer"`
	Items           []orderItemPayload     `json:"items"`
	Subtotal        int64                  `json:"subtotal"`
	Tax             int64                  `json:"tax"`
	ShippingCost    int64                  `json:"shippingCost"`
	Discount        int64                  `json:"discount"`
	Total           int64                  `json:"total"`
	Currency        string                 `json:"currency"`
	Status          string                 `json:"status"`
	PaymentStatus   string                 `json:"paymentStatus"`
	PaymentMethod   string                 `json:"paymentMethod,omitempty"`
	CouponCode      string                 `json:"couponCode,omitempty"`
	ShippingAddress addressPayload         `json:"shippingAddress"`
	BillingAddress  *addressPayload        `json:"billingAddress,omitempty"`
	Shipping        shippingPayload        `json:"shipping"`
	TrackingEvents  []trackingEventPayload `json:"trackingEvents"`
	Notes           string                 `json:"notes,omitempty"`
	CreatedAt       string                 `json:"createdAt"`
	UpdatedAt       string                 `json:"updatedAt"`
	DeliveredAt     string                 `json:"deliveredAt,omitempty"`
	CancelledAt     string                 `json:"cancelledAt,omitempty"`
	CancelReason    string                 `json:"cancelReason,omitempty"`
}

type customerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

func (p customerPayload) toDomain() domain.CustomerInfo {
	return domain.CustomerInfo(p)
}

type orderItemPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Slug      string `json:"slug,omitempty"`
	Image     string `json:"image,omitempty"`
	SKU       string `json:"sku"`
	Size      string `json:"size"`
	Color     string `json:"color,omitempty"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	Total     int64  `json:"total"`
}

type addressPayload struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
}

func (p addressPayload) toDomain() domain.Address {
	return domain.Address(p)
}

type shippingPayload struct {
	Method            string `json:"method"`
	Cost              int64  `json:"cost"`
	TrackingNumber    string `json:"trackingNumber,omitempty"`
	EstimatedDelivery string `json:"estimatedDelivery,omitempty"`
}

type trackingEventPayload struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	UpdatedBy   string `json:"updatedBy,omitempty"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Slug:      item.Slug,
			Image:     item.Image,
			SKU:       item.SKU,
			Size:      item.Size,
			Color:     item.Color,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Total:     item.Total,
		})
	}

	events := make([]trackingEventPayload, 0, len(order.TrackingEvents))
	for _, event := range order.TrackingEvents {
		events = append(events, trackingEventPayload{
			Status:      string(event.Status),
			Timestamp:   formatTime(event.Timestamp),
			Location:    event.Location,
			Description: event.Description,
			UpdatedBy:   event.UpdatedBy,
		})
	}

	payload := orderPayload{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		Customer:        customerPayload(order.Customer),
		Items:           items,
		Subtotal:        order.Subtotal,
		Tax:             order.Tax,
		ShippingCost:    order.ShippingCost,
		Discount:        order.Discount,
		Total:           order.Total,
		Currency:        order.Currency,
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		PaymentMethod:   order.PaymentMethod,
		CouponCode:      order.CouponCode,
		ShippingAddress: addressPayload(order.ShippingAddress),
		Shipping: shippingPayload{
			Method:            order.Shipping.Method,
			Cost:              order.Shipping.Cost,
			EstimatedDelivery: formatTime(order.Shipping.EstimatedDelivery),
		},
		TrackingEvents: events,
		Notes:          order.Notes,
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
		DeliveredAt:    formatTimePtr(order.DeliveredAt),
		CancelledAt:    formatTimePtr(order.CancelledAt),
	}
	if order.BillingAddress != nil {
		billing := addressPayload(*order.BillingAddress)
		payload.BillingAddress = &billing
	}
	if order.Shipping.TrackingNumber != nil {
		payload.Shipping.TrackingNumber = *order.Shipping.TrackingNumber
	}
	if order.CancelReason != nil {
		payload.CancelReason = *order.CancelReason
	}
	return payload
}

func actorFromIdentity(identity *auth.Identity) services.Actor {
	if identity == nil {
		return services.Actor{}
	}
	return services.Actor{
		UserID: strings.TrimSpace(identity.UserID),
		Admin:  identity.IsAdmin(),
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidation, err.Error(), http.StatusBadRequest))
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeValidation, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInsufficientStock, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeNotFound, "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeConflict, err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInternal, "failed to process order request", http.StatusInternalServerError))
	}
}
