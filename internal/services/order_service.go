package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/threadcraft/api/internal/domain"
	"github.com/threadcraft/api/internal/repositories"
)

const (
	orderEventCreated        = "order.created"
	orderEventStatusChanged  = "order.status.changed"
	orderEventPaymentChanged = "order.payment.changed"

	orderIDPrefix = "ord_"

	shippingMethodStandard = "standard"
	shippingMethodExpress  = "express"

	orderNumberSuffixLen = 6
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order or a referenced product could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInsufficientStock indicates a requested variant lacks stock.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates duplicate order numbers or concurrent writes.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
}

// OrderSettings holds the pricing and fulfilment defaults applied at order
// creation. Amounts are minor currency units.
type OrderSettings struct {
	Currency             string
	TaxRate              float64
	StandardShippingCost int64
	ExpressShippingCost  int64
	FreeShippingOver     int64
	DeliveryEstimateDays int
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Coupons     repositories.CouponRepository
	Settings    OrderSettings
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	products repositories.ProductRepository
	coupons  repositories.CouponRepository
	settings OrderSettings
	clock    func() time.Time
	newID    func() string
	events   OrderEventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Settings.TaxRate < 0 || deps.Settings.TaxRate >= 1 {
		return nil, errors.New("order service: tax rate must be in [0, 1)")
	}

	settings := deps.Settings
	if strings.TrimSpace(settings.Currency) == "" {
		settings.Currency = "usd"
	}
	if settings.DeliveryEstimateDays <= 0 {
		settings.DeliveryEstimateDays = 7
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:   deps.Orders,
		products: deps.Products,
		coupons:  deps.Coupons,
		settings: settings,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if err := validateCreateOrder(cmd); err != nil {
		return Order{}, err
	}

	now := s.now()

	products, err := s.loadProducts(ctx, cmd.Items)
	if err != nil {
		return Order{}, err
	}

	items, decrements, err := buildOrderLines(cmd.Items, products)
	if err != nil {
		return Order{}, err
	}

	var subtotal int64
	for _, item := range items {
		subtotal += item.Total
	}

	discount, couponCode, err := s.resolveDiscount(ctx, cmd.CouponCode, subtotal, now)
	if err != nil {
		return Order{}, err
	}

	shippingMethod := normalizeShippingMethod(cmd.ShippingMethod)
	shippingCost := s.shippingCost(shippingMethod, subtotal)
	if cmd.ShippingCost != nil {
		shippingCost = *cmd.ShippingCost
	}
	pricing := domain.PriceOrder(s.settings.Currency, s.settings.TaxRate, pricingLines(items), shippingCost, discount)

	order := Order{
		ID:              orderIDPrefix + s.newID(),
		OrderNumber:     s.generateOrderNumber(now),
		UserID:          strings.TrimSpace(cmd.UserID),
		Customer:        trimCustomer(cmd.Customer),
		Items:           items,
		Subtotal:        pricing.Subtotal,
		Tax:             pricing.Tax,
		ShippingCost:    pricing.Shipping,
		Discount:        pricing.Discount,
		Total:           pricing.Total,
		Currency:        pricing.Currency,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentMethod:   strings.TrimSpace(cmd.PaymentMethod),
		CouponCode:      couponCode,
		ShippingAddress: cmd.ShippingAddress,
		BillingAddress:  cloneAddress(cmd.BillingAddress),
		Shipping: domain.ShippingInfo{
			Method:            shippingMethod,
			Cost:              shippingCost,
			EstimatedDelivery: now.AddDate(0, 0, s.settings.DeliveryEstimateDays),
		},
		TrackingEvents: []TrackingEvent{{
			Status:      domain.OrderStatusPending,
			Timestamp:   now,
			Description: "Order placed",
		}},
		Notes:     strings.TrimSpace(cmd.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.orders.CreateWithStock(ctx, repositories.OrderCreateRequest{
		Order:      order,
		Decrements: decrements,
		Now:        now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       created.ID,
		OrderNumber:   created.OrderNumber,
		UserID:        created.UserID,
		CurrentStatus: string(created.Status),
		ActorID:       created.UserID,
		OccurredAt:    now,
	})

	s.logger(ctx, "order.created", map[string]any{
		"order":  created.ID,
		"number": created.OrderNumber,
		"total":  created.Total,
		"items":  len(created.Items),
	})

	return created, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, actor Actor) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	// Ownership scoping: a foreign order reads exactly like a missing one.
	if !actor.Admin && order.UserID != actor.UserID {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, query OrderListQuery) (domain.Page[Order], error) {
	filter := repositories.OrderListFilter{
		UserID:        strings.TrimSpace(query.UserID),
		Status:        query.Status,
		PaymentStatus: query.PaymentStatus,
		DateRange:     domain.RangeQuery[time.Time]{From: query.From, To: query.To},
		Pagination:    query.Pagination,
	}
	if !query.Actor.Admin {
		filter.UserID = query.Actor.UserID
	}

	for _, status := range filter.Status {
		if !domain.ValidOrderStatus(status) {
			return domain.Page[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	for _, status := range filter.PaymentStatus {
		if !domain.ValidPaymentStatus(status) {
			return domain.Page[Order]{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, status)
		}
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Status == nil && cmd.PaymentStatus == nil && cmd.TrackingNumber == nil && cmd.Notes == nil {
		return Order{}, fmt.Errorf("%w: at least one update field is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	previousStatus := order.Status
	previousPayment := order.PaymentStatus

	if cmd.Status != nil {
		if err := s.applyStatusTransition(&order, *cmd.Status, cmd, now); err != nil {
			return Order{}, err
		}
	}

	if cmd.PaymentStatus != nil {
		target := *cmd.PaymentStatus
		if !domain.ValidPaymentStatus(target) {
			return Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, target)
		}
		if !order.PaymentStatus.CanTransitionTo(target) {
			return Order{}, fmt.Errorf("%w: payment %s -> %s", ErrOrderInvalidState, order.PaymentStatus, target)
		}
		order.PaymentStatus = target
	}

	if cmd.TrackingNumber != nil {
		trimmed := strings.TrimSpace(*cmd.TrackingNumber)
		if trimmed == "" {
			order.Shipping.TrackingNumber = nil
		} else {
			order.Shipping.TrackingNumber = &trimmed
		}
	}

	if cmd.Notes != nil {
		order.Notes = strings.TrimSpace(*cmd.Notes)
	}

	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if cmd.Status != nil && order.Status != previousStatus {
		s.publishEvent(ctx, OrderEvent{
			Type:           orderEventStatusChanged,
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			UserID:         order.UserID,
			PreviousStatus: string(previousStatus),
			CurrentStatus:  string(order.Status),
			ActorID:        cmd.ActorID,
			OccurredAt:     now,
		})
	}
	if cmd.PaymentStatus != nil && order.PaymentStatus != previousPayment {
		s.publishEvent(ctx, OrderEvent{
			Type:           orderEventPaymentChanged,
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			UserID:         order.UserID,
			PreviousStatus: string(previousPayment),
			CurrentStatus:  string(order.PaymentStatus),
			ActorID:        cmd.ActorID,
			OccurredAt:     now,
		})
	}

	return order, nil
}

func (s *orderService) applyStatusTransition(order *Order, target OrderStatus, cmd UpdateOrderCommand, now time.Time) error {
	if !domain.ValidOrderStatus(target) {
		return fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}
	if !order.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, order.Status, target)
	}

	order.Status = target

	switch target {
	case domain.OrderStatusDelivered:
		delivered := now
		order.DeliveredAt = &delivered
	case domain.OrderStatusCancelled:
		cancelled := now
		order.CancelledAt = &cancelled
		if reason := strings.TrimSpace(cmd.CancelReason); reason != "" {
			order.CancelReason = &reason
		}
	}

	description := strings.TrimSpace(cmd.Description)
	if description == "" {
		description = statusDescription(target)
	}

	order.TrackingEvents = append(order.TrackingEvents, TrackingEvent{
		Status:      target,
		Timestamp:   now,
		Location:    strings.TrimSpace(cmd.Location),
		Description: description,
		UpdatedBy:   strings.TrimSpace(cmd.ActorID),
	})

	return nil
}

func (s *orderService) loadProducts(ctx context.Context, items []CreateOrderItem) (map[string]Product, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	for _, item := range items {
		if _, ok := products[strings.TrimSpace(item.ProductID)]; !ok {
			return nil, fmt.Errorf("%w: product %s", ErrOrderNotFound, item.ProductID)
		}
	}
	return products, nil
}

func (s *orderService) resolveDiscount(ctx context.Context, code string, subtotal int64, now time.Time) (int64, string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, "", nil
	}
	if s.coupons == nil {
		return 0, "", fmt.Errorf("%w: coupon %s is not valid", ErrOrderInvalidInput, code)
	}

	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return 0, "", fmt.Errorf("%w: coupon %s is not valid", ErrOrderInvalidInput, code)
		}
		return 0, "", s.mapRepositoryError(err)
	}

	switch {
	case !coupon.Active:
		return 0, "", fmt.Errorf("%w: coupon %s is not active", ErrOrderInvalidInput, code)
	case coupon.ExpiresAt != nil && !coupon.ExpiresAt.After(now):
		return 0, "", fmt.Errorf("%w: coupon %s has expired", ErrOrderInvalidInput, code)
	case subtotal < coupon.MinSubtotal:
		return 0, "", fmt.Errorf("%w: coupon %s requires a higher subtotal", ErrOrderInvalidInput, code)
	}

	return coupon.DiscountAmount(subtotal), coupon.Code, nil
}

func (s *orderService) shippingCost(method string, subtotal int64) int64 {
	if method == shippingMethodExpress {
		return s.settings.ExpressShippingCost
	}
	if s.settings.FreeShippingOver > 0 && subtotal >= s.settings.FreeShippingOver {
		return 0
	}
	return s.settings.StandardShippingCost
}

func (s *orderService) generateOrderNumber(now time.Time) string {
	id := s.newID()
	suffix := id
	if len(id) > orderNumberSuffixLen {
		suffix = id[len(id)-orderNumberSuffixLen:]
	}
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), strings.ToUpper(suffix))
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %s", ErrOrderInsufficientStock, stockErr.SKU)
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: product %s", ErrOrderNotFound, stockErr.ProductID)
		case repositories.StockErrorVariantNotFound:
			return fmt.Errorf("%w: variant %s", ErrOrderInvalidInput, stockErr.SKU)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func validateCreateOrder(cmd CreateOrderCommand) error {
	if len(cmd.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	for i, item := range cmd.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: items[%d] product id is required", ErrOrderInvalidInput, i)
		}
		if strings.TrimSpace(item.Size) == "" {
			return fmt.Errorf("%w: items[%d] size is required", ErrOrderInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: items[%d] quantity must be positive", ErrOrderInvalidInput, i)
		}
	}
	if strings.TrimSpace(cmd.Customer.Name) == "" {
		return fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	}
	email := strings.TrimSpace(cmd.Customer.Email)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: a valid customer email is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Customer.Phone) == "" {
		return fmt.Errorf("%w: customer phone is required", ErrOrderInvalidInput)
	}
	if err := validateAddress(cmd.ShippingAddress, "shipping address"); err != nil {
		return err
	}
	if cmd.BillingAddress != nil {
		if err := validateAddress(*cmd.BillingAddress, "billing address"); err != nil {
			return err
		}
	}
	if method := normalizeShippingMethod(cmd.ShippingMethod); method != shippingMethodStandard && method != shippingMethodExpress {
		return fmt.Errorf("%w: unknown shipping method %q", ErrOrderInvalidInput, cmd.ShippingMethod)
	}
	if cmd.ShippingCost != nil && *cmd.ShippingCost < 0 {
		return fmt.Errorf("%w: shipping cost must not be negative", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.PaymentMethod) == "" {
		return fmt.Errorf("%w: payment method is required", ErrOrderInvalidInput)
	}
	return nil
}

func validateAddress(addr Address, label string) error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"name", addr.Name},
		{"street", addr.Street},
		{"city", addr.City},
		{"state", addr.State},
		{"zip code", addr.ZipCode},
		{"country", addr.Country},
	} {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%w: %s %s is required", ErrOrderInvalidInput, label, field.name)
		}
	}
	return nil
}

func buildOrderLines(items []CreateOrderItem, products map[string]Product) ([]OrderItem, []repositories.StockDecrement, error) {
	lines := make([]OrderItem, 0, len(items))
	totals := make(map[string]int)
	decrements := make([]repositories.StockDecrement, 0, len(items))

	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		product := products[productID]

		variant, ok := product.FindVariant(item.Size, item.Color)
		if !ok {
			return nil, nil, fmt.Errorf("%w: product %s has no variant size=%s color=%s",
				ErrOrderInvalidInput, productID, item.Size, item.Color)
		}

		requested := totals[variant.SKU] + item.Quantity
		if requested > variant.Stock {
			return nil, nil, fmt.Errorf("%w: %s", ErrOrderInsufficientStock, variant.SKU)
		}
		totals[variant.SKU] = requested

		lines = append(lines, OrderItem{
			ProductID: productID,
			Name:      product.Name,
			Slug:      product.Slug,
			Image:     product.Image,
			SKU:       variant.SKU,
			Size:      variant.Size,
			Color:     variant.Color,
			UnitPrice: product.Price,
			Quantity:  item.Quantity,
			Total:     product.Price * int64(item.Quantity),
		})
		decrements = append(decrements, repositories.StockDecrement{
			ProductID: productID,
			SKU:       variant.SKU,
			Quantity:  item.Quantity,
		})
	}

	return lines, decrements, nil
}

func pricingLines(items []OrderItem) []domain.ItemPricingBreakdown {
	lines := make([]domain.ItemPricingBreakdown, 0, len(items))
	for _, item := range items {
		lines = append(lines, domain.ItemPricingBreakdown{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Total:     item.Total,
		})
	}
	return lines
}

func normalizeShippingMethod(method string) string {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return shippingMethodStandard
	}
	return method
}

func statusDescription(status OrderStatus) string {
	switch status {
	case domain.OrderStatusPending:
		return "Order placed"
	case domain.OrderStatusProcessing:
		return "Order is being prepared"
	case domain.OrderStatusShipped:
		return "Order handed to carrier"
	case domain.OrderStatusOutForDelivery:
		return "Order is out for delivery"
	case domain.OrderStatusDelivered:
		return "Order delivered"
	case domain.OrderStatusCancelled:
		return "Order cancelled"
	default:
		return string(status)
	}
}

func trimCustomer(c CustomerInfo) CustomerInfo {
	return CustomerInfo{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.TrimSpace(c.Email),
		Phone: strings.TrimSpace(c.Phone),
	}
}

func cloneAddress(addr *Address) *Address {
	if addr == nil {
		return nil
	}
	copied := *addr
	return &copied
}
