package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/threadcraft/api/internal/domain"
	"github.com/threadcraft/api/internal/repositories"
)

type stubOrderRepo struct {
	createFn func(context.Context, repositories.OrderCreateRequest) (domain.Order, error)
	updateFn func(context.Context, domain.Order) error
	findFn   func(context.Context, string) (domain.Order, error)
	listFn   func(context.Context, repositories.OrderListFilter) (domain.Page[domain.Order], error)
}

func (s *stubOrderRepo) CreateWithStock(ctx context.Context, req repositories.OrderCreateRequest) (domain.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return req.Order, nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.Page[domain.Order]{}, nil
}

type stubProductRepo struct {
	products map[string]domain.Product
	lowFn    func(context.Context, repositories.LowStockQuery) (domain.Page[domain.StockSnapshot], error)
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if p, ok := s.products[productID]; ok {
		return p, nil
	}
	return domain.Product{}, errors.New("not found")
}

func (s *stubProductRepo) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product)
	for _, id := range productIDs {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *stubProductRepo) ListLowStock(ctx context.Context, query repositories.LowStockQuery) (domain.Page[domain.StockSnapshot], error) {
	if s.lowFn != nil {
		return s.lowFn(ctx, query)
	}
	return domain.Page[domain.StockSnapshot]{}, nil
}

type stubCouponRepo struct {
	coupons map[string]domain.Coupon
}

func (s *stubCouponRepo) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if c, ok := s.coupons[strings.ToLower(code)]; ok {
		return c, nil
	}
	return domain.Coupon{}, notFoundRepositoryError{}
}

type notFoundRepositoryError struct{}

func (notFoundRepositoryError) Error() string       { return "not found" }
func (notFoundRepositoryError) IsNotFound() bool    { return true }
func (notFoundRepositoryError) IsConflict() bool    { return false }
func (notFoundRepositoryError) IsUnavailable() bool { return false }

type captureOrderEvents struct {
	events []OrderEvent
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.events = append(c.events, event)
	return nil
}

var testClock = func() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func catalogWithTees() map[string]domain.Product {
	return map[string]domain.Product{
		"prod-1": {
			ID:       "prod-1",
			Name:     "Classic Tee",
			Slug:     "classic-tee",
			Price:    2500,
			Currency: "usd",
			Variants: []domain.ProductVariant{
				{Size: "M", Color: "black", SKU: "TEE-M-BLK", Stock: 10},
				{Size: "L", Color: "black", SKU: "TEE-L-BLK", Stock: 2},
			},
		},
		"prod-2": {
			ID:       "prod-2",
			Name:     "Hoodie",
			Slug:     "hoodie",
			Price:    6000,
			Currency: "usd",
			Variants: []domain.ProductVariant{
				{Size: "M", Color: "", SKU: "HOOD-M", Stock: 4},
			},
		},
	}
}

func newTestOrderService(t *testing.T, orders *stubOrderRepo, products *stubProductRepo, coupons *stubCouponRepo, events OrderEventPublisher) OrderService {
	t.Helper()
	var couponRepo repositories.CouponRepository
	if coupons != nil {
		couponRepo = coupons
	}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:   orders,
		Products: products,
		Coupons:  couponRepo,
		Settings: OrderSettings{
			Currency:             "usd",
			TaxRate:              0.08,
			StandardShippingCost: 599,
			ExpressShippingCost:  1499,
			FreeShippingOver:     10000,
			DeliveryEstimateDays: 7,
		},
		Clock:  testClock,
		Events: events,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func validCreateCommand() CreateOrderCommand {
	return CreateOrderCommand{
		UserID: "user-1",
		Customer: CustomerInfo{
			Name:  "Ada Lovelace",
			Email: "ada@example.com",
			Phone: "+44 20 7946 0958",
		},
		Items: []CreateOrderItem{
			{ProductID: "prod-1", Size: "M", Color: "black", Quantity: 2},
		},
		ShippingAddress: Address{
			Name:    "Ada Lovelace",
			Street:  "1 Analytical Way",
			City:    "London",
			State:   "LDN",
			ZipCode: "E1 6AN",
			Country: "GB",
		},
		ShippingMethod: "standard",
		PaymentMethod:  "card",
	}
}

func TestCreateOrderComputesTotalsAndSeedsTracking(t *testing.T) {
	var captured repositories.OrderCreateRequest
	orders := &stubOrderRepo{
		createFn: func(_ context.Context, req repositories.OrderCreateRequest) (domain.Order, error) {
			captured = req
			return req.Order, nil
		},
	}
	events := &captureOrderEvents{}
	svc := newTestOrderService(t, orders, &stubProductRepo{products: catalogWithTees()}, nil, events)

	order, err := svc.CreateOrder(context.Background(), validCreateCommand())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if order.Subtotal != 5000 {
		t.Fatalf("subtotal = %d, want 5000", order.Subtotal)
	}
	if order.Tax != 400 {
		t.Fatalf("tax = %d, want 400", order.Tax)
	}
	if order.ShippingCost != 599 {
		t.Fatalf("shipping = %d, want 599", order.ShippingCost)
	}
	if want := order.Subtotal + order.Tax + order.ShippingCost - order.Discount; order.Total != want {
		t.Fatalf("total = %d, want %d", order.Total, want)
	}
	if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("unexpected initial statuses %s/%s", order.Status, order.PaymentStatus)
	}
	if len(order.TrackingEvents) != 1 || order.TrackingEvents[0].Status != domain.OrderStatusPending {
		t.Fatalf("expected single placed tracking event, got %#v", order.TrackingEvents)
	}
	if !strings.HasPrefix(order.ID, "ord_") {
		t.Fatalf("order id %q missing prefix", order.ID)
	}
	if !strings.HasPrefix(order.OrderNumber, "ORD-") {
		t.Fatalf("order number %q missing prefix", order.OrderNumber)
	}
	if got := order.Shipping.EstimatedDelivery; !got.Equal(testClock().AddDate(0, 0, 7)) {
		t.Fatalf("estimated delivery = %v", got)
	}

	if len(captured.Decrements) != 1 {
		t.Fatalf("expected 1 decrement, got %d", len(captured.Decrements))
	}
	if dec := captured.Decrements[0]; dec.SKU != "TEE-M-BLK" || dec.Quantity != 2 {
		t.Fatalf("unexpected decrement %#v", dec)
	}

	if len(events.events) != 1 || events.events[0].Type != orderEventCreated {
		t.Fatalf("expected order.created event, got %#v", events.events)
	}
}

func TestCreateOrderLineTotalInvariant(t *testing.T) {
	orders := &stubOrderRepo{}
	svc := newTestOrderService(t, orders, &stubProductRepo{products: catalogWithTees()}, nil, nil)

	cmd := validCreateCommand()
	cmd.Items = append(cmd.Items, CreateOrderItem{ProductID: "prod-2", Size: "M", Quantity: 1})

	order, err := svc.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	var subtotal int64
	for _, line := range order.Items {
		if line.Total != line.UnitPrice*int64(line.Quantity) {
			t.Fatalf("line %s total %d != %d*%d", line.SKU, line.Total, line.UnitPrice, line.Quantity)
		}
		subtotal += line.Total
	}
	if order.Subtotal != subtotal {
		t.Fatalf("subtotal %d != sum of lines %d", order.Subtotal, subtotal)
	}
}

func TestCreateOrderRejectsInsufficientStock(t *testing.T) {
	called := false
	orders := &stubOrderRepo{
		createFn: func(context.Context, repositories.OrderCreateRequest) (domain.Order, error) {
			called = true
			return domain.Order{}, nil
		},
	}
	svc := newTestOrderService(t, orders, &stubProductRepo{products: catalogWithTees()}, nil, nil)

	cmd := validCreateCommand()
	cmd.Items = []CreateOrderItem{{ProductID: "prod-1", Size: "L", Color: "black", Quantity: 3}}

	if _, err := svc.CreateOrder(context.Background(), cmd); !errors.Is(err, ErrOrderInsufficientStock) {
		t.Fatalf("expected ErrOrderInsufficientStock, got %v", err)
	}
	if called {
		t.Fatal("repository should not be called when stock check fails")
	}
}

func TestCreateOrderAggregatesDuplicateVariantQuantities(t *testing.T) {
	svc := newTestOrderService(t, &stubOrderRepo{}, &stubProductRepo{products: catalogWithTees()}, nil, nil)

	cmd := validCreateCommand()
	cmd.Items = []CreateOrderItem{
		{ProductID: "prod-1", Size: "L", Color: "black", Quantity: 1},
		{ProductID: "prod-1", Size: "L", Color: "black", Quantity: 2},
	}

	if _, err := svc.CreateOrder(context.Background(), cmd); !errors.Is(err, ErrOrderInsufficientStock) {
		t.Fatalf("expected ErrOrderInsufficientStock for aggregated quantity, got %v", err)
	}
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	svc := newTestOrderService(t, &stubOrderRepo{}, &stubProductRepo{products: catalogWithTees()}, nil, nil)

	cmd := validCreateCommand()
	cmd.Items = []CreateOrderItem{{ProductID: "prod-9", Size: "M", Quantity: 1}}

	if _, err := svc.CreateOrder(context.Background(), cmd); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestCreateOrderUnknownVariant(t *testing.T) {
	svc := newTestOrderService(t, &stubOrderRepo{}, &stubProductRepo{products: catalogWithTees()}, nil, nil)

	cmd := validCreateCommand()
	cmd.Items = []CreateOrderItem{{ProductID: "prod-1", Size: "XXL", Quantity: 1}}

	if _, err := svc.CreateOrder(context.Background(), cmd); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	svc := newTestOrderService(t, &stubOrderRepo{}, &stubProductRepo{products: catalogWithTees()}, nil, nil)

	cases := []struct {
		name   string
		mutate func(*CreateOrderCommand)
	}{
		{"no items", func(c *CreateOrderCommand) { c.Items = nil }},
		{"zero quantity", func(c *CreateOrderCommand) { c.Items[0].Quantity = 0 }},
		{"missing size", func(c *CreateOrderCommand) { c.Items[0].Size = "" }},
		{"missing customer name", func(c *CreateOrderCommand) { c.Customer.Name = "" }},
		{"bad email", func(c *CreateOrderCommand) { c.Customer.Email = "nope" }},
		{"missing phone", func(c *CreateOrderCommand) { c.Customer.Phone = "" }},
		{"blank phone", func(c *CreateOrderCommand) { c.Customer.Phone = "   " }},
		{"missing street", func(c *CreateOrderCommand) { c.ShippingAddress.Street = "" }},
		{"missing country", func(c *CreateOrderCommand) { c.ShippingAddress.Country = "" }},
		{"bad shipping method", func(c *CreateOrderCommand) { c.ShippingMethod = "teleport" }},
		{"negative shipping cost", func(c *CreateOrderCommand) { cost := int64(-1); c.ShippingCost = &cost }},
		{"missing payment method", func(c *CreateOrderCommand) { c.PaymentMethod = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := validCreateCommand()
			tc.mutate(&cmd)
			if _, err := svc.CreateOrder(context.Background(), cmd); !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
			}
		})
	}
}

func TestCreateOrderAppliesPercentCouponAndFreeShipping(t *testing.T) {
	coupons := &stubCouponRepo{coupons: map[string]domain.Coupon{
		"save10": {Code: "save10", Type: domain.CouponTypePercent, Value: 10, Active: true},
	}}
	svc := newTestOrderService(t, &stubOrderRepo{}, &stubProductRepo{products: catalogWithTees()}, coupons, nil)

	cmd := validCreateCommand()
	cmd.Items = []CreateOrderItem{{ProductID: "prod-2", Size: "M", Quantity: 2}}
	cmd.CouponCode = "SAVE10"

	order, err := svc.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if order.Subtotal != 12000 {
		t.Fatalf("subtotal = %d", order.Subtotal)
	}
	if order.ShippingCost != 0 {
		t.Fatalf("expected free shipping over threshold, got %d", order.ShippingCost)
	}
	if order.Discount != 1200 {
		t.Fatalf("discount = %d, want 1200", order.Discount)
	}
	if order.CouponCode != "save10" {
		t.Fatalf("coupon code = %q", order.CouponCode)
	}
	if want := order.Subtotal + order.Tax - order.Discount; order.Total != want {
		t.Fatalf("total = %d, want %d", order.Total, want)
	}
}

func TestCreateOrderRejectsBadCoupons(t *testing.T) {
	expired := testClock().Add(-time.Hour)
	coupons := &stubCouponRepo{coupons: map[string]domain.Coupon{
		"old":  {Code: "old", Type: domain.CouponTypeFixed, Value: 500, Active: true, ExpiresAt: &expired},
		"off":  {Code: "off", Type: domain.CouponTypeFixed, Value: 500, Active: false},
		"big":  {Code: "big", Type: domain.CouponTypeFixed, Value: 500, Active: true, MinSubtotal: 100000},
	}}
	svc := newTestOrderService(t, &stubOrderRepo{}, &stubProductRepo{products: catalogWithTees()}, coupons, nil)

	for _, code := range []string{"old", "off", "big", "unknown"} {
		cmd := validCreateCommand()
		cmd.CouponCode = code
		if _, err := svc.CreateOrder(context.Background(), cmd); !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("coupon %s: expected ErrOrderInvalidInput, got %v", code, err)
		}
	}
}

func TestCreateOrderExpressShippingIgnoresFreeThreshold(t *testing.T) {
	svc := newTestOrderService(t, &stubOrderRepo{}, &stubProductRepo{products: catalogWithTees()}, nil, nil)

	cmd := validCreateCommand()
	cmd.Items = []CreateOrderItem{{ProductID: "prod-2", Size: "M", Quantity: 2}}
	cmd.ShippingMethod = "express"

	order, err := svc.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ShippingCost != 1499 {
		t.Fatalf("express shipping = %d, want 1499", order.ShippingCost)
	}
}

func TestCreateOrderHonoursSuppliedShippingCost(t *testing.T) {
	svc := newTestOrderService(t, &stubOrderRepo{}, &stubProductRepo{products: catalogWithTees()}, nil, nil)

	cost := int64(750)
	cmd := validCreateCommand()
	cmd.ShippingCost = &cost

	order, err := svc.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ShippingCost != 750 || order.Shipping.Cost != 750 {
		t.Fatalf("shipping = %d/%d, want 750", order.ShippingCost, order.Shipping.Cost)
	}
	if want := order.Subtotal + order.Tax + 750 - order.Discount; order.Total != want {
		t.Fatalf("total = %d, want %d", order.Total, want)
	}

	// Zero is a legal quote and must not fall back to the configured default.
	zero := int64(0)
	cmd = validCreateCommand()
	cmd.ShippingCost = &zero
	order, err = svc.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ShippingCost != 0 {
		t.Fatalf("shipping = %d, want 0", order.ShippingCost)
	}
}

func TestCreateOrderGeneratesDistinctNumbers(t *testing.T) {
	svc := newTestOrderService(t, &stubOrderRepo{}, &stubProductRepo{products: catalogWithTees()}, nil, nil)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		order, err := svc.CreateOrder(context.Background(), validCreateCommand())
		if err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
		if seen[order.OrderNumber] {
			t.Fatalf("duplicate order number %s", order.OrderNumber)
		}
		seen[order.OrderNumber] = true
	}
}

func TestCreateOrderMapsRepositoryStockError(t *testing.T) {
	orders := &stubOrderRepo{
		createFn: func(context.Context, repositories.OrderCreateRequest) (domain.Order, error) {
			return domain.Order{}, &repositories.StockError{
				Code: repositories.StockErrorInsufficient,
				SKU:  "TEE-M-BLK",
			}
		},
	}
	svc := newTestOrderService(t, orders, &stubProductRepo{products: catalogWithTees()}, nil, nil)

	if _, err := svc.CreateOrder(context.Background(), validCreateCommand()); !errors.Is(err, ErrOrderInsufficientStock) {
		t.Fatalf("expected ErrOrderInsufficientStock, got %v", err)
	}
}

func TestGetOrderScopesToOwner(t *testing.T) {
	stored := domain.Order{ID: "ord_1", UserID: "user-1", OrderNumber: "ORD-1-AAAAAA"}
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			if id == stored.ID {
				return stored, nil
			}
			return domain.Order{}, notFoundRepositoryError{}
		},
	}
	svc := newTestOrderService(t, orders, &stubProductRepo{products: catalogWithTees()}, nil, nil)

	if _, err := svc.GetOrder(context.Background(), "ord_1", Actor{UserID: "user-2"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("foreign order should read as not found, got %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), "ord_1", Actor{UserID: "user-1"}); err != nil {
		t.Fatalf("owner read failed: %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), "ord_1", Actor{UserID: "admin-1", Admin: true}); err != nil {
		t.Fatalf("admin read failed: %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), "ord_missing", Actor{Admin: true}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestListOrdersForcesOwnerScope(t *testing.T) {
	var captured repositories.OrderListFilter
	orders := &stubOrderRepo{
		listFn: func(_ context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
			captured = filter
			return domain.Page[domain.Order]{Page: filter.Pagination.Page, Limit: filter.Pagination.Limit}, nil
		},
	}
	svc := newTestOrderService(t, orders, &stubProductRepo{products: catalogWithTees()}, nil, nil)

	_, err := svc.ListOrders(context.Background(), OrderListQuery{
		Actor:      Actor{UserID: "user-1"},
		UserID:     "user-9",
		Pagination: Pagination{Page: 2, Limit: 10},
	})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if captured.UserID != "user-1" {
		t.Fatalf("non-admin list must scope to actor, got %q", captured.UserID)
	}

	_, err = svc.ListOrders(context.Background(), OrderListQuery{
		Actor:  Actor{UserID: "admin-1", Admin: true},
		UserID: "user-9",
	})
	if err != nil {
		t.Fatalf("ListOrders admin: %v", err)
	}
	if captured.UserID != "user-9" {
		t.Fatalf("admin list should honour filter, got %q", captured.UserID)
	}
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	svc := newTestOrderService(t, &stubOrderRepo{}, &stubProductRepo{products: catalogWithTees()}, nil, nil)

	_, err := svc.ListOrders(context.Background(), OrderListQuery{
		Actor:  Actor{UserID: "user-1"},
		Status: []OrderStatus{"backordered"},
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func storedOrder(status domain.OrderStatus, payment domain.PaymentStatus) domain.Order {
	return domain.Order{
		ID:            "ord_1",
		OrderNumber:   "ORD-1-AAAAAA",
		UserID:        "user-1",
		Status:        status,
		PaymentStatus: payment,
		TrackingEvents: []domain.TrackingEvent{
			{Status: domain.OrderStatusPending, Timestamp: testClock().Add(-time.Hour)},
		},
	}
}

func newUpdateFixture(t *testing.T, stored domain.Order) (OrderService, *stubOrderRepo, *captureOrderEvents) {
	t.Helper()
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return stored, nil
		},
	}
	events := &captureOrderEvents{}
	svc := newTestOrderService(t, orders, &stubProductRepo{products: catalogWithTees()}, nil, events)
	return svc, orders, events
}

func TestUpdateOrderAppendsTrackingEvent(t *testing.T) {
	svc, _, events := newUpdateFixture(t, storedOrder(domain.OrderStatusPending, domain.PaymentStatusPending))

	status := domain.OrderStatusProcessing
	order, err := svc.UpdateOrder(context.Background(), UpdateOrderCommand{
		OrderID:  "ord_1",
		Status:   &status,
		Location: "warehouse-1",
		ActorID:  "admin-1",
	})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}

	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("status = %s", order.Status)
	}
	if len(order.TrackingEvents) != 2 {
		t.Fatalf("expected 2 tracking events, got %d", len(order.TrackingEvents))
	}
	last := order.TrackingEvents[len(order.TrackingEvents)-1]
	if last.Status != domain.OrderStatusProcessing || last.Location != "warehouse-1" || last.UpdatedBy != "admin-1" {
		t.Fatalf("unexpected tracking event %#v", last)
	}
	if len(events.events) != 1 || events.events[0].Type != orderEventStatusChanged {
		t.Fatalf("expected status change event, got %#v", events.events)
	}
	if events.events[0].PreviousStatus != "pending" || events.events[0].CurrentStatus != "processing" {
		t.Fatalf("unexpected event payload %#v", events.events[0])
	}
}

func TestUpdateOrderRejectsInvalidTransitions(t *testing.T) {
	cases := []struct {
		name string
		from domain.OrderStatus
		to   domain.OrderStatus
	}{
		{"backwards", domain.OrderStatusShipped, domain.OrderStatusProcessing},
		{"out of delivered", domain.OrderStatusDelivered, domain.OrderStatusProcessing},
		{"cancel delivered", domain.OrderStatusDelivered, domain.OrderStatusCancelled},
		{"out of cancelled", domain.OrderStatusCancelled, domain.OrderStatusPending},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, _ := newUpdateFixture(t, storedOrder(tc.from, domain.PaymentStatusPending))
			target := tc.to
			_, err := svc.UpdateOrder(context.Background(), UpdateOrderCommand{OrderID: "ord_1", Status: &target})
			if !errors.Is(err, ErrOrderInvalidState) {
				t.Fatalf("expected ErrOrderInvalidState, got %v", err)
			}
		})
	}
}

func TestUpdateOrderSequentialProgression(t *testing.T) {
	stored := storedOrder(domain.OrderStatusPending, domain.PaymentStatusPending)
	orders := &stubOrderRepo{}
	orders.findFn = func(context.Context, string) (domain.Order, error) { return stored, nil }
	orders.updateFn = func(_ context.Context, order domain.Order) error {
		stored = order
		return nil
	}
	svc := newTestOrderService(t, orders, &stubProductRepo{products: catalogWithTees()}, nil, nil)

	// The final hop skips out_for_delivery; forward jumps along the chain
	// are legal.
	for _, target := range []domain.OrderStatus{
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
	} {
		status := target
		if _, err := svc.UpdateOrder(context.Background(), UpdateOrderCommand{
			OrderID: "ord_1",
			Status:  &status,
			ActorID: "admin-1",
		}); err != nil {
			t.Fatalf("update to %s: %v", target, err)
		}
	}

	if stored.Status != domain.OrderStatusDelivered {
		t.Fatalf("status = %s, want delivered", stored.Status)
	}
	if len(stored.TrackingEvents) != 4 {
		t.Fatalf("tracking events = %d, want 4 (placed + 3 transitions)", len(stored.TrackingEvents))
	}
	if stored.DeliveredAt == nil || !stored.DeliveredAt.Equal(testClock()) {
		t.Fatalf("deliveredAt = %v", stored.DeliveredAt)
	}
}

func TestUpdateOrderCancellationStampsReason(t *testing.T) {
	svc, _, _ := newUpdateFixture(t, storedOrder(domain.OrderStatusProcessing, domain.PaymentStatusPending))

	status := domain.OrderStatusCancelled
	order, err := svc.UpdateOrder(context.Background(), UpdateOrderCommand{
		OrderID:      "ord_1",
		Status:       &status,
		CancelReason: "customer request",
	})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if order.CancelledAt == nil || !order.CancelledAt.Equal(testClock()) {
		t.Fatalf("cancelledAt = %v", order.CancelledAt)
	}
	if order.CancelReason == nil || *order.CancelReason != "customer request" {
		t.Fatalf("cancelReason = %v", order.CancelReason)
	}
}

func TestUpdateOrderDeliveredStampsTimestamp(t *testing.T) {
	svc, _, _ := newUpdateFixture(t, storedOrder(domain.OrderStatusOutForDelivery, domain.PaymentStatusPaid))

	status := domain.OrderStatusDelivered
	order, err := svc.UpdateOrder(context.Background(), UpdateOrderCommand{OrderID: "ord_1", Status: &status})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if order.DeliveredAt == nil || !order.DeliveredAt.Equal(testClock()) {
		t.Fatalf("deliveredAt = %v", order.DeliveredAt)
	}
}

func TestUpdateOrderPaymentTransitions(t *testing.T) {
	valid := []struct {
		from domain.PaymentStatus
		to   domain.PaymentStatus
	}{
		{domain.PaymentStatusPending, domain.PaymentStatusPaid},
		{domain.PaymentStatusPending, domain.PaymentStatusFailed},
		{domain.PaymentStatusPaid, domain.PaymentStatusRefunded},
		{domain.PaymentStatusPaid, domain.PaymentStatusPartiallyRefunded},
	}
	for _, tc := range valid {
		svc, _, events := newUpdateFixture(t, storedOrder(domain.OrderStatusPending, tc.from))
		target := tc.to
		order, err := svc.UpdateOrder(context.Background(), UpdateOrderCommand{OrderID: "ord_1", PaymentStatus: &target})
		if err != nil {
			t.Fatalf("%s -> %s: %v", tc.from, tc.to, err)
		}
		if order.PaymentStatus != tc.to {
			t.Fatalf("payment status = %s", order.PaymentStatus)
		}
		if len(events.events) != 1 || events.events[0].Type != orderEventPaymentChanged {
			t.Fatalf("expected payment change event, got %#v", events.events)
		}
	}

	invalid := []struct {
		from domain.PaymentStatus
		to   domain.PaymentStatus
	}{
		{domain.PaymentStatusPending, domain.PaymentStatusRefunded},
		{domain.PaymentStatusFailed, domain.PaymentStatusPaid},
		{domain.PaymentStatusRefunded, domain.PaymentStatusPaid},
	}
	for _, tc := range invalid {
		svc, _, _ := newUpdateFixture(t, storedOrder(domain.OrderStatusPending, tc.from))
		target := tc.to
		if _, err := svc.UpdateOrder(context.Background(), UpdateOrderCommand{OrderID: "ord_1", PaymentStatus: &target}); !errors.Is(err, ErrOrderInvalidState) {
			t.Fatalf("%s -> %s: expected ErrOrderInvalidState, got %v", tc.from, tc.to, err)
		}
	}
}

func TestUpdateOrderSetsTrackingNumberWithoutTransition(t *testing.T) {
	svc, _, events := newUpdateFixture(t, storedOrder(domain.OrderStatusProcessing, domain.PaymentStatusPaid))

	tracking := "1Z999AA10123456784"
	order, err := svc.UpdateOrder(context.Background(), UpdateOrderCommand{OrderID: "ord_1", TrackingNumber: &tracking})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if order.Shipping.TrackingNumber == nil || *order.Shipping.TrackingNumber != tracking {
		t.Fatalf("tracking number = %v", order.Shipping.TrackingNumber)
	}
	if len(order.TrackingEvents) != 1 {
		t.Fatalf("tracking events should be untouched, got %d", len(order.TrackingEvents))
	}
	if len(events.events) != 0 {
		t.Fatalf("no events expected, got %#v", events.events)
	}
}

func TestUpdateOrderRequiresAField(t *testing.T) {
	svc, _, _ := newUpdateFixture(t, storedOrder(domain.OrderStatusPending, domain.PaymentStatusPending))

	if _, err := svc.UpdateOrder(context.Background(), UpdateOrderCommand{OrderID: "ord_1"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}
