package services

import (
	"context"
	"time"

	domain "github.com/threadcraft/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	PaymentStatus      = domain.PaymentStatus
	CustomerInfo       = domain.CustomerInfo
	Address            = domain.Address
	TrackingEvent      = domain.TrackingEvent
	Product            = domain.Product
	StockSnapshot      = domain.StockSnapshot
	Coupon             = domain.Coupon
	SystemHealthReport = domain.SystemHealthReport
)

// Actor identifies the authenticated caller for ownership and role scoping.
type Actor struct {
	UserID string
	Admin  bool
}

// OrderService encapsulates order placement, reads, and lifecycle updates.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string, actor Actor) (Order, error)
	ListOrders(ctx context.Context, query OrderListQuery) (domain.Page[Order], error)
	UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (Order, error)
}

// InventoryService surfaces stock reporting for the admin console.
type InventoryService interface {
	ListLowStock(ctx context.Context, query LowStockQuery) (domain.Page[StockSnapshot], error)
}

// SystemService aggregates utility endpoints (health checks).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Command and DTO definitions ------------------------------------------------

// CreateOrderCommand carries everything needed to place an order. Prices are
// never accepted from the caller; the service reprices every line against the
// current catalog.
type CreateOrderCommand struct {
	UserID          string
	Customer        CustomerInfo
	Items           []CreateOrderItem
	ShippingAddress Address
	BillingAddress  *Address
	ShippingMethod  string
	ShippingCost    *int64
	PaymentMethod   string
	CouponCode      string
	Notes           string
}

// CreateOrderItem selects a product variant by size and optional color.
type CreateOrderItem struct {
	ProductID string
	Size      string
	Color     string
	Quantity  int
}

// OrderListQuery filters order listings. Non-admin actors are always scoped
// to their own orders regardless of the UserID filter.
type OrderListQuery struct {
	Actor         Actor
	UserID        string
	Status        []OrderStatus
	PaymentStatus []PaymentStatus
	From          *time.Time
	To            *time.Time
	Pagination    Pagination
}

// UpdateOrderCommand mutates an order's lifecycle. All fields are optional;
// at least one must be set.
type UpdateOrderCommand struct {
	OrderID        string
	Status         *OrderStatus
	PaymentStatus  *PaymentStatus
	TrackingNumber *string
	Notes          *string
	Location       string
	Description    string
	CancelReason   string
	ActorID        string
}

// LowStockQuery pages over variants whose stock is at or below the threshold.
// A zero Threshold falls back to the configured default.
type LowStockQuery struct {
	Threshold  int
	Pagination Pagination
}
