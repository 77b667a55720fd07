package domain

import (
	"time"
)

// Pagination defines standard page/limit paging inputs for list operations.
// Page is 1-indexed; Limit caps the number of items returned per page.
type Pagination struct {
	Page  int
	Limit int
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order has been placed and awaits processing.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates the order is being prepared for shipment.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusOutForDelivery indicates the order is on the last delivery leg.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered indicates the order reached the customer (terminal).
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled (terminal).
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus enumerates the payment settlement states tracked on an order.
// It is a separate state machine from OrderStatus.
type PaymentStatus string

const (
	// PaymentStatusPending indicates payment has not been captured yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates payment was captured in full.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates the capture attempt failed.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates the full amount was returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
	// PaymentStatusPartiallyRefunded indicates part of the amount was returned.
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// Order is the aggregate root of the order subsystem. Customer, item, and
// address fields are point-in-time snapshots: later edits to the referenced
// product or user profile never rewrite a persisted order.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Customer        CustomerInfo
	Items           []OrderItem
	Subtotal        int64
	Tax             int64
	ShippingCost    int64
	Discount        int64
	Total           int64
	Currency        string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaymentMethod   string
	CouponCode      string
	ShippingAddress Address
	BillingAddress  *Address
	Shipping        ShippingInfo
	TrackingEvents  []TrackingEvent
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    *string
}

// CustomerInfo stores the contact snapshot captured at checkout.
type CustomerInfo struct {
	Name  string
	Email string
	Phone string
}

// OrderItem is an immutable line item snapshot. Total is always
// UnitPrice * Quantity; amounts are minor currency units.
type OrderItem struct {
	ProductID string
	Name      string
	Slug      string
	Image     string
	SKU       string
	Size      string
	Color     string
	UnitPrice int64
	Quantity  int
	Total     int64
}

// ShippingInfo carries the selected shipping method and fulfilment metadata.
type ShippingInfo struct {
	Method            string
	Cost              int64
	TrackingNumber    *string
	EstimatedDelivery time.Time
}

// TrackingEvent is an immutable, timestamped record of a status change.
// Events are append-only: the sequence is never reordered or mutated.
type TrackingEvent struct {
	Status      OrderStatus
	Timestamp   time.Time
	Location    string
	Description string
	UpdatedBy   string
}

// Address represents postal address snapshots shared by order surfaces.
type Address struct {
	Name    string
	Street  string
	City    string
	State   string
	ZipCode string
	Country string
	Phone   string
}

// Product is referenced by the order core for pricing and stock; orders hold
// weak references only, so deleting a product never cascades to its orders.
type Product struct {
	ID        string
	Name      string
	Slug      string
	Image     string
	Price     int64
	Currency  string
	Variants  []ProductVariant
	UpdatedAt time.Time
}

// ProductVariant is a size/color combination carrying independent stock.
// Variant stock is the sole source of truth for availability.
type ProductVariant struct {
	Size  string
	Color string
	SKU   string
	Stock int
}

// FindVariant returns the variant matching size and, when supplied, color.
func (p Product) FindVariant(size, color string) (ProductVariant, bool) {
	for _, v := range p.Variants {
		if v.Size != size {
			continue
		}
		if color != "" && v.Color != color {
			continue
		}
		return v, true
	}
	return ProductVariant{}, false
}

// StockSnapshot exposes per-variant stock levels for admin surfaces.
type StockSnapshot struct {
	ProductID string
	Name      string
	SKU       string
	Size      string
	Color     string
	Stock     int
	UpdatedAt time.Time
}

// CouponType distinguishes percentage discounts from fixed amounts.
type CouponType string

const (
	// CouponTypePercent applies Value as a percentage of the subtotal.
	CouponTypePercent CouponType = "percent"
	// CouponTypeFixed subtracts Value minor units from the subtotal.
	CouponTypeFixed CouponType = "fixed"
)

// Coupon describes a server-side discount rule. Discounts submitted by
// clients are always recomputed against the coupon, never trusted as-is.
type Coupon struct {
	Code        string
	Type        CouponType
	Value       int64
	MinSubtotal int64
	ExpiresAt   *time.Time
	Active      bool
}

// Page packages offset-paginated list results with count metadata.
type Page[T any] struct {
	Items []T
	Page  int
	Limit int
	Total int64
	Pages int
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates a dependency is failing without being
	// conclusively unavailable.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	GeneratedAt time.Time
}
