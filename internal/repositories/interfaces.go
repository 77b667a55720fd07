package repositories

import (
	"context"
	"time"

	domain "github.com/threadcraft/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Products() ProductRepository
	Coupons() CouponRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order documents and provides query helpers for
// users and admins. CreateWithStock runs the order insert and the variant
// stock decrements inside a single transaction.
type OrderRepository interface {
	CreateWithStock(ctx context.Context, req OrderCreateRequest) (domain.Order, error)
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
}

// OrderCreateRequest bundles the order document with the stock decrements it
// depends on. Every decrement either applies atomically with the insert or
// the whole request fails.
type OrderCreateRequest struct {
	Order      domain.Order
	Decrements []StockDecrement
	Now        time.Time
}

// StockDecrement identifies one variant quantity to subtract.
type StockDecrement struct {
	ProductID string
	SKU       string
	Quantity  int
}

// OrderListFilter narrows order listings. UserID is mandatory for customer
// queries and empty for admin-wide listings.
type OrderListFilter struct {
	UserID        string
	Status        []domain.OrderStatus
	PaymentStatus []domain.PaymentStatus
	DateRange     domain.RangeQuery[time.Time]
	Pagination    domain.Pagination
}

// ProductRepository reads product documents for pricing and stock checks.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	ListLowStock(ctx context.Context, query LowStockQuery) (domain.Page[domain.StockSnapshot], error)
}

// LowStockQuery controls pagination and threshold filtering for low stock listings.
type LowStockQuery struct {
	Threshold  int
	Pagination domain.Pagination
}

// CouponRepository resolves coupon codes for server-side discount validation.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
