package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	pfirestore "github.com/threadcraft/api/internal/platform/firestore"
	"github.com/threadcraft/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract. It owns the provider lifecycle.
type Registry struct {
	provider *pfirestore.Provider

	orders   *OrderRepository
	products *ProductRepository
	coupons  *CouponRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises registry construction.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	healthTimeout time.Duration
}

// WithHealthTimeout overrides the probe timeout used by the registry health checks.
func WithHealthTimeout(timeout time.Duration) RegistryOption {
	return func(o *registryOptions) {
		if timeout > 0 {
			o.healthTimeout = timeout
		}
	}
}

// NewRegistry constructs the repository set on top of the shared provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	options := registryOptions{healthTimeout: 1500 * time.Millisecond}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	coupons, err := NewCouponRepository(provider)
	if err != nil {
		return nil, err
	}

	health, err := repositories.NewDependencyHealthRepository(
		[]repositories.DependencyCheck{
			{
				Name:    "firestore",
				Timeout: options.healthTimeout,
				Check: func(ctx context.Context) error {
					client, err := provider.Client(ctx)
					if err != nil {
						return err
					}
					iter := client.Collections(ctx)
					if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
						return err
					}
					return nil
				},
			},
		},
	)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: provider,
		orders:   orders,
		products: products,
		coupons:  coupons,
		health:   health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Products() repositories.ProductRepository { return r.products }
func (r *Registry) Coupons() repositories.CouponRepository   { return r.coupons }
func (r *Registry) Health() repositories.HealthRepository    { return r.health }

// RunInTx executes fn inside a Firestore transaction. Repositories invoked
// within fn do not automatically join the transaction; callers needing
// transactional stock semantics use OrderRepository.CreateWithStock.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}
