package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/threadcraft/api/internal/platform/config"
	"github.com/threadcraft/api/internal/platform/observability"
	"github.com/threadcraft/api/internal/platform/requestctx"
	"github.com/threadcraft/api/internal/repositories"
	"github.com/threadcraft/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders    services.OrderService
	Inventory services.InventoryService
	System    services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// ContainerOption customises container assembly.
type ContainerOption func(*containerOptions)

type containerOptions struct {
	events services.OrderEventPublisher
	logger *zap.Logger
	build  services.BuildInfo
	clock  func() time.Time
}

// WithOrderEventPublisher attaches the publisher used for order lifecycle events.
// The caller owns the publisher's underlying client.
func WithOrderEventPublisher(pub services.OrderEventPublisher) ContainerOption {
	return func(o *containerOptions) {
		o.events = pub
	}
}

// WithLogger sets the logger used for service-level structured events.
func WithLogger(logger *zap.Logger) ContainerOption {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithBuildInfo attaches build metadata surfaced by health reports.
func WithBuildInfo(build services.BuildInfo) ContainerOption {
	return func(o *containerOptions) {
		o.build = build
	}
}

// WithClock overrides the clock, primarily for tests.
func WithClock(clock func() time.Time) ContainerOption {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...ContainerOption) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.build.Environment == "" {
		options.build.Environment = cfg.Environment
	}
	if options.build.StartedAt.IsZero() {
		options.build.StartedAt = options.clock()
	}

	svc, err := buildServices(ctx, reg, cfg, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, options containerOptions) (Services, error) {
	var svc Services

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Products: reg.Products(),
		Coupons:  reg.Coupons(),
		Settings: services.OrderSettings{
			Currency:             cfg.Orders.Currency,
			TaxRate:              cfg.Orders.TaxRate,
			StandardShippingCost: cfg.Orders.StandardShippingCost,
			ExpressShippingCost:  cfg.Orders.ExpressShippingCost,
			FreeShippingOver:     cfg.Orders.FreeShippingOver,
			DeliveryEstimateDays: cfg.Orders.DeliveryEstimateDays,
		},
		Clock:  options.clock,
		Events: options.events,
		Logger: serviceEventLogger(options.logger),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Products:         reg.Products(),
		DefaultThreshold: cfg.Orders.LowStockThreshold,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Clock:            options.clock,
		Build:            options.build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}

// serviceEventLogger adapts zap to the service layer's event logging hook,
// preferring the request-scoped logger when one is present on the context.
func serviceEventLogger(fallback *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := observability.FromContext(ctx)
		if logger == requestctx.NoopLogger() && fallback != nil {
			logger = fallback
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}
