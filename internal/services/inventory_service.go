package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/threadcraft/api/internal/domain"
	"github.com/threadcraft/api/internal/repositories"
)

// ErrInventoryInvalidInput signals an invalid low-stock query.
var ErrInventoryInvalidInput = errors.New("inventory: invalid input")

// InventoryServiceDeps bundles collaborators required to construct the inventory service.
type InventoryServiceDeps struct {
	Products         repositories.ProductRepository
	DefaultThreshold int
}

type inventoryService struct {
	products         repositories.ProductRepository
	defaultThreshold int
}

var _ InventoryService = (*inventoryService)(nil)

// NewInventoryService assembles the stock reporting service.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Products == nil {
		return nil, errors.New("inventory service: product repository is required")
	}
	threshold := deps.DefaultThreshold
	if threshold <= 0 {
		threshold = 5
	}
	return &inventoryService{
		products:         deps.Products,
		defaultThreshold: threshold,
	}, nil
}

func (s *inventoryService) ListLowStock(ctx context.Context, query LowStockQuery) (domain.Page[StockSnapshot], error) {
	threshold := query.Threshold
	if threshold == 0 {
		threshold = s.defaultThreshold
	}
	if threshold < 0 {
		return domain.Page[StockSnapshot]{}, fmt.Errorf("%w: threshold must not be negative", ErrInventoryInvalidInput)
	}

	page, err := s.products.ListLowStock(ctx, repositories.LowStockQuery{
		Threshold:  threshold,
		Pagination: query.Pagination,
	})
	if err != nil {
		return domain.Page[StockSnapshot]{}, err
	}
	return page, nil
}
