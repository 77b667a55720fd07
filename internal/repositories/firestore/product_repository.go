package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/threadcraft/api/internal/domain"
	pfirestore "github.com/threadcraft/api/internal/platform/firestore"
	"github.com/threadcraft/api/internal/repositories"
)

const productsCollection = "products"

// ProductRepository reads the product catalog for pricing, availability
// checks, and the admin low-stock report.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
	}, nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product find: product id is required")
	}
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIDs fetches a batch of products keyed by document ID. Missing
// products are simply absent from the result map; callers decide whether
// absence is an error.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}
	out := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("products.findByIDs", err)
	}

	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		refs = append(refs, client.Collection(productsCollection).Doc(id))
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("products.findByIDs", err)
	}
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		out[snap.Ref.ID] = doc.toDomain(snap.Ref.ID)
	}
	return out, nil
}

// ListLowStock pages over products whose lowest variant stock is at or below
// the threshold, expanding each matching variant to a snapshot row. The
// minVariantStock field is maintained on every stock write so the query can
// filter server-side.
func (r *ProductRepository) ListLowStock(ctx context.Context, query repositories.LowStockQuery) (domain.Page[domain.StockSnapshot], error) {
	if r == nil || r.provider == nil {
		return domain.Page[domain.StockSnapshot]{}, errors.New("product repository not initialised")
	}

	threshold := query.Threshold
	if threshold < 0 {
		threshold = 0
	}
	pager := query.Pagination
	if pager.Page <= 0 {
		pager.Page = 1
	}
	if pager.Limit <= 0 {
		pager.Limit = 10
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Page[domain.StockSnapshot]{}, pfirestore.WrapError("products.lowStock", err)
	}

	base := client.Collection(productsCollection).Query.
		Where("minVariantStock", "<=", threshold)

	total, err := countDocuments(ctx, base)
	if err != nil {
		return domain.Page[domain.StockSnapshot]{}, pfirestore.WrapError("products.lowStock.count", err)
	}

	iter := base.OrderBy("minVariantStock", firestore.Asc).
		Offset((pager.Page - 1) * pager.Limit).
		Limit(pager.Limit).
		Documents(ctx)
	defer iter.Stop()

	var snapshots []domain.StockSnapshot
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Page[domain.StockSnapshot]{}, pfirestore.WrapError("products.lowStock", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Page[domain.StockSnapshot]{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		for _, variant := range doc.Variants {
			if variant.Stock > threshold {
				continue
			}
			snapshots = append(snapshots, domain.StockSnapshot{
				ProductID: snap.Ref.ID,
				Name:      doc.Name,
				SKU:       variant.SKU,
				Size:      variant.Size,
				Color:     variant.Color,
				Stock:     variant.Stock,
				UpdatedAt: doc.UpdatedAt,
			})
		}
	}

	pages := 0
	if total > 0 {
		pages = int((total + int64(pager.Limit) - 1) / int64(pager.Limit))
	}

	return domain.Page[domain.StockSnapshot]{
		Items: snapshots,
		Page:  pager.Page,
		Limit: pager.Limit,
		Total: total,
		Pages: pages,
	}, nil
}

type productDocument struct {
	Name            string                   `firestore:"name"`
	Slug            string                   `firestore:"slug,omitempty"`
	Image           string                   `firestore:"image,omitempty"`
	Price           int64                    `firestore:"price"`
	Currency        string                   `firestore:"currency"`
	Variants        []productVariantDocument `firestore:"variants"`
	MinVariantStock int                      `firestore:"minVariantStock"`
	UpdatedAt       time.Time                `firestore:"updatedAt"`
}

type productVariantDocument struct {
	Size  string `firestore:"size"`
	Color string `firestore:"color,omitempty"`
	SKU   string `firestore:"sku"`
	Stock int    `firestore:"stock"`
}

func (d *productDocument) variantIndex(sku string) int {
	for i, v := range d.Variants {
		if v.SKU == sku {
			return i
		}
	}
	return -1
}

// recalculate refreshes minVariantStock after variant mutations.
func (d *productDocument) recalculate() {
	min := 0
	for i, v := range d.Variants {
		if i == 0 || v.Stock < min {
			min = v.Stock
		}
	}
	d.MinVariantStock = min
}

func (d productDocument) toDomain(id string) domain.Product {
	variants := make([]domain.ProductVariant, len(d.Variants))
	for i, v := range d.Variants {
		variants[i] = domain.ProductVariant(v)
	}
	return domain.Product{
		ID:        id,
		Name:      d.Name,
		Slug:      d.Slug,
		Image:     d.Image,
		Price:     d.Price,
		Currency:  d.Currency,
		Variants:  variants,
		UpdatedAt: d.UpdatedAt,
	}
}
