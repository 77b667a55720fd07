package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/threadcraft/api/internal/domain"
	pfirestore "github.com/threadcraft/api/internal/platform/firestore"
	"github.com/threadcraft/api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	orderNumbersCollection = "orderNumbers"
)

// OrderRepository persists orders in Firestore. Order numbers are kept
// unique through index documents created in the same transaction as the
// order itself.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productDocument]
	numbers  *pfirestore.BaseRepository[orderNumberDocument]
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		numbers:  pfirestore.NewBaseRepository[orderNumberDocument](provider, orderNumbersCollection, nil, nil),
	}, nil
}

// CreateWithStock inserts the order and decrements variant stock inside one
// transaction. All reads happen before any write; an insufficient variant
// aborts the transaction with no partial decrements.
func (r *OrderRepository) CreateWithStock(ctx context.Context, req repositories.OrderCreateRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	order := req.Order
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("order create: order id is required")
	}
	if strings.TrimSpace(order.OrderNumber) == "" {
		return domain.Order{}, errors.New("order create: order number is required")
	}
	if len(req.Decrements) == 0 {
		return domain.Order{}, errors.New("order create: at least one stock decrement is required")
	}

	now := req.Now.UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	var created domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		numberRef, err := r.numbers.DocumentRef(ctx, order.OrderNumber)
		if err != nil {
			return err
		}

		// Read phase: fetch every affected product before writing anything.
		productRefs := make(map[string]*firestore.DocumentRef)
		productDocs := make(map[string]productDocument)
		for _, dec := range req.Decrements {
			productID := strings.TrimSpace(dec.ProductID)
			if productID == "" {
				return repositories.NewStockError(repositories.StockErrorProductNotFound, "order create: product id is required", nil)
			}
			if dec.Quantity <= 0 {
				return repositories.NewStockError(repositories.StockErrorUnknown, fmt.Sprintf("order create: quantity for %s must be > 0", dec.SKU), nil)
			}
			if _, seen := productDocs[productID]; seen {
				continue
			}
			ref, err := r.products.DocumentRef(ctx, productID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return &repositories.StockError{
						Code:      repositories.StockErrorProductNotFound,
						ProductID: productID,
						Message:   fmt.Sprintf("product %s not found", productID),
						Err:       err,
					}
				}
				return err
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", productID, err)
			}
			productRefs[productID] = ref
			productDocs[productID] = doc
		}

		// Apply decrements in memory, validating availability per variant.
		for _, dec := range req.Decrements {
			productID := strings.TrimSpace(dec.ProductID)
			doc := productDocs[productID]
			idx := doc.variantIndex(dec.SKU)
			if idx < 0 {
				return &repositories.StockError{
					Code:      repositories.StockErrorVariantNotFound,
					ProductID: productID,
					SKU:       dec.SKU,
					Message:   fmt.Sprintf("variant %s not found on product %s", dec.SKU, productID),
				}
			}
			if doc.Variants[idx].Stock < dec.Quantity {
				return &repositories.StockError{
					Code:      repositories.StockErrorInsufficient,
					ProductID: productID,
					SKU:       dec.SKU,
					Message:   fmt.Sprintf("insufficient stock for %s", dec.SKU),
				}
			}
			doc.Variants[idx].Stock -= dec.Quantity
			productDocs[productID] = doc
		}

		// Write phase.
		for productID, doc := range productDocs {
			doc.UpdatedAt = now
			doc.recalculate()
			if err := tx.Set(productRefs[productID], doc); err != nil {
				return err
			}
			productDocs[productID] = doc
		}

		orderDoc := newOrderDocument(order)
		if err := tx.Create(orderRef, orderDoc); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return pfirestore.WrapError("orders.create", err)
			}
			return err
		}
		if err := tx.Create(numberRef, orderNumberDocument{
			OrderRef:  order.ID,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		created = orderDoc.toDomain(order.ID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapStockError("orders.createWithStock", err)
	}
	return created, nil
}

// Update replaces the order document. The caller owns transition validation.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order update: order id is required")
	}
	order.UpdatedAt = order.UpdatedAt.UTC()
	if _, err := r.orders.Set(ctx, order.ID, newOrderDocument(order)); err != nil {
		return err
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: order id is required")
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns a page of orders newest-first together with the total count
// of the filtered set. The count comes from a Firestore aggregation running
// against the same predicate as the page query.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.Page[domain.Order]{}, errors.New("order repository not initialised")
	}

	pager := filter.Pagination
	if pager.Page <= 0 {
		pager.Page = 1
	}
	if pager.Limit <= 0 {
		pager.Limit = 10
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Page[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	base := client.Collection(ordersCollection).Query
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		base = base.Where("userRef", "==", userID)
	}
	if len(filter.Status) > 0 {
		base = base.Where("status", "in", statusValues(filter.Status))
	}
	if len(filter.PaymentStatus) > 0 {
		base = base.Where("paymentStatus", "in", paymentStatusValues(filter.PaymentStatus))
	}
	if filter.DateRange.From != nil {
		base = base.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		base = base.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}

	total, err := countDocuments(ctx, base)
	if err != nil {
		return domain.Page[domain.Order]{}, pfirestore.WrapError("orders.count", err)
	}

	query := base.OrderBy("createdAt", firestore.Desc).
		Offset((pager.Page - 1) * pager.Limit).
		Limit(pager.Limit)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Page[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Page[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	pages := 0
	if total > 0 {
		pages = int((total + int64(pager.Limit) - 1) / int64(pager.Limit))
	}

	return domain.Page[domain.Order]{
		Items: orders,
		Page:  pager.Page,
		Limit: pager.Limit,
		Total: total,
		Pages: pages,
	}, nil
}

func countDocuments(ctx context.Context, query firestore.Query) (int64, error) {
	results, err := query.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, err
	}
	raw, ok := results["total"]
	if !ok {
		return 0, errors.New("aggregation result missing count")
	}
	value, ok := raw.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected aggregation value type %T", raw)
	}
	return value.GetIntegerValue(), nil
}

func statusValues(statuses []domain.OrderStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func paymentStatusValues(statuses []domain.PaymentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Document structures -------------------------------------------------------

type orderDocument struct {
	OrderNumber     string                  `firestore:"orderNumber"`
	UserRef         string                  `firestore:"userRef"`
	Customer        customerDocument        `firestore:"customer"`
	Items           []orderItemDocument     `firestore:"items"`
	Subtotal        int64                   `firestore:"subtotal"`
	Tax             int64                   `firestore:"tax"`
	ShippingCost    int64                   `firestore:"shippingCost"`
	Discount        int64                   `firestore:"discount"`
	Total           int64                   `firestore:"total"`
	Currency        string                  `firestore:"currency"`
	Status          string                  `firestore:"status"`
	PaymentStatus   string                  `firestore:"paymentStatus"`
	PaymentMethod   string                  `firestore:"paymentMethod,omitempty"`
	CouponCode      string                  `firestore:"couponCode,omitempty"`
	ShippingAddress addressDocument         `firestore:"shippingAddress"`
	BillingAddress  *addressDocument        `firestore:"billingAddress,omitempty"`
	Shipping        shippingDocument        `firestore:"shipping"`
	TrackingEvents  []trackingEventDocument `firestore:"trackingEvents"`
	Notes           string                  `firestore:"notes,omitempty"`
	CreatedAt       time.Time               `firestore:"createdAt"`
	UpdatedAt       time.Time               `firestore:"updatedAt"`
	DeliveredAt     *time.Time              `firestore:"deliveredAt,omitempty"`
	CancelledAt     *time.Time              `firestore:"cancelledAt,omitempty"`
	CancelReason    *string                 `firestore:"cancelReason,omitempty"`
}

type customerDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
	Phone string `firestore:"phone,omitempty"`
}

type orderItemDocument struct {
	ProductRef string `firestore:"productRef"`
	Name       string `firestore:"name"`
	Slug       string `firestore:"slug,omitempty"`
	Image      string `firestore:"image,omitempty"`
	SKU        string `firestore:"sku"`
	Size       string `firestore:"size"`
	Color      string `firestore:"color,omitempty"`
	UnitPrice  int64  `firestore:"unitPrice"`
	Quantity   int    `firestore:"qty"`
	Total      int64  `firestore:"total"`
}

type addressDocument struct {
	Name    string `firestore:"name"`
	Street  string `firestore:"street"`
	City    string `firestore:"city"`
	State   string `firestore:"state"`
	ZipCode string `firestore:"zipCode"`
	Country string `firestore:"country"`
	Phone   string `firestore:"phone,omitempty"`
}

type shippingDocument struct {
	Method            string     `firestore:"method"`
	Cost              int64      `firestore:"cost"`
	TrackingNumber    *string    `firestore:"trackingNumber,omitempty"`
	EstimatedDelivery time.Time  `firestore:"estimatedDelivery"`
}

type trackingEventDocument struct {
	Status      string    `firestore:"status"`
	Timestamp   time.Time `firestore:"timestamp"`
	Location    string    `firestore:"location,omitempty"`
	Description string    `firestore:"description,omitempty"`
	UpdatedBy   string    `firestore:"updatedBy,omitempty"`
}

type orderNumberDocument struct {
	OrderRef  string    `firestore:"orderRef"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ProductRef: strings.TrimSpace(item.ProductID),
			Name:       item.Name,
			Slug:       item.Slug,
			Image:      item.Image,
			SKU:        strings.TrimSpace(item.SKU),
			Size:       item.Size,
			Color:      item.Color,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
			Total:      item.Total,
		}
	}

	events := make([]trackingEventDocument, len(order.TrackingEvents))
	for i, event := range order.TrackingEvents {
		events[i] = trackingEventDocument{
			Status:      string(event.Status),
			Timestamp:   event.Timestamp.UTC(),
			Location:    event.Location,
			Description: event.Description,
			UpdatedBy:   event.UpdatedBy,
		}
	}

	var billing *addressDocument
	if order.BillingAddress != nil {
		doc := newAddressDocument(*order.BillingAddress)
		billing = &doc
	}

	return orderDocument{
		OrderNumber:     order.OrderNumber,
		UserRef:         order.UserID,
		Customer:        customerDocument(order.Customer),
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
		ShippingAddress: newAddressDocument(order.ShippingAddress),
		BillingAddress:  billing,
		Shipping: shippingDocument{
			Method:            order.Shipping.Method,
			Cost:              order.Shipping.Cost,
			TrackingNumber:    order.Shipping.TrackingNumber,
			EstimatedDelivery: order.Shipping.EstimatedDelivery.UTC(),
		},
		TrackingEvents: events,
		Notes:          order.Notes,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
		DeliveredAt:    order.DeliveredAt,
		CancelledAt:    order.CancelledAt,
		CancelReason:   order.CancelReason,
	}
}

func newAddressDocument(addr domain.Address) addressDocument {
	return addressDocument(addr)
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ProductID: item.ProductRef,
			Name:      item.Name,
			Slug:      item.Slug,
			Image:     item.Image,
			SKU:       item.SKU,
			Size:      item.Size,
			Color:     item.Color,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Total:     item.Total,
		}
	}

	events := make([]domain.TrackingEvent, len(d.TrackingEvents))
	for i, event := range d.TrackingEvents {
		events[i] = domain.TrackingEvent{
			Status:      domain.OrderStatus(event.Status),
			Timestamp:   event.Timestamp,
			Location:    event.Location,
			Description: event.Description,
			UpdatedBy:   event.UpdatedBy,
		}
	}

	var billing *domain.Address
	if d.BillingAddress != nil {
		addr := domain.Address(*d.BillingAddress)
		billing = &addr
	}

	return domain.Order{
		ID:              id,
		OrderNumber:     d.OrderNumber,
		UserID:          d.UserRef,
		Customer:        domain.CustomerInfo(d.Customer),
		Items:           items,
		Subtotal:        d.Subtotal,
		Tax:             d.Tax,
		ShippingCost:    d.ShippingCost,
		Discount:        d.Discount,
		Total:           d.Total,
		Currency:        d.Currency,
		Status:          domain.OrderStatus(d.Status),
		PaymentStatus:   domain.PaymentStatus(d.PaymentStatus),
		PaymentMethod:   d.PaymentMethod,
		CouponCode:      d.CouponCode,
		ShippingAddress: domain.Address(d.ShippingAddress),
		BillingAddress:  billing,
		Shipping: domain.ShippingInfo{
			Method:            d.Shipping.Method,
			Cost:              d.Shipping.Cost,
			TrackingNumber:    d.Shipping.TrackingNumber,
			EstimatedDelivery: d.Shipping.EstimatedDelivery,
		},
		TrackingEvents: events,
		Notes:          d.Notes,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		DeliveredAt:    d.DeliveredAt,
		CancelledAt:    d.CancelledAt,
		CancelReason:   d.CancelReason,
	}
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
