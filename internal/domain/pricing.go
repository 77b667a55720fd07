package domain

// PricingBreakdown captures the monetary components computed for an order.
// All amounts are minor currency units and satisfy
// Total = Subtotal + Tax + Shipping - Discount exactly.
type PricingBreakdown struct {
	Currency string
	Subtotal int64
	Discount int64
	Tax      int64
	Shipping int64
	Total    int64
	TaxRate  float64
	Items    []ItemPricingBreakdown
}

// ItemPricingBreakdown stores per-line pricing outputs.
type ItemPricingBreakdown struct {
	ProductID string
	SKU       string
	UnitPrice int64
	Quantity  int
	Total     int64
}

// PriceOrder assembles the breakdown from priced lines, the shipping charge,
// and an already-resolved discount. Tax is computed on the subtotal and
// rounded exactly once.
func PriceOrder(currency string, taxRate float64, items []ItemPricingBreakdown, shipping, discount int64) PricingBreakdown {
	var subtotal int64
	for _, item := range items {
		subtotal += item.Total
	}
	tax := RoundHalfUpRate(subtotal, taxRate)
	return PricingBreakdown{
		Currency: currency,
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal + tax + shipping - discount,
		TaxRate:  taxRate,
		Items:    items,
	}
}

// RoundHalfUpRate multiplies amount by rate and rounds half away from zero.
// Used for tax so the rounded value is applied exactly once per order.
func RoundHalfUpRate(amount int64, rate float64) int64 {
	scaled := float64(amount) * rate
	if scaled >= 0 {
		return int64(scaled + 0.5)
	}
	return int64(scaled - 0.5)
}

// DiscountAmount computes the discount a coupon grants on a subtotal,
// clamped to the subtotal so totals never go negative.
func (c Coupon) DiscountAmount(subtotal int64) int64 {
	var amount int64
	switch c.Type {
	case CouponTypePercent:
		amount = RoundHalfUpRate(subtotal, float64(c.Value)/100)
	case CouponTypeFixed:
		amount = c.Value
	default:
		return 0
	}
	if amount < 0 {
		return 0
	}
	if amount > subtotal {
		return subtotal
	}
	return amount
}
