package validation

// Item represents a single order line item.
type Item struct {
	SKU        string `json:"sku" validate:"required"`        // stock keeping unit
	Qty        int    `json:"qty" validate:"required,min=1"`  // must be >= 1
	PriceCents int64  `json:"priceCents" validate:"gte=0"`    // unit price in cents, zero allowed
}

// CreateOrderRequest is the payload for POST /orders
type CreateOrderRequest struct {
	CustomerID string `json:"customerId" validate:"required"`       // business id for customer
	Currency   string `json:"currency" validate:"required,len=3,alpha"` // 3-letter code, any case
	Items      []Item `json:"items" validate:"required,min=1,dive"` // at least one item
}

// TotalCents returns the order total: sum of qty * priceCents.
func (r CreateOrderRequest) TotalCents() int64 {
	var total int64
	for _, it := range r.Items {
		total += int64(it.Qty) * it.PriceCents
	}
	return total
}
