package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation
// registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// Line items are keyed by (order id, sku), so a request repeating a sku
	// would collide inside the create transaction. Reject it up front.
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	seen := map[string]bool{}
	for _, it := range req.Items {
		if seen[it.SKU] {
			sl.ReportError(req.Items, "items", "Items", "unique_sku", it.SKU)
			return
		}
		seen[it.SKU] = true
	}
}
