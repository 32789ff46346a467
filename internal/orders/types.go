package orders

import "time"

// Order statuses
const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusCanceled  = "CANCELED"
)

// Order is the aggregate stored in the orders DynamoDB table. It is created
// once as PENDING; only the payment projector moves it to a terminal status.
type Order struct {
	OrderID          string    `dynamodbav:"order_id"`    // PK
	CustomerID       string    `dynamodbav:"customer_id"` // customer reference
	Status           string    `dynamodbav:"status"`      // PENDING | CONFIRMED | CANCELED
	TotalAmountCents int64     `dynamodbav:"total_amount_cents"`
	Currency         string    `dynamodbav:"currency"` // 3-letter code, uppercased
	CreatedAt        time.Time `dynamodbav:"created_at"`
	UpdatedAt        time.Time `dynamodbav:"updated_at"`
}

// Item is one order line, stored in the order_items table under the
// composite key (order_id, sku). Written once at creation, never updated.
type Item struct {
	OrderID    string `dynamodbav:"order_id"` // PK
	SKU        string `dynamodbav:"sku"`      // SK
	Qty        int    `dynamodbav:"qty"`
	PriceCents int64  `dynamodbav:"price_cents"`
}
