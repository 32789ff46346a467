package outbox

import "time"

// Record statuses. A record starts as NEW and moves exactly once to SENT or
// FAILED; neither is ever reverted.
const (
	StatusNew    = "NEW"
	StatusSent   = "SENT"
	StatusFailed = "FAILED"
)

// Event types emitted through the outbox.
const (
	EventOrderCreated = "OrderCreated"
)

// AggregateOrder is the aggregate type for order events.
const AggregateOrder = "order"

// Record is one outbox row: the durable promise that an event will be
// published for a business write that committed.
type Record struct {
	ID            int64     `dynamodbav:"id"` // PK, monotonically increasing
	AggregateType string    `dynamodbav:"aggregate_type"`
	AggregateID   string    `dynamodbav:"aggregate_id"`
	EventType     string    `dynamodbav:"event_type"`
	Payload       []byte    `dynamodbav:"payload"` // opaque serialized event body
	Status        string    `dynamodbav:"status"`  // NEW | SENT | FAILED
	CreatedAt     time.Time `dynamodbav:"created_at"`
	AvailableAt   time.Time `dynamodbav:"available_at"`
}
