package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
)

// Record is the shape persisted in the idempotency DynamoDB table. One
// record exists per (key, path); the composite record_key is the partition
// key so the attribute_not_exists condition acts as the uniqueness gate.
type Record struct {
	RecordKey      string    `dynamodbav:"record_key"` // PK: key "#" path
	IdempotencyKey string    `dynamodbav:"idempotency_key"`
	Path           string    `dynamodbav:"path"`
	RequestHash    string    `dynamodbav:"request_hash"` // SHA-256 of the normalized body
	Status         string    `dynamodbav:"status"`
	OrderID        string    `dynamodbav:"order_id,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`   // verbatim replay body
	ResponseStatus int       `dynamodbav:"response_status,omitempty"` // e.g., 201
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}

// recordKey builds the composite partition key.
func recordKey(key, path string) string {
	return key + "#" + path
}
