package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-order-outbox/internal/aws"
)

// ErrConflict indicates the same (key, path) was replayed with a different
// request hash; the original side effect is left untouched.
var ErrConflict = errors.New("idempotency key reused with different payload")

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// ttlWindow bounds how long replays are honored (e.g., 48*time.Hour).
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// Get retrieves the record for (key, path). If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key, path string) (*Record, error) {
	input := &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"record_key": &types.AttributeValueMemberS{Value: recordKey(key, path)},
		},
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// ReservationTransactItem builds the conditional put that reserves the
// (key, path) slot with status IN_PROGRESS. Committed inside the same
// transaction as the order write, it turns the uniqueness constraint into a
// mutual-exclusion gate: two concurrent requests with the same fresh key
// cannot both create an order, only the transaction holding the slot commits.
func (s *Store) ReservationTransactItem(key, path, requestHash, orderID string) (types.TransactWriteItem, error) {
	now := s.nowFunc()
	rec := Record{
		RecordKey:      recordKey(key, path),
		IdempotencyKey: key,
		Path:           path,
		RequestHash:    requestHash,
		Status:         StatusInProgress,
		OrderID:        orderID,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal record: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(record_key)"),
		},
	}, nil
}

// MarkDone stores the verbatim response body and status for replay and moves
// the record to DONE.
func (s *Store) MarkDone(ctx context.Context, key, path, responseBody string, responseStatus int) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"record_key": &types.AttributeValueMemberS{Value: recordKey(key, path)},
		},
		UpdateExpression: awsString("SET #s = :done, response_body = :rb, response_status = :rs, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done": &types.AttributeValueMemberS{Value: StatusDone},
			":rb":   &types.AttributeValueMemberS{Value: responseBody},
			":rs":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", responseStatus)},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("update item (mark done): %w", err)
	}
	return nil
}

// CheckReplay compares an existing record against the hash of the incoming
// request. It returns the stored response when this is a faithful replay,
// ErrConflict when the key was reused for a different payload, and
// (nil, nil) when the original request is still in flight.
func CheckReplay(rec *Record, requestHash string) (*Record, error) {
	if rec.RequestHash != requestHash {
		return nil, ErrConflict
	}
	if rec.Status == StatusDone && rec.ResponseBody != "" {
		return rec, nil
	}
	return nil, nil
}

// Helper
func awsString(s string) *string { return &s }
