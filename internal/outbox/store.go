package outbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/go-order-outbox/internal/aws"
)

// statusIndex is the GSI keyed by (status, id); the relay queries it for NEW
// records in insertion order.
const statusIndex = "status-id-index"

// counterID is the reserved id of the sequence counter item. Real records
// start at 1.
const counterID = 0

// ErrNotNew indicates a mark lost its condition: the record was no longer in
// status NEW. SENT and FAILED are terminal.
var ErrNotNew = errors.New("outbox record not in NEW status")

// Store encapsulates operations on the outbox table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new outbox Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// NextID allocates the next record id from an atomic counter item. Ids are
// monotonically increasing; gaps from aborted transactions are fine, the
// relay only relies on the ordering.
func (s *Store) NextID(ctx context.Context) (int64, error) {
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberN{Value: strconv.Itoa(counterID)},
		},
		UpdateExpression: awsString("ADD seq :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("increment outbox sequence: %w", err)
	}
	seqAttr, ok := out.Attributes["seq"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("outbox sequence attribute missing in update result")
	}
	id, err := strconv.ParseInt(seqAttr.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse outbox sequence: %w", err)
	}
	return id, nil
}

// NewRecord fills a Record for the given aggregate with status NEW.
func (s *Store) NewRecord(id int64, aggregateID, eventType string, payload []byte) Record {
	now := s.nowFunc()
	return Record{
		ID:            id,
		AggregateType: AggregateOrder,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusNew,
		CreatedAt:     now,
		AvailableAt:   now,
	}
}

// SaveTransactItem builds the put for rec so the caller can commit it inside
// the same TransactWriteItems as the business write it documents. Writing the
// outbox row separately would reopen the dual-write crash window this whole
// package exists to close.
func (s *Store) SaveTransactItem(rec Record) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal outbox record: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(id)"),
		},
	}, nil
}

// FetchNew returns up to limit NEW records in ascending id order.
func (s *Store) FetchNew(ctx context.Context, limit int32) ([]Record, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:                &s.tableName,
		IndexName:                awsString(statusIndex),
		KeyConditionExpression:   awsString("#s = :new"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new": &types.AttributeValueMemberS{Value: StatusNew},
		},
		Limit: &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query new records: %w", err)
	}
	var recs []Record
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &recs); err != nil {
		return nil, fmt.Errorf("unmarshal outbox records: %w", err)
	}
	return recs, nil
}

// MarkSent moves a record NEW -> SENT.
func (s *Store) MarkSent(ctx context.Context, id int64) error {
	return s.mark(ctx, id, StatusSent)
}

// MarkFailed moves a record NEW -> FAILED. FAILED is terminal: no retry is
// scheduled, remediation is operational.
func (s *Store) MarkFailed(ctx context.Context, id int64) error {
	return s.mark(ctx, id, StatusFailed)
}

func (s *Store) mark(ctx context.Context, id int64, status string) error {
	now := s.nowFunc()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberN{Value: strconv.FormatInt(id, 10)},
		},
		UpdateExpression:         awsString("SET #s = :to, sent_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":to":  &types.AttributeValueMemberS{Value: status},
			":ua":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":new": &types.AttributeValueMemberS{Value: StatusNew},
		},
		ConditionExpression: awsString("#s = :new"),
	})
	if err != nil {
		// detect conditional check failure
		var sc smithy.APIError
		if errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException" {
			return ErrNotNew
		}
		return fmt.Errorf("mark %s: %w", status, err)
	}
	return nil
}

func awsString(s string) *string { return &s }
