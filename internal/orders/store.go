package orders

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

// ErrTxCanceled indicates the create transaction was canceled, almost always
// because a conditional put lost (idempotency key or order id already taken).
var ErrTxCanceled = errors.New("create transaction canceled")

// ErrStatusMismatch indicates a guarded status transition found the order in
// a different state than expected.
var ErrStatusMismatch = errors.New("status mismatch/conditional failed")

// Store encapsulates operations on the orders and order_items tables.
type Store struct {
	client     aws.DynamoDBAPI
	tableName  string
	itemsTable string
	nowFunc    func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName, itemsTable string) *Store {
	return &Store{
		client:     client,
		tableName:  tableName,
		itemsTable: itemsTable,
		nowFunc:    time.Now,
	}
}

// Create persists the order aggregate and its line items in one
// TransactWriteItems call. extra carries the transact items the caller needs
// committed with the order: the idempotency reservation and the outbox
// record. There is no window where the order exists without its OrderCreated
// event, or the other way around.
//
// The order put is guarded with attribute_not_exists(order_id); any
// conditional failure cancels the whole transaction and nothing is visible.
func (s *Store) Create(ctx context.Context, order Order, items []Item, extra ...types.TransactWriteItem) error {
	now := s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           &s.tableName,
				Item:                orderMap,
				ConditionExpression: awsString("attribute_not_exists(order_id)"),
			},
		},
	}

	for _, it := range items {
		it.OrderID = order.OrderID
		itemMap, err := attributevalue.MarshalMap(it)
		if err != nil {
			return fmt.Errorf("marshal line item %s: %w", it.SKU, err)
		}
		transactItems = append(transactItems, types.TransactWriteItem{
			Put: &types.Put{
				TableName: &s.itemsTable,
				Item:      itemMap,
			},
		})
	}

	transactItems = append(transactItems, extra...)

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: transactItems,
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("%w: %v", ErrTxCanceled, err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	key := map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// GetItems queries the line items belonging to one order.
func (s *Store) GetItems(ctx context.Context, orderID string) ([]Item, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.itemsTable,
		KeyConditionExpression: awsString("order_id = :oid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":oid": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	var items []Item
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return items, nil
}

// UpdateStatus conditionally moves the order from expectedStatus to
// newStatus. The guard keeps a stale or out-of-order payment event from
// re-transitioning a terminal order. Returns ErrStatusMismatch if the
// condition failed.
func (s *Store) UpdateStatus(ctx context.Context, orderID, expectedStatus, newStatus string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: newStatus},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":expected": &types.AttributeValueMemberS{Value: expectedStatus},
		},
		ConditionExpression: awsString("#s = :expected"),
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// StatusUpdateTransactItem builds the guarded status transition as a
// transact item, so the projector can commit it together with its dedup
// ledger insert.
func (s *Store) StatusUpdateTransactItem(orderID, expectedStatus, newStatus string) types.TransactWriteItem {
	now := s.nowFunc()
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName: &s.tableName,
			Key: map[string]types.AttributeValue{
				"order_id": &types.AttributeValueMemberS{Value: orderID},
			},
			UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":new":      &types.AttributeValueMemberS{Value: newStatus},
				":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
				":expected": &types.AttributeValueMemberS{Value: expectedStatus},
			},
			ConditionExpression: awsString("#s = :expected"),
		},
	}
}

func awsString(s string) *string { return &s }
