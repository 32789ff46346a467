package projector

import (
	"context"
	"errors"
	"fmt"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-order-outbox/internal/aws"
)

// Ledger is the dedup ledger over processed event ids. A row is written in
// the same transaction as the side effect it guards; its existence alone
// proves "already applied".
type Ledger struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewLedger creates a Ledger bound to the processed_events table.
func NewLedger(client aws.DynamoDBAPI, tableName string) *Ledger {
	return &Ledger{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// InsertTransactItem builds the conditional put for eventID. The
// attribute_not_exists guard makes the whole transaction cancel on a
// duplicate, so the side effect can never apply twice.
func (l *Ledger) InsertTransactItem(eventID string) types.TransactWriteItem {
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName: &l.tableName,
			Item: map[string]types.AttributeValue{
				"event_id":     &types.AttributeValueMemberS{Value: eventID},
				"processed_at": &types.AttributeValueMemberS{Value: l.nowFunc().Format(time.RFC3339)},
			},
			ConditionExpression: awsString("attribute_not_exists(event_id)"),
		},
	}
}

// Insert writes the ledger row alone, used when an event is absorbed without
// a side effect. Losing to a concurrent insert is fine.
func (l *Ledger) Insert(ctx context.Context, eventID string) error {
	item := l.InsertTransactItem(eventID)
	_, err := l.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           item.Put.TableName,
		Item:                item.Put.Item,
		ConditionExpression: item.Put.ConditionExpression,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil
		}
		return fmt.Errorf("insert processed event: %w", err)
	}
	return nil
}

// Seen reports whether eventID is already in the ledger.
func (l *Ledger) Seen(ctx context.Context, eventID string) (bool, error) {
	out, err := l.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &l.tableName,
		Key: map[string]types.AttributeValue{
			"event_id": &types.AttributeValueMemberS{Value: eventID},
		},
	})
	if err != nil {
		return false, fmt.Errorf("get processed event: %w", err)
	}
	return len(out.Item) > 0, nil
}

func awsString(s string) *string { return &s }
