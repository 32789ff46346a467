package outbox

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// outboxMock is an in-memory stand-in for the outbox table: items keyed by
// numeric id, a naive counter for ADD seq, and a fake status-id-index query.
type outboxMock struct {
	mu    sync.Mutex
	items map[int64]map[string]types.AttributeValue
}

func newOutboxMock() *outboxMock {
	return &outboxMock{items: map[int64]map[string]types.AttributeValue{}}
}

func idOf(attrs map[string]types.AttributeValue) (int64, error) {
	n, ok := attrs["id"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("missing id")
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

func (m *outboxMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := idOf(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil {
		if _, exists := m.items[id]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.items[id] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *outboxMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := idOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.items[id]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *outboxMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := idOf(params.Key)
	if err != nil {
		return nil, err
	}

	// counter increment: ADD seq :one
	if params.UpdateExpression != nil && *params.UpdateExpression == "ADD seq :one" {
		item, ok := m.items[id]
		if !ok {
			item = map[string]types.AttributeValue{
				"id":  params.Key["id"],
				"seq": &types.AttributeValueMemberN{Value: "0"},
			}
		}
		curr, _ := strconv.ParseInt(item["seq"].(*types.AttributeValueMemberN).Value, 10, 64)
		item["seq"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(curr+1, 10)}
		m.items[id] = item
		return &dyn.UpdateItemOutput{Attributes: item}, nil
	}

	item, ok := m.items[id]
	if !ok {
		return nil, errors.New("item not found")
	}
	// guarded status mark: condition #s = :new
	if params.ConditionExpression != nil {
		curr, _ := item["status"].(*types.AttributeValueMemberS)
		want, _ := params.ExpressionAttributeValues[":new"].(*types.AttributeValueMemberS)
		if curr == nil || want == nil || curr.Value != want.Value {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	if v, ok := params.ExpressionAttributeValues[":to"]; ok {
		item["status"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":ua"]; ok {
		item["sent_at"] = v
	}
	m.items[id] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *outboxMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want, ok := params.ExpressionAttributeValues[":new"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("unsupported query")
	}

	var ids []int64
	for id, item := range m.items {
		if id == counterID {
			continue
		}
		if st, ok := item["status"].(*types.AttributeValueMemberS); ok && st.Value == want.Value {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	limit := len(ids)
	if params.Limit != nil && int(*params.Limit) < limit {
		limit = int(*params.Limit)
	}
	out := make([]map[string]types.AttributeValue, 0, limit)
	for _, id := range ids[:limit] {
		out = append(out, m.items[id])
	}
	return &dyn.QueryOutput{Items: out}, nil
}

func (m *outboxMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			id, err := idOf(p.Item)
			if err != nil {
				return nil, err
			}
			if p.ConditionExpression != nil {
				if _, exists := m.items[id]; exists {
					return nil, &types.TransactionCanceledException{}
				}
			}
			m.items[id] = p.Item
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
