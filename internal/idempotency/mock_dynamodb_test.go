package idempotency

import (
	"context"
	"errors"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a very small in-memory mock for the idempotency table keyed
// by record_key. Intentionally minimal, not production-grade.
type simpleMock struct {
	mu    sync.Mutex
	table map[string]map[string]types.AttributeValue
}

func newSimpleMock() *simpleMock {
	return &simpleMock{
		table: map[string]map[string]types.AttributeValue{},
	}
}

func pkOf(item map[string]types.AttributeValue) (string, error) {
	attr, ok := item["record_key"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing record_key")
	}
	return attr.Value, nil
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := pkOf(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(record_key)" {
		if _, ok := m.table[k]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return nil, errors.New("item not found")
	}
	// naive update: copy known expression values into their attributes
	if v, ok := params.ExpressionAttributeValues[":done"]; ok {
		item["status"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":rb"]; ok {
		item["response_body"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":rs"]; ok {
		item["response_status"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":ua"]; ok {
		item["updated_at"] = v
	}
	m.table[k] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *simpleMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return nil, errors.New("query not supported by simpleMock")
}

func (m *simpleMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// first pass: verify conditions
	for _, it := range params.TransactItems {
		p := it.Put
		if p == nil {
			continue
		}
		if p.ConditionExpression != nil && *p.ConditionExpression == "attribute_not_exists(record_key)" {
			k, err := pkOf(p.Item)
			if err != nil {
				return nil, err
			}
			if _, ok := m.table[k]; ok {
				return nil, &types.TransactionCanceledException{}
			}
		}
	}
	// second pass: apply puts that belong to this table
	for _, it := range params.TransactItems {
		if it.Put == nil {
			continue
		}
		if k, err := pkOf(it.Put.Item); err == nil {
			m.table[k] = it.Put.Item
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
