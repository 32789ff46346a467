package projector

import (
	"context"
	"errors"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// projMock stores items per table: table -> pk -> item. It understands the
// two condition shapes the projector relies on: attribute_not_exists on the
// ledger put and the guarded status update on the order.
type projMock struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
}

func newProjMock() *projMock {
	return &projMock{tables: map[string]map[string]map[string]types.AttributeValue{}}
}

func (m *projMock) ensureTable(tbl string) map[string]map[string]types.AttributeValue {
	if _, ok := m.tables[tbl]; !ok {
		m.tables[tbl] = map[string]map[string]types.AttributeValue{}
	}
	return m.tables[tbl]
}

func strAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func projPK(attrs map[string]types.AttributeValue) (string, error) {
	for _, name := range []string{"event_id", "order_id"} {
		if v := strAttr(attrs, name); v != "" {
			return v, nil
		}
	}
	return "", errors.New("no known key attribute")
}

func (m *projMock) putHolds(tbl, pk string, cond *string) bool {
	if cond == nil || !strings.HasPrefix(*cond, "attribute_not_exists(") {
		return true
	}
	_, exists := m.tables[tbl][pk]
	return !exists
}

func (m *projMock) updateHolds(tbl, pk string, u *types.Update) bool {
	if u.ConditionExpression == nil {
		return true
	}
	item, exists := m.tables[tbl][pk]
	if !exists {
		return false
	}
	want, _ := u.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberS)
	return want != nil && strAttr(item, "status") == want.Value
}

func (m *projMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl := *params.TableName
	m.ensureTable(tbl)
	pk, err := projPK(params.Item)
	if err != nil {
		return nil, err
	}
	if !m.putHolds(tbl, pk, params.ConditionExpression) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	m.tables[tbl][pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *projMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl := *params.TableName
	m.ensureTable(tbl)
	pk, err := projPK(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[tbl][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *projMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	return nil, errors.New("update not supported by projMock")
}

func (m *projMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return nil, errors.New("query not supported by projMock")
}

func (m *projMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			tbl := *p.TableName
			m.ensureTable(tbl)
			pk, err := projPK(p.Item)
			if err != nil {
				return nil, err
			}
			if !m.putHolds(tbl, pk, p.ConditionExpression) {
				return nil, &types.TransactionCanceledException{}
			}
		}
		if u := it.Update; u != nil {
			tbl := *u.TableName
			m.ensureTable(tbl)
			pk, err := projPK(u.Key)
			if err != nil {
				return nil, err
			}
			if !m.updateHolds(tbl, pk, u) {
				return nil, &types.TransactionCanceledException{}
			}
		}
	}
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			pk, _ := projPK(p.Item)
			m.ensureTable(*p.TableName)[pk] = p.Item
		}
		if u := it.Update; u != nil {
			pk, _ := projPK(u.Key)
			item := m.ensureTable(*u.TableName)[pk]
			if v, ok := u.ExpressionAttributeValues[":new"]; ok {
				item["status"] = v
			}
			if v, ok := u.ExpressionAttributeValues[":ua"]; ok {
				item["updated_at"] = v
			}
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
