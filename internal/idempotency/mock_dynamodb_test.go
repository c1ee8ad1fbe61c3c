package idempotency

import (
	"context"
	"errors"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const beginCondition = "attribute_not_exists(idempotency_key) OR #s = :failed OR (#s = :inflight AND expires_at < :stale_cutoff)"

// simpleMock is a small in-memory mock for PutItem/GetItem/UpdateItem that
// evaluates the store's begin condition.
type simpleMock struct {
	mu    sync.Mutex
	table map[string]map[string]types.AttributeValue
}

func newSimpleMock() *simpleMock {
	return &simpleMock{
		table: map[string]map[string]types.AttributeValue{},
	}
}

func keyOf(attrs map[string]types.AttributeValue) (string, error) {
	v, ok := attrs["idempotency_key"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing idempotency_key")
	}
	return v.Value, nil
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := keyOf(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == beginCondition {
		existing, exists := m.table[k]
		if exists && !beginConditionHolds(existing, params.ExpressionAttributeValues) {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func beginConditionHolds(existing map[string]types.AttributeValue, values map[string]types.AttributeValue) bool {
	status, ok := existing["status"].(*types.AttributeValueMemberS)
	if !ok {
		return false
	}
	failed := values[":failed"].(*types.AttributeValueMemberS).Value
	inflight := values[":inflight"].(*types.AttributeValueMemberS).Value
	if status.Value == failed {
		return true
	}
	if status.Value != inflight {
		return false
	}
	expires, ok := existing["expires_at"].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	cutoff := values[":stale_cutoff"].(*types.AttributeValueMemberN).Value
	expiresN, _ := strconv.ParseInt(expires.Value, 10, 64)
	cutoffN, _ := strconv.ParseInt(cutoff, 10, 64)
	return expiresN < cutoffN
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := keyOf(params.Key)
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
	k, err := keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return nil, errors.New("item not found")
	}
	for expr, attr := range map[string]string{
		":done":   "status",
		":failed": "status",
		":oid":    "order_id",
		":rb":     "response_body",
		":rs":     "response_status",
		":ua":     "updated_at",
		":n":      "note",
	} {
		if v, ok := params.ExpressionAttributeValues[expr]; ok {
			item[attr] = v
		}
	}
	m.table[k] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *simpleMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return nil, errors.New("not supported by mock")
}

func (m *simpleMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return nil, errors.New("not supported by mock")
}
