package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/niltonstano/storefront-orderflow/internal/aws"
)

// idempotencyKeyIndex is the GSI projecting orders by idempotency_key.
const idempotencyKeyIndex = "idempotency_key-index"

// ErrIdempotencyConflict indicates the transactional create lost the race on the
// idempotency key: the guard record is owned by a different order. Callers
// resolve it by re-reading the winning order.
var ErrIdempotencyConflict = errors.New("idempotency key owned by another order")

// Store encapsulates operations on the orders table. The guard table holds the
// idempotency records whose ownership every create is checked against.
type Store struct {
	client     aws.DynamoDBAPI
	tableName  string
	guardTable string
	nowFunc    func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName, guardTable string) *Store {
	return &Store{
		client:     client,
		tableName:  tableName,
		guardTable: guardTable,
		nowFunc:    time.Now,
	}
}

// Create persists the order atomically, conditioned on the guard record for
// order.IdempotencyKey still being claimed by this order id. The condition is
// the store-level backstop: a concurrent checkout that stole the key between
// guard begin and this write cancels the transaction instead of creating a
// duplicate order.
func (s *Store) Create(ctx context.Context, order Order) error {
	now := s.nowFunc().UTC()
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
			ConditionCheck: &types.ConditionCheck{
				TableName: &s.guardTable,
				Key: map[string]types.AttributeValue{
					"idempotency_key": &types.AttributeValueMemberS{Value: order.IdempotencyKey},
				},
				ConditionExpression: awsString("attribute_exists(idempotency_key) AND order_id = :oid"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":oid": &types.AttributeValueMemberS{Value: order.OrderID},
				},
			},
		},
		{
			Put: &types.Put{
				TableName:           &s.tableName,
				Item:                orderMap,
				ConditionExpression: awsString("attribute_not_exists(order_id)"),
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: transactItems,
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("%w: %w", ErrIdempotencyConflict, err)
		}
		return fmt.Errorf("transact write: %w: %w", ErrDependencyUnavailable, err)
	}
	return nil
}

// Get fetches an order by order_id.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w: %w", ErrDependencyUnavailable, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// GetByIdempotencyKey fetches the order created under key, if any.
func (s *Store) GetByIdempotencyKey(ctx context.Context, key string) (*Order, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(idempotencyKeyIndex),
		KeyConditionExpression: awsString("idempotency_key = :k"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":k": &types.AttributeValueMemberS{Value: key},
		},
		Limit: awsInt32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query by idempotency key: %w: %w", ErrDependencyUnavailable, err)
	}
	if len(out.Items) == 0 {
		return nil, ErrNotFound
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Items[0], &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// Transition applies from -> to as a compare-and-set keyed on the current status
// value, so two racing transitions for the same order cannot both succeed.
// When transitioning into PAID, a non-empty transactionID is attached.
// Returns the updated order, ErrNotFound for a missing order, or an
// InvalidTransitionError carrying the actual current status when the CAS loses.
func (s *Store) Transition(ctx context.Context, orderID string, from, to Status, transactionID string) (*Order, error) {
	if !CanTransition(from, to) {
		return nil, &InvalidTransitionError{From: from, To: to}
	}

	now := s.nowFunc().UTC()
	updateExpr := "SET #s = :new, updated_at = :ua"
	values := map[string]types.AttributeValue{
		":new":      &types.AttributeValueMemberS{Value: string(to)},
		":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		":expected": &types.AttributeValueMemberS{Value: string(from)},
	}
	if to == StatusPaid && transactionID != "" {
		updateExpr += ", transaction_id = :tx"
		values[":tx"] = &types.AttributeValueMemberS{Value: transactionID}
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:          &updateExpr,
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
		ConditionExpression:       awsString("#s = :expected"),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// the CAS lost: diagnose against the actual stored status
			current, getErr := s.Get(ctx, orderID)
			if getErr != nil {
				if errors.Is(getErr, ErrNotFound) {
					return nil, ErrNotFound
				}
				return nil, getErr
			}
			return nil, &InvalidTransitionError{From: current.Status, To: to}
		}
		return nil, fmt.Errorf("update item: %w: %w", ErrDependencyUnavailable, err)
	}

	var o Order
	if err := attributevalue.UnmarshalMap(out.Attributes, &o); err != nil {
		return nil, fmt.Errorf("unmarshal updated order: %w", err)
	}
	return &o, nil
}

func awsString(s string) *string { return &s }
func awsInt32(n int32) *int32    { return &n }
