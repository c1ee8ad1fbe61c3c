package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/niltonstano/storefront-orderflow/internal/aws"
)

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client      aws.DynamoDBAPI
	tableName   string
	ttlWindow   time.Duration // record expiry (TTL attribute)
	staleWindow time.Duration // in-flight records older than this are abandoned
	nowFunc     func() time.Time
}

// NewStore returns a configured Store.
// ttlWindow bounds record retention (e.g. 48h); staleWindow bounds how long an
// in-flight claim blocks other attempts (e.g. 15m).
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow, staleWindow time.Duration) *Store {
	return &Store{
		client:      client,
		tableName:   tableName,
		ttlWindow:   ttlWindow,
		staleWindow: staleWindow,
		nowFunc:     time.Now,
	}
}

// Begin claims key for orderID. The conditional put succeeds when no record
// exists, when the previous attempt failed, or when an in-flight claim is older
// than the staleness window (crash recovery between begin and complete).
// On Proceed the caller must eventually call Complete or Fail.
func (s *Store) Begin(ctx context.Context, key, orderID string) (Decision, *Record, error) {
	now := s.nowFunc().UTC()
	rec := Record{
		IdempotencyKey: key,
		Status:         StatusInFlight,
		OrderID:        orderID,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal record: %w", err)
	}

	// an in-flight record is abandoned once its age exceeds the staleness
	// window; expressed against the numeric expires_at attribute so DynamoDB
	// compares numbers, not timestamp strings
	staleCutoff := now.Add(s.ttlWindow - s.staleWindow).Unix()
	input := &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
		ConditionExpression: awsString(
			"attribute_not_exists(idempotency_key) OR #s = :failed OR (#s = :inflight AND expires_at < :stale_cutoff)"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":       &types.AttributeValueMemberS{Value: StatusFailed},
			":inflight":     &types.AttributeValueMemberS{Value: StatusInFlight},
			":stale_cutoff": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", staleCutoff)},
		},
	}

	_, err = s.client.PutItem(ctx, input)
	if err == nil {
		return Proceed, &rec, nil
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "ConditionalCheckFailedException" {
		return 0, nil, fmt.Errorf("put item: %w", err)
	}

	// condition failed: a live record exists, inspect it
	existing, err := s.Get(ctx, key)
	if err != nil {
		return 0, nil, err
	}
	if existing == nil {
		// record vanished between put and get (TTL or concurrent reset)
		return 0, nil, fmt.Errorf("idempotency record for key %q disappeared during begin", key)
	}
	switch existing.Status {
	case StatusCompleted:
		return AlreadyCompleted, existing, nil
	default:
		return InFlight, existing, nil
	}
}

// Get retrieves an idempotency record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
	})
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

// Complete marks the record COMPLETED with the winning order id and stores the
// response payload so replays can return the original result unchanged.
func (s *Store) Complete(ctx context.Context, key, orderID, responseBody string, responseStatus int) error {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression: awsString("SET #s = :done, order_id = :oid, response_body = :rb, response_status = :rs, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done": &types.AttributeValueMemberS{Value: StatusCompleted},
			":oid":  &types.AttributeValueMemberS{Value: orderID},
			":rb":   &types.AttributeValueMemberS{Value: responseBody},
			":rs":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", responseStatus)},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("update item (complete): %w", err)
	}
	return nil
}

// Fail marks the record FAILED so a later attempt can re-claim the key cleanly.
func (s *Store) Fail(ctx context.Context, key, note string) error {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression: awsString("SET #s = :failed, note = :n, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":n":      &types.AttributeValueMemberS{Value: note},
			":ua":     &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("update item (fail): %w", err)
	}
	return nil
}

// Helper
func awsString(s string) *string { return &s }
