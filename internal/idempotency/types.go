package idempotency

import "time"

// Status values for idempotency records
const (
	StatusInFlight  = "IN_FLIGHT"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Record is the shape persisted in the idempotency DynamoDB table.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status"`
	OrderID        string    `dynamodbav:"order_id,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`   // small responses only
	ResponseStatus int       `dynamodbav:"response_status,omitempty"` // e.g. 201
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// Decision is the outcome of Begin for a key.
type Decision int

const (
	// Proceed: this caller owns the key and must eventually Complete or Fail it.
	Proceed Decision = iota
	// AlreadyCompleted: a previous checkout under this key succeeded; the caller
	// must short-circuit and replay the stored result.
	AlreadyCompleted
	// InFlight: another attempt under this key is currently running and fresh
	// enough to trust; the caller should reject with a conflict.
	InFlight
)
