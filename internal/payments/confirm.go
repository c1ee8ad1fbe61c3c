// Package payments applies external payment outcomes to existing orders.
package payments

import (
	"context"
	"fmt"

	"github.com/niltonstano/storefront-orderflow/internal/orders"
)

// Outcome is the payment provider's verdict for an order.
type Outcome string

// Supported outcomes
const (
	OutcomePaid     Outcome = "paid"
	OutcomeCanceled Outcome = "canceled"
)

// ErrUnknownOutcome indicates an outcome value other than paid/canceled.
var ErrUnknownOutcome = fmt.Errorf("unknown payment outcome")

// OrderStore is the slice of the orders store the handler needs.
type OrderStore interface {
	Transition(ctx context.Context, orderID string, from, to orders.Status, transactionID string) (*orders.Order, error)
}

// Service applies payment confirmations through the order lifecycle.
// It publishes no further domain events; downstream systems observe the
// persisted status.
type Service struct {
	store OrderStore
}

// NewService wires the confirmation handler.
func NewService(store OrderStore) *Service {
	return &Service{store: store}
}

// Confirm transitions a PENDING order to PAID or CANCELLED. transactionID, when
// present, is attached on the paid path. Confirming an order not in PENDING
// fails with an InvalidTransitionError; a missing order fails with ErrNotFound.
func (s *Service) Confirm(ctx context.Context, orderID string, outcome Outcome, transactionID string) (*orders.Order, error) {
	var target orders.Status
	switch outcome {
	case OutcomePaid:
		target = orders.StatusPaid
	case OutcomeCanceled:
		target = orders.StatusCancelled
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOutcome, outcome)
	}

	updated, err := s.store.Transition(ctx, orderID, orders.StatusPending, target, transactionID)
	if err != nil {
		return nil, err
	}
	return updated, nil
}
