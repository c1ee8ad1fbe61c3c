package orders

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the referenced order does not exist.
var ErrNotFound = errors.New("order not found")

// ErrDependencyUnavailable indicates the backing store (or another collaborator)
// could not be reached. Surfaced to clients as a retryable server error.
var ErrDependencyUnavailable = errors.New("dependency unavailable")

// InvalidTransitionError reports a status change that is not permitted from the
// order's current status.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition %s -> %s", e.From, e.To)
}

// legalTransitions is the full lifecycle: PENDING is initial, CANCELLED is terminal.
var legalTransitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
	StatusDelivered: {},
	StatusCancelled: {},
}

// CanTransition reports whether from -> to is a legal lifecycle transition.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
