package checkout

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConflict indicates a checkout with the same idempotency key is currently
// in flight; the client should retry later rather than queue behind it.
var ErrConflict = errors.New("checkout already in flight for this idempotency key")

// Line problem reasons
const (
	ReasonBadQuantity       = "bad_quantity"
	ReasonUnknownProduct    = "unknown_product"
	ReasonInsufficientStock = "insufficient_stock"
)

// LineProblem identifies one offending cart line.
type LineProblem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

// InvalidCartError reports an unusable cart snapshot. Lines is empty when the
// cart itself was empty.
type InvalidCartError struct {
	Lines []LineProblem
}

func (e *InvalidCartError) Error() string {
	if len(e.Lines) == 0 {
		return "invalid cart: empty"
	}
	parts := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		parts = append(parts, fmt.Sprintf("%s (%s)", l.ProductID, l.Reason))
	}
	return "invalid cart: " + strings.Join(parts, ", ")
}

// PriceMismatchError reports a client-declared total that disagrees with the
// server-computed total. Client error; signals tampering or a stale client.
type PriceMismatchError struct {
	Declared float64
	Computed float64
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("declared total %.2f does not match computed total %.2f", e.Declared, e.Computed)
}
