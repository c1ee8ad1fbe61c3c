package orders

import "time"

// Projection is the public view of an order returned to clients. It omits the
// idempotency key and customer identifiers.
type Projection struct {
	OrderID       string    `json:"order_id"`
	Status        Status    `json:"status"`
	Items         []Item    `json:"items"`
	Shipping      Shipping  `json:"shipping"`
	Total         float64   `json:"total"`
	TransactionID string    `json:"transaction_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Projection builds the public view.
func (o *Order) Projection() Projection {
	return Projection{
		OrderID:       o.OrderID,
		Status:        o.Status,
		Items:         o.Items,
		Shipping:      o.Shipping,
		Total:         o.Total,
		TransactionID: o.TransactionID,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}
