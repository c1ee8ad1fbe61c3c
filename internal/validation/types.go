package validation

// CartItem is a single requested line. Prices are never accepted from the
// client per line; only the declared grand total, used for mismatch detection.
type CartItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"` // must be >= 1
}

// ShippingChoice is the shipping option the client selected.
type ShippingChoice struct {
	Service      string  `json:"service" validate:"required"`
	Price        float64 `json:"price" validate:"gte=0"`
	DeadlineDays int     `json:"deadline" validate:"gte=0"` // integer days
	Company      string  `json:"company" validate:"required"`
}

// CheckoutRequest is the payload for POST /checkout.
// The idempotency token travels in the Idempotency-Key header, not the body.
type CheckoutRequest struct {
	Items         []CartItem     `json:"items" validate:"required,min=1,dive"` // at least one item
	Address       string         `json:"address" validate:"required"`
	PostalCode    string         `json:"postal_code" validate:"required"`
	Shipping      ShippingChoice `json:"shipping" validate:"required"`
	Total         float64        `json:"total" validate:"required,gt=0"` // client-declared, mismatch detection only
	CustomerID    string         `json:"customer_id" validate:"required"`
	CustomerEmail string         `json:"customer_email" validate:"required,email"`
}

// ConfirmPaymentRequest is the payload for POST /orders/:id/confirm.
type ConfirmPaymentRequest struct {
	Outcome       string `json:"outcome" validate:"required,oneof=paid canceled"`
	TransactionID string `json:"transaction_id,omitempty"`
}
