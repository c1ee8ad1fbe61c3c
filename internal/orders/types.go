package orders

import "time"

// Status is the order lifecycle status.
type Status string

// Order statuses
const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// Item is a single order line. UnitPrice is the catalog price captured at
// checkout time; the line is never re-priced afterwards.
type Item struct {
	ProductID string  `dynamodbav:"product_id" json:"product_id"`
	Quantity  int     `dynamodbav:"quantity" json:"quantity"`
	UnitPrice float64 `dynamodbav:"unit_price" json:"unit_price"`
}

// Shipping is the shipping choice frozen into the order at creation.
type Shipping struct {
	Service      string  `dynamodbav:"service" json:"service"`
	Price        float64 `dynamodbav:"price" json:"price"`
	DeadlineDays int     `dynamodbav:"deadline_days" json:"deadline_days"`
	Company      string  `dynamodbav:"company" json:"company"`
}

// Order represents the item stored in the orders DynamoDB table.
// Items, Shipping, Total and IdempotencyKey are immutable after creation;
// only Status, TransactionID and UpdatedAt change, and only through Transition.
type Order struct {
	OrderID        string    `dynamodbav:"order_id" json:"order_id"` // PK
	IdempotencyKey string    `dynamodbav:"idempotency_key" json:"idempotency_key"`
	CustomerID     string    `dynamodbav:"customer_id" json:"customer_id"`
	CustomerEmail  string    `dynamodbav:"customer_email" json:"customer_email"`
	Items          []Item    `dynamodbav:"items" json:"items"`
	Address        string    `dynamodbav:"address" json:"address"`
	PostalCode     string    `dynamodbav:"postal_code" json:"postal_code"`
	Shipping       Shipping  `dynamodbav:"shipping" json:"shipping"`
	Total          float64   `dynamodbav:"total" json:"total"`
	Status         Status    `dynamodbav:"status" json:"status"`
	TransactionID  string    `dynamodbav:"transaction_id,omitempty" json:"transaction_id,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at" json:"updated_at"`
}
