package catalog

import "context"

// Product is the catalog view the checkout path needs: current price and stock.
type Product struct {
	ProductID string  `dynamodbav:"product_id" json:"product_id"` // PK
	Name      string  `dynamodbav:"name" json:"name"`
	Price     float64 `dynamodbav:"price" json:"price"`
	Stock     int     `dynamodbav:"stock" json:"stock"`
}

// Lookup resolves products for cart validation and repricing.
// Returns (nil, nil) for an unknown product id.
type Lookup interface {
	Product(ctx context.Context, productID string) (*Product, error)
}
