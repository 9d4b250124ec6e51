package products

import "time"

// Product is a row in the products table. When variants exist, quantity is
// denormalized as the sum of the variants' quantities.
type Product struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	SKU              string    `json:"sku"`
	Price            int64     `json:"price"` // smallest currency unit
	Currency         string    `json:"currency"`
	StripePriceID    string    `json:"stripe_price_id"`
	Quantity         int       `json:"quantity"`
	ReservedQuantity int       `json:"reserved_quantity"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ProductVariant is a sellable variation of a product with its own stock.
type ProductVariant struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	Name             string    `json:"name"`
	SKU              string    `json:"sku"`
	Price            int64     `json:"price"`
	Quantity         int       `json:"quantity"`
	ReservedQuantity int       `json:"reserved_quantity"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Line is one order line the ledger operates on. VariantID is empty for
// products sold without variants.
type Line struct {
	ProductID string
	VariantID string
	Quantity  int
}

// OutOfStock identifies a product whose stock reached zero during a
// decrement.
type OutOfStock struct {
	ProductID string
	SKU       string
}
