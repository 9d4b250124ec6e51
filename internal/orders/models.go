package orders

import (
	"errors"
	"time"
)

// Order statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusConfirmed  = "confirmed"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
	StatusRefunded   = "refunded"
	StatusFailed     = "failed"
)

// Payment statuses carried on the order row.
const (
	PaymentUnpaid   = "unpaid"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Order represents an order entity in the database.
type Order struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	Status        string      `json:"status"`
	PaymentStatus string      `json:"payment_status"`
	Items         []OrderItem `json:"items"`
	Subtotal      int64       `json:"subtotal"`
	Discount      int64       `json:"discount"`
	Total         int64       `json:"total"`
	Currency      string      `json:"currency"`
	CouponCode    string      `json:"coupon_code,omitempty"`
	FulfillmentID string      `json:"fulfillment_id,omitempty"`
	ProcessedAt   *time.Time  `json:"processed_at,omitempty"`
	ConfirmedAt   *time.Time  `json:"confirmed_at,omitempty"`
	ShippedAt     *time.Time  `json:"shipped_at,omitempty"`
	DeliveredAt   *time.Time  `json:"delivered_at,omitempty"`
	CancelledAt   *time.Time  `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// OrderItem is an immutable snapshot of a product at order time. Price
// changes on the product never retroactively affect a placed order.
type OrderItem struct {
	ID        int64     `json:"id"`
	OrderID   string    `json:"order_id"`
	ProductID string    `json:"product_id"`
	VariantID string    `json:"variant_id,omitempty"`
	Name      string    `json:"name"`
	SKU       string    `json:"sku"`
	UnitPrice int64     `json:"unit_price"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// NewOrder carries everything needed to persist an order at checkout.
type NewOrder struct {
	ID         string
	UserID     string
	Items      []NewOrderItem
	Subtotal   int64
	Discount   int64
	Total      int64
	Currency   string
	CouponCode string
}

type NewOrderItem struct {
	ProductID string
	VariantID string
	Name      string
	SKU       string
	UnitPrice int64
	Quantity  int
}
