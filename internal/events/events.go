// Package events defines the domain events published after state-changing
// transactions commit, and the dispatcher that routes them to subscribers.
//
// Events are flat snapshots of what happened. They never carry live
// references into mutable state, so a subscriber can run long after the
// triggering transaction without racing it.
package events

import "time"

// Kind identifies a category of domain event.
type Kind string

const (
	KindOrderCreated      Kind = "order.created"
	KindOrderStatusChange Kind = "order.status_changed"
	KindPaymentCompleted  Kind = "payment.completed"
	KindPaymentFailed     Kind = "payment.failed"
	KindProductOutOfStock Kind = "product.out_of_stock"
	KindCouponUsed        Kind = "coupon.used"
)

// Event is a single published domain event. Exactly one payload field is
// set, matching the Kind.
type Event struct {
	Kind       Kind
	OccurredAt time.Time

	OrderCreated      *OrderCreated
	OrderStatusChange *OrderStatusChange
	PaymentCompleted  *PaymentCompleted
	PaymentFailed     *PaymentFailed
	ProductOutOfStock *ProductOutOfStock
	CouponUsed        *CouponUsed
}

// OrderCreated is published once when an order is persisted at checkout.
type OrderCreated struct {
	OrderID    string             `json:"order_id"`
	UserID     string             `json:"user_id"`
	Items      []OrderCreatedItem `json:"items"`
	Subtotal   int64              `json:"subtotal"`
	Discount   int64              `json:"discount"`
	Total      int64              `json:"total"`
	Currency   string             `json:"currency"`
	CouponCode string             `json:"coupon_code,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

type OrderCreatedItem struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// OrderStatusChange records a single transition of the order state machine.
type OrderStatusChange struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	ChangedAt time.Time `json:"changed_at"`
}

type PaymentCompleted struct {
	PaymentID            string    `json:"payment_id"`
	OrderID              string    `json:"order_id"`
	Amount               int64     `json:"amount"`
	Currency             string    `json:"currency"`
	GatewayTransactionID string    `json:"gateway_transaction_id"`
	PaidAt               time.Time `json:"paid_at"`
}

type PaymentFailed struct {
	PaymentID            string    `json:"payment_id"`
	OrderID              string    `json:"order_id"`
	Amount               int64     `json:"amount"`
	Currency             string    `json:"currency"`
	GatewayTransactionID string    `json:"gateway_transaction_id"`
	Reason               string    `json:"reason"`
	FailedAt             time.Time `json:"failed_at"`
}

// ProductOutOfStock fires when a stock decrement leaves a product at or
// below zero.
type ProductOutOfStock struct {
	ProductID string    `json:"product_id"`
	SKU       string    `json:"sku"`
	OrderID   string    `json:"order_id"`
	Quantity  int       `json:"quantity"`
	At        time.Time `json:"at"`
}

type CouponUsed struct {
	CouponID   string    `json:"coupon_id"`
	Code       string    `json:"code"`
	OrderID    string    `json:"order_id"`
	Discount   int64     `json:"discount"`
	UsedCount  int       `json:"used_count"`
	UsageLimit int       `json:"usage_limit,omitempty"`
	UsedAt     time.Time `json:"used_at"`
}
