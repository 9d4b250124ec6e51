package kafka

import "time"

// Topics this service produces to.
const (
	TopicOrderPaid          = `order-processing.order-paid`
	TopicOrderStatusChanged = `order-processing.order-status-changed`
	TopicProductOutOfStock  = `order-processing.product-out-of-stock`
	TopicCouponUsed         = `order-processing.coupon-used`
)

// Representation of the events as they appear on the wire.

type OrderPaidEvent struct {
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

type OrderStatusChangedEvent struct {
	OrderID   string    `json:"order_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	CreatedAt time.Time `json:"created_at"`
}

type ProductOutOfStockEvent struct {
	ProductID string    `json:"product_id"`
	SKU       string    `json:"sku"`
	OrderID   string    `json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
}

type CouponUsedEvent struct {
	CouponID  string    `json:"coupon_id"`
	Code      string    `json:"code"`
	OrderID   string    `json:"order_id"`
	UsedCount int       `json:"used_count"`
	CreatedAt time.Time `json:"created_at"`
}
