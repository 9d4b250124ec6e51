package payments

import (
	"errors"
	"time"
)

// Payment statuses. Rows are only created by the gateway webhook, paid or
// failed from the start.
const (
	StatusPaid     = "paid"
	StatusFailed   = "failed"
	StatusRefunded = "refunded"
)

var ErrPaymentNotFound = errors.New("payment not found")

// Payment is one payment attempt against an order. Refunds mutate the row
// partially; they never create a new entity.
type Payment struct {
	ID                   string     `json:"id"`
	OrderID              string     `json:"order_id"`
	Amount               int64      `json:"amount"`
	Currency             string     `json:"currency"`
	Status               string     `json:"status"`
	GatewayTransactionID string     `json:"gateway_transaction_id,omitempty"`
	RefundAmount         int64      `json:"refund_amount"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
	FailedAt             *time.Time `json:"failed_at,omitempty"`
	RefundedAt           *time.Time `json:"refunded_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}
