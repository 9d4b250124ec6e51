package logkey

// Keys used for structured logging attributes across the service.
const (
	TraceID   = "trace_id"
	OrderID   = "order_id"
	ProductID = "product_id"
	CouponID  = "coupon_id"
	PaymentID = "payment_id"
	JobID     = "job_id"
	JobKind   = "job_kind"
	EventKind = "event_kind"
	ERROR     = "error"
)
