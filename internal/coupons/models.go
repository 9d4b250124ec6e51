package coupons

import (
	"errors"
	"time"
)

var (
	ErrCouponNotFound = errors.New("coupon not found")
	ErrCouponInactive = errors.New("coupon is not active")
	ErrCouponExpired  = errors.New("coupon is outside its validity window")
	ErrLimitReached   = errors.New("coupon usage limit reached")
)

// Discount types.
const (
	DiscountFixed      = "fixed"
	DiscountPercentage = "percentage"
)

// Coupon is a row in the coupons table. Codes are stored uppercase.
type Coupon struct {
	ID                string     `json:"id"`
	Code              string     `json:"code"`
	DiscountType      string     `json:"discount_type"`
	DiscountValue     int64      `json:"discount_value"` // amount in smallest unit, or percent
	UsageLimit        *int       `json:"usage_limit"`
	UsageLimitPerUser *int       `json:"usage_limit_per_user"`
	UsedCount         int        `json:"used_count"`
	IsActive          bool       `json:"is_active"`
	StartsAt          *time.Time `json:"starts_at"`
	ExpiresAt         *time.Time `json:"expires_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Discount computes the discount for a subtotal, capped at the subtotal.
func (cp Coupon) Discount(subtotal int64) int64 {
	var d int64
	switch cp.DiscountType {
	case DiscountPercentage:
		d = subtotal * cp.DiscountValue / 100
	default:
		d = cp.DiscountValue
	}
	if d > subtotal {
		return subtotal
	}
	return d
}
