package coupons

import (
	"database/sql"
	"testing"
)

func TestShouldDeactivateExactlyAtLimit(t *testing.T) {
	limit := sql.NullInt64{Int64: 3, Valid: true}

	// counts 1 and 2 keep the coupon active, count 3 deactivates it
	for count := 1; count <= 2; count++ {
		if shouldDeactivate(count, limit) {
			t.Fatalf("count %d below limit 3 should not deactivate", count)
		}
	}
	if !shouldDeactivate(3, limit) {
		t.Fatal("reaching the limit must deactivate the coupon")
	}
	// redelivery past the limit still reports exhausted
	if !shouldDeactivate(4, limit) {
		t.Fatal("count beyond limit must keep the coupon deactivated")
	}
}

func TestShouldDeactivateUnlimited(t *testing.T) {
	if shouldDeactivate(1000, sql.NullInt64{}) {
		t.Fatal("NULL usage_limit means the coupon never deactivates")
	}
}

func TestShouldDeactivateSingleUse(t *testing.T) {
	// usage_limit=1: the first use flips is_active false
	if !shouldDeactivate(1, sql.NullInt64{Int64: 1, Valid: true}) {
		t.Fatal("single-use coupon must deactivate on first use")
	}
}

func TestUsageDeniedAtLimit(t *testing.T) {
	limit := sql.NullInt64{Int64: 1, Valid: true}

	// First claim of the last remaining use is allowed.
	if usageDenied(0, limit, true) {
		t.Fatal("coupon with a use left must accept a usage")
	}

	// Two checkouts can both pass validation while one use remains; the
	// loser of the row lock must be refused, not pushed past the limit.
	if !usageDenied(1, limit, true) {
		t.Fatal("used_count at usage_limit must deny further usage")
	}
	if !usageDenied(1, limit, false) {
		t.Fatal("deactivated coupon must deny further usage")
	}

	// Deactivation without a limit (manual) also denies.
	if !usageDenied(0, sql.NullInt64{}, false) {
		t.Fatal("inactive coupon must deny usage regardless of limit")
	}
	if usageDenied(1000, sql.NullInt64{}, true) {
		t.Fatal("NULL usage_limit must never deny an active coupon")
	}
}

func TestDiscountComputation(t *testing.T) {
	tests := []struct {
		name     string
		coupon   Coupon
		subtotal int64
		want     int64
	}{
		{
			name:     "fixed amount",
			coupon:   Coupon{DiscountType: DiscountFixed, DiscountValue: 500},
			subtotal: 2000,
			want:     500,
		},
		{
			name:     "percentage",
			coupon:   Coupon{DiscountType: DiscountPercentage, DiscountValue: 10},
			subtotal: 2000,
			want:     200,
		},
		{
			name:     "fixed capped at subtotal",
			coupon:   Coupon{DiscountType: DiscountFixed, DiscountValue: 5000},
			subtotal: 2000,
			want:     2000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.coupon.Discount(tt.subtotal); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
