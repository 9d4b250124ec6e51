package products

import (
	"errors"
	"fmt"
)

// ErrInsufficientStock is returned when a reservation or decrement would
// drive available stock negative. The caller's transaction must roll back.
var ErrInsufficientStock = errors.New("insufficient stock")

// decrement applies a committed-stock decrement. Stock never goes negative;
// a decrement that would cross zero fails instead.
func decrement(quantity, qty int) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("quantity must be positive, got %d", qty)
	}
	if quantity-qty < 0 {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrInsufficientStock, quantity, qty)
	}
	return quantity - qty, nil
}

// hold reserves qty units against available-to-sell stock. A hold is a soft
// counter next to quantity, not a second stock pool: available = quantity -
// reserved.
func hold(quantity, reserved, qty int) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("quantity must be positive, got %d", qty)
	}
	if quantity-reserved-qty < 0 {
		return 0, fmt.Errorf("%w: available %d, need %d", ErrInsufficientStock, quantity-reserved, qty)
	}
	return reserved + qty, nil
}

// releaseHold removes qty units from the hold counter, flooring at zero so
// a release after a partial hold never underflows.
func releaseHold(reserved, qty int) int {
	if reserved-qty < 0 {
		return 0
	}
	return reserved - qty
}

// outOfStock reports whether a post-decrement quantity should fire a
// product-out-of-stock event.
func outOfStock(quantity int) bool {
	return quantity <= 0
}
