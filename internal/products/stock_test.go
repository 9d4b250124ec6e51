package products

import (
	"errors"
	"testing"
)

func TestDecrementNeverGoesNegative(t *testing.T) {
	tests := []struct {
		name     string
		quantity int
		qty      int
		want     int
		wantErr  error
	}{
		{name: "simple decrement", quantity: 10, qty: 3, want: 7},
		{name: "exact zero", quantity: 3, qty: 3, want: 0},
		{name: "would go negative", quantity: 2, qty: 3, wantErr: ErrInsufficientStock},
		{name: "empty stock", quantity: 0, qty: 1, wantErr: ErrInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decrement(tt.quantity, tt.qty)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestDecrementRejectsNonPositiveQuantity(t *testing.T) {
	if _, err := decrement(10, 0); err == nil {
		t.Fatal("expected error for zero quantity")
	}
	if _, err := decrement(10, -2); err == nil {
		t.Fatal("expected error for negative quantity")
	}
}

func TestHoldCountsAgainstAvailableToSell(t *testing.T) {
	// 10 in stock, 8 already held: only 2 available.
	reserved, err := hold(10, 8, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reserved != 10 {
		t.Fatalf("expected reserved=10, got %d", reserved)
	}

	if _, err := hold(10, 8, 3); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestReleaseHoldFloorsAtZero(t *testing.T) {
	if got := releaseHold(5, 3); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := releaseHold(2, 3); got != 0 {
		t.Fatalf("expected floor at 0, got %d", got)
	}
}

func TestOutOfStockBoundary(t *testing.T) {
	if outOfStock(1) {
		t.Fatal("quantity 1 should not be out of stock")
	}
	if !outOfStock(0) {
		t.Fatal("quantity 0 should be out of stock")
	}
}

// Confirm followed by cancel must be a net zero stock effect.
func TestDecrementRestoreRoundTrip(t *testing.T) {
	start := 10
	reduced, err := decrement(start, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	restored := reduced + 4
	if restored != start {
		t.Fatalf("confirm+cancel should net to zero: started %d, ended %d", start, restored)
	}
}
