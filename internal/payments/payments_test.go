package payments

import "testing"

func TestRefundStatus(t *testing.T) {
	tests := []struct {
		name          string
		current       string
		amount        int64
		totalRefunded int64
		want          string
	}{
		{"partial refund keeps paid", StatusPaid, 2000, 500, StatusPaid},
		{"second partial still short", StatusPaid, 2000, 1500, StatusPaid},
		{"cumulative total covers amount", StatusPaid, 2000, 2000, StatusRefunded},
		{"over-refund flips too", StatusPaid, 2000, 2500, StatusRefunded},
		{"redelivered full refund stays refunded", StatusRefunded, 2000, 2000, StatusRefunded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := refundStatus(tt.current, tt.amount, tt.totalRefunded); got != tt.want {
				t.Fatalf("refundStatus(%s, %d, %d) = %s, want %s",
					tt.current, tt.amount, tt.totalRefunded, got, tt.want)
			}
		})
	}
}
