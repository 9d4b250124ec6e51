package orders

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to string }{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusConfirmed},
		{StatusPending, StatusCancelled},
		{StatusPending, StatusFailed},
		{StatusProcessing, StatusConfirmed},
		{StatusProcessing, StatusFailed},
		{StatusProcessing, StatusCancelled},
		{StatusConfirmed, StatusShipped},
		{StatusConfirmed, StatusCancelled},
		{StatusShipped, StatusDelivered},
		{StatusDelivered, StatusRefunded},
		{StatusFailed, StatusProcessing},
	}
	for _, tr := range allowed {
		if !canTransition(tr.from, tr.to) {
			t.Errorf("%s -> %s should be allowed", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to string }{
		{StatusDelivered, StatusProcessing},
		{StatusCancelled, StatusConfirmed},
		{StatusRefunded, StatusPending},
		{StatusShipped, StatusProcessing},
		{StatusConfirmed, StatusPending},
	}
	for _, tr := range denied {
		if canTransition(tr.from, tr.to) {
			t.Errorf("%s -> %s should be denied", tr.from, tr.to)
		}
	}
}

func TestStockEffectReserveOnProcessing(t *testing.T) {
	if got := stockEffectFor(StatusPending, StatusProcessing); got != effectReserve {
		t.Fatalf("pending -> processing should reserve, got %d", got)
	}
	// retry after failure must not place a second hold
	if got := stockEffectFor(StatusFailed, StatusProcessing); got != effectNone {
		t.Fatalf("failed -> processing must not reserve again, got %d", got)
	}
}

func TestStockEffectReduceOnConfirm(t *testing.T) {
	for _, from := range []string{StatusPending, StatusProcessing, StatusFailed} {
		if got := stockEffectFor(from, StatusConfirmed); got != effectReduce {
			t.Errorf("%s -> confirmed should reduce stock, got %d", from, got)
		}
	}
}

// Redelivery of a "confirmed" transition arrives with the order already in
// a committed state; the effect must be none so stock is never decremented
// twice.
func TestStockEffectConfirmRedeliveryIsNoop(t *testing.T) {
	for _, from := range []string{StatusConfirmed, StatusShipped, StatusDelivered} {
		if got := stockEffectFor(from, StatusConfirmed); got != effectNone {
			t.Errorf("%s -> confirmed must be a stock no-op, got %d", from, got)
		}
	}
}

func TestStockEffectRestoreOnlyAfterCommit(t *testing.T) {
	// cancelling a committed order restores stock
	for _, from := range []string{StatusConfirmed, StatusShipped, StatusDelivered} {
		if got := stockEffectFor(from, StatusCancelled); got != effectRestore {
			t.Errorf("%s -> cancelled should restore stock, got %d", from, got)
		}
	}

	// cancelling an order that was never confirmed must not alter stock
	if got := stockEffectFor(StatusPending, StatusCancelled); got != effectNone {
		t.Fatalf("pending -> cancelled must not touch stock, got %d", got)
	}

	// cancelling out of processing releases the hold, it does not restore
	// stock that was never decremented
	if got := stockEffectFor(StatusProcessing, StatusCancelled); got != effectRelease {
		t.Fatalf("processing -> cancelled should release the hold, got %d", got)
	}
	if got := stockEffectFor(StatusFailed, StatusCancelled); got != effectRelease {
		t.Fatalf("failed -> cancelled should release any hold, got %d", got)
	}
}

// Confirm and cancel must be mutually inverse: every (from, to) pair that
// reduces has exactly one later pair that restores, and the restore pair
// is reachable only through a state the reduce produced.
func TestStockEffectsAreInverse(t *testing.T) {
	// after a reduce the order is confirmed; from any committed state the
	// only stock-mutating cancel is a restore
	for _, committed := range []string{StatusConfirmed, StatusShipped, StatusDelivered} {
		if stockEffectFor(committed, StatusCancelled) != effectRestore {
			t.Errorf("cancel from %s must restore", committed)
		}
	}
	// and a second cancel delivery (cancelled -> cancelled) is handled as
	// a same-status no-op before the effect table is consulted; the table
	// itself has no cancelled -> cancelled edge
	if canTransition(StatusCancelled, StatusCancelled) {
		t.Fatal("cancelled -> cancelled must not be a legal edge")
	}
}

func TestTimestampClause(t *testing.T) {
	tests := map[string]string{
		StatusProcessing: "processed_at = NOW(),",
		StatusConfirmed:  "confirmed_at = NOW(),",
		StatusShipped:    "shipped_at = NOW(),",
		StatusDelivered:  "delivered_at = NOW(),",
		StatusCancelled:  "cancelled_at = NOW(),",
		StatusRefunded:   "",
		StatusFailed:     "",
	}
	for status, want := range tests {
		if got := timestampClause(status); got != want {
			t.Errorf("timestampClause(%s) = %q, want %q", status, got, want)
		}
	}
}
