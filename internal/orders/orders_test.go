package orders

import (
	"context"
	"testing"
	"time"

	"order-processing-service/internal/events"
	"order-processing-service/internal/products"
)

// recorder collects every event routed to it.
type recorder struct {
	got []events.Event
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Handle(ctx context.Context, ev events.Event) error {
	r.got = append(r.got, ev)
	return nil
}

// A committed transition publishes from data captured inside the
// transaction, so the events carry the locked row's values and do not
// depend on any later read of the order.
func TestPublishTransitionUsesCapturedData(t *testing.T) {
	rec := &recorder{}
	d := events.NewDispatcher()
	d.Subscribe(events.KindOrderStatusChange, rec)
	d.Subscribe(events.KindProductOutOfStock, rec)

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := &Conf{
		dispatcher: d,
		nowFunc:    func() time.Time { return at },
	}

	oos := []products.OutOfStock{
		{ProductID: "p-1", SKU: "SKU-1"},
		{ProductID: "p-2", SKU: "SKU-2"},
	}
	c.publishTransition(context.Background(), "order-1", "user-1", StatusProcessing, StatusConfirmed, oos)

	if len(rec.got) != 3 {
		t.Fatalf("expected status change plus 2 out-of-stock events, got %d", len(rec.got))
	}

	sc := rec.got[0].OrderStatusChange
	if sc == nil {
		t.Fatal("first event must be the status change")
	}
	if sc.OrderID != "order-1" || sc.UserID != "user-1" {
		t.Fatalf("unexpected ids on status change: %+v", sc)
	}
	if sc.OldStatus != StatusProcessing || sc.NewStatus != StatusConfirmed {
		t.Fatalf("expected processing -> confirmed, got %s -> %s", sc.OldStatus, sc.NewStatus)
	}
	if !sc.ChangedAt.Equal(at) {
		t.Fatalf("expected ChangedAt %v, got %v", at, sc.ChangedAt)
	}

	for i, want := range oos {
		ev := rec.got[i+1].ProductOutOfStock
		if ev == nil {
			t.Fatalf("event %d must be product out of stock", i+1)
		}
		if ev.ProductID != want.ProductID || ev.SKU != want.SKU || ev.OrderID != "order-1" {
			t.Fatalf("unexpected out-of-stock payload: %+v", ev)
		}
	}
}
