package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPublishRunsSubscribersInOrder(t *testing.T) {
	d := NewDispatcher()

	var calls []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		d.Subscribe(KindOrderCreated, SubscriberFunc{
			SubName: name,
			Fn: func(ctx context.Context, ev Event) error {
				calls = append(calls, name)
				return nil
			},
		})
	}

	d.Publish(context.Background(), Event{Kind: KindOrderCreated, OccurredAt: time.Now()})

	if len(calls) != 3 {
		t.Fatalf("expected 3 subscriber calls, got %d", len(calls))
	}
	for i, want := range []string{"first", "second", "third"} {
		if calls[i] != want {
			t.Fatalf("call %d: expected %s, got %s", i, want, calls[i])
		}
	}
}

func TestSubscriberFailureIsIsolated(t *testing.T) {
	d := NewDispatcher()

	var afterRan bool
	d.Subscribe(KindPaymentFailed, SubscriberFunc{
		SubName: "broken",
		Fn: func(ctx context.Context, ev Event) error {
			return errors.New("boom")
		},
	})
	d.Subscribe(KindPaymentFailed, SubscriberFunc{
		SubName: "panicky",
		Fn: func(ctx context.Context, ev Event) error {
			panic("kaboom")
		},
	})
	d.Subscribe(KindPaymentFailed, SubscriberFunc{
		SubName: "after",
		Fn: func(ctx context.Context, ev Event) error {
			afterRan = true
			return nil
		},
	})

	d.Publish(context.Background(), Event{Kind: KindPaymentFailed, OccurredAt: time.Now()})

	if !afterRan {
		t.Fatal("subscriber after the failing ones did not run")
	}
}

func TestPublishIgnoresUnregisteredKind(t *testing.T) {
	d := NewDispatcher()
	// must not panic
	d.Publish(context.Background(), Event{Kind: KindCouponUsed, OccurredAt: time.Now()})
}
