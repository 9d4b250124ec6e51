package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v81"
)

type memCache struct {
	entries map[string]string
	failing bool
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]string{}}
}

func (m *memCache) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if m.failing {
		return false, errors.New("cache down")
	}
	if _, ok := m.entries[key]; ok {
		return false, nil
	}
	m.entries[key] = value
	return true, nil
}

func (m *memCache) Get(ctx context.Context, key string) (string, error) {
	if m.failing {
		return "", errors.New("cache down")
	}
	return m.entries[key], nil
}

func (m *memCache) GenerateKey(operation, key string) string {
	return "test:" + operation + ":" + key
}

func TestEventSeenOnlyAfterMarkProcessed(t *testing.T) {
	cache := newMemCache()
	h := &Handler{cache: cache}
	ctx := context.Background()
	event := stripe.Event{ID: "evt_123", Type: "payment_intent.succeeded"}

	// A first delivery is unseen, and stays unseen while handling is in
	// flight: a failed attempt never marks, so the redelivery is not
	// swallowed.
	if h.eventSeen(ctx, "t1", event.ID) {
		t.Fatal("fresh event id must not be seen")
	}
	if h.eventSeen(ctx, "t1", event.ID) {
		t.Fatal("an unmarked event id must stay unseen for the redelivery")
	}

	h.markEventProcessed(ctx, "t1", event)
	if !h.eventSeen(ctx, "t1", event.ID) {
		t.Fatal("a processed event id must be seen on redelivery")
	}
}

func TestEventSeenEdgeCases(t *testing.T) {
	ctx := context.Background()

	h := &Handler{cache: newMemCache()}
	if h.eventSeen(ctx, "t1", "") {
		t.Fatal("an event without an id is never deduplicated")
	}
	h.markEventProcessed(ctx, "t1", stripe.Event{})
	if h.eventSeen(ctx, "t1", "") {
		t.Fatal("marking an id-less event must not poison the empty key")
	}

	// A broken cache degrades to processing everything; the state machine
	// guards keep duplicates harmless.
	h = &Handler{cache: &memCache{failing: true}}
	if h.eventSeen(ctx, "t1", "evt_456") {
		t.Fatal("cache errors must count as unseen")
	}
	h.markEventProcessed(ctx, "t1", stripe.Event{ID: "evt_456"})
}
