package events

import (
	"context"
	"fmt"
	"log/slog"

	"order-processing-service/pkg/logkey"
)

// Subscriber handles one kind of event. A subscriber that needs reliable
// delivery should enqueue a job instead of doing slow work inline.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc struct {
	SubName string
	Fn      func(ctx context.Context, ev Event) error
}

func (s SubscriberFunc) Name() string { return s.SubName }

func (s SubscriberFunc) Handle(ctx context.Context, ev Event) error { return s.Fn(ctx, ev) }

// Dispatcher routes published events to a statically registered, ordered
// list of subscribers per kind. Registration happens at startup; Publish
// may be called from any goroutine afterwards.
type Dispatcher struct {
	subscribers map[Kind][]Subscriber
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{subscribers: map[Kind][]Subscriber{}}
}

// Subscribe appends a subscriber to the kind's invocation list.
func (d *Dispatcher) Subscribe(kind Kind, sub Subscriber) {
	d.subscribers[kind] = append(d.subscribers[kind], sub)
}

// Publish invokes every subscriber registered for the event's kind.
// A subscriber's error or panic is logged and does not prevent the
// remaining subscribers from running, nor is it surfaced to the caller:
// events are published only after the triggering transaction committed,
// so there is nothing left to roll back.
func (d *Dispatcher) Publish(ctx context.Context, ev Event) {
	for _, sub := range d.subscribers[ev.Kind] {
		d.invoke(ctx, sub, ev)
	}
}

func (d *Dispatcher) invoke(ctx context.Context, sub Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("subscriber panicked",
				slog.String(logkey.EventKind, string(ev.Kind)),
				slog.String("subscriber", sub.Name()),
				slog.String(logkey.ERROR, fmt.Sprintf("%v", r)),
			)
		}
	}()

	if err := sub.Handle(ctx, ev); err != nil {
		slog.Error("subscriber failed",
			slog.String(logkey.EventKind, string(ev.Kind)),
			slog.String("subscriber", sub.Name()),
			slog.String(logkey.ERROR, err.Error()),
		)
	}
}
