// Package bridge hands hardware events off from arbitrary callback
// goroutines to the single dispatcher goroutine.
package bridge

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/ocx/donationbox/internal/gpioevent"
)

const defaultCapacity = 100

// Bridge is a bounded FIFO between hardware callback goroutines (producers)
// and the dispatcher goroutine (the sole consumer). Enqueue never blocks: a
// full queue or a bridge that hasn't been started yet drops the event and
// logs a warning rather than applying back-pressure to the caller, matching
// the reference drop-newest policy — losing one pulse's value degrades
// accounting less than losing the first edge of a coin sequence would.
type Bridge struct {
	events  chan gpioevent.Event
	started atomic.Bool

	onDrop func(reason string)
}

// Option configures a Bridge at construction.
type Option func(*Bridge)

// WithCapacity overrides the default queue capacity of 100.
func WithCapacity(n int) Option {
	return func(b *Bridge) {
		b.events = make(chan gpioevent.Event, n)
	}
}

// WithDropHook registers a callback invoked whenever an event is dropped,
// wiring the bridge to MetricsRegistry's donationbox_events_dropped_total
// counter.
func WithDropHook(fn func(reason string)) Option {
	return func(b *Bridge) { b.onDrop = fn }
}

// New creates a Bridge with the default capacity unless overridden.
func New(opts ...Option) *Bridge {
	b := &Bridge{events: make(chan gpioevent.Event, defaultCapacity)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start marks the bridge ready to accept events. Enqueue calls made before
// Start are dropped, mirroring the reference bridge's "loop not yet
// started" drop case.
func (b *Bridge) Start() {
	b.started.Store(true)
}

// Stop marks the bridge as no longer accepting new events. Already-queued
// events remain available to Drain.
func (b *Bridge) Stop() {
	b.started.Store(false)
}

// Enqueue submits event for dispatch. Safe to call from any goroutine. It
// never blocks: if the bridge hasn't started or the queue is full, the
// event is dropped and onDrop is invoked.
func (b *Bridge) Enqueue(event gpioevent.Event) {
	if !b.started.Load() {
		b.drop("not_started", event)
		return
	}
	select {
	case b.events <- event:
	default:
		b.drop("queue_full", event)
	}
}

func (b *Bridge) drop(reason string, event gpioevent.Event) {
	slog.Warn("bridge: dropping event", "reason", reason, "component_id", event.ComponentID, "event_type", event.EventType)
	if b.onDrop != nil {
		b.onDrop(reason)
	}
}

// Depth reports the current queue occupancy, for MetricsRegistry's
// donationbox_queue_depth gauge.
func (b *Bridge) Depth() int {
	return len(b.events)
}

// Drain runs fn for every event in FIFO order until ctx is cancelled. It is
// meant to be called once, from the dispatcher's single goroutine.
func (b *Bridge) Drain(ctx context.Context, fn func(gpioevent.Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-b.events:
			fn(event)
		}
	}
}
