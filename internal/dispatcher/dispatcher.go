// Package dispatcher drains the event bridge on a single goroutine and
// routes each event to its component's handlers, in strict FIFO order.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ocx/donationbox/internal/donationerr"
	"github.com/ocx/donationbox/internal/gpioevent"
	"github.com/ocx/donationbox/internal/registry"
)

// Source is anything that can drain events to a callback — satisfied by
// *bridge.Bridge.
type Source interface {
	Drain(ctx context.Context, fn func(gpioevent.Event))
}

// Dispatcher resolves each event's component in the registry and invokes
// its handlers, serially, isolating any handler fault so one bad handler
// can't stop the pipeline.
type Dispatcher struct {
	source    Source
	registry  *registry.Registry
	container *registry.Container

	onDispatch func(eventType string, duration time.Duration)
}

// Option configures a Dispatcher at construction.
type Option func(*Dispatcher)

// WithDispatchHook registers a callback invoked after every dispatched
// event, wiring the dispatcher to MetricsRegistry's
// donationbox_dispatch_duration_seconds histogram.
func WithDispatchHook(fn func(eventType string, duration time.Duration)) Option {
	return func(d *Dispatcher) { d.onDispatch = fn }
}

// New creates a Dispatcher over source, resolving components against reg
// and injecting container into every handler call.
func New(source Source, reg *registry.Registry, container *registry.Container, opts ...Option) *Dispatcher {
	d := &Dispatcher{source: source, registry: reg, container: container}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run drains the source until ctx is cancelled. It must be called from
// exactly one goroutine, so handlers run serially in FIFO order.
func (d *Dispatcher) Run(ctx context.Context) {
	d.source.Drain(ctx, func(event gpioevent.Event) {
		d.dispatch(ctx, event)
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, event gpioevent.Event) {
	start := time.Now()
	defer func() {
		if d.onDispatch != nil {
			d.onDispatch(event.EventType, time.Since(start))
		}
	}()

	component, ok := d.registry.Get(event.ComponentID)
	if !ok {
		slog.Warn("dispatcher: unknown component", "component_id", event.ComponentID, "error", donationerr.ErrUnknownComponent)
		return
	}

	handlers := component.HandlersFor(event.EventType)
	if len(handlers) == 0 {
		slog.Debug("dispatcher: no handler for event type", "component_id", event.ComponentID, "event_type", event.EventType)
		return
	}

	for _, handler := range handlers {
		d.invoke(ctx, handler, event)
	}
}

// invoke runs a single handler, converting a panic into a logged
// HandlerFault so the dispatch loop survives it.
func (d *Dispatcher) invoke(ctx context.Context, handler registry.Handler, event gpioevent.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatcher: handler panicked", "component_id", event.ComponentID, "event_type", event.EventType, "panic", r, "error", donationerr.ErrHandlerFault)
		}
	}()

	if err := handler(ctx, event, d.container); err != nil {
		slog.Error("dispatcher: handler returned error", "component_id", event.ComponentID, "event_type", event.EventType, "error", fmt.Errorf("%w: %v", donationerr.ErrHandlerFault, err))
	}
}
