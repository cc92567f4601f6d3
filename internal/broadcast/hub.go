// Package broadcast fans donation events out to connected display clients
// over WebSocket. Subscribers are receive-mostly: the kiosk does not act on
// anything a display client sends back.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Envelope is the wire shape every broadcast message takes: a type tag and
// a data payload. Per-event timestamps live inside Data, not as a
// top-level field — matching the event envelope documented for the
// kiosk's external interface.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Subscriber is anything that can receive a broadcast payload without
// blocking the hub. WebSocketSubscriber is the production implementation;
// tests can supply their own.
type Subscriber interface {
	// Send delivers payload to the subscriber. A non-nil error causes the
	// hub to drop the subscriber.
	Send(payload []byte) error
	ID() string
}

// Hub holds the current set of subscribers and fans broadcasts out to all
// of them. The subscriber map is the only lock-guarded state; broadcasting
// never blocks on a slow subscriber for longer than that subscriber's own
// send, since each send happens sequentially against a snapshot slice taken
// under a brief read lock.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]Subscriber

	subscriberGauge func(n int)
}

// New creates an empty Hub. gaugeFn, if non-nil, is called with the current
// subscriber count after every registration change, wiring the hub to
// MetricsRegistry's donationbox_broadcast_subscribers gauge.
func New(gaugeFn func(n int)) *Hub {
	return &Hub{
		subscribers:     make(map[string]Subscriber),
		subscriberGauge: gaugeFn,
	}
}

// Register adds a subscriber to the fan-out set.
func (h *Hub) Register(sub Subscriber) {
	h.mu.Lock()
	h.subscribers[sub.ID()] = sub
	n := len(h.subscribers)
	h.mu.Unlock()

	if h.subscriberGauge != nil {
		h.subscriberGauge(n)
	}
}

// Unregister removes a subscriber from the fan-out set.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	delete(h.subscribers, id)
	n := len(h.subscribers)
	h.mu.Unlock()

	if h.subscriberGauge != nil {
		h.subscriberGauge(n)
	}
}

// Count returns the number of currently registered subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast marshals envelope and fans it out to every subscriber. Delivery
// is fire-and-forget: a subscriber whose Send fails is dropped immediately
// rather than retried, matching the "best-effort, drop on failure" rule for
// the display-client channel.
func (h *Hub) Broadcast(envelope Envelope) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		slog.Error("broadcast: failed to marshal envelope", "type", envelope.Type, "error", err)
		return
	}

	h.mu.RLock()
	snapshot := make([]Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	var failed []string
	for _, sub := range snapshot {
		if err := sub.Send(payload); err != nil {
			slog.Warn("broadcast: dropping subscriber after send failure", "subscriber", sub.ID(), "error", err)
			failed = append(failed, sub.ID())
		}
	}

	if len(failed) == 0 {
		return
	}
	h.mu.Lock()
	for _, id := range failed {
		delete(h.subscribers, id)
	}
	n := len(h.subscribers)
	h.mu.Unlock()

	if h.subscriberGauge != nil {
		h.subscriberGauge(n)
	}
}
