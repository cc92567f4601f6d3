package broadcast

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	id      string
	mu      sync.Mutex
	payloads [][]byte
	failAll bool
}

func (s *fakeSubscriber) ID() string { return s.id }

func (s *fakeSubscriber) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("send failed")
	}
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *fakeSubscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func TestHub_BroadcastFansOutToAll(t *testing.T) {
	var gauge int
	h := New(func(n int) { gauge = n })

	a := &fakeSubscriber{id: "a"}
	b := &fakeSubscriber{id: "b"}
	h.Register(a)
	h.Register(b)
	assert.Equal(t, 2, gauge)

	h.Broadcast(Envelope{Type: "category_chosen", Data: map[string]any{"category_id": 7}})

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestHub_DropsSubscriberOnSendFailure(t *testing.T) {
	var gauge int
	h := New(func(n int) { gauge = n })

	good := &fakeSubscriber{id: "good"}
	bad := &fakeSubscriber{id: "bad", failAll: true}
	h.Register(good)
	h.Register(bad)

	h.Broadcast(Envelope{Type: "money_inserted"})

	assert.Equal(t, 1, h.Count())
	assert.Equal(t, 1, gauge)
	_, ok := h.subscribers["bad"]
	assert.False(t, ok)
}

func TestHub_UnregisterUpdatesGauge(t *testing.T) {
	var gauge int
	h := New(func(n int) { gauge = n })
	h.Register(&fakeSubscriber{id: "a"})
	h.Unregister("a")
	assert.Equal(t, 0, gauge)
	assert.Equal(t, 0, h.Count())
}

func TestHub_BroadcastMarshalsEnvelope(t *testing.T) {
	h := New(nil)
	sub := &fakeSubscriber{id: "a"}
	h.Register(sub)

	h.Broadcast(Envelope{Type: "donation_created", Data: map[string]any{"amount_cents": int64(50)}})

	require.Equal(t, 1, sub.count())
	assert.Contains(t, string(sub.payloads[0]), "donation_created")
	assert.Contains(t, string(sub.payloads[0]), "amount_cents")
}
