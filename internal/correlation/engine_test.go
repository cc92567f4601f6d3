package correlation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/donationbox/internal/broadcast"
	"github.com/ocx/donationbox/internal/donationerr"
	"github.com/ocx/donationbox/internal/pollstore"
)

type fakePolls struct {
	mu   sync.Mutex
	poll *pollstore.Poll
	name map[int64]string
}

func (f *fakePolls) GetActivePoll(ctx context.Context, at time.Time) (*pollstore.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.poll, nil
}

func (f *fakePolls) GetCategoryName(ctx context.Context, categoryID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name[categoryID], nil
}

func (f *fakePolls) setPoll(p *pollstore.Poll) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poll = p
}

type commitCall struct {
	pollID, categoryID, amountCents int64
}

type fakeWriter struct {
	mu    sync.Mutex
	calls []commitCall
	err   error
}

func (w *fakeWriter) Commit(ctx context.Context, pollID, categoryID, amountCents int64, at time.Time) (int64, pollstore.Totals, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return 0, pollstore.Totals{}, w.err
	}
	w.calls = append(w.calls, commitCall{pollID, categoryID, amountCents})
	return int64(len(w.calls)), pollstore.Totals{TotalAmountCents: amountCents}, nil
}

func (w *fakeWriter) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

func (w *fakeWriter) lastCall() commitCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[len(w.calls)-1]
}

type fakeHub struct {
	mu        sync.Mutex
	envelopes []broadcast.Envelope
}

func (h *fakeHub) Broadcast(e broadcast.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.envelopes = append(h.envelopes, e)
}

func (h *fakeHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.envelopes))
	for i, e := range h.envelopes {
		out[i] = e.Type
	}
	return out
}

func testConfig() Config {
	return Config{
		ButtonDebounce:   20 * time.Millisecond,
		CoinDebounce:     20 * time.Millisecond,
		TTL:              time.Second,
		PulseToCents:     map[int]int64{1: 10, 2: 20, 3: 50, 4: 100, 5: 200},
		MinDonationCents: 1,
	}
}

func newTestEngine(t *testing.T, poll *pollstore.Poll, writer DonationCommitter) (*Engine, *fakePolls, *fakeHub) {
	t.Helper()
	polls := &fakePolls{poll: poll, name: map[int64]string{7: "Animals", 9: "Trees"}}
	hub := &fakeHub{}
	engine := New(testConfig(), polls, writer, hub, time.Now, nil)
	return engine, polls, hub
}

func TestEngine_HappyPath(t *testing.T) {
	poll := &pollstore.Poll{ID: 1, Bindings: []pollstore.Binding{
		{PollID: 1, CategoryID: 7, Position: 0},
		{PollID: 1, CategoryID: 9, Position: 1},
	}}
	writer := &fakeWriter{}
	engine, _, hub := newTestEngine(t, poll, writer)

	engine.HandleButtonPressed(0)
	engine.HandleCoinInserted(3) // 50 cents

	require.Eventually(t, func() bool { return writer.callCount() == 1 }, time.Second, 5*time.Millisecond)

	call := writer.lastCall()
	assert.Equal(t, int64(1), call.pollID)
	assert.Equal(t, int64(7), call.categoryID)
	assert.Equal(t, int64(50), call.amountCents)

	assert.Contains(t, hub.types(), "category_chosen")
	assert.Contains(t, hub.types(), "money_inserted")
}

func TestEngine_LastPressWins(t *testing.T) {
	poll := &pollstore.Poll{ID: 1, Bindings: []pollstore.Binding{
		{PollID: 1, CategoryID: 7, Position: 0},
		{PollID: 1, CategoryID: 9, Position: 1},
	}}
	writer := &fakeWriter{}
	engine, _, _ := newTestEngine(t, poll, writer)

	engine.HandleButtonPressed(0)
	time.Sleep(5 * time.Millisecond)
	engine.HandleButtonPressed(1) // supersedes before the first debounce fires
	engine.HandleCoinInserted(3)

	require.Eventually(t, func() bool { return writer.callCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(9), writer.lastCall().categoryID)
}

func TestEngine_TTLExpiry(t *testing.T) {
	poll := &pollstore.Poll{ID: 1, Bindings: []pollstore.Binding{{PollID: 1, CategoryID: 7, Position: 0}}}
	writer := &fakeWriter{}
	cfg := testConfig()
	cfg.TTL = 10 * time.Millisecond
	polls := &fakePolls{poll: poll, name: map[int64]string{7: "Animals"}}
	hub := &fakeHub{}
	engine := New(cfg, polls, writer, hub, time.Now, nil)

	engine.HandleButtonPressed(0)
	time.Sleep(100 * time.Millisecond) // let category expire before any coin arrives
	engine.HandleCoinInserted(1)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, writer.callCount())
}

func TestEngine_UnknownPulseCountTreatedAsZero(t *testing.T) {
	poll := &pollstore.Poll{ID: 1, Bindings: []pollstore.Binding{{PollID: 1, CategoryID: 7, Position: 0}}}
	writer := &fakeWriter{}
	engine, _, hub := newTestEngine(t, poll, writer)

	engine.HandleButtonPressed(0)
	engine.HandleCoinInserted(99) // unknown pulse count

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, writer.callCount())
	assert.Contains(t, hub.types(), "money_inserted")
}

func TestEngine_InvalidCategoryAfterEdit(t *testing.T) {
	poll := &pollstore.Poll{ID: 1, Bindings: []pollstore.Binding{{PollID: 1, CategoryID: 7, Position: 0}}}
	writer := &fakeWriter{}
	engine, polls, _ := newTestEngine(t, poll, writer)

	engine.HandleButtonPressed(0)
	time.Sleep(5 * time.Millisecond)
	polls.setPoll(&pollstore.Poll{ID: 1, Bindings: nil}) // binding removed before coin arrives
	engine.HandleCoinInserted(3)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, writer.callCount())
}

func TestEngine_MinDonationBelowThresholdWaits(t *testing.T) {
	poll := &pollstore.Poll{ID: 1, Bindings: []pollstore.Binding{{PollID: 1, CategoryID: 7, Position: 0}}}
	writer := &fakeWriter{}
	cfg := testConfig()
	cfg.MinDonationCents = 100
	polls := &fakePolls{poll: poll, name: map[int64]string{7: "Animals"}}
	hub := &fakeHub{}
	engine := New(cfg, polls, writer, hub, time.Now, nil)

	engine.HandleButtonPressed(0)
	engine.HandleCoinInserted(3) // only 50 cents, below the 100-cent minimum

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, writer.callCount())
}

func TestEngine_StorageErrorLeavesSlotsForRetry(t *testing.T) {
	poll := &pollstore.Poll{ID: 1, Bindings: []pollstore.Binding{{PollID: 1, CategoryID: 7, Position: 0}}}
	var resets []string
	var mu sync.Mutex
	writer := &fakeWriter{err: donationerr.ErrStorageError}
	polls := &fakePolls{poll: poll, name: map[int64]string{7: "Animals"}}
	hub := &fakeHub{}
	engine := New(testConfig(), polls, writer, hub, time.Now, func(reason string) {
		mu.Lock()
		defer mu.Unlock()
		resets = append(resets, reason)
	})

	engine.HandleButtonPressed(0)
	engine.HandleCoinInserted(3)

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, resets, "writer_failed")
}
