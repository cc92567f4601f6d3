// Package correlation implements the state machine that turns debounced
// button presses and accumulated coin pulses into persisted donations.
package correlation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ocx/donationbox/internal/broadcast"
	"github.com/ocx/donationbox/internal/donationerr"
	"github.com/ocx/donationbox/internal/pollstore"
)

// categorySlot mirrors the spec's selected_category correlation slot.
type categorySlot struct {
	position int
	setAt    time.Time
}

// amountSlot mirrors the spec's pending_amount correlation slot.
type amountSlot struct {
	cents     int64
	updatedAt time.Time
}

// PollReader is the subset of PollStore the engine needs to resolve the
// active poll and its bindings.
type PollReader interface {
	GetActivePoll(ctx context.Context, at time.Time) (*pollstore.Poll, error)
	GetCategoryName(ctx context.Context, categoryID int64) (string, error)
}

// DonationCommitter is the subset of DonationWriter the engine drives.
type DonationCommitter interface {
	Commit(ctx context.Context, pollID, categoryID, amountCents int64, at time.Time) (int64, pollstore.Totals, error)
}

// Broadcaster is the subset of BroadcastHub the engine publishes through.
type Broadcaster interface {
	Broadcast(envelope broadcast.Envelope)
}

// ResetRecorder wires correlation slot resets to MetricsRegistry's
// donationbox_correlation_resets_total counter.
type ResetRecorder func(reason string)

// Engine is the CorrelationEngine (C5). All slot mutation is guarded by one
// mutex: although the dispatcher that drives button/coin handlers is
// single-threaded, each debounce window fires on its own timer goroutine,
// so the mutex is what actually gives the slots single-writer semantics in
// Go rather than the cooperative-scheduler argument the reference
// implementation relies on.
type Engine struct {
	cfg Config

	polls  PollReader
	writer DonationCommitter
	hub    Broadcaster
	clock  func() time.Time
	onReset ResetRecorder

	mu        sync.Mutex
	category  *categorySlot
	amount    *amountSlot
	buttonGen uint64
	coinGen   uint64
}

// New builds an Engine. clock defaults to time.Now if nil.
func New(cfg Config, polls PollReader, writer DonationCommitter, hub Broadcaster, clock func() time.Time, onReset ResetRecorder) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		cfg:     cfg,
		polls:   polls,
		writer:  writer,
		hub:     hub,
		clock:   clock,
		onReset: onReset,
	}
}

func (e *Engine) now() time.Time { return e.clock() }

func (e *Engine) reset(reason string) {
	if e.onReset != nil {
		e.onReset(reason)
	}
}

// HandleButtonPressed implements the button path: cancel any in-flight
// debounce task, start a new one. "Last press wins" — a press that arrives
// before the previous debounce window elapses supersedes it entirely.
func (e *Engine) HandleButtonPressed(position int) {
	e.mu.Lock()
	e.buttonGen++
	gen := e.buttonGen
	e.mu.Unlock()

	time.AfterFunc(e.cfg.ButtonDebounce, func() {
		e.onButtonDebounce(gen, position)
	})
}

func (e *Engine) onButtonDebounce(gen uint64, position int) {
	e.mu.Lock()
	if gen != e.buttonGen {
		e.mu.Unlock()
		return // superseded by a later press before this one fired
	}
	now := e.now()
	e.category = &categorySlot{position: position, setAt: now}
	e.mu.Unlock()

	ctx := context.Background()
	e.broadcastCategoryChosen(ctx, position, now)
	e.attemptCorrelation(ctx)
}

func (e *Engine) broadcastCategoryChosen(ctx context.Context, position int, at time.Time) {
	poll, err := e.polls.GetActivePoll(ctx, at)
	if err != nil {
		slog.Error("correlation: failed to resolve active poll for category_chosen", "error", err)
		return
	}
	if poll == nil || position >= len(poll.Bindings) {
		slog.Warn("correlation: button position has no binding in active poll, suppressing broadcast", "position", position)
		return
	}

	binding := poll.Bindings[position]
	name, err := e.polls.GetCategoryName(ctx, binding.CategoryID)
	if err != nil {
		slog.Warn("correlation: failed to resolve category name", "category_id", binding.CategoryID, "error", err)
	}

	e.hub.Broadcast(CategoryChosenEnvelope(binding.CategoryID, name, at))
}

// HandleCoinInserted implements the coin path: atomically accumulates the
// pulse value into pending_amount, broadcasts the running total, then
// debounces a correlation attempt.
func (e *Engine) HandleCoinInserted(pulseCount int) {
	delta, ok := e.cfg.PulseToCents[pulseCount]
	if !ok {
		slog.Warn("correlation: unknown pulse count, treating as zero value", "pulse_count", pulseCount)
		delta = 0
	}

	e.mu.Lock()
	old := int64(0)
	if e.amount != nil {
		old = e.amount.cents
	}
	now := e.now()
	newTotal := old + delta
	e.amount = &amountSlot{cents: newTotal, updatedAt: now}
	e.coinGen++
	gen := e.coinGen
	e.mu.Unlock()

	e.hub.Broadcast(MoneyInsertedEnvelope(delta, newTotal, now))

	time.AfterFunc(e.cfg.CoinDebounce, func() {
		e.onCoinDebounce(gen)
	})
}

func (e *Engine) onCoinDebounce(gen uint64) {
	e.mu.Lock()
	if gen != e.coinGen {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.attemptCorrelation(context.Background())
}

// attemptCorrelation runs the five-step correlation procedure from the
// spec. It holds the engine mutex for its whole duration, including the
// donation commit, so button/coin handler invocations (which only need the
// mutex briefly) never observe a half-updated slot pair.
func (e *Engine) attemptCorrelation(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()

	if e.category == nil {
		return
	}
	if now.Sub(e.category.setAt) > e.cfg.TTL {
		e.category = nil
		e.reset("ttl_expired")
		return
	}

	if e.amount == nil || e.amount.cents <= 0 || now.Sub(e.amount.updatedAt) > e.cfg.TTL {
		e.amount = &amountSlot{cents: 0, updatedAt: now}
		return
	}

	poll, err := e.polls.GetActivePoll(ctx, now)
	if err != nil {
		slog.Error("correlation: failed to resolve active poll during correlation attempt", "error", err)
		return
	}
	if poll == nil || e.category.position >= len(poll.Bindings) {
		slog.Warn("correlation: selected category is stale, clearing slots", "position", e.category.position)
		e.category = nil
		e.amount = &amountSlot{cents: 0, updatedAt: now}
		e.reset("invalid_category")
		return
	}

	binding := poll.Bindings[e.category.position]
	cents := e.amount.cents
	if cents < e.cfg.MinDonationCents {
		return
	}

	_, _, err = e.writer.Commit(ctx, poll.ID, binding.CategoryID, cents, now)
	if err != nil {
		switch {
		case errors.Is(err, donationerr.ErrNoActivePoll):
			slog.Info("correlation: no active poll at commit time, clearing slots", "error", err)
			e.category = nil
			e.amount = nil
		case errors.Is(err, donationerr.ErrInvalidCategory):
			slog.Warn("correlation: invalid category at commit time, clearing category slot", "error", err)
			e.category = nil
		case errors.Is(err, donationerr.ErrStorageError):
			slog.Error("correlation: storage error, leaving slots for retry", "error", err)
			e.reset("writer_failed")
		default:
			slog.Error("correlation: unexpected commit error, leaving slots for retry", "error", err)
		}
		return
	}

	e.category = nil
	e.amount = nil
}
