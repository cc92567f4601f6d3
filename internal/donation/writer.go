// Package donation implements DonationWriter (C7): the transactional
// commit of a correlated donation against the currently active poll.
package donation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ocx/donationbox/internal/broadcast"
	"github.com/ocx/donationbox/internal/circuitbreaker"
	"github.com/ocx/donationbox/internal/donationerr"
	"github.com/ocx/donationbox/internal/metrics"
	"github.com/ocx/donationbox/internal/pollstore"
)

// Writer commits a single donation inside one database transaction and
// publishes the resulting totals. A circuit breaker wraps the transaction
// so a string of storage failures fails fast instead of queuing retries
// against a downed database.
type Writer struct {
	store   pollstore.PollStore
	hub     *broadcast.Hub
	breaker *circuitbreaker.CircuitBreaker
	metrics *metrics.Registry
}

// New builds a Writer. metricsReg may be nil in tests.
func New(store pollstore.PollStore, hub *broadcast.Hub, breaker *circuitbreaker.CircuitBreaker, metricsReg *metrics.Registry) *Writer {
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.DefaultConfig("donation_writer"))
	}
	return &Writer{store: store, hub: hub, breaker: breaker, metrics: metricsReg}
}

// Commit verifies the (pollID, categoryID) binding, inserts the donation,
// recomputes aggregates, commits, and broadcasts donation_created — all
// inside one transaction except the broadcast itself, which is
// fire-and-forget and never rolls the transaction back.
func (w *Writer) Commit(ctx context.Context, pollID, categoryID, amountCents int64, at time.Time) (int64, pollstore.Totals, error) {
	if amountCents <= 0 {
		return 0, pollstore.Totals{}, fmt.Errorf("%w: amount_cents must be positive", donationerr.ErrInvalidCategory)
	}

	var donationID int64
	var totals pollstore.Totals
	var categoryInvalid bool

	err := w.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		tx, err := w.store.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", donationerr.ErrStorageError, err)
		}
		defer tx.Rollback()

		exists, err := w.store.BindingExists(ctx, tx, pollID, categoryID)
		if err != nil {
			return fmt.Errorf("%w: %v", donationerr.ErrStorageError, err)
		}
		if !exists {
			// Not a storage failure: report success to the breaker (an
			// invalid category says nothing about the database's health)
			// and surface it to the caller via categoryInvalid instead.
			categoryInvalid = true
			return nil
		}

		donationID, err = w.store.InsertDonation(ctx, tx, pollID, categoryID, amountCents, at)
		if err != nil {
			return fmt.Errorf("%w: %v", donationerr.ErrStorageError, err)
		}

		totals, err = w.store.AggregateTotals(ctx, tx, pollID)
		if err != nil {
			return fmt.Errorf("%w: %v", donationerr.ErrStorageError, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: %v", donationerr.ErrStorageError, err)
		}
		return nil
	})

	if categoryInvalid {
		return 0, pollstore.Totals{}, donationerr.ErrInvalidCategory
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return 0, pollstore.Totals{}, fmt.Errorf("%w: %v", donationerr.ErrStorageError, err)
	}
	if err != nil {
		return 0, pollstore.Totals{}, err
	}

	if w.metrics != nil {
		w.metrics.RecordDonation(fmt.Sprintf("%d", categoryID), amountCents)
	}

	w.hub.Broadcast(donationCreatedEnvelope(pollID, categoryID, amountCents, totals, at))
	slog.Info("donation: committed", "poll_id", pollID, "category_id", categoryID, "amount_cents", amountCents, "donation_id", donationID)

	return donationID, totals, nil
}

func donationCreatedEnvelope(pollID, categoryID, amountCents int64, totals pollstore.Totals, at time.Time) broadcast.Envelope {
	return broadcast.Envelope{
		Type: "donation_created",
		Data: map[string]any{
			"vote_id":      pollID,
			"category_id":  categoryID,
			"amount_cents": amountCents,
			"totals": map[string]any{
				"total_amount_cents": totals.TotalAmountCents,
				"total_donations":    totals.TotalDonations,
				"category_totals":    totals.CategoryTotals,
			},
			"timestamp": at,
		},
	}
}
