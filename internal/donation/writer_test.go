package donation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/donationbox/internal/broadcast"
	"github.com/ocx/donationbox/internal/circuitbreaker"
	"github.com/ocx/donationbox/internal/donationerr"
	"github.com/ocx/donationbox/internal/pollstore"
)

// fakeTx is an in-memory pollstore.Tx. commitErr lets tests force a failure
// on commit without a live database.
type fakeTx struct {
	commitErr error
}

func (t *fakeTx) Commit() error   { return t.commitErr }
func (t *fakeTx) Rollback() error { return nil }

// fakeStore implements pollstore.PollStore against in-memory state, letting
// Writer.Commit's transactional body run without a live Postgres instance.
type fakeStore struct {
	bindings      map[[2]int64]bool
	donations     map[int64][]int64 // categoryID -> amounts
	nextDonation  int64
	beginErr      error
	bindingErr    error
	insertErr     error
	aggregateErr  error
	commitErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bindings:  map[[2]int64]bool{},
		donations: map[int64][]int64{},
	}
}

func (s *fakeStore) bind(pollID, categoryID int64) {
	s.bindings[[2]int64{pollID, categoryID}] = true
}

func (s *fakeStore) GetActivePoll(ctx context.Context, at time.Time) (*pollstore.Poll, error) {
	return nil, nil
}
func (s *fakeStore) GetPollWithBindings(ctx context.Context, pollID int64) (*pollstore.Poll, error) {
	return nil, nil
}
func (s *fakeStore) BeginTx(ctx context.Context) (pollstore.Tx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return &fakeTx{commitErr: s.commitErr}, nil
}
func (s *fakeStore) BindingExists(ctx context.Context, tx pollstore.Tx, pollID, categoryID int64) (bool, error) {
	if s.bindingErr != nil {
		return false, s.bindingErr
	}
	return s.bindings[[2]int64{pollID, categoryID}], nil
}
func (s *fakeStore) InsertDonation(ctx context.Context, tx pollstore.Tx, pollID, categoryID, amountCents int64, at time.Time) (int64, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.nextDonation++
	s.donations[categoryID] = append(s.donations[categoryID], amountCents)
	return s.nextDonation, nil
}
func (s *fakeStore) AggregateTotals(ctx context.Context, tx pollstore.Tx, pollID int64) (pollstore.Totals, error) {
	if s.aggregateErr != nil {
		return pollstore.Totals{}, s.aggregateErr
	}
	totals := pollstore.Totals{CategoryTotals: map[int64]int64{}}
	for categoryID, amounts := range s.donations {
		for _, a := range amounts {
			totals.CategoryTotals[categoryID] += a
			totals.TotalAmountCents += a
			totals.TotalDonations++
		}
	}
	return totals, nil
}
func (s *fakeStore) ListPolls(ctx context.Context) ([]pollstore.Poll, error) { return nil, nil }
func (s *fakeStore) ListCategories(ctx context.Context) ([]pollstore.Category, error) {
	return nil, nil
}
func (s *fakeStore) GetCategoryName(ctx context.Context, categoryID int64) (string, error) {
	return "", nil
}
func (s *fakeStore) CreatePoll(ctx context.Context, poll *pollstore.Poll) (int64, error) {
	return 0, nil
}
func (s *fakeStore) DeletePoll(ctx context.Context, pollID int64) error { return nil }
func (s *fakeStore) CreateCategory(ctx context.Context, name string) (int64, error) {
	return 0, nil
}
func (s *fakeStore) DeleteCategory(ctx context.Context, categoryID int64) error { return nil }
func (s *fakeStore) UpdateBindings(ctx context.Context, pollID int64, categoryIDs []int64) error {
	return nil
}

func TestWriter_RejectsNonPositiveAmount(t *testing.T) {
	w := New(nil, nil, nil, nil)

	_, _, err := w.Commit(context.Background(), 1, 7, 0, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, donationerr.ErrInvalidCategory))

	_, _, err = w.Commit(context.Background(), 1, 7, -10, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, donationerr.ErrInvalidCategory))
}

func TestDonationCreatedEnvelope_Shape(t *testing.T) {
	at := time.Now()
	totals := pollstore.Totals{
		TotalAmountCents: 150,
		TotalDonations:   3,
		CategoryTotals:   map[int64]int64{7: 150},
	}

	env := donationCreatedEnvelope(1, 7, 50, totals, at)

	assert.Equal(t, "donation_created", env.Type)

	data := env.Data.(map[string]any)
	assert.Equal(t, at, data["timestamp"])
	assert.Equal(t, int64(1), data["vote_id"])
	assert.Equal(t, int64(7), data["category_id"])
	assert.Equal(t, int64(50), data["amount_cents"])

	totalsData := data["totals"].(map[string]any)
	assert.Equal(t, int64(150), totalsData["total_amount_cents"])
	assert.Equal(t, int64(3), totalsData["total_donations"])
}

func TestWriter_Commit_SuccessReturnsIDAndTotals(t *testing.T) {
	store := newFakeStore()
	store.bind(1, 7)
	hub := broadcast.New(nil)
	w := New(store, hub, nil, nil)

	id, totals, err := w.Commit(context.Background(), 1, 7, 100, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, int64(100), totals.TotalAmountCents)
	assert.Equal(t, int64(1), totals.TotalDonations)
}

func TestWriter_Commit_InvalidCategoryDoesNotTripBreaker(t *testing.T) {
	store := newFakeStore()
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("test"))
	w := New(store, broadcast.New(nil), breaker, nil)

	_, _, err := w.Commit(context.Background(), 1, 999, 100, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, donationerr.ErrInvalidCategory))

	// Repeating the same invalid-category miss well past the breaker's
	// consecutive-failure threshold must never trip it, since a missing
	// binding isn't a storage failure.
	for i := 0; i < 10; i++ {
		_, _, err := w.Commit(context.Background(), 1, 999, 100, time.Now())
		assert.True(t, errors.Is(err, donationerr.ErrInvalidCategory))
	}
}

func TestWriter_Commit_StorageErrorIsWrapped(t *testing.T) {
	store := newFakeStore()
	store.bind(1, 7)
	store.insertErr = errors.New("connection reset")
	w := New(store, broadcast.New(nil), nil, nil)

	_, _, err := w.Commit(context.Background(), 1, 7, 100, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, donationerr.ErrStorageError))
}

func TestWriter_Commit_RepeatedStorageFailuresTripBreaker(t *testing.T) {
	store := newFakeStore()
	store.bind(1, 7)
	store.insertErr = errors.New("connection reset")
	cfg := circuitbreaker.DefaultConfig("test")
	cfg.ReadyToTrip = func(counts circuitbreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 2
	}
	breaker := circuitbreaker.New(cfg)
	w := New(store, broadcast.New(nil), breaker, nil)

	for i := 0; i < 2; i++ {
		_, _, err := w.Commit(context.Background(), 1, 7, 100, time.Now())
		require.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())

	_, _, err := w.Commit(context.Background(), 1, 7, 100, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, donationerr.ErrStorageError))
}
