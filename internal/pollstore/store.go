// Package pollstore defines the PollStore interface (C8) and its
// implementations: a primary, transactional database/sql + lib/pq backend,
// and a secondary, non-transactional Supabase REST backend for admin
// tooling.
package pollstore

import (
	"context"
	"time"
)

// Poll is a charitable-voting poll with its ordered category bindings.
type Poll struct {
	ID        int64
	Question  string
	StartTime time.Time
	EndTime   time.Time
	Bindings  []Binding
}

// Category is a reusable donation category.
type Category struct {
	ID   int64
	Name string
}

// Binding links a poll to a category at a zero-based display position,
// which also defines the button-to-category mapping for that poll.
type Binding struct {
	PollID     int64
	CategoryID int64
	Position   int
}

// Totals is the aggregate DonationWriter recomputes on every commit and
// BroadcastHub serializes into donation_created.data.totals.
type Totals struct {
	TotalAmountCents int64
	TotalDonations   int64
	CategoryTotals   map[int64]int64
}

// Tx is the subset of *sql.Tx the transaction-scoped PollStore methods
// need. DonationWriter composes BeginTx/BindingExists/InsertDonation/
// AggregateTotals/Commit/Rollback against this interface instead of the
// concrete *sql.Tx, so the donation commit path can be exercised against
// an in-memory fake in tests without a live Postgres instance.
type Tx interface {
	Commit() error
	Rollback() error
}

// PollStore is the interface the core pipeline requires of persistent
// storage. BeginTx/BindingExists/InsertDonation/AggregateTotals are scoped
// to a caller-managed transaction so DonationWriter can compose them into
// one atomic commit; the rest is read-mostly admin CRUD.
type PollStore interface {
	// GetActivePoll returns the poll whose [start_time, end_time] window
	// contains at, breaking ties by largest id. Returns nil, nil if none
	// qualifies.
	GetActivePoll(ctx context.Context, at time.Time) (*Poll, error)

	// GetPollWithBindings returns a poll and its bindings ordered by
	// position. Returns nil, nil if the poll doesn't exist.
	GetPollWithBindings(ctx context.Context, pollID int64) (*Poll, error)

	BeginTx(ctx context.Context) (Tx, error)

	// BindingExists reports whether (pollID, categoryID) has a binding.
	BindingExists(ctx context.Context, tx Tx, pollID, categoryID int64) (bool, error)

	// InsertDonation inserts a donation row and returns its id. Referential
	// integrity (the poll and category existing) is enforced by storage.
	InsertDonation(ctx context.Context, tx Tx, pollID, categoryID, amountCents int64, at time.Time) (int64, error)

	// AggregateTotals recomputes total_amount_cents, total_donations, and
	// per-category totals for categories currently bound to pollID. The
	// per-category totals are a map keyed by category id and carry no
	// binding-position order.
	AggregateTotals(ctx context.Context, tx Tx, pollID int64) (Totals, error)

	// ListPolls returns all polls.
	ListPolls(ctx context.Context) ([]Poll, error)

	// ListCategories returns all categories.
	ListCategories(ctx context.Context) ([]Category, error)

	// GetCategoryName resolves a category id to its display name, for
	// broadcast payloads.
	GetCategoryName(ctx context.Context, categoryID int64) (string, error)

	// CreatePoll inserts a new poll together with its bindings and returns
	// its id.
	CreatePoll(ctx context.Context, poll *Poll) (int64, error)

	// DeletePoll removes a poll; bindings and donations cascade per the
	// persisted schema's ON DELETE CASCADE / RESTRICT rules.
	DeletePoll(ctx context.Context, pollID int64) error

	// CreateCategory inserts a new category and returns its id. Fails if
	// the name is already taken.
	CreateCategory(ctx context.Context, name string) (int64, error)

	// DeleteCategory removes a category, failing if any donation
	// references it.
	DeleteCategory(ctx context.Context, categoryID int64) error

	// UpdateBindings replaces pollID's bindings wholesale, positionally
	// migrating existing donations: for each position i where the old
	// category id differs from the new one, donations against the old id
	// are rewritten to the new id. If the new binding set is shorter than
	// the old one, donations for every position beyond the new length are
	// migrated to the last new category (the reference migration policy,
	// preserved here even though it can surprise an operator shrinking a
	// poll).
	UpdateBindings(ctx context.Context, pollID int64, categoryIDs []int64) error
}
