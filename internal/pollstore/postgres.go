package pollstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore is the primary, transactional PollStore backend.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens and pings a Postgres connection pool at dsn.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pollstore: connect: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pollstore: ping: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// BeginTx satisfies PollStore's Tx-returning signature. The concrete value
// is always a *sql.Tx; beginSQLTx exists for the admin CRUD methods below
// that need the concrete type's QueryRowContext/ExecContext directly.
func (s *PostgresStore) BeginTx(ctx context.Context) (Tx, error) {
	return s.beginSQLTx(ctx)
}

func (s *PostgresStore) beginSQLTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("pollstore: begin tx: %w", err)
	}
	return tx, nil
}

// asSQLTx recovers the concrete *sql.Tx PostgresStore itself created via
// BeginTx. PostgresStore never receives a Tx from any other backend, so
// this assertion cannot fail in practice.
func asSQLTx(tx Tx) *sql.Tx {
	sqlTx, ok := tx.(*sql.Tx)
	if !ok {
		panic("pollstore: PostgresStore received a Tx it did not create")
	}
	return sqlTx
}

func (s *PostgresStore) GetActivePoll(ctx context.Context, at time.Time) (*Poll, error) {
	const query = `
		SELECT id, question, start_time, end_time
		FROM polls
		WHERE start_time <= $1 AND end_time >= $1
		ORDER BY id DESC
		LIMIT 1`

	var p Poll
	err := s.db.QueryRowContext(ctx, query, at).Scan(&p.ID, &p.Question, &p.StartTime, &p.EndTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pollstore: get active poll: %w", err)
	}

	bindings, err := s.bindingsFor(ctx, s.db, p.ID)
	if err != nil {
		return nil, err
	}
	p.Bindings = bindings
	return &p, nil
}

func (s *PostgresStore) GetPollWithBindings(ctx context.Context, pollID int64) (*Poll, error) {
	const query = `SELECT id, question, start_time, end_time FROM polls WHERE id = $1`

	var p Poll
	err := s.db.QueryRowContext(ctx, query, pollID).Scan(&p.ID, &p.Question, &p.StartTime, &p.EndTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pollstore: get poll: %w", err)
	}

	bindings, err := s.bindingsFor(ctx, s.db, p.ID)
	if err != nil {
		return nil, err
	}
	p.Bindings = bindings
	return &p, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) bindingsFor(ctx context.Context, q querier, pollID int64) ([]Binding, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT poll_id, category_id, position FROM poll_categories WHERE poll_id = $1 ORDER BY position ASC`,
		pollID)
	if err != nil {
		return nil, fmt.Errorf("pollstore: list bindings: %w", err)
	}
	defer rows.Close()

	var bindings []Binding
	for rows.Next() {
		var b Binding
		if err := rows.Scan(&b.PollID, &b.CategoryID, &b.Position); err != nil {
			return nil, fmt.Errorf("pollstore: scan binding: %w", err)
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

func (s *PostgresStore) BindingExists(ctx context.Context, tx Tx, pollID, categoryID int64) (bool, error) {
	var exists bool
	err := asSQLTx(tx).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM poll_categories WHERE poll_id = $1 AND category_id = $2)`,
		pollID, categoryID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pollstore: check binding: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) InsertDonation(ctx context.Context, tx Tx, pollID, categoryID, amountCents int64, at time.Time) (int64, error) {
	var id int64
	err := asSQLTx(tx).QueryRowContext(ctx,
		`INSERT INTO donations (poll_id, category_id, amount_cents, "timestamp") VALUES ($1, $2, $3, $4) RETURNING id`,
		pollID, categoryID, amountCents, at).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("pollstore: insert donation: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) AggregateTotals(ctx context.Context, tx Tx, pollID int64) (Totals, error) {
	sqlTx := asSQLTx(tx)

	bindings, err := s.bindingsFor(ctx, sqlTx, pollID)
	if err != nil {
		return Totals{}, err
	}

	totals := Totals{CategoryTotals: make(map[int64]int64, len(bindings))}
	for _, b := range bindings {
		var sum sql.NullInt64
		err := sqlTx.QueryRowContext(ctx,
			`SELECT SUM(amount_cents) FROM donations WHERE poll_id = $1 AND category_id = $2`,
			pollID, b.CategoryID).Scan(&sum)
		if err != nil {
			return Totals{}, fmt.Errorf("pollstore: sum category totals: %w", err)
		}
		totals.CategoryTotals[b.CategoryID] = sum.Int64
		totals.TotalAmountCents += sum.Int64
	}

	var count int64
	boundIDs := make([]int64, len(bindings))
	for i, b := range bindings {
		boundIDs[i] = b.CategoryID
	}
	if len(boundIDs) > 0 {
		err := sqlTx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM donations WHERE poll_id = $1 AND category_id = ANY($2)`,
			pollID, pq.Array(boundIDs)).Scan(&count)
		if err != nil {
			return Totals{}, fmt.Errorf("pollstore: count donations: %w", err)
		}
	}
	totals.TotalDonations = count

	return totals, nil
}

func (s *PostgresStore) ListPolls(ctx context.Context) ([]Poll, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, question, start_time, end_time FROM polls ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("pollstore: list polls: %w", err)
	}
	defer rows.Close()

	var polls []Poll
	for rows.Next() {
		var p Poll
		if err := rows.Scan(&p.ID, &p.Question, &p.StartTime, &p.EndTime); err != nil {
			return nil, fmt.Errorf("pollstore: scan poll: %w", err)
		}
		polls = append(polls, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range polls {
		bindings, err := s.bindingsFor(ctx, s.db, polls[i].ID)
		if err != nil {
			return nil, err
		}
		polls[i].Bindings = bindings
	}
	return polls, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("pollstore: list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("pollstore: scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *PostgresStore) GetCategoryName(ctx context.Context, categoryID int64) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM categories WHERE id = $1`, categoryID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("pollstore: get category name: %w", err)
	}
	return name, nil
}

func (s *PostgresStore) CreatePoll(ctx context.Context, poll *Poll) (int64, error) {
	if !poll.StartTime.Before(poll.EndTime) {
		return 0, fmt.Errorf("pollstore: start_time must be before end_time")
	}

	tx, err := s.beginSQLTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO polls (question, start_time, end_time) VALUES ($1, $2, $3) RETURNING id`,
		poll.Question, poll.StartTime, poll.EndTime).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("pollstore: insert poll: %w", err)
	}

	for i, b := range poll.Bindings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO poll_categories (poll_id, category_id, position) VALUES ($1, $2, $3)`,
			id, b.CategoryID, i); err != nil {
			return 0, fmt.Errorf("pollstore: insert binding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("pollstore: commit create poll: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) DeletePoll(ctx context.Context, pollID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM polls WHERE id = $1`, pollID)
	if err != nil {
		return fmt.Errorf("pollstore: delete poll: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateCategory(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO categories (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("pollstore: insert category: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, categoryID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, categoryID)
	if err != nil {
		return fmt.Errorf("pollstore: delete category: %w", err)
	}
	return nil
}

// UpdateBindings replaces pollID's binding set and positionally migrates
// donations. Positions present in both old and new sets move donations
// from the old category id to the new one when they differ; positions only
// present in the old set (the new set is shorter) migrate to the last
// entry of the new set, matching the reference implementation's behavior.
func (s *PostgresStore) UpdateBindings(ctx context.Context, pollID int64, categoryIDs []int64) error {
	tx, err := s.beginSQLTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	oldBindings, err := s.bindingsFor(ctx, tx, pollID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM poll_categories WHERE poll_id = $1`, pollID); err != nil {
		return fmt.Errorf("pollstore: clear bindings: %w", err)
	}

	for i, categoryID := range categoryIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO poll_categories (poll_id, category_id, position) VALUES ($1, $2, $3)`,
			pollID, categoryID, i); err != nil {
			return fmt.Errorf("pollstore: insert binding: %w", err)
		}
	}

	if len(categoryIDs) > 0 {
		lastNewCategory := categoryIDs[len(categoryIDs)-1]
		for i, old := range oldBindings {
			var newCategoryID int64
			if i < len(categoryIDs) {
				newCategoryID = categoryIDs[i]
			} else {
				newCategoryID = lastNewCategory
			}
			if newCategoryID == old.CategoryID {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE donations SET category_id = $1 WHERE poll_id = $2 AND category_id = $3`,
				newCategoryID, pollID, old.CategoryID); err != nil {
				return fmt.Errorf("pollstore: migrate donations at position %d: %w", i, err)
			}
		}
	}

	return tx.Commit()
}
