// Package database holds the secondary, non-transactional PollStore backend.
// The primary backend lives in internal/pollstore against database/sql +
// lib/pq; this client talks to the same tables over Supabase's REST API for
// out-of-band dashboard tooling and must never be used by the donation
// write path.
package database

import (
	"context"
	"fmt"

	supabase "github.com/supabase-community/supabase-go"
)

// AdminClient wraps the Supabase REST client with the admin CRUD surface
// for polls, categories and bindings.
type AdminClient struct {
	client *supabase.Client
}

// NewAdminClient creates a Supabase-backed admin client from the given URL
// and service key.
func NewAdminClient(url, serviceKey string) (*AdminClient, error) {
	if url == "" || serviceKey == "" {
		return nil, fmt.Errorf("supabase url and service key must be set")
	}

	client, err := supabase.NewClient(url, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}

	return &AdminClient{client: client}, nil
}

// ============================================================================
// DATA MODELS — mirror the rows PollStore's Postgres schema exposes.
// ============================================================================

type PollRow struct {
	ID        int64  `json:"id,omitempty"`
	Question  string `json:"question"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type CategoryRow struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

type BindingRow struct {
	PollID     int64 `json:"poll_id"`
	CategoryID int64 `json:"category_id"`
	Position   int   `json:"position"`
}

// ============================================================================
// POLL OPERATIONS
// ============================================================================

// ListPolls returns all polls, most recently started first.
func (ac *AdminClient) ListPolls(ctx context.Context) ([]PollRow, error) {
	var polls []PollRow
	_, err := ac.client.From("polls").
		Select("*", "", false).
		Order("start_time", nil).
		ExecuteTo(&polls)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	return polls, nil
}

// GetPoll retrieves a single poll by id.
func (ac *AdminClient) GetPoll(ctx context.Context, id int64) (*PollRow, error) {
	var polls []PollRow
	_, err := ac.client.From("polls").
		Select("*", "", false).
		Eq("id", fmt.Sprintf("%d", id)).
		ExecuteTo(&polls)
	if err != nil {
		return nil, fmt.Errorf("get poll: %w", err)
	}
	if len(polls) == 0 {
		return nil, nil
	}
	return &polls[0], nil
}

// CreatePoll inserts a new poll row.
func (ac *AdminClient) CreatePoll(ctx context.Context, poll *PollRow) error {
	var result []PollRow
	_, err := ac.client.From("polls").
		Insert(poll, false, "", "", "").
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("create poll: %w", err)
	}
	return nil
}

// UpdatePoll updates a poll row in place (question/time bounds only; binding
// edits go through UpdateBindings so position rewrites stay atomic).
func (ac *AdminClient) UpdatePoll(ctx context.Context, poll *PollRow) error {
	var result []PollRow
	_, err := ac.client.From("polls").
		Update(poll, "", "").
		Eq("id", fmt.Sprintf("%d", poll.ID)).
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("update poll: %w", err)
	}
	return nil
}

// DeletePoll removes a poll and its bindings.
func (ac *AdminClient) DeletePoll(ctx context.Context, id int64) error {
	_, _, err := ac.client.From("poll_categories").
		Delete("", "").
		Eq("poll_id", fmt.Sprintf("%d", id)).
		Execute()
	if err != nil {
		return fmt.Errorf("delete poll bindings: %w", err)
	}
	_, _, err = ac.client.From("polls").
		Delete("", "").
		Eq("id", fmt.Sprintf("%d", id)).
		Execute()
	if err != nil {
		return fmt.Errorf("delete poll: %w", err)
	}
	return nil
}

// ============================================================================
// CATEGORY OPERATIONS
// ============================================================================

// ListCategories returns all known categories.
func (ac *AdminClient) ListCategories(ctx context.Context) ([]CategoryRow, error) {
	var categories []CategoryRow
	_, err := ac.client.From("categories").
		Select("*", "", false).
		ExecuteTo(&categories)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// CreateCategory inserts a new category.
func (ac *AdminClient) CreateCategory(ctx context.Context, category *CategoryRow) error {
	var result []CategoryRow
	_, err := ac.client.From("categories").
		Insert(category, false, "", "", "").
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// DeleteCategory removes a category by id.
func (ac *AdminClient) DeleteCategory(ctx context.Context, id int64) error {
	_, _, err := ac.client.From("categories").
		Delete("", "").
		Eq("id", fmt.Sprintf("%d", id)).
		Execute()
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// ============================================================================
// BINDING OPERATIONS — positional, rewritten wholesale on every edit.
// ============================================================================

// ListBindings returns a poll's category bindings ordered by position.
func (ac *AdminClient) ListBindings(ctx context.Context, pollID int64) ([]BindingRow, error) {
	var bindings []BindingRow
	_, err := ac.client.From("poll_categories").
		Select("*", "", false).
		Eq("poll_id", fmt.Sprintf("%d", pollID)).
		Order("position", nil).
		ExecuteTo(&bindings)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	return bindings, nil
}

// UpdateBindings replaces a poll's entire binding set by position, deleting
// the old bindings and reinserting the new ones as the primary store does.
// Unlike the primary store it does not migrate existing donations, and the
// delete and the insert are separate requests rather than one transaction.
func (ac *AdminClient) UpdateBindings(ctx context.Context, pollID int64, categoryIDs []int64) error {
	_, _, err := ac.client.From("poll_categories").
		Delete("", "").
		Eq("poll_id", fmt.Sprintf("%d", pollID)).
		Execute()
	if err != nil {
		return fmt.Errorf("clear bindings: %w", err)
	}

	rows := make([]BindingRow, len(categoryIDs))
	for i, categoryID := range categoryIDs {
		rows[i] = BindingRow{PollID: pollID, CategoryID: categoryID, Position: i}
	}
	if len(rows) == 0 {
		return nil
	}

	var result []BindingRow
	_, err = ac.client.From("poll_categories").
		Insert(rows, false, "", "", "").
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("insert bindings: %w", err)
	}
	return nil
}
