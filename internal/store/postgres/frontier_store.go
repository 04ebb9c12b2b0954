package postgres

import (
	"context"
	"fmt"

	"github.com/pagelens/pagelens/internal/core"
)

// FrontierStore implements core.FrontierStore on Postgres. The frontier
// manager owns ordering in process; these rows exist for observability and
// progress aggregation.
type FrontierStore struct {
	pool querier
}

// NewFrontierStore wraps a pool.
func NewFrontierStore(pool querier) *FrontierStore {
	return &FrontierStore{pool: pool}
}

// InsertItem persists a newly enqueued frontier item.
func (s *FrontierStore) InsertItem(ctx context.Context, item core.FrontierItem) error {
	query := `
		INSERT INTO frontier_items (
			id, session_id, url, parent_url, depth, priority,
			status, attempts, max_attempts, seq, last_error
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);
	`
	_, err := s.pool.Exec(ctx, query,
		item.ID, item.SessionID, item.URL, item.ParentURL, item.Depth, item.Priority,
		string(item.Status), item.Attempts, item.MaxAttempts, item.Seq, item.LastError,
	)
	if err != nil {
		return fmt.Errorf("insert frontier item: %w", err)
	}
	return nil
}

// UpdateItem rewrites the mutable columns of an item.
func (s *FrontierStore) UpdateItem(ctx context.Context, item core.FrontierItem) error {
	query := `
		UPDATE frontier_items SET
			status = $2, attempts = $3, last_error = $4
		WHERE id = $1;
	`
	res, err := s.pool.Exec(ctx, query, item.ID, string(item.Status), item.Attempts, item.LastError)
	if err != nil {
		return fmt.Errorf("update frontier item: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("frontier item %s: %w", item.ID, core.ErrNotFound)
	}
	return nil
}

// Progress aggregates a session's frontier into the progress view.
func (s *FrontierStore) Progress(ctx context.Context, sessionID string) (core.SessionProgress, error) {
	query := `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'completed'),
			count(*) FILTER (WHERE status = 'failed')
		FROM frontier_items WHERE session_id = $1;
	`
	var p core.SessionProgress
	if err := s.pool.QueryRow(ctx, query, sessionID).Scan(&p.Total, &p.Crawled, &p.Failed); err != nil {
		return core.SessionProgress{}, fmt.Errorf("frontier progress: %w", err)
	}
	if p.Total > 0 {
		p.Percentage = float64(p.Crawled+p.Failed) / float64(p.Total) * 100
	}
	return p, nil
}
