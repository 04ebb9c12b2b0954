package postgres

import (
	"context"
	"fmt"

	"github.com/pagelens/pagelens/internal/core"
)

// BaselineStore implements core.BaselineStore on Postgres.
type BaselineStore struct {
	pool querier
}

// NewBaselineStore wraps a pool.
func NewBaselineStore(pool querier) *BaselineStore {
	return &BaselineStore{pool: pool}
}

// InsertBaseline persists one baseline row.
func (s *BaselineStore) InsertBaseline(ctx context.Context, b core.VisualBaseline) error {
	query := `
		INSERT INTO visual_baselines (
			id, project_id, url_pattern, profile, viewport_w, viewport_h,
			screenshot_ref, content_hash, active, created_at, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);
	`
	_, err := s.pool.Exec(ctx, query,
		b.ID, b.ProjectID, b.URLPattern, string(b.Profile), b.Viewport.Width, b.Viewport.Height,
		b.ScreenshotRef, b.ContentHash, b.Active, b.CreatedAt, b.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert baseline: %w", err)
	}
	return nil
}

// FindActive resolves the baseline for a URL: active rows for the project,
// profile, and viewport are fetched in insertion order and the first pattern
// match wins. Wildcard matching happens in Go because the stored pattern
// grammar (`*`) is not SQL LIKE.
func (s *BaselineStore) FindActive(ctx context.Context, projectID, url string, profile core.CheckpointProfile, vp core.Viewport) (core.VisualBaseline, error) {
	query := `
		SELECT id, project_id, url_pattern, profile, viewport_w, viewport_h,
			screenshot_ref, content_hash, active, created_at, created_by
		FROM visual_baselines
		WHERE project_id = $1 AND profile = $2 AND viewport_w = $3 AND viewport_h = $4 AND active
		ORDER BY created_at;
	`
	rows, err := s.pool.Query(ctx, query, projectID, string(profile), vp.Width, vp.Height)
	if err != nil {
		return core.VisualBaseline{}, fmt.Errorf("find baseline: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b       core.VisualBaseline
			profStr string
		)
		err := rows.Scan(
			&b.ID, &b.ProjectID, &b.URLPattern, &profStr, &b.Viewport.Width, &b.Viewport.Height,
			&b.ScreenshotRef, &b.ContentHash, &b.Active, &b.CreatedAt, &b.CreatedBy,
		)
		if err != nil {
			return core.VisualBaseline{}, fmt.Errorf("scan baseline: %w", err)
		}
		b.Profile = core.CheckpointProfile(profStr)
		if core.MatchURLPattern(b.URLPattern, url) {
			return b, nil
		}
	}
	if err := rows.Err(); err != nil {
		return core.VisualBaseline{}, fmt.Errorf("find baseline rows: %w", err)
	}
	return core.VisualBaseline{}, fmt.Errorf("baseline for %s: %w", url, core.ErrNotFound)
}

// DeactivateBaseline retires a baseline; the row is retained for history.
func (s *BaselineStore) DeactivateBaseline(ctx context.Context, id string) error {
	query := `UPDATE visual_baselines SET active = false WHERE id = $1;`
	res, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate baseline: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("baseline %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// ListBaselines returns a project's baselines, active and retired, in
// insertion order.
func (s *BaselineStore) ListBaselines(ctx context.Context, projectID string) ([]core.VisualBaseline, error) {
	query := `
		SELECT id, project_id, url_pattern, profile, viewport_w, viewport_h,
			screenshot_ref, content_hash, active, created_at, created_by
		FROM visual_baselines WHERE project_id = $1 ORDER BY created_at;
	`
	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list baselines: %w", err)
	}
	defer rows.Close()

	var baselines []core.VisualBaseline
	for rows.Next() {
		var (
			b       core.VisualBaseline
			profStr string
		)
		err := rows.Scan(
			&b.ID, &b.ProjectID, &b.URLPattern, &profStr, &b.Viewport.Width, &b.Viewport.Height,
			&b.ScreenshotRef, &b.ContentHash, &b.Active, &b.CreatedAt, &b.CreatedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("scan baseline: %w", err)
		}
		b.Profile = core.CheckpointProfile(profStr)
		baselines = append(baselines, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list baselines rows: %w", err)
	}
	return baselines, nil
}
