package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pagelens/pagelens/internal/core"
)

// CheckpointStore implements core.CheckpointStore on Postgres.
type CheckpointStore struct {
	pool querier
}

// NewCheckpointStore wraps a pool.
func NewCheckpointStore(pool querier) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// RecordCheckpoint inserts one checkpoint row.
func (s *CheckpointStore) RecordCheckpoint(ctx context.Context, cp core.VisualCheckpoint) error {
	elementsJSON, err := json.Marshal(cp.Elements)
	if err != nil {
		return fmt.Errorf("marshal elements: %w", err)
	}
	suggestionsJSON, err := json.Marshal(cp.Suggestions)
	if err != nil {
		return fmt.Errorf("marshal suggestions: %w", err)
	}
	query := `
		INSERT INTO visual_checkpoints (
			id, session_id, page_id, url, profile, viewport_w, viewport_h,
			screenshot_ref, content_hash, baseline_id, status,
			diff_percent, diff_note, elements, suggestions, captured_at, reviewed_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17);
	`
	_, err = s.pool.Exec(ctx, query,
		cp.ID, cp.SessionID, cp.PageID, cp.URL, string(cp.Profile), cp.Viewport.Width, cp.Viewport.Height,
		cp.ScreenshotRef, cp.ContentHash, cp.BaselineID, string(cp.Status),
		cp.DiffPercent, cp.DiffNote, elementsJSON, suggestionsJSON, cp.CapturedAt, cp.ReviewedBy,
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

const checkpointColumns = `
	id, session_id, page_id, url, profile, viewport_w, viewport_h,
	screenshot_ref, content_hash, baseline_id, status,
	diff_percent, diff_note, elements, suggestions, captured_at, reviewed_by
`

// GetCheckpoint loads one checkpoint by ID.
func (s *CheckpointStore) GetCheckpoint(ctx context.Context, id string) (core.VisualCheckpoint, error) {
	query := `SELECT ` + checkpointColumns + ` FROM visual_checkpoints WHERE id = $1;`
	return scanCheckpoint(s.pool.QueryRow(ctx, query, id))
}

// UpdateCheckpointReview rewrites the review outcome of a checkpoint. This is
// the only mutation checkpoints support.
func (s *CheckpointStore) UpdateCheckpointReview(ctx context.Context, id string, status core.ComparisonStatus, baselineID, reviewer string) error {
	query := `
		UPDATE visual_checkpoints SET
			status = $2,
			baseline_id = CASE WHEN $3 <> '' THEN $3 ELSE baseline_id END,
			reviewed_by = $4
		WHERE id = $1;
	`
	res, err := s.pool.Exec(ctx, query, id, string(status), baselineID, reviewer)
	if err != nil {
		return fmt.Errorf("update checkpoint review: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("checkpoint %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// ListCheckpoints returns a session's checkpoints in capture order.
func (s *CheckpointStore) ListCheckpoints(ctx context.Context, sessionID string) ([]core.VisualCheckpoint, error) {
	query := `SELECT ` + checkpointColumns + ` FROM visual_checkpoints WHERE session_id = $1 ORDER BY captured_at;`
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []core.VisualCheckpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list checkpoints rows: %w", err)
	}
	return cps, nil
}

func scanCheckpoint(row pgx.Row) (core.VisualCheckpoint, error) {
	var (
		cp              core.VisualCheckpoint
		profile         string
		status          string
		elementsJSON    []byte
		suggestionsJSON []byte
	)
	err := row.Scan(
		&cp.ID, &cp.SessionID, &cp.PageID, &cp.URL, &profile, &cp.Viewport.Width, &cp.Viewport.Height,
		&cp.ScreenshotRef, &cp.ContentHash, &cp.BaselineID, &status,
		&cp.DiffPercent, &cp.DiffNote, &elementsJSON, &suggestionsJSON, &cp.CapturedAt, &cp.ReviewedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.VisualCheckpoint{}, fmt.Errorf("checkpoint: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.VisualCheckpoint{}, fmt.Errorf("scan checkpoint: %w", err)
	}
	cp.Profile = core.CheckpointProfile(profile)
	cp.Status = core.ComparisonStatus(status)
	if err := json.Unmarshal(elementsJSON, &cp.Elements); err != nil {
		return core.VisualCheckpoint{}, fmt.Errorf("unmarshal elements: %w", err)
	}
	if err := json.Unmarshal(suggestionsJSON, &cp.Suggestions); err != nil {
		return core.VisualCheckpoint{}, fmt.Errorf("unmarshal suggestions: %w", err)
	}
	return cp, nil
}
