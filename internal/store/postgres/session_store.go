package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pagelens/pagelens/internal/core"
)

// SessionStore implements core.SessionStore on Postgres.
type SessionStore struct {
	pool querier
}

// NewSessionStore wraps a pool.
func NewSessionStore(pool querier) *SessionStore {
	return &SessionStore{pool: pool}
}

// CreateSession inserts a session row. Crawl and visual configs travel as
// JSONB; the counter columns start at zero.
func (s *SessionStore) CreateSession(ctx context.Context, session core.CrawlSession) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	crawlJSON, err := json.Marshal(session.Crawl)
	if err != nil {
		return fmt.Errorf("marshal crawl config: %w", err)
	}
	visualJSON, err := json.Marshal(session.Visual)
	if err != nil {
		return fmt.Errorf("marshal visual config: %w", err)
	}
	query := `
		INSERT INTO crawl_sessions (
			id, project_id, seed_url, crawl_config, visual_config,
			status, error_text, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8);
	`
	_, err = s.pool.Exec(ctx, query,
		session.ID, session.ProjectID, session.SeedURL, crawlJSON, visualJSON,
		string(session.Status), session.ErrorText, session.Created,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

const sessionColumns = `
	id, project_id, seed_url, crawl_config, visual_config,
	status, error_text,
	pages_discovered, pages_crawled, pages_failed, checkpoints_total,
	created_at, started_at, finished_at
`

// GetSession loads one session by ID.
func (s *SessionStore) GetSession(ctx context.Context, id string) (core.CrawlSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM crawl_sessions WHERE id = $1;`
	return scanSession(s.pool.QueryRow(ctx, query, id))
}

// UpdateSessionStatus transitions a session. Running sets started_at once;
// terminal statuses set finished_at. Transitions out of a terminal status are
// rejected.
func (s *SessionStore) UpdateSessionStatus(ctx context.Context, id string, status core.SessionStatus, errText string) error {
	query := `
		UPDATE crawl_sessions SET
			status = $2,
			error_text = $3,
			started_at = CASE WHEN $2 = 'running' THEN COALESCE(started_at, now()) ELSE started_at END,
			finished_at = CASE WHEN $2 IN ('completed','failed','cancelled') THEN now() ELSE finished_at END
		WHERE id = $1 AND status NOT IN ('completed','failed','cancelled');
	`
	res, err := s.pool.Exec(ctx, query, id, string(status), errText)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w or already terminal", id, core.ErrNotFound)
	}
	return nil
}

// AddSessionCounters atomically increments the counter columns.
func (s *SessionStore) AddSessionCounters(ctx context.Context, id string, delta core.SessionCounters) error {
	query := `
		UPDATE crawl_sessions SET
			pages_discovered = pages_discovered + $2,
			pages_crawled = pages_crawled + $3,
			pages_failed = pages_failed + $4,
			checkpoints_total = checkpoints_total + $5
		WHERE id = $1;
	`
	res, err := s.pool.Exec(ctx, query, id,
		delta.PagesDiscovered, delta.PagesCrawled, delta.PagesFailed, delta.CheckpointsTotal)
	if err != nil {
		return fmt.Errorf("update session counters: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// ListSessions returns a project's sessions, newest first.
func (s *SessionStore) ListSessions(ctx context.Context, projectID string) ([]core.CrawlSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM crawl_sessions WHERE project_id = $1 ORDER BY created_at DESC;`
	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []core.CrawlSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions rows: %w", err)
	}
	return sessions, nil
}

func scanSession(row pgx.Row) (core.CrawlSession, error) {
	var (
		session    core.CrawlSession
		crawlJSON  []byte
		visualJSON []byte
		status     string
	)
	err := row.Scan(
		&session.ID, &session.ProjectID, &session.SeedURL, &crawlJSON, &visualJSON,
		&status, &session.ErrorText,
		&session.Counters.PagesDiscovered, &session.Counters.PagesCrawled,
		&session.Counters.PagesFailed, &session.Counters.CheckpointsTotal,
		&session.Created, &session.Started, &session.Finished,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.CrawlSession{}, fmt.Errorf("session: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.CrawlSession{}, fmt.Errorf("scan session: %w", err)
	}
	session.Status = core.SessionStatus(status)
	if err := json.Unmarshal(crawlJSON, &session.Crawl); err != nil {
		return core.CrawlSession{}, fmt.Errorf("unmarshal crawl config: %w", err)
	}
	if err := json.Unmarshal(visualJSON, &session.Visual); err != nil {
		return core.CrawlSession{}, fmt.Errorf("unmarshal visual config: %w", err)
	}
	return session, nil
}
