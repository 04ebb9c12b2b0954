// Package postgres provides Postgres-backed persistence for sessions,
// frontier items, pages, checkpoints, and baselines.
//
// Expected schema:
//
//	CREATE TABLE crawl_sessions (
//	    id TEXT PRIMARY KEY,
//	    project_id TEXT NOT NULL,
//	    seed_url TEXT NOT NULL,
//	    crawl_config JSONB NOT NULL,
//	    visual_config JSONB NOT NULL,
//	    status TEXT NOT NULL,
//	    error_text TEXT NOT NULL DEFAULT '',
//	    pages_discovered INT NOT NULL DEFAULT 0,
//	    pages_crawled INT NOT NULL DEFAULT 0,
//	    pages_failed INT NOT NULL DEFAULT 0,
//	    checkpoints_total INT NOT NULL DEFAULT 0,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    started_at TIMESTAMPTZ,
//	    finished_at TIMESTAMPTZ
//	);
//
//	CREATE TABLE frontier_items (
//	    id TEXT PRIMARY KEY,
//	    session_id TEXT NOT NULL REFERENCES crawl_sessions(id),
//	    url TEXT NOT NULL,
//	    parent_url TEXT NOT NULL DEFAULT '',
//	    depth INT NOT NULL,
//	    priority INT NOT NULL,
//	    status TEXT NOT NULL,
//	    attempts INT NOT NULL DEFAULT 0,
//	    max_attempts INT NOT NULL,
//	    seq BIGINT NOT NULL,
//	    last_error TEXT NOT NULL DEFAULT ''
//	);
//
//	CREATE TABLE crawled_pages (
//	    id TEXT PRIMARY KEY,
//	    session_id TEXT NOT NULL REFERENCES crawl_sessions(id),
//	    url TEXT NOT NULL,
//	    parent_url TEXT NOT NULL DEFAULT '',
//	    depth INT NOT NULL,
//	    status_code INT NOT NULL,
//	    load_time_ms BIGINT NOT NULL,
//	    metadata JSONB NOT NULL,
//	    class TEXT NOT NULL,
//	    checkpoint_count INT NOT NULL DEFAULT 0,
//	    crawled_at TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE visual_checkpoints (
//	    id TEXT PRIMARY KEY,
//	    session_id TEXT NOT NULL REFERENCES crawl_sessions(id),
//	    page_id TEXT NOT NULL,
//	    url TEXT NOT NULL,
//	    profile TEXT NOT NULL,
//	    viewport_w INT NOT NULL,
//	    viewport_h INT NOT NULL,
//	    screenshot_ref TEXT NOT NULL,
//	    content_hash TEXT NOT NULL,
//	    baseline_id TEXT NOT NULL DEFAULT '',
//	    status TEXT NOT NULL,
//	    diff_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    diff_note TEXT NOT NULL DEFAULT '',
//	    elements JSONB NOT NULL,
//	    suggestions JSONB NOT NULL,
//	    reviewed_by TEXT NOT NULL DEFAULT '',
//	    captured_at TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE visual_baselines (
//	    id TEXT PRIMARY KEY,
//	    project_id TEXT NOT NULL,
//	    url_pattern TEXT NOT NULL,
//	    profile TEXT NOT NULL,
//	    viewport_w INT NOT NULL,
//	    viewport_h INT NOT NULL,
//	    screenshot_ref TEXT NOT NULL,
//	    content_hash TEXT NOT NULL,
//	    active BOOLEAN NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    created_by TEXT NOT NULL
//	);
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN      string
	MaxConns int32
}

// querier is the slice of pgxpool.Pool the stores use; pgxmock satisfies it
// for tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Connect builds a pgx pool from config.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}
