package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pagelens/pagelens/internal/core"
)

func millisToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// PageStore implements core.PageStore on Postgres.
type PageStore struct {
	pool querier
}

// NewPageStore wraps a pool.
func NewPageStore(pool querier) *PageStore {
	return &PageStore{pool: pool}
}

// RecordPage inserts a crawled page. Metadata travels as JSONB.
func (s *PageStore) RecordPage(ctx context.Context, page core.CrawledPage) error {
	metaJSON, err := json.Marshal(page.Metadata)
	if err != nil {
		return fmt.Errorf("marshal page metadata: %w", err)
	}
	query := `
		INSERT INTO crawled_pages (
			id, session_id, url, parent_url, depth, status_code,
			load_time_ms, metadata, class, checkpoint_count, crawled_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);
	`
	_, err = s.pool.Exec(ctx, query,
		page.ID, page.SessionID, page.URL, page.ParentURL, page.Depth, page.StatusCode,
		page.LoadTime.Milliseconds(), metaJSON, string(page.Class), page.CheckpointCount, page.CrawledAt,
	)
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

// ListPages returns a session's pages in crawl order.
func (s *PageStore) ListPages(ctx context.Context, sessionID string) ([]core.CrawledPage, error) {
	query := `
		SELECT id, session_id, url, parent_url, depth, status_code,
			load_time_ms, metadata, class, checkpoint_count, crawled_at
		FROM crawled_pages WHERE session_id = $1 ORDER BY crawled_at;
	`
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []core.CrawledPage
	for rows.Next() {
		var (
			page       core.CrawledPage
			loadTimeMs int64
			metaJSON   []byte
			class      string
		)
		err := rows.Scan(
			&page.ID, &page.SessionID, &page.URL, &page.ParentURL, &page.Depth, &page.StatusCode,
			&loadTimeMs, &metaJSON, &class, &page.CheckpointCount, &page.CrawledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		page.LoadTime = millisToDuration(loadTimeMs)
		page.Class = core.PageClass(class)
		if err := json.Unmarshal(metaJSON, &page.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal page metadata: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pages rows: %w", err)
	}
	return pages, nil
}

// AddCheckpointCount increments the page's checkpoint counter.
func (s *PageStore) AddCheckpointCount(ctx context.Context, pageID string, n int) error {
	query := `UPDATE crawled_pages SET checkpoint_count = checkpoint_count + $2 WHERE id = $1;`
	res, err := s.pool.Exec(ctx, query, pageID, n)
	if err != nil {
		return fmt.Errorf("update checkpoint count: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("page %s: %w", pageID, core.ErrNotFound)
	}
	return nil
}
