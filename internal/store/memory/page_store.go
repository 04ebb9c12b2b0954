package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pagelens/pagelens/internal/core"
)

// PageStore keeps crawled pages in memory.
type PageStore struct {
	mu        sync.RWMutex
	byID      map[string]core.CrawledPage
	bySession map[string][]string // session id -> page ids in insertion order
}

// NewPageStore constructs a PageStore.
func NewPageStore() *PageStore {
	return &PageStore{
		byID:      make(map[string]core.CrawledPage),
		bySession: make(map[string][]string),
	}
}

// RecordPage appends a crawled page row.
func (s *PageStore) RecordPage(_ context.Context, page core.CrawledPage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[page.ID]; exists {
		return fmt.Errorf("page %s already recorded", page.ID)
	}
	s.byID[page.ID] = page
	s.bySession[page.SessionID] = append(s.bySession[page.SessionID], page.ID)
	return nil
}

// ListPages returns all pages for a session in insertion order.
func (s *PageStore) ListPages(_ context.Context, sessionID string) ([]core.CrawledPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.bySession[sessionID]
	out := make([]core.CrawledPage, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id])
	}
	return out, nil
}

// AddCheckpointCount applies the one-time checkpoint-count increment.
func (s *PageStore) AddCheckpointCount(_ context.Context, pageID string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.byID[pageID]
	if !ok {
		return fmt.Errorf("page %s: %w", pageID, core.ErrNotFound)
	}
	page.CheckpointCount += n
	s.byID[pageID] = page
	return nil
}
