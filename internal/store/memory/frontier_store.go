package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pagelens/pagelens/internal/core"
)

// FrontierStore keeps frontier items per session for observability and
// progress aggregation.
type FrontierStore struct {
	mu    sync.RWMutex
	items map[string]map[string]core.FrontierItem // session id -> item id -> item
}

// NewFrontierStore constructs a FrontierStore.
func NewFrontierStore() *FrontierStore {
	return &FrontierStore{items: make(map[string]map[string]core.FrontierItem)}
}

// InsertItem records a new frontier item.
func (s *FrontierStore) InsertItem(_ context.Context, item core.FrontierItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.items[item.SessionID]
	if !ok {
		byID = make(map[string]core.FrontierItem)
		s.items[item.SessionID] = byID
	}
	if _, exists := byID[item.ID]; exists {
		return fmt.Errorf("frontier item %s already exists", item.ID)
	}
	byID[item.ID] = item
	return nil
}

// UpdateItem replaces a persisted frontier item.
func (s *FrontierStore) UpdateItem(_ context.Context, item core.FrontierItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.items[item.SessionID]
	if !ok {
		return fmt.Errorf("frontier item %s: %w", item.ID, core.ErrNotFound)
	}
	if _, exists := byID[item.ID]; !exists {
		return fmt.Errorf("frontier item %s: %w", item.ID, core.ErrNotFound)
	}
	byID[item.ID] = item
	return nil
}

// Progress aggregates frontier state into {total, crawled, failed, percentage}.
func (s *FrontierStore) Progress(_ context.Context, sessionID string) (core.SessionProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var p core.SessionProgress
	for _, item := range s.items[sessionID] {
		p.Total++
		switch item.Status {
		case core.FrontierCompleted:
			p.Crawled++
		case core.FrontierFailed:
			p.Failed++
		}
	}
	if p.Total > 0 {
		p.Percentage = float64(p.Crawled+p.Failed) / float64(p.Total) * 100
	}
	return p, nil
}

// ListItems returns a copy of all items for a session.
func (s *FrontierStore) ListItems(sessionID string) []core.FrontierItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.FrontierItem, 0, len(s.items[sessionID]))
	for _, item := range s.items[sessionID] {
		out = append(out, item)
	}
	return out
}
