package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pagelens/pagelens/internal/core"
)

// BaselineStore keeps visual baselines in insertion order, which defines the
// first-match-wins pattern resolution order.
type BaselineStore struct {
	mu        sync.RWMutex
	order     []string
	baselines map[string]core.VisualBaseline
}

// NewBaselineStore constructs a BaselineStore.
func NewBaselineStore() *BaselineStore {
	return &BaselineStore{baselines: make(map[string]core.VisualBaseline)}
}

// InsertBaseline appends a baseline row.
func (s *BaselineStore) InsertBaseline(_ context.Context, b core.VisualBaseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.baselines[b.ID]; exists {
		return fmt.Errorf("baseline %s already exists", b.ID)
	}
	s.baselines[b.ID] = b
	s.order = append(s.order, b.ID)
	return nil
}

// FindActive resolves the reference baseline for (project, url, profile,
// viewport). Patterns are tried in insertion order; the first active match
// wins. Returns core.ErrNotFound when nothing matches.
func (s *BaselineStore) FindActive(_ context.Context, projectID, url string, profile core.CheckpointProfile, vp core.Viewport) (core.VisualBaseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		b := s.baselines[id]
		if !b.Active || b.ProjectID != projectID || b.Profile != profile || b.Viewport != vp {
			continue
		}
		if core.MatchURLPattern(b.URLPattern, url) {
			return b, nil
		}
	}
	return core.VisualBaseline{}, fmt.Errorf("baseline for %s %s %s: %w", url, profile, vp, core.ErrNotFound)
}

// DeactivateBaseline marks a baseline inactive. The row is retained so the
// baseline history survives replacement.
func (s *BaselineStore) DeactivateBaseline(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.baselines[id]
	if !ok {
		return fmt.Errorf("baseline %s: %w", id, core.ErrNotFound)
	}
	b.Active = false
	s.baselines[id] = b
	return nil
}

// ListBaselines returns all baselines for a project in insertion order.
func (s *BaselineStore) ListBaselines(_ context.Context, projectID string) ([]core.VisualBaseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.VisualBaseline, 0, len(s.order))
	for _, id := range s.order {
		b := s.baselines[id]
		if projectID != "" && b.ProjectID != projectID {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
