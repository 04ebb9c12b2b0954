package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pagelens/pagelens/internal/core"
)

// CheckpointStore keeps visual checkpoints in memory.
type CheckpointStore struct {
	mu        sync.RWMutex
	byID      map[string]core.VisualCheckpoint
	bySession map[string][]string
}

// NewCheckpointStore constructs a CheckpointStore.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		byID:      make(map[string]core.VisualCheckpoint),
		bySession: make(map[string][]string),
	}
}

// RecordCheckpoint persists a checkpoint row exactly once.
func (s *CheckpointStore) RecordCheckpoint(_ context.Context, cp core.VisualCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[cp.ID]; exists {
		return fmt.Errorf("checkpoint %s already recorded", cp.ID)
	}
	s.byID[cp.ID] = cp
	s.bySession[cp.SessionID] = append(s.bySession[cp.SessionID], cp.ID)
	return nil
}

// GetCheckpoint fetches a checkpoint by ID.
func (s *CheckpointStore) GetCheckpoint(_ context.Context, id string) (core.VisualCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.byID[id]
	if !ok {
		return core.VisualCheckpoint{}, fmt.Errorf("checkpoint %s: %w", id, core.ErrNotFound)
	}
	return cp, nil
}

// UpdateCheckpointReview rewrites the comparison status after a human review.
// This is the only mutation permitted after creation.
func (s *CheckpointStore) UpdateCheckpointReview(_ context.Context, id string, status core.ComparisonStatus, baselineID, reviewer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("checkpoint %s: %w", id, core.ErrNotFound)
	}
	cp.Status = status
	cp.ReviewedBy = reviewer
	if baselineID != "" {
		cp.BaselineID = baselineID
	}
	s.byID[id] = cp
	return nil
}

// ListCheckpoints returns all checkpoints for a session in insertion order.
func (s *CheckpointStore) ListCheckpoints(_ context.Context, sessionID string) ([]core.VisualCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.bySession[sessionID]
	out := make([]core.VisualCheckpoint, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id])
	}
	return out, nil
}
