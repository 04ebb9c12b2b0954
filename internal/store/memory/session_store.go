// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pagelens/pagelens/internal/core"
)

// SessionStore keeps crawl sessions in a map guarded by one mutex.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]core.CrawlSession
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]core.CrawlSession)}
}

// CreateSession stores a new session in pending status.
func (s *SessionStore) CreateSession(_ context.Context, session core.CrawlSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return errors.New("session already exists")
	}
	s.sessions[session.ID] = session
	return nil
}

// GetSession fetches a session by ID.
func (s *SessionStore) GetSession(_ context.Context, id string) (core.CrawlSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return core.CrawlSession{}, fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	return session, nil
}

// UpdateSessionStatus applies a status transition. Transitions out of a
// terminal state are rejected so session lifecycles stay monotonic.
func (s *SessionStore) UpdateSessionStatus(_ context.Context, id string, status core.SessionStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	if session.Status.Terminal() {
		return fmt.Errorf("session %s already %s", id, session.Status)
	}
	session.Status = status
	session.ErrorText = errText
	now := time.Now().UTC()
	if status == core.SessionRunning && session.Started == nil {
		session.Started = &now
	}
	if status.Terminal() {
		session.Finished = &now
	}
	s.sessions[id] = session
	return nil
}

// AddSessionCounters increments the session counters by delta.
func (s *SessionStore) AddSessionCounters(_ context.Context, id string, delta core.SessionCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	session.Counters.PagesDiscovered += delta.PagesDiscovered
	session.Counters.PagesCrawled += delta.PagesCrawled
	session.Counters.PagesFailed += delta.PagesFailed
	session.Counters.CheckpointsTotal += delta.CheckpointsTotal
	s.sessions[id] = session
	return nil
}

// ListSessions returns the sessions for a project, or all when projectID is
// empty.
func (s *SessionStore) ListSessions(_ context.Context, projectID string) ([]core.CrawlSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.CrawlSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		if projectID != "" && session.ProjectID != projectID {
			continue
		}
		out = append(out, session)
	}
	return out, nil
}
