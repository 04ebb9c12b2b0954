// Package notify contains core.Notifier implementations: in-memory recording,
// Google Cloud Pub/Sub publishing, and a bridge into the progress hub.
package notify

import (
	"sync"

	"github.com/pagelens/pagelens/internal/core"
)

// Event captures one Publish call.
type Event struct {
	SessionID string
	Name      string
	Payload   map[string]any
}

// Memory records published events for inspection. Used by tests and local
// single-process runs.
type Memory struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemory returns a memory notifier.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish records the event.
func (m *Memory) Publish(sessionID string, event string, payload map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{SessionID: sessionID, Name: event, Payload: payload})
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Fanout forwards every event to each wrapped notifier.
type Fanout struct {
	notifiers []core.Notifier
}

// NewFanout builds a Fanout over the given notifiers. Nil entries are skipped.
func NewFanout(notifiers ...core.Notifier) *Fanout {
	f := &Fanout{}
	for _, n := range notifiers {
		if n != nil {
			f.notifiers = append(f.notifiers, n)
		}
	}
	return f
}

// Publish forwards to every notifier.
func (f *Fanout) Publish(sessionID string, event string, payload map[string]any) {
	for _, n := range f.notifiers {
		n.Publish(sessionID, event, payload)
	}
}
