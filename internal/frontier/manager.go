// Package frontier maintains the per-session crawl frontier: the set of
// discovered URLs with their depth, priority, and processing state.
package frontier

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/core"
)

// Outcome is the terminal result a worker reports for a dequeued item.
type Outcome string

// Worker outcomes. A failed outcome re-queues the item until its attempt
// budget is spent.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

const defaultMaxAttempts = 3

// Manager is the sole authority over frontier state and session completion.
// All mutations are serialized behind one mutex; two workers discovering the
// same link concurrently race on the seen-set, so the check and insert are a
// single critical section.
type Manager struct {
	mu       sync.Mutex
	entries  map[string]*entry
	sessions core.SessionStore
	store    core.FrontierStore
	ids      core.IDGenerator
	logger   *zap.Logger
}

// entry is the in-process frontier bookkeeping for one session.
type entry struct {
	seen       map[string]struct{}
	queued     []*core.FrontierItem
	processing map[string]*core.FrontierItem
	nextSeq    int64
}

// NewManager constructs a Manager.
func NewManager(sessions core.SessionStore, store core.FrontierStore, ids core.IDGenerator, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		entries:  make(map[string]*entry),
		sessions: sessions,
		store:    store,
		ids:      ids,
		logger:   logger,
	}
}

// Register initializes frontier state for a session. Idempotent.
func (m *Manager) Register(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[sessionID]; ok {
		return
	}
	m.entries[sessionID] = &entry{
		seen:       make(map[string]struct{}),
		processing: make(map[string]*core.FrontierItem),
	}
}

// Release drops the in-process state for a session once it is terminal.
func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
}

// Enqueue admits a URL into the session frontier. parentURL records the page
// the link was discovered on ("" for the seed). It returns false without
// error when the URL is a duplicate, exceeds the depth or page budget, or is
// malformed; those are filters, not failures.
func (m *Manager) Enqueue(ctx context.Context, session core.CrawlSession, rawURL, parentURL string, depth, priority int) (bool, error) {
	normalized, err := core.NormalizeURL(rawURL)
	if err != nil {
		return false, nil
	}
	if depth > session.Crawl.MaxDepth {
		return false, nil
	}

	m.mu.Lock()
	e, ok := m.entries[session.ID]
	if !ok {
		m.mu.Unlock()
		return false, fmt.Errorf("session %s not registered", session.ID)
	}
	if _, dup := e.seen[normalized]; dup {
		m.mu.Unlock()
		return false, nil
	}
	if session.Crawl.MaxPages > 0 && len(e.seen) >= session.Crawl.MaxPages {
		m.mu.Unlock()
		return false, nil
	}

	id, err := m.ids.NewID()
	if err != nil {
		m.mu.Unlock()
		return false, fmt.Errorf("frontier item id: %w", err)
	}
	maxAttempts := session.Crawl.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	item := &core.FrontierItem{
		ID:          id,
		SessionID:   session.ID,
		URL:         normalized,
		ParentURL:   parentURL,
		Depth:       depth,
		Priority:    priority,
		Status:      core.FrontierQueued,
		MaxAttempts: maxAttempts,
		Seq:         e.nextSeq,
	}
	e.nextSeq++
	e.seen[normalized] = struct{}{}
	e.queued = append(e.queued, item)
	m.mu.Unlock()

	if err := m.store.InsertItem(ctx, *item); err != nil {
		m.logger.Warn("frontier item persist failed",
			zap.String("session_id", session.ID),
			zap.String("url", normalized),
			zap.Error(err),
		)
	}
	if err := m.sessions.AddSessionCounters(ctx, session.ID, core.SessionCounters{PagesDiscovered: 1}); err != nil {
		m.logger.Warn("session counter update failed", zap.String("session_id", session.ID), zap.Error(err))
	}
	return true, nil
}

// DequeueBatch returns up to n queued items ordered by priority descending,
// insertion order as tie-break, atomically marking each one processing.
// drained is true when the frontier holds no queued and no processing items;
// the caller must then finalize the session.
func (m *Manager) DequeueBatch(ctx context.Context, sessionID string, n int) (batch []core.FrontierItem, drained bool, err error) {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, false, fmt.Errorf("session %s not registered", sessionID)
	}

	sort.SliceStable(e.queued, func(i, j int) bool {
		if e.queued[i].Priority != e.queued[j].Priority {
			return e.queued[i].Priority > e.queued[j].Priority
		}
		return e.queued[i].Seq < e.queued[j].Seq
	})

	take := n
	if take > len(e.queued) {
		take = len(e.queued)
	}
	picked := e.queued[:take]
	e.queued = e.queued[take:]
	for _, item := range picked {
		item.Status = core.FrontierProcessing
		e.processing[item.ID] = item
		batch = append(batch, *item)
	}
	drained = len(e.queued) == 0 && len(e.processing) == 0
	m.mu.Unlock()

	for i := range batch {
		if perr := m.store.UpdateItem(ctx, batch[i]); perr != nil {
			m.logger.Warn("frontier item update failed", zap.String("item_id", batch[i].ID), zap.Error(perr))
		}
	}
	return batch, drained, nil
}

// MarkResult records a worker outcome for a dequeued item. Failed items are
// re-queued until their attempts reach MaxAttempts, then left permanently
// failed.
func (m *Manager) MarkResult(ctx context.Context, sessionID, itemID string, outcome Outcome, errText string) error {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("session %s not registered", sessionID)
	}
	item, ok := e.processing[itemID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("item %s not processing", itemID)
	}
	delete(e.processing, itemID)

	var counters core.SessionCounters
	switch outcome {
	case OutcomeCompleted:
		item.Status = core.FrontierCompleted
		counters.PagesCrawled = 1
	case OutcomeSkipped:
		item.Status = core.FrontierSkipped
	case OutcomeFailed:
		item.Attempts++
		item.LastError = errText
		if item.Attempts < item.MaxAttempts {
			item.Status = core.FrontierQueued
			e.queued = append(e.queued, item)
		} else {
			item.Status = core.FrontierFailed
			counters.PagesFailed = 1
		}
	default:
		m.mu.Unlock()
		return fmt.Errorf("unknown outcome %q", outcome)
	}
	snapshot := *item
	m.mu.Unlock()

	if err := m.store.UpdateItem(ctx, snapshot); err != nil {
		m.logger.Warn("frontier item update failed", zap.String("item_id", itemID), zap.Error(err))
	}
	if counters != (core.SessionCounters{}) {
		if err := m.sessions.AddSessionCounters(ctx, sessionID, counters); err != nil {
			m.logger.Warn("session counter update failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return nil
}

// Outstanding reports the number of queued plus processing items.
func (m *Manager) Outstanding(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok {
		return 0
	}
	return len(e.queued) + len(e.processing)
}
