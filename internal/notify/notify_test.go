package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/internal/progress"
)

type captureEmitter struct {
	events []progress.Event
}

func (e *captureEmitter) Emit(evt progress.Event) {
	e.events = append(e.events, evt)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestMemoryRecordsEvents(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	m.Publish("sess-1", EventSessionStarted, map[string]any{"seed_url": "https://a.test/"})
	m.Publish("sess-1", EventSessionCompleted, nil)

	events := m.Events()
	require.Len(t, events, 2)
	require.Equal(t, EventSessionStarted, events[0].Name)
	require.Equal(t, "sess-1", events[1].SessionID)

	events[0].Name = "mutated"
	require.Equal(t, EventSessionStarted, m.Events()[0].Name)
}

func TestFanoutForwardsToAll(t *testing.T) {
	t.Parallel()

	a, b := NewMemory(), NewMemory()
	f := NewFanout(a, nil, b)
	f.Publish("sess-1", EventPageCrawled, map[string]any{"url": "https://a.test/x"})

	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
}

func TestHubBridgeMapsEvents(t *testing.T) {
	t.Parallel()

	emitter := &captureEmitter{}
	clock := fixedClock{t: time.Unix(1700000000, 0)}
	bridge := NewHubBridge(emitter, clock)

	bridge.Publish("sess-1", EventSessionStarted, nil)
	bridge.Publish("sess-1", EventPageCrawled, map[string]any{"url": "https://a.test/page"})
	bridge.Publish("sess-1", EventCheckpointCreated, map[string]any{
		"url":          "https://a.test/page",
		"status":       "review_needed",
		"diff_percent": 2.5,
	})
	bridge.Publish("sess-1", "round_completed", nil) // no mapping

	require.Len(t, emitter.events, 3)
	require.Equal(t, progress.StageSessionStart, emitter.events[0].Stage)

	page := emitter.events[1]
	require.Equal(t, progress.StagePageDone, page.Stage)
	require.Equal(t, "a.test", page.Site)
	require.Equal(t, clock.t, page.TS)

	cp := emitter.events[2]
	require.Equal(t, progress.StageCheckpoint, cp.Stage)
	require.Equal(t, "review_needed", cp.CheckpointStatus)
	require.InDelta(t, 2.5, cp.DiffPercent, 1e-9)
}
