package notify

import (
	"github.com/pagelens/pagelens/internal/core"
	"github.com/pagelens/pagelens/internal/progress"
)

// Event names published by the crawl pipeline.
const (
	EventSessionStarted    = "session_started"
	EventSessionCompleted  = "session_completed"
	EventSessionFailed     = "session_failed"
	EventSessionCancelled  = "session_cancelled"
	EventPageCrawled       = "page_crawled"
	EventPageFailed        = "page_failed"
	EventCheckpointCreated = "checkpoint_created"
)

var stageByEvent = map[string]progress.Stage{
	EventSessionStarted:    progress.StageSessionStart,
	EventSessionCompleted:  progress.StageSessionDone,
	EventSessionFailed:     progress.StageSessionError,
	EventSessionCancelled:  progress.StageSessionCancelled,
	EventPageCrawled:       progress.StagePageDone,
	EventPageFailed:        progress.StagePageError,
	EventCheckpointCreated: progress.StageCheckpoint,
}

// HubBridge translates published crawl events into progress hub events, so
// one Publish call feeds both external subscribers and local sinks. Events
// with no stage mapping are ignored.
type HubBridge struct {
	hub   progress.Emitter
	clock core.Clock
}

// NewHubBridge wires a progress emitter behind the Notifier interface.
func NewHubBridge(hub progress.Emitter, clock core.Clock) *HubBridge {
	return &HubBridge{hub: hub, clock: clock}
}

// Publish maps and emits the event.
func (b *HubBridge) Publish(sessionID string, event string, payload map[string]any) {
	stage, ok := stageByEvent[event]
	if !ok {
		return
	}
	evt := progress.Event{
		SessionID: sessionID,
		TS:        b.clock.Now(),
		Stage:     stage,
		URL:       stringField(payload, "url"),
		Note:      stringField(payload, "error"),
	}
	if evt.URL != "" {
		evt.Site = core.Hostname(evt.URL)
	}
	if stage == progress.StageCheckpoint {
		evt.CheckpointStatus = stringField(payload, "status")
		evt.DiffPercent = floatField(payload, "diff_percent")
	}
	b.hub.Emit(evt)
}

func stringField(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}

func floatField(payload map[string]any, key string) float64 {
	if payload == nil {
		return 0
	}
	f, _ := payload[key].(float64)
	return f
}
