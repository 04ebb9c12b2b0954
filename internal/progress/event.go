// Package progress defines the event stream emitted by the crawl pipeline
// and the hub that batches it out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageSessionStart     Stage = "SESSION_START"
	StageSessionDone      Stage = "SESSION_DONE"
	StageSessionError     Stage = "SESSION_ERROR"
	StageSessionCancelled Stage = "SESSION_CANCELLED"
	StagePageDone         Stage = "PAGE_DONE"
	StagePageError        Stage = "PAGE_ERROR"
	StageCheckpoint       Stage = "CHECKPOINT"
)

// Event captures a single progress milestone for one session.
type Event struct {
	// SessionID identifies the crawl session the event belongs to.
	SessionID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Site optionally scopes page and checkpoint events to a host label.
	Site string
	// URL is the optional page URL; it should not contain credentials.
	URL string
	// CheckpointStatus carries the comparison verdict for CHECKPOINT events.
	CheckpointStatus string
	// DiffPercent carries the pixel difference for CHECKPOINT events.
	DiffPercent float64
	// Dur captures execution latency where the emitter measured one.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.SessionID == "" {
		return errors.New("session id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageSessionStart, StageSessionDone, StageSessionError, StageSessionCancelled:
	case StagePageDone, StagePageError:
		if e.URL == "" {
			return errors.New("page events require url")
		}
	case StageCheckpoint:
		if e.CheckpointStatus == "" {
			return errors.New("checkpoint events require a status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
