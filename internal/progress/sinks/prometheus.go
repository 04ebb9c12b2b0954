package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pagelens/pagelens/internal/progress"
)

// PrometheusSink exports crawl progress metrics via Prometheus. It owns all
// collectors for session lifecycle, per-site page outcomes, and checkpoint
// verdicts.
type PrometheusSink struct {
	sessionsStarted   prometheus.Counter
	sessionsCompleted *prometheus.CounterVec
	sessionsRunning   prometheus.Gauge
	sessionRuntime    *prometheus.HistogramVec

	pagesCrawled   *prometheus.CounterVec
	pageLoadTime   *prometheus.HistogramVec
	checkpoints    *prometheus.CounterVec
	checkpointDiff prometheus.Histogram

	tracker *sessionTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagelens_sessions_started_total",
			Help: "Total crawl sessions that have started.",
		}),
		sessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagelens_sessions_completed_total",
			Help: "Total sessions finished partitioned by result.",
		}, []string{"result"}),
		sessionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pagelens_sessions_running",
			Help: "Current number of running crawl sessions.",
		}),
		sessionRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pagelens_session_runtime_seconds",
			Help:    "Wall time per finished session.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		pagesCrawled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagelens_pages_crawled_total",
			Help: "Page crawl completions partitioned by site and outcome.",
		}, []string{"site", "outcome"}),
		pageLoadTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pagelens_page_load_seconds",
			Help:    "Page load duration partitioned by site.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"site"}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagelens_checkpoints_total",
			Help: "Visual checkpoints partitioned by comparison status.",
		}, []string{"status"}),
		checkpointDiff: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pagelens_checkpoint_diff_percent",
			Help:    "Pixel difference percentage per compared checkpoint.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
		}),
		tracker: newSessionTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.sessionsStarted,
		s.sessionsCompleted,
		s.sessionsRunning,
		s.sessionRuntime,
		s.pagesCrawled,
		s.pageLoadTime,
		s.checkpoints,
		s.checkpointDiff,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageSessionStart:
		s.sessionsStarted.Inc()
		if s.tracker.start(evt.SessionID) {
			s.sessionsRunning.Inc()
		}
	case progress.StageSessionDone:
		s.finishSession(evt, "success")
	case progress.StageSessionError:
		s.finishSession(evt, "error")
	case progress.StageSessionCancelled:
		s.finishSession(evt, "cancelled")
	case progress.StagePageDone:
		s.pagesCrawled.WithLabelValues(site(evt), "success").Inc()
		if evt.Dur > 0 {
			s.pageLoadTime.WithLabelValues(site(evt)).Observe(evt.Dur.Seconds())
		}
	case progress.StagePageError:
		s.pagesCrawled.WithLabelValues(site(evt), "error").Inc()
	case progress.StageCheckpoint:
		s.checkpoints.WithLabelValues(evt.CheckpointStatus).Inc()
		if evt.CheckpointStatus == "passed" || evt.CheckpointStatus == "review_needed" || evt.CheckpointStatus == "failed" {
			s.checkpointDiff.Observe(evt.DiffPercent)
		}
	}
}

func (s *PrometheusSink) finishSession(evt progress.Event, result string) {
	s.sessionsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.sessionRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.SessionID) {
		s.sessionsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func site(evt progress.Event) string {
	if evt.Site == "" {
		return "unknown"
	}
	return evt.Site
}

// sessionTracker dedupes start/finish transitions so the running gauge stays
// accurate under repeated events.
type sessionTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{running: make(map[string]struct{})}
}

func (t *sessionTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *sessionTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
