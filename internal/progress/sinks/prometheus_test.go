package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{SessionID: "sess-1", TS: now, Stage: progress.StageSessionStart},
		{
			SessionID: "sess-1",
			TS:        now.Add(time.Second),
			Stage:     progress.StagePageDone,
			Site:      "example.com",
			URL:       "https://example.com/",
			Dur:       200 * time.Millisecond,
		},
		{
			SessionID: "sess-1",
			TS:        now.Add(2 * time.Second),
			Stage:     progress.StagePageError,
			Site:      "example.com",
			URL:       "https://example.com/broken",
		},
		{
			SessionID:        "sess-1",
			TS:               now.Add(3 * time.Second),
			Stage:            progress.StageCheckpoint,
			URL:              "https://example.com/",
			CheckpointStatus: "passed",
			DiffPercent:      0.4,
		},
		{SessionID: "sess-1", TS: now.Add(15 * time.Second), Stage: progress.StageSessionDone, Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.sessionsCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.sessionsRunning))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesCrawled.WithLabelValues("example.com", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesCrawled.WithLabelValues("example.com", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.checkpoints.WithLabelValues("passed")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.checkpointDiff, "pagelens_checkpoint_diff_percent"))
}

func TestPrometheusSinkRunningGaugeTracksSessions(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{SessionID: "a", TS: now, Stage: progress.StageSessionStart},
		{SessionID: "a", TS: now, Stage: progress.StageSessionStart}, // duplicate start
		{SessionID: "b", TS: now, Stage: progress.StageSessionStart},
	}))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.sessionsRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{SessionID: "a", TS: now, Stage: progress.StageSessionCancelled},
		{SessionID: "unknown", TS: now, Stage: progress.StageSessionError},
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionsCompleted.WithLabelValues("cancelled")))
}
