package review

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/internal/core"
	"github.com/pagelens/pagelens/internal/store/memory"
)

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("rid-%d", g.n), nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestManager(t *testing.T) (*Manager, *memory.CheckpointStore, *memory.BaselineStore) {
	t.Helper()
	checkpoints := memory.NewCheckpointStore()
	baselines := memory.NewBaselineStore()
	sessions := memory.NewSessionStore()

	require.NoError(t, sessions.CreateSession(context.Background(), core.CrawlSession{
		ID: "s-1", ProjectID: "proj", Status: core.SessionRunning,
	}))

	m := NewManager(checkpoints, baselines, sessions, &seqIDs{}, fixedClock{t: time.Unix(500, 0).UTC()}, nil)
	return m, checkpoints, baselines
}

func failedCheckpoint() core.VisualCheckpoint {
	return core.VisualCheckpoint{
		ID:            "c-1",
		SessionID:     "s-1",
		URL:           "https://a.test/about",
		Profile:       core.ProfileViewport,
		Viewport:      core.Viewport{Width: 1280, Height: 720},
		ScreenshotRef: "memory://sessions/s-1/new.png",
		ContentHash:   "newhash",
		Status:        core.ComparisonFailed,
		DiffPercent:   8.2,
	}
}

func TestReview_ApprovePromotesBaseline(t *testing.T) {
	t.Parallel()

	m, checkpoints, baselines := newTestManager(t)
	ctx := context.Background()
	cp := failedCheckpoint()
	require.NoError(t, checkpoints.RecordCheckpoint(ctx, cp))

	prior := core.VisualBaseline{
		ID: "b-old", ProjectID: "proj", URLPattern: cp.URL,
		Profile: cp.Profile, Viewport: cp.Viewport,
		ScreenshotRef: "memory://old.png", Active: true,
	}
	require.NoError(t, baselines.InsertBaseline(ctx, prior))

	require.NoError(t, m.Review(ctx, cp.ID, core.ReviewApproveBaseline, "qa@example.com"))

	active, err := baselines.FindActive(ctx, "proj", cp.URL, cp.Profile, cp.Viewport)
	require.NoError(t, err)
	require.Equal(t, cp.ScreenshotRef, active.ScreenshotRef)
	require.Equal(t, "qa@example.com", active.CreatedBy)
	require.NotEqual(t, "b-old", active.ID)

	all, err := baselines.ListBaselines(ctx, "proj")
	require.NoError(t, err)
	require.Len(t, all, 2, "old baseline is deactivated, not deleted")
	for _, b := range all {
		if b.ID == "b-old" {
			require.False(t, b.Active)
		}
	}

	reviewed, err := checkpoints.GetCheckpoint(ctx, cp.ID)
	require.NoError(t, err)
	require.Equal(t, core.ComparisonBaseline, reviewed.Status)
	require.Equal(t, active.ID, reviewed.BaselineID)
	require.Equal(t, "qa@example.com", reviewed.ReviewedBy)
}

func TestReview_ApproveWithNoPriorBaseline(t *testing.T) {
	t.Parallel()

	m, checkpoints, baselines := newTestManager(t)
	ctx := context.Background()
	cp := failedCheckpoint()
	require.NoError(t, checkpoints.RecordCheckpoint(ctx, cp))

	require.NoError(t, m.Review(ctx, cp.ID, core.ReviewApproveBaseline, "qa@example.com"))

	active, err := baselines.FindActive(ctx, "proj", cp.URL, cp.Profile, cp.Viewport)
	require.NoError(t, err)
	require.Equal(t, cp.ContentHash, active.ContentHash)
}

func TestReview_IgnoreDifferencesForcesPassed(t *testing.T) {
	t.Parallel()

	m, checkpoints, baselines := newTestManager(t)
	ctx := context.Background()
	cp := failedCheckpoint()
	require.NoError(t, checkpoints.RecordCheckpoint(ctx, cp))

	require.NoError(t, m.Review(ctx, cp.ID, core.ReviewIgnoreDifferences, "qa@example.com"))

	reviewed, err := checkpoints.GetCheckpoint(ctx, cp.ID)
	require.NoError(t, err)
	require.Equal(t, core.ComparisonPassed, reviewed.Status)

	all, err := baselines.ListBaselines(ctx, "proj")
	require.NoError(t, err)
	require.Empty(t, all, "ignore must not touch baselines")
}

func TestReview_UnsupportedActions(t *testing.T) {
	t.Parallel()

	m, checkpoints, _ := newTestManager(t)
	ctx := context.Background()
	cp := failedCheckpoint()
	require.NoError(t, checkpoints.RecordCheckpoint(ctx, cp))

	for _, action := range []core.ReviewAction{core.ReviewRejectBaseline, core.ReviewUpdateBaseline, "made_up"} {
		err := m.Review(ctx, cp.ID, action, "qa@example.com")
		require.True(t, errors.Is(err, core.ErrUnsupportedAction), "action %s", action)
	}

	// No partial state change.
	reviewed, err := checkpoints.GetCheckpoint(ctx, cp.ID)
	require.NoError(t, err)
	require.Equal(t, core.ComparisonFailed, reviewed.Status)
	require.Empty(t, reviewed.ReviewedBy)
}
