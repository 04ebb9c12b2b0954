// Package review applies human decisions to visual checkpoints and manages
// baseline promotion.
package review

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/core"
)

// Manager executes review actions against checkpoints and baselines.
type Manager struct {
	checkpoints core.CheckpointStore
	baselines   core.BaselineStore
	sessions    core.SessionStore
	ids         core.IDGenerator
	clock       core.Clock
	logger      *zap.Logger
}

// NewManager constructs a Manager.
func NewManager(
	checkpoints core.CheckpointStore,
	baselines core.BaselineStore,
	sessions core.SessionStore,
	ids core.IDGenerator,
	clock core.Clock,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		checkpoints: checkpoints,
		baselines:   baselines,
		sessions:    sessions,
		ids:         ids,
		clock:       clock,
		logger:      logger,
	}
}

// Review applies a human decision to a checkpoint.
//
// approve_baseline promotes the checkpoint's screenshot to the active
// baseline for its (url, profile, viewport); the previous baseline is
// deactivated, never deleted. ignore_differences forces the checkpoint to
// passed without touching any baseline. reject_baseline and update_baseline
// have no settled semantics and fail with core.ErrUnsupportedAction before
// any state changes.
func (m *Manager) Review(ctx context.Context, checkpointID string, action core.ReviewAction, reviewer string) error {
	switch action {
	case core.ReviewApproveBaseline:
		return m.approve(ctx, checkpointID, reviewer)
	case core.ReviewIgnoreDifferences:
		return m.ignore(ctx, checkpointID, reviewer)
	case core.ReviewRejectBaseline, core.ReviewUpdateBaseline:
		return fmt.Errorf("%w: %s", core.ErrUnsupportedAction, action)
	default:
		return fmt.Errorf("%w: unknown action %q", core.ErrUnsupportedAction, action)
	}
}

func (m *Manager) approve(ctx context.Context, checkpointID, reviewer string) error {
	cp, err := m.checkpoints.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	session, err := m.sessions.GetSession(ctx, cp.SessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	prior, err := m.baselines.FindActive(ctx, session.ProjectID, cp.URL, cp.Profile, cp.Viewport)
	switch {
	case err == nil:
		if derr := m.baselines.DeactivateBaseline(ctx, prior.ID); derr != nil {
			return fmt.Errorf("deactivate baseline %s: %w", prior.ID, derr)
		}
	case errors.Is(err, core.ErrNotFound):
		// First baseline for this target.
	default:
		return fmt.Errorf("resolve prior baseline: %w", err)
	}

	id, err := m.ids.NewID()
	if err != nil {
		return fmt.Errorf("baseline id: %w", err)
	}
	baseline := core.VisualBaseline{
		ID:            id,
		ProjectID:     session.ProjectID,
		URLPattern:    cp.URL,
		Profile:       cp.Profile,
		Viewport:      cp.Viewport,
		ScreenshotRef: cp.ScreenshotRef,
		ContentHash:   cp.ContentHash,
		Active:        true,
		CreatedAt:     m.clock.Now(),
		CreatedBy:     reviewer,
	}
	if err := m.baselines.InsertBaseline(ctx, baseline); err != nil {
		return fmt.Errorf("insert baseline: %w", err)
	}

	if err := m.checkpoints.UpdateCheckpointReview(ctx, cp.ID, core.ComparisonBaseline, baseline.ID, reviewer); err != nil {
		return fmt.Errorf("update checkpoint: %w", err)
	}
	m.logger.Info("baseline approved",
		zap.String("checkpoint_id", cp.ID),
		zap.String("baseline_id", baseline.ID),
		zap.String("url", cp.URL),
		zap.String("reviewer", reviewer),
	)
	return nil
}

func (m *Manager) ignore(ctx context.Context, checkpointID, reviewer string) error {
	cp, err := m.checkpoints.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if err := m.checkpoints.UpdateCheckpointReview(ctx, cp.ID, core.ComparisonPassed, "", reviewer); err != nil {
		return fmt.Errorf("update checkpoint: %w", err)
	}
	m.logger.Info("differences ignored",
		zap.String("checkpoint_id", cp.ID),
		zap.String("url", cp.URL),
		zap.String("reviewer", reviewer),
	)
	return nil
}
