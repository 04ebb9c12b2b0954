// Package visual implements the checkpoint capture pipeline: viewport setup,
// screenshot, hashing, element detection, baseline resolution, and pixel
// comparison.
package visual

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/core"
	"github.com/pagelens/pagelens/internal/visual/imagediff"
)

const defaultSettleDelay = 500 * time.Millisecond

// Engine captures visual checkpoints for crawled pages.
type Engine struct {
	checkpoints core.CheckpointStore
	baselines   core.BaselineStore
	pages       core.PageStore
	sessions    core.SessionStore
	blobs       core.BlobStore
	oracle      core.ElementOracle
	hasher      core.Hasher
	ids         core.IDGenerator
	clock       core.Clock
	notifier    core.Notifier
	logger      *zap.Logger
}

// New constructs an Engine.
func New(
	checkpoints core.CheckpointStore,
	baselines core.BaselineStore,
	pages core.PageStore,
	sessions core.SessionStore,
	blobs core.BlobStore,
	oracle core.ElementOracle,
	hasher core.Hasher,
	ids core.IDGenerator,
	clock core.Clock,
	notifier core.Notifier,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		checkpoints: checkpoints,
		baselines:   baselines,
		pages:       pages,
		sessions:    sessions,
		blobs:       blobs,
		oracle:      oracle,
		hasher:      hasher,
		ids:         ids,
		clock:       clock,
		notifier:    notifier,
		logger:      logger,
	}
}

// Capture produces exactly one VisualCheckpoint for (page, profile). Every
// outcome, including a failed comparison, is persisted as one immutable row.
func (e *Engine) Capture(
	ctx context.Context,
	page core.Page,
	session core.CrawlSession,
	crawled core.CrawledPage,
	html string,
	profile core.CheckpointProfile,
) (core.VisualCheckpoint, error) {
	viewport, err := profile.Resolve()
	if err != nil {
		return core.VisualCheckpoint{}, err
	}
	if err := page.SetViewport(ctx, viewport); err != nil {
		return core.VisualCheckpoint{}, fmt.Errorf("set viewport %s: %w", viewport, err)
	}
	if err := settle(ctx, session.Visual.SettleDelay); err != nil {
		return core.VisualCheckpoint{}, err
	}

	shot, err := page.Screenshot(ctx, core.ScreenshotOptions{
		Format:   screenshotFormat(session.Visual),
		Quality:  session.Visual.ScreenshotQuality,
		FullPage: profile.FullPage(),
	})
	if err != nil {
		return core.VisualCheckpoint{}, fmt.Errorf("screenshot %s/%s: %w", crawled.URL, profile, err)
	}

	hash, err := e.hasher.Hash(shot)
	if err != nil {
		return core.VisualCheckpoint{}, fmt.Errorf("hash screenshot: %w", err)
	}

	blobPath := fmt.Sprintf("sessions/%s/%s-%s.%s", session.ID, hash, profile, screenshotFormat(session.Visual))
	locator, err := e.blobs.PutObject(ctx, blobPath, "image/"+screenshotFormat(session.Visual), shot)
	if err != nil {
		return core.VisualCheckpoint{}, fmt.Errorf("store screenshot: %w", err)
	}

	id, err := e.ids.NewID()
	if err != nil {
		return core.VisualCheckpoint{}, fmt.Errorf("checkpoint id: %w", err)
	}

	oracleRes := e.oracle.Analyze(ctx, html, crawled.URL)

	cp := core.VisualCheckpoint{
		ID:            id,
		SessionID:     session.ID,
		PageID:        crawled.ID,
		URL:           crawled.URL,
		Profile:       profile,
		Viewport:      viewport,
		ScreenshotRef: locator,
		ContentHash:   hash,
		Elements:      oracleRes.Elements,
		Suggestions:   oracleRes.Suggestions,
		CapturedAt:    e.clock.Now(),
	}

	e.resolveVerdict(ctx, &cp, session, shot)

	if err := e.checkpoints.RecordCheckpoint(ctx, cp); err != nil {
		return core.VisualCheckpoint{}, fmt.Errorf("record checkpoint: %w", err)
	}
	if err := e.pages.AddCheckpointCount(ctx, crawled.ID, 1); err != nil {
		e.logger.Warn("page checkpoint count update failed", zap.String("page_id", crawled.ID), zap.Error(err))
	}
	if err := e.sessions.AddSessionCounters(ctx, session.ID, core.SessionCounters{CheckpointsTotal: 1}); err != nil {
		e.logger.Warn("session counter update failed", zap.String("session_id", session.ID), zap.Error(err))
	}
	if e.notifier != nil {
		e.notifier.Publish(session.ID, "checkpoint_created", map[string]any{
			"checkpoint_id": cp.ID,
			"url":           cp.URL,
			"profile":       string(cp.Profile),
			"status":        string(cp.Status),
			"diff_percent":  cp.DiffPercent,
		})
	}
	return cp, nil
}

// resolveVerdict fills the comparison fields of cp: compare against the
// active baseline if one matches, auto-create a baseline if configured,
// otherwise leave the checkpoint for review.
func (e *Engine) resolveVerdict(ctx context.Context, cp *core.VisualCheckpoint, session core.CrawlSession, shot []byte) {
	baseline, err := e.baselines.FindActive(ctx, session.ProjectID, cp.URL, cp.Profile, cp.Viewport)
	switch {
	case err == nil:
		cp.BaselineID = baseline.ID
		e.compareAgainst(ctx, cp, baseline, shot)
	case errors.Is(err, core.ErrNotFound):
		if session.Visual.AutoCreateBaselines {
			if berr := e.createBaseline(ctx, cp, session); berr != nil {
				e.logger.Warn("baseline auto-creation failed", zap.String("url", cp.URL), zap.Error(berr))
				cp.Status = core.ComparisonReviewNeeded
				cp.DiffNote = "baseline creation failed: " + berr.Error()
				return
			}
			cp.Status = core.ComparisonBaseline
			return
		}
		cp.Status = core.ComparisonReviewNeeded
	default:
		e.logger.Warn("baseline lookup failed", zap.String("url", cp.URL), zap.Error(err))
		cp.Status = core.ComparisonReviewNeeded
		cp.DiffNote = "baseline lookup failed: " + err.Error()
	}
}

func (e *Engine) compareAgainst(ctx context.Context, cp *core.VisualCheckpoint, baseline core.VisualBaseline, shot []byte) {
	baseBytes, err := e.blobs.GetObject(ctx, baseline.ScreenshotRef)
	if err != nil {
		cp.Status = core.ComparisonReviewNeeded
		cp.DiffNote = fmt.Sprintf("%v: fetch baseline image: %v", core.ErrComparisonFailed, err)
		return
	}
	result, err := imagediff.Compare(shot, baseBytes)
	if err != nil {
		cp.Status = core.ComparisonReviewNeeded
		cp.DiffNote = err.Error()
		return
	}
	cp.Status = result.Status
	cp.DiffPercent = result.DiffPercent
}

func (e *Engine) createBaseline(ctx context.Context, cp *core.VisualCheckpoint, session core.CrawlSession) error {
	id, err := e.ids.NewID()
	if err != nil {
		return fmt.Errorf("baseline id: %w", err)
	}
	b := core.VisualBaseline{
		ID:            id,
		ProjectID:     session.ProjectID,
		URLPattern:    cp.URL, // exact URL; wildcard authoring happens elsewhere
		Profile:       cp.Profile,
		Viewport:      cp.Viewport,
		ScreenshotRef: cp.ScreenshotRef,
		ContentHash:   cp.ContentHash,
		Active:        true,
		CreatedAt:     e.clock.Now(),
	}
	if err := e.baselines.InsertBaseline(ctx, b); err != nil {
		return fmt.Errorf("insert baseline: %w", err)
	}
	cp.BaselineID = id
	return nil
}

func screenshotFormat(cfg core.VisualConfig) string {
	if cfg.ScreenshotFormat == "" {
		return "png"
	}
	return cfg.ScreenshotFormat
}

// settle waits the configured delay so late layout shifts and font swaps
// finish before capture.
func settle(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		delay = defaultSettleDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("settle wait: %w", ctx.Err())
	}
}
