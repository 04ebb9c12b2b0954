// Package worker implements the crawl pipeline execution: it turns dequeued
// frontier items into crawled pages, visual checkpoints, and newly discovered
// links.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/core"
	"github.com/pagelens/pagelens/internal/frontier"
	"github.com/pagelens/pagelens/internal/policy"
	"github.com/pagelens/pagelens/internal/ratelimit"
)

const defaultPageTimeout = 30 * time.Second

// checkpointEngine is the slice of the visual engine the worker needs.
type checkpointEngine interface {
	Capture(ctx context.Context, page core.Page, session core.CrawlSession, crawled core.CrawledPage, html string, profile core.CheckpointProfile) (core.VisualCheckpoint, error)
}

// Worker crawls individual frontier items. It is stateless across items and
// safe for concurrent use; each call opens its own page within the session's
// browser context.
type Worker struct {
	pages    core.PageStore
	frontier *frontier.Manager
	visual   checkpointEngine
	limiter  *ratelimit.Limiter
	ids      core.IDGenerator
	clock    core.Clock
	logger   *zap.Logger
}

// NewWorker constructs a Worker.
func NewWorker(
	pages core.PageStore,
	fm *frontier.Manager,
	visual checkpointEngine,
	limiter *ratelimit.Limiter,
	ids core.IDGenerator,
	clock core.Clock,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		pages:    pages,
		frontier: fm,
		visual:   visual,
		limiter:  limiter,
		ids:      ids,
		clock:    clock,
		logger:   logger,
	}
}

// Crawl loads one frontier item in a fresh page, persists the crawled page,
// captures checkpoints when enabled, and feeds eligible links back into the
// frontier. An error means the item should be retried by the frontier.
func (w *Worker) Crawl(
	ctx context.Context,
	bctx core.BrowserContext,
	session core.CrawlSession,
	pol *policy.Engine,
	item core.FrontierItem,
) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, item.URL); err != nil {
			return err
		}
	}

	page, err := bctx.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if cerr := page.Close(context.WithoutCancel(ctx)); cerr != nil {
			w.logger.Warn("page close failed", zap.String("url", item.URL), zap.Error(cerr))
		}
	}()

	timeout := session.Crawl.PageTimeout
	if timeout <= 0 {
		timeout = defaultPageTimeout
	}
	start := w.clock.Now()
	statusCode, err := page.Navigate(ctx, item.URL, timeout)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", item.URL, err)
	}
	loadTime := w.clock.Now().Sub(start)

	html, err := page.HTML(ctx)
	if err != nil {
		return fmt.Errorf("read page html %s: %w", item.URL, err)
	}

	meta := extractMetadata(html)

	id, err := w.ids.NewID()
	if err != nil {
		return fmt.Errorf("page id: %w", err)
	}
	crawled := core.CrawledPage{
		ID:         id,
		SessionID:  session.ID,
		URL:        item.URL,
		ParentURL:  item.ParentURL,
		Depth:      item.Depth,
		StatusCode: statusCode,
		LoadTime:   loadTime,
		Metadata:   meta,
		Class:      classifyPage(item.URL, meta.Title),
		CrawledAt:  w.clock.Now(),
	}
	if err := w.pages.RecordPage(ctx, crawled); err != nil {
		return fmt.Errorf("record page %s: %w", item.URL, err)
	}

	w.captureCheckpoints(ctx, page, session, crawled, html)
	w.discoverLinks(ctx, page, session, pol, item)
	return nil
}

// captureCheckpoints runs the visual pipeline for every configured profile.
// A failed capture is logged and skipped; the page itself still counts as
// crawled.
func (w *Worker) captureCheckpoints(ctx context.Context, page core.Page, session core.CrawlSession, crawled core.CrawledPage, html string) {
	if !session.Visual.Enabled || w.visual == nil {
		return
	}
	profiles := session.Visual.Profiles
	if len(profiles) == 0 {
		profiles = []core.CheckpointProfile{core.ProfileFullPage}
	}
	for _, profile := range profiles {
		if _, err := w.visual.Capture(ctx, page, session, crawled, html, profile); err != nil {
			if errors.Is(err, core.ErrScreenshotUnsupported) {
				w.logger.Debug("driver cannot capture screenshots, skipping checkpoints",
					zap.String("url", crawled.URL))
				return
			}
			w.logger.Warn("checkpoint capture failed",
				zap.String("url", crawled.URL),
				zap.String("profile", string(profile)),
				zap.Error(err),
			)
		}
	}
}

// discoverLinks extracts links from the loaded page and enqueues the eligible
// ones at the next depth. Extraction failures are logged, not fatal: the page
// was already crawled successfully.
func (w *Worker) discoverLinks(ctx context.Context, page core.Page, session core.CrawlSession, pol *policy.Engine, item core.FrontierItem) {
	if item.Depth >= session.Crawl.MaxDepth {
		return
	}
	links, err := page.ExtractLinks(ctx)
	if err != nil {
		w.logger.Warn("link extraction failed", zap.String("url", item.URL), zap.Error(err))
		return
	}
	for _, href := range links {
		resolved, err := core.ResolveLink(item.URL, href)
		if err != nil {
			continue
		}
		if !pol.Eligible(resolved, session) {
			continue
		}
		priority := pol.Priority(resolved, session.SeedURL)
		if _, err := w.frontier.Enqueue(ctx, session, resolved, item.URL, item.Depth+1, priority); err != nil {
			w.logger.Warn("link enqueue failed", zap.String("url", resolved), zap.Error(err))
		}
	}
}
