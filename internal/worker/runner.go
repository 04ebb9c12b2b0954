package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/core"
	"github.com/pagelens/pagelens/internal/frontier"
	"github.com/pagelens/pagelens/internal/policy"
)

const (
	defaultConcurrency = 2
	defaultRoundDelay  = 1000 * time.Millisecond
)

// Runner drives one crawl session end to end: context acquisition, seed
// admission, round-based dequeue, and final status transition. One Runner
// instance serves many sessions; each Run call is independent.
type Runner struct {
	sessions core.SessionStore
	frontier *frontier.Manager
	driver   core.DriverProvider
	worker   *Worker
	notifier core.Notifier
	logger   *zap.Logger
}

// NewRunner constructs a Runner.
func NewRunner(
	sessions core.SessionStore,
	fm *frontier.Manager,
	driver core.DriverProvider,
	worker *Worker,
	notifier core.Notifier,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		sessions: sessions,
		frontier: fm,
		driver:   driver,
		worker:   worker,
		notifier: notifier,
		logger:   logger,
	}
}

// Run executes a crawl session until it reaches a terminal status. The
// returned error reflects infrastructure failures; crawl failures of
// individual pages are absorbed into session counters.
func (r *Runner) Run(ctx context.Context, sessionID string) error {
	session, err := r.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if session.Status.Terminal() {
		return fmt.Errorf("session %s already %s", sessionID, session.Status)
	}

	bctx, err := r.driver.AcquireContext(ctx, session.ID)
	if err != nil {
		startErr := fmt.Errorf("%w: %v", core.ErrSessionStartFailure, err)
		r.finalize(ctx, session.ID, core.SessionFailed, startErr.Error())
		return startErr
	}
	defer func() {
		if cerr := bctx.Close(context.WithoutCancel(ctx)); cerr != nil {
			r.logger.Warn("browser context close failed", zap.String("session_id", session.ID), zap.Error(cerr))
		}
	}()

	r.frontier.Register(session.ID)
	defer r.frontier.Release(session.ID)

	if err := r.sessions.UpdateSessionStatus(ctx, session.ID, core.SessionRunning, ""); err != nil {
		return fmt.Errorf("mark session running: %w", err)
	}
	session.Status = core.SessionRunning
	r.publish(session.ID, "session_started", map[string]any{"seed_url": session.SeedURL})

	pol := policy.New(session.Crawl)
	seedPriority := pol.Priority(session.SeedURL, session.SeedURL)
	added, err := r.frontier.Enqueue(ctx, session, session.SeedURL, "", 0, seedPriority)
	if err != nil {
		r.finalize(ctx, session.ID, core.SessionFailed, err.Error())
		return fmt.Errorf("enqueue seed: %w", err)
	}
	if !added {
		msg := fmt.Sprintf("seed url rejected: %s", session.SeedURL)
		r.finalize(ctx, session.ID, core.SessionFailed, msg)
		return fmt.Errorf("%s: %w", msg, core.ErrInvalidURL)
	}

	concurrency := session.Crawl.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	delay := session.Crawl.DelayBetweenRounds
	if delay <= 0 {
		delay = defaultRoundDelay
	}

	for round := 0; ; round++ {
		if ctx.Err() != nil {
			r.finalize(ctx, session.ID, core.SessionCancelled, ctx.Err().Error())
			return nil
		}
		fresh, err := r.sessions.GetSession(ctx, session.ID)
		if err == nil && fresh.Status == core.SessionCancelled {
			r.publish(session.ID, "session_cancelled", nil)
			return nil
		}

		batch, drained, err := r.frontier.DequeueBatch(ctx, session.ID, concurrency)
		if err != nil {
			r.finalize(ctx, session.ID, core.SessionFailed, err.Error())
			return fmt.Errorf("dequeue: %w", err)
		}
		if len(batch) == 0 {
			if drained {
				r.finalize(ctx, session.ID, core.SessionCompleted, "")
				return nil
			}
			// Items are still processing elsewhere; wait out the round.
			if err := sleep(ctx, delay); err != nil {
				r.finalize(ctx, session.ID, core.SessionCancelled, err.Error())
				return nil
			}
			continue
		}

		r.runRound(ctx, bctx, session, pol, batch)
		r.publish(session.ID, "round_completed", map[string]any{
			"round":   round,
			"crawled": len(batch),
		})

		if err := sleep(ctx, delay); err != nil {
			r.finalize(ctx, session.ID, core.SessionCancelled, err.Error())
			return nil
		}
	}
}

// runRound crawls a batch of items in parallel and reports each outcome to
// the frontier independently, so one slow or failing page never blocks the
// others from being accounted.
func (r *Runner) runRound(ctx context.Context, bctx core.BrowserContext, session core.CrawlSession, pol *policy.Engine, batch []core.FrontierItem) {
	var wg sync.WaitGroup
	for _, item := range batch {
		wg.Add(1)
		go func(item core.FrontierItem) {
			defer wg.Done()
			err := r.worker.Crawl(ctx, bctx, session, pol, item)
			outcome := frontier.OutcomeCompleted
			errText := ""
			if err != nil {
				outcome = frontier.OutcomeFailed
				errText = err.Error()
				r.logger.Warn("page crawl failed",
					zap.String("session_id", session.ID),
					zap.String("url", item.URL),
					zap.Int("attempt", item.Attempts+1),
					zap.Error(err),
				)
				r.publish(session.ID, "page_failed", map[string]any{"url": item.URL, "error": errText})
			} else {
				r.publish(session.ID, "page_crawled", map[string]any{"url": item.URL})
			}
			if merr := r.frontier.MarkResult(ctx, session.ID, item.ID, outcome, errText); merr != nil {
				r.logger.Error("frontier result update failed",
					zap.String("item_id", item.ID), zap.Error(merr))
			}
		}(item)
	}
	wg.Wait()
}

// finalize moves the session to a terminal status and announces it. Store
// failures at this point are logged; there is nothing left to roll back.
func (r *Runner) finalize(ctx context.Context, sessionID string, status core.SessionStatus, errText string) {
	if err := r.sessions.UpdateSessionStatus(context.WithoutCancel(ctx), sessionID, status, errText); err != nil {
		r.logger.Error("session finalize failed",
			zap.String("session_id", sessionID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
	r.publish(sessionID, "session_"+string(status), map[string]any{"error": errText})
}

func (r *Runner) publish(sessionID, event string, payload map[string]any) {
	if r.notifier != nil {
		r.notifier.Publish(sessionID, event, payload)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
