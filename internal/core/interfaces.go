package core

import (
	"context"
	"time"
)

// SessionStore persists crawl sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session CrawlSession) error
	GetSession(ctx context.Context, id string) (CrawlSession, error)
	UpdateSessionStatus(ctx context.Context, id string, status SessionStatus, errText string) error
	AddSessionCounters(ctx context.Context, id string, delta SessionCounters) error
	ListSessions(ctx context.Context, projectID string) ([]CrawlSession, error)
}

// FrontierStore persists frontier items for observability and progress
// aggregation. The frontier manager owns ordering and dedupe in process.
type FrontierStore interface {
	InsertItem(ctx context.Context, item FrontierItem) error
	UpdateItem(ctx context.Context, item FrontierItem) error
	Progress(ctx context.Context, sessionID string) (SessionProgress, error)
}

// PageStore persists crawled pages.
type PageStore interface {
	RecordPage(ctx context.Context, page CrawledPage) error
	ListPages(ctx context.Context, sessionID string) ([]CrawledPage, error)
	AddCheckpointCount(ctx context.Context, pageID string, n int) error
}

// CheckpointStore persists visual checkpoints.
type CheckpointStore interface {
	RecordCheckpoint(ctx context.Context, cp VisualCheckpoint) error
	GetCheckpoint(ctx context.Context, id string) (VisualCheckpoint, error)
	UpdateCheckpointReview(ctx context.Context, id string, status ComparisonStatus, baselineID, reviewer string) error
	ListCheckpoints(ctx context.Context, sessionID string) ([]VisualCheckpoint, error)
}

// BaselineStore persists reference images. FindActive performs first-match-
// wins resolution over active baselines in insertion order, treating `*` in
// the stored pattern as a wildcard.
type BaselineStore interface {
	InsertBaseline(ctx context.Context, b VisualBaseline) error
	FindActive(ctx context.Context, projectID, url string, profile CheckpointProfile, vp Viewport) (VisualBaseline, error)
	DeactivateBaseline(ctx context.Context, id string) error
	ListBaselines(ctx context.Context, projectID string) ([]VisualBaseline, error)
}

// BlobStore writes opaque artifacts (screenshot bytes) and returns a locator.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
	GetObject(ctx context.Context, locator string) ([]byte, error)
}

// ScreenshotOptions controls a capture request.
type ScreenshotOptions struct {
	Format   string // "png" or "jpeg"
	Quality  int    // jpeg quality, ignored for png
	FullPage bool
}

// Page is a single browser page/tab. Every call carries a context; navigation
// additionally carries an explicit timeout so no operation blocks forever.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) (statusCode int, err error)
	SetViewport(ctx context.Context, vp Viewport) error
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	Evaluate(ctx context.Context, script string, out any) error
	HTML(ctx context.Context) (string, error)
	ExtractLinks(ctx context.Context) ([]string, error)
	Close(ctx context.Context) error
}

// BrowserContext is the unit of session-scoped automation ownership. Workers
// open their own pages within a shared context and close them after use.
type BrowserContext interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// DriverProvider acquires an automation context for a session. Acquisition
// failure is a session start failure.
type DriverProvider interface {
	AcquireContext(ctx context.Context, sessionID string) (BrowserContext, error)
}

// Notifier publishes fire-and-forget progress events. Implementations must
// never return an error that fails the crawl; Publish is best-effort.
type Notifier interface {
	Publish(sessionID string, event string, payload map[string]any)
}

// OracleResult is the element-detection outcome for one page.
type OracleResult struct {
	Elements    ElementSummary
	Suggestions []string
}

// ElementOracle analyzes page HTML for interactive elements. Implementations
// degrade gracefully: on failure they return a low-confidence empty result
// rather than an error.
type ElementOracle interface {
	Analyze(ctx context.Context, html, url string) OracleResult
}

// Hasher computes digests for screenshot dedupe and auditing.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entity IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
