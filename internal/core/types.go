// Package core defines the types and interfaces shared across the crawl and
// visual-checkpoint subsystems.
package core

import "time"

// SessionStatus represents the lifecycle state of a crawl session.
type SessionStatus string

// Session status values persisted in the session store. Transitions are
// monotonic: pending -> running -> {completed|failed|cancelled}.
const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether a session status permits no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	default:
		return false
	}
}

// CrawlConfig captures the per-session crawl knobs requested by the client.
type CrawlConfig struct {
	MaxDepth            int           `json:"max_depth"`
	MaxPages            int           `json:"max_pages"`
	Concurrency         int           `json:"concurrency"`
	PageTimeout         time.Duration `json:"page_timeout"`
	DelayBetweenRounds  time.Duration `json:"delay_between_rounds"`
	IncludePatterns     []string      `json:"include_patterns"`
	ExcludePatterns     []string      `json:"exclude_patterns"`
	FollowExternalLinks bool          `json:"follow_external_links"`
	MaxAttempts         int           `json:"max_attempts"`
}

// VisualConfig controls the checkpoint pipeline for a session.
type VisualConfig struct {
	Enabled             bool                `json:"enabled"`
	Profiles            []CheckpointProfile `json:"profiles"`
	AutoCreateBaselines bool                `json:"auto_create_baselines"`
	ScreenshotFormat    string              `json:"screenshot_format"`
	ScreenshotQuality   int                 `json:"screenshot_quality"`
	SettleDelay         time.Duration       `json:"settle_delay"`
}

// SessionCounters tracks crawl progress per session. Counters never decrease.
type SessionCounters struct {
	PagesDiscovered  int `json:"pages_discovered"`
	PagesCrawled     int `json:"pages_crawled"`
	PagesFailed      int `json:"pages_failed"`
	CheckpointsTotal int `json:"checkpoints_total"`
}

// CrawlSession represents one crawl run against a target domain.
type CrawlSession struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	SeedURL   string          `json:"seed_url"`
	Crawl     CrawlConfig     `json:"crawl"`
	Visual    VisualConfig    `json:"visual"`
	Status    SessionStatus   `json:"status"`
	ErrorText string          `json:"error_text,omitempty"`
	Counters  SessionCounters `json:"counters"`
	Created   time.Time       `json:"created_at"`
	Started   *time.Time      `json:"started_at,omitempty"`
	Finished  *time.Time      `json:"finished_at,omitempty"`
}

// FrontierStatus is the lifecycle state of a frontier item.
type FrontierStatus string

// Frontier item states. A URL appears at most once per session in a
// non-terminal state.
const (
	FrontierQueued     FrontierStatus = "queued"
	FrontierProcessing FrontierStatus = "processing"
	FrontierCompleted  FrontierStatus = "completed"
	FrontierFailed     FrontierStatus = "failed"
	FrontierSkipped    FrontierStatus = "skipped"
)

// FrontierItem is one candidate URL within a session's crawl frontier.
type FrontierItem struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	URL         string         `json:"url"`
	ParentURL   string         `json:"parent_url,omitempty"`
	Depth       int            `json:"depth"`
	Priority    int            `json:"priority"`
	Status      FrontierStatus `json:"status"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	Seq         int64          `json:"seq"`
	LastError   string         `json:"last_error,omitempty"`
}

// PageClass is the heuristic classification assigned to a crawled page.
type PageClass string

// Page classifications derived from URL and title heuristics.
const (
	PageHomepage PageClass = "homepage"
	PageCategory PageClass = "category"
	PageProduct  PageClass = "product"
	PageArticle  PageClass = "article"
	PageContact  PageClass = "contact"
	PageAbout    PageClass = "about"
	PageOther    PageClass = "other"
)

// PageMetadata holds the structural details extracted from a loaded page.
type PageMetadata struct {
	Title           string              `json:"title"`
	MetaDescription string              `json:"meta_description,omitempty"`
	MetaTags        map[string]string   `json:"meta_tags,omitempty"`
	Headings        map[string][]string `json:"headings,omitempty"`
	LinkCount       int                 `json:"link_count"`
	ImageCount      int                 `json:"image_count"`
}

// CrawledPage is persisted for each successfully loaded page. Immutable once
// written except the one-time checkpoint-count increment.
type CrawledPage struct {
	ID              string        `json:"id"`
	SessionID       string        `json:"session_id"`
	URL             string        `json:"url"`
	ParentURL       string        `json:"parent_url,omitempty"`
	Depth           int           `json:"depth"`
	StatusCode      int           `json:"status_code"`
	LoadTime        time.Duration `json:"load_time"`
	Metadata        PageMetadata  `json:"metadata"`
	Class           PageClass     `json:"class"`
	CheckpointCount int           `json:"checkpoint_count"`
	CrawledAt       time.Time     `json:"crawled_at"`
}

// ComparisonStatus is the verdict recorded on a visual checkpoint.
type ComparisonStatus string

// Checkpoint verdicts. The crawl pipeline writes each checkpoint once; only
// the review manager may rewrite its status afterwards.
const (
	ComparisonBaseline     ComparisonStatus = "baseline"
	ComparisonPassed       ComparisonStatus = "passed"
	ComparisonReviewNeeded ComparisonStatus = "review_needed"
	ComparisonFailed       ComparisonStatus = "failed"
)

// ElementSummary is the bounded interactive-element summary from the oracle.
type ElementSummary struct {
	Buttons    int     `json:"buttons"`
	Forms      int     `json:"forms"`
	NavLinks   int     `json:"nav_links"`
	Inputs     int     `json:"inputs"`
	Confidence float64 `json:"confidence"`
}

// VisualCheckpoint records one screenshot capture of a page under one profile.
type VisualCheckpoint struct {
	ID            string            `json:"id"`
	SessionID     string            `json:"session_id"`
	PageID        string            `json:"page_id"`
	URL           string            `json:"url"`
	Profile       CheckpointProfile `json:"profile"`
	Viewport      Viewport          `json:"viewport"`
	ScreenshotRef string            `json:"screenshot_ref"`
	ContentHash   string            `json:"content_hash"`
	BaselineID    string            `json:"baseline_id,omitempty"`
	Status        ComparisonStatus  `json:"status"`
	DiffPercent   float64           `json:"diff_percent"`
	DiffNote      string            `json:"diff_note,omitempty"`
	Elements      ElementSummary    `json:"elements"`
	Suggestions   []string          `json:"suggestions,omitempty"`
	CapturedAt    time.Time         `json:"captured_at"`
	ReviewedBy    string            `json:"reviewed_by,omitempty"`
}

// VisualBaseline is the reference image a checkpoint is compared against.
// Baselines are replaced, never mutated: the old row is marked inactive and a
// new active row inserted, so history is retained.
type VisualBaseline struct {
	ID            string            `json:"id"`
	ProjectID     string            `json:"project_id"`
	URLPattern    string            `json:"url_pattern"`
	Profile       CheckpointProfile `json:"profile"`
	Viewport      Viewport          `json:"viewport"`
	ScreenshotRef string            `json:"screenshot_ref"`
	ContentHash   string            `json:"content_hash"`
	Active        bool              `json:"active"`
	CreatedAt     time.Time         `json:"created_at"`
	CreatedBy     string            `json:"created_by,omitempty"`
}

// SessionProgress is the aggregate progress view returned by stores.
type SessionProgress struct {
	Total      int     `json:"total"`
	Crawled    int     `json:"crawled"`
	Failed     int     `json:"failed"`
	Percentage float64 `json:"percentage"`
}

// ReviewAction is a human decision applied to a checkpoint.
type ReviewAction string

// Supported and reserved review actions. The reserved actions raise
// ErrUnsupportedAction until their semantics are settled with the product
// owner.
const (
	ReviewApproveBaseline   ReviewAction = "approve_baseline"
	ReviewIgnoreDifferences ReviewAction = "ignore_differences"
	ReviewRejectBaseline    ReviewAction = "reject_baseline"
	ReviewUpdateBaseline    ReviewAction = "update_baseline"
)
