package core

import "errors"

// Sentinel errors for the crawl and review pipelines. Callers branch with
// errors.Is; wrapping preserves per-site context.
var (
	// ErrNavigationTimeout marks a page load that exceeded the session's
	// page timeout. Recorded on the frontier item and retried.
	ErrNavigationTimeout = errors.New("navigation timeout")

	// ErrNavigationFailed marks a non-timeout page load failure.
	ErrNavigationFailed = errors.New("navigation failed")

	// ErrInvalidURL marks a malformed candidate URL. Dropped silently
	// during link extraction; never surfaced as a page failure.
	ErrInvalidURL = errors.New("invalid url")

	// ErrComparisonFailed marks an image decode or fetch failure during
	// baseline comparison. The checkpoint is still persisted.
	ErrComparisonFailed = errors.New("comparison failed")

	// ErrUnsupportedAction marks a review action with no implemented
	// semantics. Raised to the caller with no partial state change.
	ErrUnsupportedAction = errors.New("unsupported review action")

	// ErrSessionStartFailure marks a browser/context launch failure. The
	// session transitions directly to failed with no retry.
	ErrSessionStartFailure = errors.New("session start failure")

	// ErrScreenshotUnsupported is returned by drivers that cannot render,
	// such as the plain HTTP driver.
	ErrScreenshotUnsupported = errors.New("screenshot not supported by driver")

	// ErrNotFound is returned by stores for missing rows.
	ErrNotFound = errors.New("not found")
)
