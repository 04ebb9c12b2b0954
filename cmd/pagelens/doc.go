// Package main hosts the pagelens service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, session, checkpoint,
//     and baseline endpoints. Session requests are validated, filled in with
//     configured defaults, persisted via the SessionStore, and executed by a
//     detached worker.Runner goroutine.
//   - Crawl pipeline: the runner acquires one browser context per session from
//     the configured driver (Chromedp headless or Colly HTTP), drains the
//     frontier in rounds of `concurrency` items, and feeds discovered links
//     back through the policy engine. Per-host pacing comes from x/time/rate.
//   - Visual checkpoints: after each page is recorded the visual engine captures
//     one screenshot per configured profile, resolves the active baseline,
//     compares pixels, and persists an immutable checkpoint row. Screenshot
//     bytes land in the configured BlobStore (memory/local/GCS).
//   - Review: human decisions arrive through the review endpoint; approving a
//     checkpoint promotes its screenshot to the active baseline and deactivates
//     the previous one.
//   - Persistence & fanout: sessions, frontier items, pages, checkpoints, and
//     baselines live in Postgres when a DSN is configured, otherwise in memory.
//     Lifecycle events flow through the progress hub into the zap log sink and
//     Prometheus metrics, and optionally out to Pub/Sub when a topic is set.
//   - Configuration & plumbing: Viper populates config from env/files; zap
//     provides structured logging; Prometheus metrics are exported at /metrics.
//
// Operational notes:
//   - Concurrency model: one runner goroutine per active session with a bounded
//     round of page workers inside it. Shutdown is coordinated via context
//     cancellation from main; sessions finalize their status before exit.
//   - Run locally: go run ./cmd/pagelens -config config.yaml (or rely solely on
//     PAGELENS_* env overrides).
package main
