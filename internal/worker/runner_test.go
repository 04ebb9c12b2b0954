package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/internal/core"
	"github.com/pagelens/pagelens/internal/frontier"
	storememory "github.com/pagelens/pagelens/internal/store/memory"
)

type runnerFixture struct {
	sessions *storememory.SessionStore
	pages    *storememory.PageStore
	frontier *frontier.Manager
	notifier *fakeNotifier
	site     *fakeSite
	runner   *Runner
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	sessions := storememory.NewSessionStore()
	pages := storememory.NewPageStore()
	fm := frontier.NewManager(sessions, storememory.NewFrontierStore(), &seqIDs{}, nil)
	site := newFakeSite()
	notifier := &fakeNotifier{}
	w := NewWorker(pages, fm, &fakeVisual{}, nil, &seqIDs{}, fixedClock{t: time.Unix(1700000000, 0)}, nil)
	r := NewRunner(sessions, fm, &fakeDriver{site: site}, w, notifier, nil)
	return &runnerFixture{sessions: sessions, pages: pages, frontier: fm, notifier: notifier, site: site, runner: r}
}

func (fx *runnerFixture) createSession(t *testing.T, session core.CrawlSession) {
	t.Helper()
	require.NoError(t, fx.sessions.CreateSession(context.Background(), session))
}

func TestRunSingleSeedCompletes(t *testing.T) {
	ctx := context.Background()
	fx := newRunnerFixture(t)
	fx.site.add("https://site.test/", "<html><head><title>Home</title></head></html>")

	session := testSession("https://site.test/")
	session.Crawl.MaxDepth = 0
	fx.createSession(t, session)

	require.NoError(t, fx.runner.Run(ctx, session.ID))

	got, err := fx.sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, core.SessionCompleted, got.Status)
	require.Equal(t, 1, got.Counters.PagesDiscovered)
	require.Equal(t, 1, got.Counters.PagesCrawled)
	require.Zero(t, got.Counters.PagesFailed)
	require.NotNil(t, got.Started)
	require.NotNil(t, got.Finished)

	pages, err := fx.pages.ListPages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, core.PageHomepage, pages[0].Class)

	require.True(t, fx.notifier.saw("session_started"))
	require.True(t, fx.notifier.saw("session_completed"))
}

func TestRunCrawlsDiscoveredLinks(t *testing.T) {
	ctx := context.Background()
	fx := newRunnerFixture(t)
	fx.site.add("https://site.test/", "<html></html>", "/products", "/about")
	fx.site.add("https://site.test/products", "<html></html>", "/products/1")
	fx.site.add("https://site.test/about", "<html></html>")

	session := testSession("https://site.test/")
	session.Crawl.MaxDepth = 1
	fx.createSession(t, session)

	require.NoError(t, fx.runner.Run(ctx, session.ID))

	got, err := fx.sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, core.SessionCompleted, got.Status)
	require.Equal(t, 3, got.Counters.PagesCrawled)

	pages, err := fx.pages.ListPages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	// /products/1 sits beyond the depth budget.
	for _, p := range pages {
		require.NotEqual(t, "https://site.test/products/1", p.URL)
	}
}

func TestRunToleratesPermanentPageFailure(t *testing.T) {
	ctx := context.Background()
	fx := newRunnerFixture(t)
	fx.site.add("https://site.test/", "<html></html>", "/good", "/bad")
	fx.site.add("https://site.test/good", "<html></html>")
	fx.site.failUntil["https://site.test/bad"] = 100

	session := testSession("https://site.test/")
	session.Crawl.MaxAttempts = 2
	fx.createSession(t, session)

	require.NoError(t, fx.runner.Run(ctx, session.ID))

	got, err := fx.sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, core.SessionCompleted, got.Status)
	require.Equal(t, 2, got.Counters.PagesCrawled)
	require.Equal(t, 1, got.Counters.PagesFailed)
	require.Equal(t, 2, fx.site.attempts["https://site.test/bad"])
}

func TestRunRetriesTransientFailure(t *testing.T) {
	ctx := context.Background()
	fx := newRunnerFixture(t)
	fx.site.add("https://site.test/", "<html></html>")
	fx.site.failUntil["https://site.test/"] = 1

	session := testSession("https://site.test/")
	session.Crawl.MaxDepth = 0
	session.Crawl.MaxAttempts = 3
	fx.createSession(t, session)

	require.NoError(t, fx.runner.Run(ctx, session.ID))

	got, err := fx.sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, core.SessionCompleted, got.Status)
	require.Equal(t, 1, got.Counters.PagesCrawled)
	require.Zero(t, got.Counters.PagesFailed)
	require.Equal(t, 2, fx.site.attempts["https://site.test/"])
}

func TestRunContextAcquisitionFailureFailsSession(t *testing.T) {
	ctx := context.Background()
	fx := newRunnerFixture(t)
	fx.site.add("https://site.test/", "<html></html>")

	session := testSession("https://site.test/")
	fx.createSession(t, session)

	boom := errors.New("browser refused to launch")
	w := NewWorker(fx.pages, fx.frontier, &fakeVisual{}, nil, &seqIDs{}, fixedClock{t: time.Unix(1700000000, 0)}, nil)
	r := NewRunner(fx.sessions, fx.frontier, &fakeDriver{acquireErr: boom}, w, fx.notifier, nil)

	err := r.Run(ctx, session.ID)
	require.ErrorIs(t, err, core.ErrSessionStartFailure)

	got, gerr := fx.sessions.GetSession(ctx, session.ID)
	require.NoError(t, gerr)
	require.Equal(t, core.SessionFailed, got.Status)
	require.Contains(t, got.ErrorText, "browser refused to launch")
}

func TestRunRejectsMalformedSeed(t *testing.T) {
	ctx := context.Background()
	fx := newRunnerFixture(t)

	session := testSession("::broken::")
	fx.createSession(t, session)

	err := fx.runner.Run(ctx, session.ID)
	require.ErrorIs(t, err, core.ErrInvalidURL)

	got, gerr := fx.sessions.GetSession(ctx, session.ID)
	require.NoError(t, gerr)
	require.Equal(t, core.SessionFailed, got.Status)
}

func TestRunStopsWhenSessionCancelled(t *testing.T) {
	ctx := context.Background()
	fx := newRunnerFixture(t)
	fx.site.add("https://site.test/", "<html></html>", "/a", "/b", "/c")
	fx.site.add("https://site.test/a", "<html></html>")
	fx.site.add("https://site.test/b", "<html></html>")
	fx.site.add("https://site.test/c", "<html></html>")

	session := testSession("https://site.test/")
	session.Crawl.Concurrency = 1
	fx.createSession(t, session)

	// Cancel out of band as soon as the seed page loads; the runner must
	// notice before the next round.
	fx.site.onNavigate = func(url string) {
		if url == "https://site.test/" {
			_ = fx.sessions.UpdateSessionStatus(ctx, session.ID, core.SessionCancelled, "operator cancel")
		}
	}

	require.NoError(t, fx.runner.Run(ctx, session.ID))

	got, err := fx.sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, core.SessionCancelled, got.Status)

	pages, err := fx.pages.ListPages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.True(t, fx.notifier.saw("session_cancelled"))
}

func TestRunAlreadyTerminalSessionIsRejected(t *testing.T) {
	ctx := context.Background()
	fx := newRunnerFixture(t)

	session := testSession("https://site.test/")
	session.Status = core.SessionCompleted
	fx.createSession(t, session)

	require.Error(t, fx.runner.Run(ctx, session.ID))
}
