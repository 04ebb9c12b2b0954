package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/internal/core"
	"github.com/pagelens/pagelens/internal/frontier"
	"github.com/pagelens/pagelens/internal/policy"
	storememory "github.com/pagelens/pagelens/internal/store/memory"
)

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// sitePage is the canned content served for one URL.
type sitePage struct {
	html   string
	links  []string
	status int
}

// fakeSite is a tiny in-memory web site shared by fake pages. failUntil maps
// a URL to the number of navigation attempts that should fail before it
// starts succeeding.
type fakeSite struct {
	mu         sync.Mutex
	pages      map[string]sitePage
	failUntil  map[string]int
	attempts   map[string]int
	onNavigate func(url string)
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:     map[string]sitePage{},
		failUntil: map[string]int{},
		attempts:  map[string]int{},
	}
}

func (s *fakeSite) add(url, html string, links ...string) {
	s.pages[url] = sitePage{html: html, links: links, status: 200}
}

func (s *fakeSite) navigate(url string) (sitePage, int, error) {
	s.mu.Lock()
	s.attempts[url]++
	attempt := s.attempts[url]
	failures := s.failUntil[url]
	page, ok := s.pages[url]
	hook := s.onNavigate
	s.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	if attempt <= failures {
		return sitePage{}, 0, fmt.Errorf("%w: %s", core.ErrNavigationFailed, url)
	}
	if !ok {
		return sitePage{}, 0, fmt.Errorf("%w: %s", core.ErrNavigationFailed, url)
	}
	return page, page.status, nil
}

type fakePage struct {
	site    *fakeSite
	current sitePage
	closed  bool
}

func (p *fakePage) Navigate(_ context.Context, url string, _ time.Duration) (int, error) {
	page, status, err := p.site.navigate(url)
	if err != nil {
		return 0, err
	}
	p.current = page
	return status, nil
}

func (p *fakePage) SetViewport(context.Context, core.Viewport) error { return nil }

func (p *fakePage) Screenshot(context.Context, core.ScreenshotOptions) ([]byte, error) {
	return []byte("shot"), nil
}

func (p *fakePage) Evaluate(context.Context, string, any) error { return nil }

func (p *fakePage) HTML(context.Context) (string, error) { return p.current.html, nil }

func (p *fakePage) ExtractLinks(context.Context) ([]string, error) { return p.current.links, nil }

func (p *fakePage) Close(context.Context) error {
	p.closed = true
	return nil
}

type fakeBrowserContext struct {
	site       *fakeSite
	newPageErr error
}

func (c *fakeBrowserContext) NewPage(context.Context) (core.Page, error) {
	if c.newPageErr != nil {
		return nil, c.newPageErr
	}
	return &fakePage{site: c.site}, nil
}

func (c *fakeBrowserContext) Close(context.Context) error { return nil }

type fakeDriver struct {
	site       *fakeSite
	acquireErr error
}

func (d *fakeDriver) AcquireContext(context.Context, string) (core.BrowserContext, error) {
	if d.acquireErr != nil {
		return nil, d.acquireErr
	}
	return &fakeBrowserContext{site: d.site}, nil
}

// fakeVisual records capture requests instead of running the real pipeline.
type fakeVisual struct {
	mu       sync.Mutex
	captures []core.CheckpointProfile
	err      error
}

func (v *fakeVisual) Capture(_ context.Context, _ core.Page, _ core.CrawlSession, crawled core.CrawledPage, _ string, profile core.CheckpointProfile) (core.VisualCheckpoint, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return core.VisualCheckpoint{}, v.err
	}
	v.captures = append(v.captures, profile)
	return core.VisualCheckpoint{ID: "cp", PageID: crawled.ID, Profile: profile}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Publish(_ string, event string, _ map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *fakeNotifier) saw(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

type workerFixture struct {
	sessions *storememory.SessionStore
	pages    *storememory.PageStore
	frontier *frontier.Manager
	visual   *fakeVisual
	worker   *Worker
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	sessions := storememory.NewSessionStore()
	pages := storememory.NewPageStore()
	fm := frontier.NewManager(sessions, storememory.NewFrontierStore(), &seqIDs{}, nil)
	visual := &fakeVisual{}
	w := NewWorker(pages, fm, visual, nil, &seqIDs{}, fixedClock{t: time.Unix(1700000000, 0)}, nil)
	return &workerFixture{sessions: sessions, pages: pages, frontier: fm, visual: visual, worker: w}
}

func testSession(seed string) core.CrawlSession {
	return core.CrawlSession{
		ID:        "sess-1",
		ProjectID: "proj-1",
		SeedURL:   seed,
		Crawl: core.CrawlConfig{
			MaxDepth:           1,
			MaxPages:           50,
			Concurrency:        2,
			DelayBetweenRounds: time.Millisecond,
		},
		Status: core.SessionPending,
	}
}

func TestCrawlRecordsPageWithMetadata(t *testing.T) {
	ctx := context.Background()
	fx := newWorkerFixture(t)
	site := newFakeSite()
	site.add("https://site.test/about",
		`<html><head><title>About Us</title><meta name="description" content="who we are"></head>
		<body><h1>About</h1><a href="/team">Team</a><img src="x.png"></body></html>`)

	session := testSession("https://site.test/")
	require.NoError(t, fx.sessions.CreateSession(ctx, session))
	fx.frontier.Register(session.ID)

	item := core.FrontierItem{
		ID: "item-1", SessionID: session.ID,
		URL: "https://site.test/about", ParentURL: "https://site.test/", Depth: 1,
	}
	bctx := &fakeBrowserContext{site: site}
	require.NoError(t, fx.worker.Crawl(ctx, bctx, session, policy.New(session.Crawl), item))

	recorded, err := fx.pages.ListPages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	page := recorded[0]
	require.Equal(t, "https://site.test/about", page.URL)
	require.Equal(t, "https://site.test/", page.ParentURL)
	require.Equal(t, 1, page.Depth)
	require.Equal(t, 200, page.StatusCode)
	require.Equal(t, core.PageAbout, page.Class)
	require.Equal(t, "About Us", page.Metadata.Title)
	require.Equal(t, "who we are", page.Metadata.MetaDescription)
	require.Equal(t, 1, page.Metadata.LinkCount)
	require.Equal(t, 1, page.Metadata.ImageCount)
}

func TestCrawlEnqueuesOnlyEligibleLinks(t *testing.T) {
	ctx := context.Background()
	fx := newWorkerFixture(t)
	site := newFakeSite()
	site.add("https://site.test/", "<html></html>",
		"/products/1",
		"https://other.test/elsewhere",
		"/admin/login",
		"::broken::",
	)

	session := testSession("https://site.test/")
	session.Crawl.ExcludePatterns = []string{"*/admin/*"}
	require.NoError(t, fx.sessions.CreateSession(ctx, session))
	fx.frontier.Register(session.ID)

	item := core.FrontierItem{ID: "item-1", SessionID: session.ID, URL: "https://site.test/", Depth: 0}
	bctx := &fakeBrowserContext{site: site}
	require.NoError(t, fx.worker.Crawl(ctx, bctx, session, policy.New(session.Crawl), item))

	batch, _, err := fx.frontier.DequeueBatch(ctx, session.ID, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, "https://site.test/products/1", batch[0].URL)
	require.Equal(t, "https://site.test/", batch[0].ParentURL)
	require.Equal(t, 1, batch[0].Depth)
}

func TestCrawlSkipsLinkDiscoveryAtMaxDepth(t *testing.T) {
	ctx := context.Background()
	fx := newWorkerFixture(t)
	site := newFakeSite()
	site.add("https://site.test/deep", "<html></html>", "/deeper")

	session := testSession("https://site.test/")
	require.NoError(t, fx.sessions.CreateSession(ctx, session))
	fx.frontier.Register(session.ID)

	item := core.FrontierItem{ID: "item-1", SessionID: session.ID, URL: "https://site.test/deep", Depth: 1}
	bctx := &fakeBrowserContext{site: site}
	require.NoError(t, fx.worker.Crawl(ctx, bctx, session, policy.New(session.Crawl), item))

	require.Zero(t, fx.frontier.Outstanding(session.ID))
}

func TestCrawlNavigationFailureRecordsNothing(t *testing.T) {
	ctx := context.Background()
	fx := newWorkerFixture(t)
	site := newFakeSite() // no pages: every navigation fails

	session := testSession("https://site.test/")
	require.NoError(t, fx.sessions.CreateSession(ctx, session))
	fx.frontier.Register(session.ID)

	item := core.FrontierItem{ID: "item-1", SessionID: session.ID, URL: "https://site.test/missing", Depth: 0}
	bctx := &fakeBrowserContext{site: site}
	err := fx.worker.Crawl(ctx, bctx, session, policy.New(session.Crawl), item)
	require.ErrorIs(t, err, core.ErrNavigationFailed)

	recorded, lerr := fx.pages.ListPages(ctx, session.ID)
	require.NoError(t, lerr)
	require.Empty(t, recorded)
}

func TestCrawlCapturesEveryConfiguredProfile(t *testing.T) {
	ctx := context.Background()
	fx := newWorkerFixture(t)
	site := newFakeSite()
	site.add("https://site.test/", "<html></html>")

	session := testSession("https://site.test/")
	session.Visual = core.VisualConfig{
		Enabled:  true,
		Profiles: []core.CheckpointProfile{core.ProfileFullPage, core.ProfileMobile},
	}
	require.NoError(t, fx.sessions.CreateSession(ctx, session))
	fx.frontier.Register(session.ID)

	item := core.FrontierItem{ID: "item-1", SessionID: session.ID, URL: "https://site.test/", Depth: 0}
	bctx := &fakeBrowserContext{site: site}
	require.NoError(t, fx.worker.Crawl(ctx, bctx, session, policy.New(session.Crawl), item))

	require.Equal(t, []core.CheckpointProfile{core.ProfileFullPage, core.ProfileMobile}, fx.visual.captures)
}

func TestCrawlCheckpointFailureDoesNotFailPage(t *testing.T) {
	ctx := context.Background()
	fx := newWorkerFixture(t)
	fx.visual.err = errors.New("capture exploded")
	site := newFakeSite()
	site.add("https://site.test/", "<html></html>")

	session := testSession("https://site.test/")
	session.Visual = core.VisualConfig{Enabled: true}
	require.NoError(t, fx.sessions.CreateSession(ctx, session))
	fx.frontier.Register(session.ID)

	item := core.FrontierItem{ID: "item-1", SessionID: session.ID, URL: "https://site.test/", Depth: 0}
	bctx := &fakeBrowserContext{site: site}
	require.NoError(t, fx.worker.Crawl(ctx, bctx, session, policy.New(session.Crawl), item))

	recorded, err := fx.pages.ListPages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
}
