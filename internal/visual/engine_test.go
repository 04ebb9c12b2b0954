package visual

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/internal/core"
	"github.com/pagelens/pagelens/internal/hash/sha256"
	storememory "github.com/pagelens/pagelens/internal/store/memory"
	blobmemory "github.com/pagelens/pagelens/internal/storage/memory"
)

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeOracle struct{}

func (fakeOracle) Analyze(context.Context, string, string) core.OracleResult {
	return core.OracleResult{
		Elements:    core.ElementSummary{Buttons: 2, Forms: 1, Confidence: 0.8},
		Suggestions: []string{"Click each primary button"},
	}
}

type fakeNotifier struct {
	events []string
}

func (n *fakeNotifier) Publish(_ string, event string, _ map[string]any) {
	n.events = append(n.events, event)
}

// fakePage returns canned screenshot bytes and records viewport calls.
type fakePage struct {
	shot      []byte
	shotErr   error
	viewports []core.Viewport
}

func (p *fakePage) Navigate(context.Context, string, time.Duration) (int, error) { return 200, nil }

func (p *fakePage) SetViewport(_ context.Context, vp core.Viewport) error {
	p.viewports = append(p.viewports, vp)
	return nil
}

func (p *fakePage) Screenshot(context.Context, core.ScreenshotOptions) ([]byte, error) {
	return p.shot, p.shotErr
}

func (p *fakePage) Evaluate(context.Context, string, any) error  { return nil }
func (p *fakePage) HTML(context.Context) (string, error)         { return "<html></html>", nil }
func (p *fakePage) ExtractLinks(context.Context) ([]string, error) { return nil, nil }
func (p *fakePage) Close(context.Context) error                  { return nil }

type fixture struct {
	engine      *Engine
	checkpoints *storememory.CheckpointStore
	baselines   *storememory.BaselineStore
	pages       *storememory.PageStore
	sessions    *storememory.SessionStore
	blobs       *blobmemory.BlobStore
	notifier    *fakeNotifier
	session     core.CrawlSession
	page        core.CrawledPage
}

func newFixture(t *testing.T, autoCreate bool) *fixture {
	t.Helper()
	f := &fixture{
		checkpoints: storememory.NewCheckpointStore(),
		baselines:   storememory.NewBaselineStore(),
		pages:       storememory.NewPageStore(),
		sessions:    storememory.NewSessionStore(),
		blobs:       blobmemory.NewBlobStore(),
		notifier:    &fakeNotifier{},
	}
	f.engine = New(
		f.checkpoints, f.baselines, f.pages, f.sessions, f.blobs,
		fakeOracle{}, sha256.New(), &seqIDs{}, fixedClock{t: time.Unix(1000, 0).UTC()},
		f.notifier, nil,
	)
	f.session = core.CrawlSession{
		ID:        "s-1",
		ProjectID: "proj",
		SeedURL:   "https://a.test/",
		Status:    core.SessionRunning,
		Visual: core.VisualConfig{
			Enabled:             true,
			Profiles:            []core.CheckpointProfile{core.ProfileViewport},
			AutoCreateBaselines: autoCreate,
			SettleDelay:         time.Millisecond,
		},
	}
	require.NoError(t, f.sessions.CreateSession(context.Background(), f.session))
	f.page = core.CrawledPage{ID: "p-1", SessionID: "s-1", URL: "https://a.test/about"}
	require.NoError(t, f.pages.RecordPage(context.Background(), f.page))
	return f
}

func pngBytes(t *testing.T, c color.RGBA, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCapture_AutoCreatesBaseline(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	ctx := context.Background()
	page := &fakePage{shot: pngBytes(t, color.RGBA{R: 250, G: 250, B: 250, A: 255}, 20, 20)}

	cp, err := f.engine.Capture(ctx, page, f.session, f.page, "<html></html>", core.ProfileViewport)
	require.NoError(t, err)
	require.Equal(t, core.ComparisonBaseline, cp.Status)
	require.NotEmpty(t, cp.BaselineID)
	require.Equal(t, core.Viewport{Width: 1280, Height: 720}, cp.Viewport)
	require.Equal(t, []core.Viewport{{Width: 1280, Height: 720}}, page.viewports)

	all, err := f.baselines.ListBaselines(ctx, "proj")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.True(t, all[0].Active)
	require.Equal(t, "https://a.test/about", all[0].URLPattern)

	// Checkpoint side effects.
	stored, err := f.checkpoints.GetCheckpoint(ctx, cp.ID)
	require.NoError(t, err)
	require.Equal(t, core.ComparisonBaseline, stored.Status)
	pages, _ := f.pages.ListPages(ctx, "s-1")
	require.Equal(t, 1, pages[0].CheckpointCount)
	got, _ := f.sessions.GetSession(ctx, "s-1")
	require.Equal(t, 1, got.Counters.CheckpointsTotal)
	require.Contains(t, f.notifier.events, "checkpoint_created")
}

func TestCapture_IdenticalImagePasses(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	ctx := context.Background()
	shot := pngBytes(t, color.RGBA{R: 123, G: 22, B: 99, A: 255}, 30, 30)

	// First capture becomes the baseline, second compares against it.
	page := &fakePage{shot: shot}
	first, err := f.engine.Capture(ctx, page, f.session, f.page, "", core.ProfileViewport)
	require.NoError(t, err)
	require.Equal(t, core.ComparisonBaseline, first.Status)

	second, err := f.engine.Capture(ctx, page, f.session, f.page, "", core.ProfileViewport)
	require.NoError(t, err)
	require.Equal(t, core.ComparisonPassed, second.Status)
	require.Zero(t, second.DiffPercent)
	require.Equal(t, first.BaselineID, second.BaselineID)
}

func TestCapture_MajorDifferenceFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	ctx := context.Background()

	white := &fakePage{shot: pngBytes(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, 30, 30)}
	_, err := f.engine.Capture(ctx, white, f.session, f.page, "", core.ProfileViewport)
	require.NoError(t, err)

	black := &fakePage{shot: pngBytes(t, color.RGBA{A: 255}, 30, 30)}
	cp, err := f.engine.Capture(ctx, black, f.session, f.page, "", core.ProfileViewport)
	require.NoError(t, err)
	require.Equal(t, core.ComparisonFailed, cp.Status)
	require.InDelta(t, 100, cp.DiffPercent, 1e-9)
}

func TestCapture_CorruptBaselineStillPersistsCheckpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	ctx := context.Background()

	locator, err := f.blobs.PutObject(ctx, "bad.png", "image/png", []byte("not a png"))
	require.NoError(t, err)
	require.NoError(t, f.baselines.InsertBaseline(ctx, core.VisualBaseline{
		ID: "b-bad", ProjectID: "proj", URLPattern: "https://a.test/about",
		Profile: core.ProfileViewport, Viewport: core.Viewport{Width: 1280, Height: 720},
		ScreenshotRef: locator, Active: true,
	}))

	page := &fakePage{shot: pngBytes(t, color.RGBA{A: 255}, 10, 10)}
	cp, err := f.engine.Capture(ctx, page, f.session, f.page, "", core.ProfileViewport)
	require.NoError(t, err)
	require.Equal(t, core.ComparisonReviewNeeded, cp.Status)
	require.Contains(t, cp.DiffNote, "comparison failed")

	stored, err := f.checkpoints.GetCheckpoint(ctx, cp.ID)
	require.NoError(t, err)
	require.Equal(t, core.ComparisonReviewNeeded, stored.Status)
}

func TestCapture_NoBaselineNoAutoCreateNeedsReview(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	page := &fakePage{shot: pngBytes(t, color.RGBA{A: 255}, 10, 10)}

	cp, err := f.engine.Capture(context.Background(), page, f.session, f.page, "", core.ProfileMobile)
	require.NoError(t, err)
	require.Equal(t, core.ComparisonReviewNeeded, cp.Status)
	require.Empty(t, cp.BaselineID)
	require.Equal(t, core.Viewport{Width: 375, Height: 667}, cp.Viewport)

	all, err := f.baselines.ListBaselines(context.Background(), "proj")
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestCapture_ScreenshotFailureReturnsError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	page := &fakePage{shotErr: fmt.Errorf("browser crashed")}

	_, err := f.engine.Capture(context.Background(), page, f.session, f.page, "", core.ProfileViewport)
	require.Error(t, err)

	cps, lerr := f.checkpoints.ListCheckpoints(context.Background(), "s-1")
	require.NoError(t, lerr)
	require.Empty(t, cps, "no checkpoint row without a screenshot")
}
