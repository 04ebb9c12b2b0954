// Package headless drives real browser automation via chromedp. One browser
// context is acquired per crawl session; each worker opens its own tab.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/pagelens/pagelens/internal/core"
)

// Config controls the headless driver.
type Config struct {
	UserAgent string
}

// Provider implements core.DriverProvider on a shared Chrome exec allocator.
// The allocator lives for the process; per-session browser contexts and
// per-page tabs hang off it.
type Provider struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewProvider launches the exec allocator.
func NewProvider(cfg Config) *Provider {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Provider{cfg: cfg, allocator: allocCtx, allocCancel: allocCancel}
}

// Close tears down the allocator and every browser spawned from it.
func (p *Provider) Close() {
	p.allocCancel()
}

// AcquireContext starts a browser for the session. The browser is launched
// eagerly so a broken Chrome install fails the session up front instead of on
// the first page.
func (p *Provider) AcquireContext(ctx context.Context, sessionID string) (core.BrowserContext, error) {
	bctx, cancel := chromedp.NewContext(p.allocator)
	if err := chromedp.Run(bctx); err != nil {
		cancel()
		return nil, fmt.Errorf("launch browser for session %s: %w", sessionID, err)
	}
	return &browserContext{ctx: bctx, cancel: cancel}, nil
}

type browserContext struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPage opens a fresh tab in the session browser.
func (c *browserContext) NewPage(context.Context) (core.Page, error) {
	if c.ctx.Err() != nil {
		return nil, fmt.Errorf("browser context closed: %w", c.ctx.Err())
	}
	tabCtx, cancel := chromedp.NewContext(c.ctx)
	return &page{ctx: tabCtx, cancel: cancel}, nil
}

func (c *browserContext) Close(context.Context) error {
	c.cancel()
	return nil
}

type page struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Navigate loads the URL and waits for the body to be ready. The document
// response status is captured from the network domain; redirects report the
// final document's status.
func (p *page) Navigate(ctx context.Context, url string, timeout time.Duration) (int, error) {
	navCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	status := newStatusProbe()
	chromedp.ListenTarget(navCtx, status.capture)

	err := chromedp.Run(navCtx,
		network.Enable(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %s after %s", core.ErrNavigationTimeout, url, timeout)
		}
		return 0, fmt.Errorf("%w: %s: %v", core.ErrNavigationFailed, url, err)
	}
	return status.get(), nil
}

func (p *page) SetViewport(ctx context.Context, vp core.Viewport) error {
	if err := chromedp.Run(p.ctx, chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height))); err != nil {
		return fmt.Errorf("emulate viewport %s: %w", vp, err)
	}
	return nil
}

func (p *page) Screenshot(ctx context.Context, opts core.ScreenshotOptions) ([]byte, error) {
	// FullScreenshot emits png at quality 100 and jpeg otherwise.
	quality := 100
	if opts.Format == "jpeg" {
		quality = opts.Quality
		if quality <= 0 || quality >= 100 {
			quality = 90
		}
	}

	var buf []byte
	var action chromedp.Action
	if opts.FullPage {
		action = chromedp.FullScreenshot(&buf, quality)
	} else {
		action = chromedp.CaptureScreenshot(&buf)
	}
	if err := chromedp.Run(p.ctx, action); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (p *page) Evaluate(ctx context.Context, script string, out any) error {
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("evaluate script: %w", err)
	}
	return nil
}

func (p *page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := chromedp.Run(p.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read outer html: %w", err)
	}
	return html, nil
}

const extractLinksScript = `Array.from(document.querySelectorAll('a[href]')).map(a => a.href)`

func (p *page) ExtractLinks(ctx context.Context) ([]string, error) {
	var links []string
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(extractLinksScript, &links)); err != nil {
		return nil, fmt.Errorf("extract links: %w", err)
	}
	return links, nil
}

func (p *page) Close(context.Context) error {
	p.cancel()
	return nil
}

// statusProbe records the status of the main document response.
type statusProbe struct {
	mu     sync.Mutex
	status int
}

func newStatusProbe() *statusProbe { return &statusProbe{} }

func (s *statusProbe) capture(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	s.mu.Lock()
	s.status = int(resp.Response.Status)
	s.mu.Unlock()
}

// get falls back to 200 when no document response event was observed, which
// happens for cached navigations.
func (s *statusProbe) get() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
