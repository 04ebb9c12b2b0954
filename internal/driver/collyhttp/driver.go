// Package collyhttp implements a render-free crawl driver on plain HTTP via
// the Colly collector. It fetches and parses server-rendered pages only: no
// JavaScript execution and no screenshots, so visual checkpoints are skipped
// for sessions running on this driver.
package collyhttp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/pagelens/pagelens/internal/core"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
}

// Provider implements core.DriverProvider over HTTP.
type Provider struct {
	cfg Config
}

// NewProvider builds a Provider.
func NewProvider(cfg Config) *Provider {
	return &Provider{cfg: cfg}
}

// AcquireContext returns a session-scoped collector. HTTP needs no browser,
// so acquisition cannot fail.
func (p *Provider) AcquireContext(_ context.Context, _ string) (core.BrowserContext, error) {
	c := colly.NewCollector(colly.Async(false))
	if p.cfg.UserAgent != "" {
		c.UserAgent = p.cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !p.cfg.RespectRobots
	return &browserContext{collector: c}, nil
}

type browserContext struct {
	collector *colly.Collector
}

func (c *browserContext) NewPage(context.Context) (core.Page, error) {
	return &page{base: c.collector}, nil
}

func (c *browserContext) Close(context.Context) error { return nil }

// page holds the body of the last navigation. Colly collectors accumulate
// callbacks, so every navigation clones a fresh collector.
type page struct {
	base *colly.Collector
	url  string
	html string
}

func (p *page) Navigate(_ context.Context, url string, timeout time.Duration) (int, error) {
	collector := p.base.Clone()
	collector.SetRequestTimeout(timeout)

	var (
		status   int
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil && r.StatusCode != 0 {
			status = r.StatusCode
		}
	})

	if err := collector.Visit(url); err != nil {
		return 0, classifyNavError(url, timeout, err)
	}
	collector.Wait()
	if fetchErr != nil {
		return 0, classifyNavError(url, timeout, fetchErr)
	}

	p.url = url
	p.html = string(body)
	return status, nil
}

func classifyNavError(url string, timeout time.Duration, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s after %s", core.ErrNavigationTimeout, url, timeout)
	}
	return fmt.Errorf("%w: %s: %v", core.ErrNavigationFailed, url, err)
}

// SetViewport is accepted and ignored: there is no rendering surface.
func (p *page) SetViewport(context.Context, core.Viewport) error { return nil }

func (p *page) Screenshot(context.Context, core.ScreenshotOptions) ([]byte, error) {
	return nil, core.ErrScreenshotUnsupported
}

var errEvaluateUnsupported = errors.New("script evaluation not supported by http driver")

func (p *page) Evaluate(context.Context, string, any) error {
	return errEvaluateUnsupported
}

func (p *page) HTML(context.Context) (string, error) { return p.html, nil }

// ExtractLinks parses anchors out of the fetched document. Hrefs are returned
// as written; the caller resolves them against the page URL.
func (p *page) ExtractLinks(context.Context) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && href != "" {
			links = append(links, href)
		}
	})
	return links, nil
}

func (p *page) Close(context.Context) error { return nil }
