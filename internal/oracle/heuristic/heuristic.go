// Package heuristic implements rule-based element detection over page HTML.
package heuristic

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/core"
)

// maxPerCategory bounds each element count so one pathological page cannot
// bloat checkpoint rows.
const maxPerCategory = 50

// Oracle detects interactive elements and derives test suggestions from
// them. It never returns an error: analysis failures degrade to an empty
// low-confidence result so the checkpoint pipeline keeps moving.
type Oracle struct {
	logger *zap.Logger
}

// New constructs an Oracle.
func New(logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{logger: logger}
}

// Analyze inspects the HTML for buttons, forms, navigation links, and inputs.
func (o *Oracle) Analyze(_ context.Context, html, url string) core.OracleResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		o.logger.Debug("element analysis failed", zap.String("url", url), zap.Error(err))
		return core.OracleResult{Elements: core.ElementSummary{Confidence: 0.1}}
	}

	summary := core.ElementSummary{
		Buttons:  capCount(doc.Find(`button, input[type="button"], input[type="submit"], a[role="button"]`).Length()),
		Forms:    capCount(doc.Find("form").Length()),
		NavLinks: capCount(doc.Find("nav a, header a").Length()),
		Inputs:   capCount(doc.Find("input, select, textarea").Length()),
	}
	summary.Confidence = confidence(summary)

	return core.OracleResult{
		Elements:    summary,
		Suggestions: suggestions(summary, url),
	}
}

func capCount(n int) int {
	if n > maxPerCategory {
		return maxPerCategory
	}
	return n
}

// confidence grows with the variety of detected categories; a page where
// nothing was found is most likely a parse miss, not an empty page.
func confidence(s core.ElementSummary) float64 {
	score := 0.2
	for _, n := range []int{s.Buttons, s.Forms, s.NavLinks, s.Inputs} {
		if n > 0 {
			score += 0.2
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

func suggestions(s core.ElementSummary, url string) []string {
	var out []string
	lower := strings.ToLower(url)
	if s.Forms > 0 {
		out = append(out, fmt.Sprintf("Fill and submit the %d form(s) and verify success and validation states", s.Forms))
	}
	if s.Buttons > 0 {
		out = append(out, "Click each primary button and verify the resulting navigation or state change")
	}
	if s.NavLinks > 0 {
		out = append(out, "Follow the main navigation links and verify each destination loads")
	}
	switch {
	case strings.Contains(lower, "/product"):
		out = append(out, "Add the product to the cart and verify price and stock display")
	case strings.Contains(lower, "/contact"):
		out = append(out, "Submit the contact form with valid and invalid input")
	case strings.Contains(lower, "/about"):
		out = append(out, "Verify company details and imagery render correctly")
	}
	return out
}
