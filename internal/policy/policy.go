// Package policy decides which discovered links enter the crawl frontier and
// how they are prioritized.
package policy

import (
	"regexp"
	"strings"

	"github.com/pagelens/pagelens/internal/core"
)

// Engine evaluates link eligibility and priority for a session. It is
// stateless and safe for concurrent use; compiled patterns are cached at
// construction.
type Engine struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// New compiles the session's include/exclude patterns. Globs use `*` as the
// only metacharacter; everything else matches literally. Patterns that fail
// to compile are ignored rather than failing session creation.
func New(cfg core.CrawlConfig) *Engine {
	return &Engine{
		include: compilePatterns(cfg.IncludePatterns),
		exclude: compilePatterns(cfg.ExcludePatterns),
	}
}

func compilePatterns(globs []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(globs))
	for _, g := range globs {
		if strings.TrimSpace(g) == "" {
			continue
		}
		re, err := regexp.Compile(globToRegexp(g))
		if err != nil {
			continue
		}
		out = append(out, re)
	}
	return out
}

// globToRegexp translates a `*` glob into a regular expression. `*` is the
// only metacharacter; matching is unanchored, so a bare pattern behaves as a
// substring match.
func globToRegexp(glob string) string {
	parts := strings.Split(glob, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return strings.Join(parts, ".*")
}

// Eligible applies the admission rules in order: external-host rejection,
// include patterns, exclude patterns. Malformed URLs are filtered silently.
func (e *Engine) Eligible(candidate string, session core.CrawlSession) bool {
	normalized, err := core.NormalizeURL(candidate)
	if err != nil {
		return false
	}

	if !session.Crawl.FollowExternalLinks {
		if core.Hostname(normalized) != core.Hostname(session.SeedURL) {
			return false
		}
	}

	if len(e.include) > 0 {
		matched := false
		for _, re := range e.include {
			if re.MatchString(normalized) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, re := range e.exclude {
		if re.MatchString(normalized) {
			return false
		}
	}

	return true
}

// Priority scores a candidate URL. Higher scores dequeue first, biasing the
// crawl toward commercially important pages before the depth budget runs out.
func (e *Engine) Priority(candidate, seedURL string) int {
	score := 1
	if core.Hostname(candidate) == core.Hostname(seedURL) {
		score += 5
	}
	lower := strings.ToLower(candidate)
	if strings.Contains(lower, "/product") || strings.Contains(lower, "/category") ||
		strings.Contains(lower, "/shop") || strings.Contains(lower, "/collection") {
		score += 3
	}
	if strings.Contains(lower, "/about") || strings.Contains(lower, "/contact") {
		score += 2
	}
	return score
}
