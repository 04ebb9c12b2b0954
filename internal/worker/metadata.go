package worker

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pagelens/pagelens/internal/core"
)

// trackedMetaNames are the meta tags worth persisting per page.
var trackedMetaNames = map[string]struct{}{
	"description":    {},
	"keywords":       {},
	"robots":         {},
	"og:title":       {},
	"og:description": {},
	"og:type":        {},
}

// extractMetadata parses the page HTML for structural details. Parsing is
// best-effort: a broken document yields whatever was salvageable.
func extractMetadata(html string) core.PageMetadata {
	meta := core.PageMetadata{
		MetaTags: map[string]string{},
		Headings: map[string][]string{},
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return meta
	}

	meta.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok {
			name, ok = s.Attr("property")
		}
		if !ok {
			return
		}
		name = strings.ToLower(name)
		if _, tracked := trackedMetaNames[name]; !tracked {
			return
		}
		if content, ok := s.Attr("content"); ok {
			meta.MetaTags[name] = content
		}
	})
	meta.MetaDescription = meta.MetaTags["description"]

	for _, level := range []string{"h1", "h2", "h3"} {
		doc.Find(level).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if text != "" {
				meta.Headings[level] = append(meta.Headings[level], text)
			}
		})
	}

	meta.LinkCount = doc.Find("a[href]").Length()
	meta.ImageCount = doc.Find("img").Length()
	return meta
}

// classifyPage assigns a page type from URL and title heuristics.
func classifyPage(url, title string) core.PageClass {
	lowerURL := strings.ToLower(url)
	lowerTitle := strings.ToLower(title)

	path := lowerURL
	if i := strings.Index(lowerURL, "://"); i >= 0 {
		rest := lowerURL[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			path = rest[j:]
		} else {
			path = "/"
		}
	}

	if path == "/" || path == "" || strings.Contains(lowerTitle, "home") {
		return core.PageHomepage
	}
	switch {
	case strings.Contains(path, "/product"):
		return core.PageProduct
	case strings.Contains(path, "/category"):
		return core.PageCategory
	case strings.Contains(path, "/blog"):
		return core.PageArticle
	case strings.Contains(path, "/contact"):
		return core.PageContact
	case strings.Contains(path, "/about"):
		return core.PageAbout
	default:
		return core.PageOther
	}
}
