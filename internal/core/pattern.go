package core

import (
	"regexp"
	"strings"
)

// MatchURLPattern reports whether url matches a baseline URL pattern. `*` is
// a wildcard; a pattern without wildcards must equal the URL exactly, which
// is the default authoring flow (every distinct URL gets its own baseline).
func MatchURLPattern(pattern, url string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == url
	}
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return false
	}
	return re.MatchString(url)
}
