package core

import (
	"errors"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases host", "https://Example.COM/About", "https://example.com/About"},
		{"strips default https port", "https://example.com:443/a", "https://example.com/a"},
		{"strips default http port", "http://example.com:80/", "http://example.com/"},
		{"drops fragment", "https://example.com/page#section", "https://example.com/page"},
		{"sorts query", "https://example.com/p?b=2&a=1", "https://example.com/p?a=1&b=2"},
		{"trims trailing slash", "https://example.com/about/", "https://example.com/about"},
		{"keeps root slash", "https://example.com/", "https://example.com/"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeURL(tc.in)
			if err != nil {
				t.Fatalf("NormalizeURL(%q) error = %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("NormalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeURLRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "::bad::", "mailto:x@example.com", "javascript:void(0)", "/relative/only"} {
		if _, err := NormalizeURL(raw); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("NormalizeURL(%q) error = %v, want ErrInvalidURL", raw, err)
		}
	}
}

func TestResolveLink(t *testing.T) {
	t.Parallel()

	got, err := ResolveLink("https://example.com/shop/", "../about?x=1#top")
	if err != nil {
		t.Fatalf("ResolveLink error = %v", err)
	}
	if got != "https://example.com/about?x=1" {
		t.Fatalf("ResolveLink = %q", got)
	}
}

func TestProfileResolve(t *testing.T) {
	t.Parallel()

	cases := map[CheckpointProfile]Viewport{
		ProfileFullPage: {1280, 720},
		ProfileViewport: {1280, 720},
		ProfileMobile:   {375, 667},
		ProfileTablet:   {768, 1024},
	}
	for profile, want := range cases {
		vp, err := profile.Resolve()
		if err != nil {
			t.Fatalf("Resolve(%s) error = %v", profile, err)
		}
		if vp != want {
			t.Fatalf("Resolve(%s) = %v, want %v", profile, vp, want)
		}
	}
	if _, err := CheckpointProfile("desktop_4k").Resolve(); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}
