package core

import "fmt"

// CheckpointProfile names a standard capture viewport. The set is closed so
// that viewport resolution is an exhaustive switch rather than a lookup in a
// loosely typed map.
type CheckpointProfile string

// Supported checkpoint profiles.
const (
	ProfileFullPage CheckpointProfile = "full_page"
	ProfileViewport CheckpointProfile = "viewport"
	ProfileMobile   CheckpointProfile = "mobile"
	ProfileTablet   CheckpointProfile = "tablet"
)

// Viewport is a capture surface size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (v Viewport) String() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// Valid reports whether p is a known profile.
func (p CheckpointProfile) Valid() bool {
	switch p {
	case ProfileFullPage, ProfileViewport, ProfileMobile, ProfileTablet:
		return true
	default:
		return false
	}
}

// FullPage reports whether captures under this profile should include the
// entire scroll height rather than just the visible viewport.
func (p CheckpointProfile) FullPage() bool {
	return p == ProfileFullPage
}

// Resolve returns the fixed viewport for the profile.
func (p CheckpointProfile) Resolve() (Viewport, error) {
	switch p {
	case ProfileFullPage, ProfileViewport:
		return Viewport{Width: 1280, Height: 720}, nil
	case ProfileMobile:
		return Viewport{Width: 375, Height: 667}, nil
	case ProfileTablet:
		return Viewport{Width: 768, Height: 1024}, nil
	default:
		return Viewport{}, fmt.Errorf("unknown checkpoint profile %q", p)
	}
}
