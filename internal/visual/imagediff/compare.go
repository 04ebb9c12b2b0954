// Package imagediff computes pixel-level differences between screenshots.
package imagediff

import (
	"bytes"
	"fmt"
	"image"

	// Screenshot decoders for the formats drivers produce.
	_ "image/jpeg"
	_ "image/png"

	"github.com/pagelens/pagelens/internal/core"
)

// channelDelta is the per-channel noise threshold: a pixel counts as
// different only when some RGB channel differs by more than this. Screenshot
// noise (anti-aliasing, font rendering) stays below it on identical pages.
const channelDelta = 30

// Classification thresholds in percent. The middle band goes to a human:
// a binary cutoff either alarms on render noise or lets regressions slide.
const (
	passedBelow = 1.0
	failedFrom  = 5.0
)

// Result is the verdict of one comparison.
type Result struct {
	Status          core.ComparisonStatus `json:"status"`
	DiffPercent     float64               `json:"diff_percent"`
	DifferingPixels int                   `json:"differing_pixels"`
	TotalPixels     int                   `json:"total_pixels"`
	Width           int                   `json:"width"`
	Height          int                   `json:"height"`
}

// Compare decodes two screenshot payloads and diffs them. Decode failures
// wrap core.ErrComparisonFailed so the checkpoint engine can persist the
// checkpoint with an error marker instead of dropping it.
func Compare(candidate, baseline []byte) (Result, error) {
	candImg, _, err := image.Decode(bytes.NewReader(candidate))
	if err != nil {
		return Result{}, fmt.Errorf("%w: decode candidate: %v", core.ErrComparisonFailed, err)
	}
	baseImg, _, err := image.Decode(bytes.NewReader(baseline))
	if err != nil {
		return Result{}, fmt.Errorf("%w: decode baseline: %v", core.ErrComparisonFailed, err)
	}
	return CompareImages(candImg, baseImg), nil
}

// CompareImages diffs two decoded images over their shared dimensions. When
// sizes differ the comparison covers the smaller shared region; images are
// never upsampled.
func CompareImages(candidate, baseline image.Image) Result {
	cb, bb := candidate.Bounds(), baseline.Bounds()
	width := min(cb.Dx(), bb.Dx())
	height := min(cb.Dy(), bb.Dy())

	total := width * height
	if total == 0 {
		return Result{Status: core.ComparisonPassed, Width: width, Height: height}
	}

	differing := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			cr, cg, cbl, _ := candidate.At(cb.Min.X+x, cb.Min.Y+y).RGBA()
			br, bg, bbl, _ := baseline.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			if channelDiffers(cr, br) || channelDiffers(cg, bg) || channelDiffers(cbl, bbl) {
				differing++
			}
		}
	}

	percent := float64(differing) / float64(total) * 100
	return Result{
		Status:          classify(percent),
		DiffPercent:     percent,
		DifferingPixels: differing,
		TotalPixels:     total,
		Width:           width,
		Height:          height,
	}
}

// channelDiffers compares one 16-bit color channel pair against the 8-bit
// noise threshold.
func channelDiffers(a, b uint32) bool {
	av, bv := int(a>>8), int(b>>8)
	d := av - bv
	if d < 0 {
		d = -d
	}
	return d > channelDelta
}

func classify(percent float64) core.ComparisonStatus {
	switch {
	case percent < passedBelow:
		return core.ComparisonPassed
	case percent < failedFrom:
		return core.ComparisonReviewNeeded
	default:
		return core.ComparisonFailed
	}
}
