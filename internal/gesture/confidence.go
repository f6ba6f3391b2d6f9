package gesture

import (
	"math"
	"time"
)

// Weights blend the confidence terms. They need not sum to one; the
// score is clamped to [0, 1].
type Weights struct {
	Detector float64
	Margin   float64
	Temporal float64
	Size     float64

	// ReferenceSpan is the hand span that earns a full size term.
	ReferenceSpan float64
}

// DefaultWeights returns the standard 0.40/0.25/0.20/0.15 blend.
func DefaultWeights() Weights {
	return Weights{
		Detector:      0.40,
		Margin:        0.25,
		Temporal:      0.20,
		Size:          0.15,
		ReferenceSpan: 0.2,
	}
}

// Score blends detector score, threshold margin, temporal fit and hand span.
func (w Weights) Score(detectorScore, margin, temporalFit, span float64) float64 {
	size := 1.0
	if w.ReferenceSpan > 0 {
		size = clamp01(span / w.ReferenceSpan)
	}
	return clamp01(w.Detector*clamp01(detectorScore) +
		w.Margin*clamp01(margin) +
		w.Temporal*clamp01(temporalFit) +
		w.Size*size)
}

// temporalFit is 1 at the centre of [lo, hi] and falls linearly to 0 at
// either end. Durations outside the window score 0. A degenerate window
// scores 1.
func temporalFit(elapsed, lo, hi time.Duration) float64 {
	if hi <= lo {
		return 1
	}
	if elapsed < lo || elapsed > hi {
		return 0
	}
	center := float64(lo+hi) / 2
	half := float64(hi-lo) / 2
	return clamp01(1 - math.Abs(float64(elapsed)-center)/half)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
