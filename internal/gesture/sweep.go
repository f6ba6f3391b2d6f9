package gesture

import (
	"math"
	"time"

	"github.com/ayusman/mudra/internal/intent"
)

// SweepConfig bounds a horizontal wrist sweep.
type SweepConfig struct {
	MinDisplacement float64
	MinDuration     time.Duration
	MaxDuration     time.Duration
}

// DefaultSweepConfig returns the standard sweep thresholds.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		MinDisplacement: 0.15,
		MinDuration:     100 * time.Millisecond,
		MaxDuration:     600 * time.Millisecond,
	}
}

type sweepPhase uint8

const (
	sweepIdle sweepPhase = iota
	sweepTracking
)

func (p sweepPhase) String() string {
	if p == sweepTracking {
		return "tracking"
	}
	return "idle"
}

type sweepState struct {
	phase    sweepPhase
	anchorX  float64
	anchorAt time.Time
}

func (s *sweepState) anchor(o observation) {
	s.phase = sweepTracking
	s.anchorX = o.x
	s.anchorAt = o.at
}

// candidate is a classifier's firing result before the engine turns it
// into a Proposal.
type candidate struct {
	intent     intent.Intent
	trigger    Trigger
	confidence float64
	summary    Summary
}

// advance feeds one accepted observation. Decreasing x proposes
// SWITCH_LEFT, increasing x proposes SWITCH_RIGHT.
func (c SweepConfig) advance(s *sweepState, o observation, w Weights) (candidate, bool) {
	if s.phase == sweepIdle {
		s.anchor(o)
		return candidate{}, false
	}

	elapsed := o.at.Sub(s.anchorAt)
	if elapsed > c.MaxDuration {
		s.anchor(o)
		return candidate{}, false
	}

	dx := o.x - s.anchorX
	if math.Abs(dx) < c.MinDisplacement || elapsed < c.MinDuration {
		return candidate{}, false
	}

	in := intent.SwitchRight
	if dx < 0 {
		in = intent.SwitchLeft
	}

	margin := 1.0
	if c.MinDisplacement > 0 {
		margin = (math.Abs(dx) - c.MinDisplacement) / c.MinDisplacement
	}
	fit := temporalFit(elapsed, c.MinDuration, c.MaxDuration)

	return candidate{
		intent:     in,
		trigger:    TriggerSweep,
		confidence: w.Score(o.score, margin, fit, o.span),
		summary: Summary{
			Displacement: dx,
			Duration:     elapsed,
			Fingers:      o.fingers,
			PalmFacing:   o.palmFacing,
			Span:         o.span,
			Margin:       clamp01(margin),
			TemporalFit:  fit,
		},
	}, true
}
