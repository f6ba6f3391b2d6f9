package gesture

import (
	"math"
	"time"

	"github.com/ayusman/mudra/internal/intent"
)

// ActivateConfig describes the fist-then-open-palm sequence.
type ActivateConfig struct {
	ClosedMax      int // a fist has at most this many extended fingers
	OpenMin        int // an open palm has at least this many
	MinFistHold    time.Duration
	MinOpenHold    time.Duration
	DriftTolerance float64 // max wrist travel while the open palm is held
	// TransitionWindow is how long ambiguous poses are tolerated between
	// the last fist frame and the first open frame.
	TransitionWindow time.Duration
	// MaxSequence is the upper end of the temporal-fit window.
	MaxSequence time.Duration
}

// DefaultActivateConfig returns the standard activate thresholds.
func DefaultActivateConfig() ActivateConfig {
	return ActivateConfig{
		ClosedMax:        1,
		OpenMin:          4,
		MinFistHold:      100 * time.Millisecond,
		MinOpenHold:      150 * time.Millisecond,
		DriftTolerance:   0.04,
		TransitionWindow: 600 * time.Millisecond,
		MaxSequence:      2 * time.Second,
	}
}

type activatePhase uint8

const (
	activateIdle activatePhase = iota
	activateFistHeld
	activateOpenHeld
)

func (p activatePhase) String() string {
	switch p {
	case activateFistHeld:
		return "fist_held"
	case activateOpenHeld:
		return "open_held"
	}
	return "idle"
}

type activateState struct {
	phase     activatePhase
	fistStart time.Time
	lastFist  time.Time
	openStart time.Time
	anchorX   float64
	anchorY   float64
}

func (c ActivateConfig) isFist(o observation) bool { return o.fingers <= c.ClosedMax }

func (c ActivateConfig) isOpen(o observation) bool {
	return o.fingers >= c.OpenMin && o.palmFacing
}

func (c ActivateConfig) advance(s *activateState, o observation, w Weights) (candidate, bool) {
	switch s.phase {
	case activateFistHeld:
		switch {
		case c.isFist(o):
			s.lastFist = o.at
		case c.isOpen(o):
			if s.lastFist.Sub(s.fistStart) < c.MinFistHold {
				*s = activateState{}
				return candidate{}, false
			}
			s.phase = activateOpenHeld
			s.openStart = o.at
			s.anchorX, s.anchorY = o.x, o.y
		default:
			if o.at.Sub(s.lastFist) > c.TransitionWindow {
				*s = activateState{}
			}
		}
		return candidate{}, false

	case activateOpenHeld:
		drift := math.Hypot(o.x-s.anchorX, o.y-s.anchorY)
		if !c.isOpen(o) || drift >= c.DriftTolerance {
			*s = activateState{}
			c.enter(s, o)
			return candidate{}, false
		}
		held := o.at.Sub(s.openStart)
		if held < c.MinOpenHold {
			return candidate{}, false
		}

		stability := 1.0
		if c.DriftTolerance > 0 {
			stability = 1 - drift/c.DriftTolerance
		}
		elapsed := o.at.Sub(s.fistStart)
		fit := temporalFit(elapsed, c.MinFistHold+c.MinOpenHold, c.MaxSequence)
		return candidate{
			intent:     intent.OpenMenu,
			trigger:    TriggerActivate,
			confidence: w.Score(o.score, stability, fit, o.span),
			summary: Summary{
				Duration:    elapsed,
				Fingers:     o.fingers,
				PalmFacing:  o.palmFacing,
				Drift:       drift,
				Span:        o.span,
				Margin:      clamp01(stability),
				TemporalFit: fit,
			},
		}, true

	default:
		c.enter(s, o)
		return candidate{}, false
	}
}

// enter starts a new sequence from Idle when the hand is a fist.
func (c ActivateConfig) enter(s *activateState, o observation) {
	if c.isFist(o) {
		s.phase = activateFistHeld
		s.fistStart = o.at
		s.lastFist = o.at
	}
}
