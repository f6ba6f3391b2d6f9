package gesture

import (
	"math"
	"time"

	"github.com/ayusman/mudra/internal/intent"
)

// DeactivateConfig describes the open-palm-then-fist sequence.
type DeactivateConfig struct {
	ClosedMax   int
	OpenMin     int
	MinOpenHold time.Duration
	MinFistHold time.Duration
	// CloseWindow is how long ambiguous poses are tolerated after the open
	// hold is satisfied while the hand closes.
	CloseWindow time.Duration
	// MaxOpenHold restarts the sequence when the palm stays open too long.
	MaxOpenHold time.Duration
	// StillnessGuard aborts the sequence if the wrist drifts more than
	// DriftTolerance while the palm is open.
	StillnessGuard bool
	DriftTolerance float64
	MaxSequence    time.Duration
}

// DefaultDeactivateConfig returns the standard deactivate thresholds.
func DefaultDeactivateConfig() DeactivateConfig {
	return DeactivateConfig{
		ClosedMax:      1,
		OpenMin:        4,
		MinOpenHold:    150 * time.Millisecond,
		MinFistHold:    150 * time.Millisecond,
		CloseWindow:    400 * time.Millisecond,
		MaxOpenHold:    3 * time.Second,
		StillnessGuard: false,
		DriftTolerance: 0.06,
		MaxSequence:    2 * time.Second,
	}
}

type deactivatePhase uint8

const (
	deactivateIdle deactivatePhase = iota
	deactivateOpenSeen
	deactivateFistSeen
)

func (p deactivatePhase) String() string {
	switch p {
	case deactivateOpenSeen:
		return "open_seen"
	case deactivateFistSeen:
		return "fist_seen"
	}
	return "idle"
}

type deactivateState struct {
	phase     deactivatePhase
	openStart time.Time
	lastOpen  time.Time
	fistStart time.Time
	anchorX   float64
	anchorY   float64
}

// midSequence reports whether a deactivate sequence is in progress.
func (s *deactivateState) midSequence() bool { return s.phase != deactivateIdle }

func (c DeactivateConfig) isFist(o observation) bool { return o.fingers <= c.ClosedMax }
func (c DeactivateConfig) isOpen(o observation) bool { return o.fingers >= c.OpenMin }

// advance feeds one accepted observation. While activate is holding a
// sequence of its own, deactivate does not leave Idle and reports that it
// deferred.
func (c DeactivateConfig) advance(s *deactivateState, o observation, act activatePhase, w Weights) (cand candidate, fired, deferred bool) {
	switch s.phase {
	case deactivateIdle:
		if !c.isOpen(o) {
			return candidate{}, false, false
		}
		if act == activateFistHeld || act == activateOpenHeld {
			return candidate{}, false, true
		}
		s.phase = deactivateOpenSeen
		s.openStart = o.at
		s.lastOpen = o.at
		s.anchorX, s.anchorY = o.x, o.y
		return candidate{}, false, false

	case deactivateOpenSeen:
		if o.at.Sub(s.openStart) > c.MaxOpenHold {
			*s = deactivateState{}
			return candidate{}, false, false
		}
		if c.StillnessGuard && math.Hypot(o.x-s.anchorX, o.y-s.anchorY) >= c.DriftTolerance {
			*s = deactivateState{}
			return candidate{}, false, false
		}
		held := s.lastOpen.Sub(s.openStart) >= c.MinOpenHold
		switch {
		case c.isOpen(o):
			s.lastOpen = o.at
		case c.isFist(o):
			if !held {
				*s = deactivateState{}
				return candidate{}, false, false
			}
			s.phase = deactivateFistSeen
			s.fistStart = o.at
		default:
			if !held || o.at.Sub(s.lastOpen) > c.CloseWindow {
				*s = deactivateState{}
			}
		}
		return candidate{}, false, false

	case deactivateFistSeen:
		if !c.isFist(o) {
			*s = deactivateState{}
			return candidate{}, false, false
		}
		if o.at.Sub(s.fistStart) < c.MinFistHold {
			return candidate{}, false, false
		}
		openHeld := s.lastOpen.Sub(s.openStart)
		margin := 1.0
		if c.MinOpenHold > 0 {
			margin = float64(openHeld-c.MinOpenHold) / float64(c.MinOpenHold)
		}
		elapsed := o.at.Sub(s.openStart)
		fit := temporalFit(elapsed, c.MinOpenHold+c.MinFistHold, c.MaxSequence)
		return candidate{
			intent:     intent.CloseMenu,
			trigger:    TriggerDeactivate,
			confidence: w.Score(o.score, margin, fit, o.span),
			summary: Summary{
				Duration:    elapsed,
				Fingers:     o.fingers,
				PalmFacing:  o.palmFacing,
				Drift:       math.Hypot(o.x-s.anchorX, o.y-s.anchorY),
				Span:        o.span,
				Margin:      clamp01(margin),
				TemporalFit: fit,
			},
		}, true, false
	}
	return candidate{}, false, false
}
