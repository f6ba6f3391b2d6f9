package gesture

import (
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

// GateConfig controls when a hand is trusted enough to classify.
type GateConfig struct {
	// MinHandSpan is the smallest bounding-box span accepted.
	MinHandSpan float64
	// RequiredFrames is how many consecutive accepted frames are needed
	// before classifiers run.
	RequiredFrames int
	// HistorySize bounds the wrist history.
	HistorySize int
}

// DefaultGateConfig returns the standard gate.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinHandSpan:    0.08,
		RequiredFrames: 3,
		HistorySize:    10,
	}
}

// observation is the per-frame pose digest shared by the classifiers.
type observation struct {
	at         time.Time
	x, y       float64
	fingers    int
	palmFacing bool
	span       float64
	score      float64
}

func observe(h *detector.HandLandmarks, at time.Time) observation {
	x, y := h.WristXY()
	return observation{
		at:         at,
		x:          x,
		y:          y,
		fingers:    h.ExtendedFingers(),
		palmFacing: h.PalmFacing(),
		span:       h.Span(),
		score:      h.Score,
	}
}

// track is the per-hand state owned by the engine.
type track struct {
	side        string
	present     bool
	consecutive int
	history     []PathPoint

	sweep      sweepState
	activate   activateState
	deactivate deactivateState
}

func newTrack(side string, historySize int) *track {
	return &track{side: side, history: make([]PathPoint, 0, historySize)}
}

// admit runs the gate for a visible hand and reports whether classifiers
// may run on it this frame.
func (g GateConfig) admit(t *track, o observation) bool {
	t.present = true
	if o.span < g.MinHandSpan {
		t.consecutive = 0
		return false
	}
	t.consecutive++
	t.pushHistory(PathPoint{X: o.x, Y: o.y, At: o.at}, g.HistorySize)
	return t.consecutive >= g.RequiredFrames
}

func (t *track) pushHistory(p PathPoint, size int) {
	if size <= 0 {
		return
	}
	if len(t.history) == size {
		copy(t.history, t.history[1:])
		t.history = t.history[:size-1]
	}
	t.history = append(t.history, p)
}

// reset clears everything the track knows. Calling it on an already-reset
// track leaves it unchanged.
func (t *track) reset() {
	t.present = false
	t.consecutive = 0
	t.history = t.history[:0]
	t.resetClassifiers()
}

func (t *track) resetClassifiers() {
	t.sweep = sweepState{}
	t.activate = activateState{}
	t.deactivate = deactivateState{}
}

func (t *track) historyCopy() []PathPoint {
	return append([]PathPoint(nil), t.history...)
}
