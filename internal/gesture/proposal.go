// Package gesture turns per-frame hand landmarks into intent proposals.
//
// Each tracked hand runs three independent classifiers (sweep, activate,
// deactivate) behind a tracking gate. An arbiter resolves conflicts
// between them and a global cooldown limits how often the engine fires.
package gesture

import (
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/intent"
)

// Trigger names the classifier that produced a proposal.
type Trigger string

const (
	TriggerSweep      Trigger = "sweep"
	TriggerActivate   Trigger = "activate"
	TriggerDeactivate Trigger = "deactivate"
)

// Frame is one detector output: zero, one or two hands at a timestamp.
type Frame struct {
	Timestamp time.Time
	Hands     []detector.HandLandmarks
}

// PathPoint is one entry of a hand's wrist history.
type PathPoint struct {
	X  float64
	Y  float64
	At time.Time
}

// Summary describes the motion that satisfied a classifier.
type Summary struct {
	Displacement float64       // signed wrist x displacement over the sequence
	Duration     time.Duration // first frame of the sequence to the firing frame
	Fingers      int           // extended finger count on the firing frame
	PalmFacing   bool
	Drift        float64 // wrist drift during the hold phase
	Span         float64 // hand span on the firing frame
	Margin       float64 // normalized margin over the firing threshold
	TemporalFit  float64
}

// Proposal is the engine's candidate intent for one frame.
type Proposal struct {
	Intent        intent.Intent
	Trigger       Trigger
	Hand          string // detector.Left or detector.Right
	Confidence    float64
	DetectorScore float64
	Timestamp     time.Time
	Summary       Summary
	Landmarks     detector.HandLandmarks
	History       []PathPoint
}
