// Package features flattens a gesture proposal into the fixed numeric
// vector consumed by the student classifier and the calibration export.
package features

import (
	"math"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/intent"
)

// Names lists the numeric features in vector order.
var Names = []string{
	"swipeDisplacement", "swipeDuration", "peakVelocity",
	"fingersExtended", "handSide", "handSpan",
	"wristX", "wristY", "palmFacing",
	"wristVelocityX", "wristVelocityY", "stateConfidence",
}

// Vector is the flattened description of one proposal. Velocities are in
// normalized image units per second and durations in milliseconds.
type Vector struct {
	SwipeDisplacement float64       `json:"swipeDisplacement"`
	SwipeDuration     float64       `json:"swipeDuration"`
	PeakVelocity      float64       `json:"peakVelocity"`
	FingersExtended   float64       `json:"fingersExtended"`
	HandSide          float64       `json:"handSide"` // 1 right, 0 left
	HandSpan          float64       `json:"handSpan"`
	WristX            float64       `json:"wristX"`
	WristY            float64       `json:"wristY"`
	PalmFacing        float64       `json:"palmFacing"`
	WristVelocityX    float64       `json:"wristVelocityX"`
	WristVelocityY    float64       `json:"wristVelocityY"`
	StateConfidence   float64       `json:"stateConfidence"`
	GestureType       intent.Intent `json:"gestureType"`
}

// Extract builds the vector for a proposal.
func Extract(p *gesture.Proposal) Vector {
	if p == nil {
		return Vector{GestureType: intent.None}
	}
	wx, wy := p.Landmarks.WristXY()
	v := Vector{
		SwipeDuration:   float64(p.Summary.Duration.Milliseconds()),
		FingersExtended: float64(p.Summary.Fingers),
		HandSpan:        p.Summary.Span,
		WristX:          wx,
		WristY:          wy,
		StateConfidence: p.Confidence,
		GestureType:     p.Intent,
	}
	if p.Hand == detector.Right {
		v.HandSide = 1
	}
	if p.Summary.PalmFacing {
		v.PalmFacing = 1
	}

	if p.Trigger == gesture.TriggerSweep {
		v.SwipeDisplacement = math.Abs(p.Summary.Displacement)
	} else if n := len(p.History); n > 1 {
		v.SwipeDisplacement = math.Abs(p.History[n-1].X - p.History[0].X)
	}

	v.PeakVelocity, v.WristVelocityX, v.WristVelocityY = velocities(p.History)
	return v
}

// velocities returns the peak speed along the path and the velocity over
// its last step.
func velocities(path []gesture.PathPoint) (peak, vx, vy float64) {
	for i := 1; i < len(path); i++ {
		dt := path[i].At.Sub(path[i-1].At).Seconds()
		if dt <= 0 {
			continue
		}
		dx := (path[i].X - path[i-1].X) / dt
		dy := (path[i].Y - path[i-1].Y) / dt
		peak = math.Max(peak, math.Hypot(dx, dy))
		vx, vy = dx, dy
	}
	return peak, vx, vy
}

// Numeric returns the features in Names order.
func (v Vector) Numeric() []float64 {
	return []float64{
		v.SwipeDisplacement, v.SwipeDuration, v.PeakVelocity,
		v.FingersExtended, v.HandSide, v.HandSpan,
		v.WristX, v.WristY, v.PalmFacing,
		v.WristVelocityX, v.WristVelocityY, v.StateConfidence,
	}
}

// Map returns the numeric features keyed by name.
func (v Vector) Map() map[string]float64 {
	vals := v.Numeric()
	m := make(map[string]float64, len(Names))
	for i, name := range Names {
		m[name] = vals[i]
	}
	return m
}

// OneHot encodes the gesture type over the actionable intents.
func (v Vector) OneHot() []float64 {
	all := intent.All()
	out := make([]float64, len(all))
	for i, in := range all {
		if v.GestureType == in {
			out[i] = 1
		}
	}
	return out
}
