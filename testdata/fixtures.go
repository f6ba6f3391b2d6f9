// Package testdata builds synthetic landmark sequences for tests.
package testdata

import (
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

// DefaultInterval is the frame spacing of a 50 fps camera.
const DefaultInterval = 20 * time.Millisecond

// Step is one detector output in a sequence.
type Step struct {
	At    time.Time
	Hands []detector.HandLandmarks
}

// Sequence accumulates frames at a fixed interval.
type Sequence struct {
	next     time.Time
	interval time.Duration
	steps    []Step
}

// NewSequence starts a sequence whose first frame is at start.
func NewSequence(start time.Time, interval time.Duration) *Sequence {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sequence{next: start, interval: interval}
}

func (s *Sequence) frames(d time.Duration) int {
	n := int(d / s.interval)
	if n < 1 {
		n = 1
	}
	return n
}

func (s *Sequence) add(hands ...detector.HandLandmarks) {
	s.steps = append(s.steps, Step{At: s.next, Hands: hands})
	s.next = s.next.Add(s.interval)
}

// Hold emits d/interval identical frames of the given hands.
func (s *Sequence) Hold(d time.Duration, hands ...detector.HandLandmarks) *Sequence {
	for i := 0; i < s.frames(d); i++ {
		s.add(hands...)
	}
	return s
}

// Frames emits n identical frames.
func (s *Sequence) Frames(n int, hands ...detector.HandLandmarks) *Sequence {
	for i := 0; i < n; i++ {
		s.add(hands...)
	}
	return s
}

// Move emits d/interval frames translating hand linearly so that the last
// frame is displaced by exactly (dx, dy).
func (s *Sequence) Move(d time.Duration, hand detector.HandLandmarks, dx, dy float64) *Sequence {
	n := s.frames(d)
	for k := 1; k <= n; k++ {
		f := float64(k) / float64(n)
		s.add(hand.Translate(dx*f, dy*f))
	}
	return s
}

// Empty emits frames with no hands.
func (s *Sequence) Empty(d time.Duration) *Sequence {
	for i := 0; i < s.frames(d); i++ {
		s.add()
	}
	return s
}

// Skip advances the clock without emitting frames.
func (s *Sequence) Skip(d time.Duration) *Sequence {
	s.next = s.next.Add(d)
	return s
}

// After emits a single frame offset from the previous one.
func (s *Sequence) After(offset time.Duration, hands ...detector.HandLandmarks) *Sequence {
	s.next = s.next.Add(offset - s.interval)
	s.add(hands...)
	return s
}

// Next returns the timestamp of the next frame.
func (s *Sequence) Next() time.Time { return s.next }

// Steps returns the frames emitted so far.
func (s *Sequence) Steps() []Step {
	return append([]Step(nil), s.steps...)
}

// SizedPalm returns an open right palm scaled to the given span.
func SizedPalm(span float64) detector.HandLandmarks {
	open := detector.OpenPalmLandmarks()
	return open.Scale(span / open.Span())
}

// SizedFist returns a right fist scaled to the given span.
func SizedFist(span float64) detector.HandLandmarks {
	fist := detector.FistLandmarks()
	return fist.Scale(span / fist.Span())
}
