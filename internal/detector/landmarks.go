// Package detector turns camera frames into per-hand keypoints. It owns the
// landmark type consumed by the gesture engine and the tracker backends
// that produce it.
package detector

import (
	"errors"
	"fmt"
	"math"
)

// Keypoint indices in MediaPipe hand-landmarker order.
const (
	Wrist = iota
	ThumbCMC
	ThumbMCP
	ThumbIP
	ThumbTip
	IndexMCP
	IndexPIP
	IndexDIP
	IndexTip
	MiddleMCP
	MiddlePIP
	MiddleDIP
	MiddleTip
	RingMCP
	RingPIP
	RingDIP
	RingTip
	PinkyMCP
	PinkyPIP
	PinkyDIP
	PinkyTip
	NumLandmarks
)

// Point3D is a keypoint in normalized image coordinates. X and Y are in
// [0,1] of frame width and height; Z is relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks is one tracked hand in one frame.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"`
	Score      float64               `json:"score"`
}

var (
	ErrHandedness = errors.New("detector: unknown handedness")
	ErrScore      = errors.New("detector: score out of range")
	ErrPoint      = errors.New("detector: non-finite keypoint")
)

// Validate reports whether h can be fed to the gesture engine.
func (h *HandLandmarks) Validate() error {
	if h.Handedness != Left && h.Handedness != Right {
		return fmt.Errorf("%w: %q", ErrHandedness, h.Handedness)
	}
	if h.Score < 0 || h.Score > 1 || math.IsNaN(h.Score) {
		return fmt.Errorf("%w: %v", ErrScore, h.Score)
	}
	for i, p := range h.Points {
		if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
			return fmt.Errorf("%w: index %d", ErrPoint, i)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// canonicalHandedness maps tracker labels ("left", "RIGHT") to Left/Right.
// Anything else is returned unchanged so Validate rejects it.
func canonicalHandedness(s string) string {
	switch s {
	case "Left", "left", "LEFT":
		return Left
	case "Right", "right", "RIGHT":
		return Right
	}
	return s
}
