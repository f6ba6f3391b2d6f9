package detector

import "math"

// Handedness labels reported by the detector.
const (
	Left  = "Left"
	Right = "Right"
)

// Thresholds for the finger extension heuristic.
const (
	fingerExtensionRatio = 1.2
	thumbExtensionRatio  = 1.1
)

var fingerJoints = [4][2]int{
	{IndexPIP, IndexTip},
	{MiddlePIP, MiddleTip},
	{RingPIP, RingTip},
	{PinkyPIP, PinkyTip},
}

func distance2D(a, b Point3D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// ExtendedFingers counts extended fingers, thumb included (0..5).
// A finger is extended when its tip lies clearly farther from the wrist
// than its PIP joint. The thumb is measured against the pinky MCP since
// it folds across the palm rather than toward the wrist.
func (h *HandLandmarks) ExtendedFingers() int {
	wrist := h.Points[Wrist]
	n := 0
	for _, j := range fingerJoints {
		if distance2D(h.Points[j[1]], wrist) > fingerExtensionRatio*distance2D(h.Points[j[0]], wrist) {
			n++
		}
	}
	pinky := h.Points[PinkyMCP]
	if distance2D(h.Points[ThumbTip], pinky) > thumbExtensionRatio*distance2D(h.Points[ThumbIP], pinky) {
		n++
	}
	return n
}

// PalmNormalZ is the z component of (IndexMCP-Wrist) x (PinkyMCP-Wrist)
// in image coordinates.
func (h *HandLandmarks) PalmNormalZ() float64 {
	w := h.Points[Wrist]
	ax, ay := h.Points[IndexMCP].X-w.X, h.Points[IndexMCP].Y-w.Y
	bx, by := h.Points[PinkyMCP].X-w.X, h.Points[PinkyMCP].Y-w.Y
	return ax*by - ay*bx
}

// PalmFacing estimates whether the palm faces the camera. The sign of the
// palm normal flips between left and right hands.
func (h *HandLandmarks) PalmFacing() bool {
	z := h.PalmNormalZ()
	if h.Handedness == Left {
		return z > 0
	}
	return z < 0
}

// Span is the larger side of the landmark bounding box in normalized
// image coordinates.
func (h *HandLandmarks) Span() float64 {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range h.Points {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	return math.Max(maxX-minX, maxY-minY)
}

// Size is the wrist to middle MCP distance, a pose-independent scale.
func (h *HandLandmarks) Size() float64 {
	return distance2D(h.Points[Wrist], h.Points[MiddleMCP])
}

// WristXY returns the wrist position.
func (h *HandLandmarks) WristXY() (float64, float64) {
	return h.Points[Wrist].X, h.Points[Wrist].Y
}

// Translate returns a copy of h shifted by (dx, dy).
func (h HandLandmarks) Translate(dx, dy float64) HandLandmarks {
	for i := range h.Points {
		h.Points[i].X += dx
		h.Points[i].Y += dy
	}
	return h
}

// Scale returns a copy of h scaled about the wrist.
func (h HandLandmarks) Scale(factor float64) HandLandmarks {
	w := h.Points[Wrist]
	for i := range h.Points {
		h.Points[i].X = w.X + (h.Points[i].X-w.X)*factor
		h.Points[i].Y = w.Y + (h.Points[i].Y-w.Y)*factor
		h.Points[i].Z *= factor
	}
	return h
}

// Mirror returns a copy of h reflected about the wrist's vertical axis with
// the opposite handedness.
func (h HandLandmarks) Mirror() HandLandmarks {
	w := h.Points[Wrist]
	for i := range h.Points {
		h.Points[i].X = 2*w.X - h.Points[i].X
	}
	if h.Handedness == Left {
		h.Handedness = Right
	} else {
		h.Handedness = Left
	}
	return h
}
