package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	// AnalysisWidth is the width frames are shrunk to before differencing.
	AnalysisWidth = 160
	// BlurSize is the Gaussian kernel applied to the shrunk frame.
	BlurSize = 7
	// DiffThreshold is the per-pixel intensity change counted as motion.
	DiffThreshold = 25
)

// MotionDetector compares each frame with the previous one and reports the
// percentage of pixels that changed. The first frame after construction or
// Reset only sets the baseline.
type MotionDetector struct {
	mu          sync.Mutex
	threshold   float64
	prev        gocv.Mat
	initialized bool
}

// NewMotionDetector creates a detector that reports motion when more than
// threshold percent of pixels change.
func NewMotionDetector(threshold float64) *MotionDetector {
	return &MotionDetector{threshold: threshold, prev: gocv.NewMat()}
}

// Detect returns whether the frame moved relative to the last one and the
// changed-pixel percentage.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	cur := prepare(frame)
	if !m.initialized || cur.Rows() != m.prev.Rows() || cur.Cols() != m.prev.Cols() {
		m.prev.Close()
		m.prev = cur
		m.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(cur, m.prev, &diff)
	gocv.Threshold(diff, &diff, DiffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(diff)) / float64(diff.Rows()*diff.Cols()) * 100

	m.prev.Close()
	m.prev = cur
	return changed > m.threshold, changed
}

// prepare converts to a blurred grayscale image at AnalysisWidth.
func prepare(frame *gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	if gray.Cols() > AnalysisWidth {
		h := gray.Rows() * AnalysisWidth / gray.Cols()
		small := gocv.NewMat()
		gocv.Resize(gray, &small, image.Pt(AnalysisWidth, max(h, 1)), 0, 0, gocv.InterpolationArea)
		gray.Close()
		gray = small
	}

	out := gocv.NewMat()
	gocv.GaussianBlur(gray, &out, image.Pt(BlurSize, BlurSize), 0, 0, gocv.BorderDefault)
	gray.Close()
	return out
}

// Reset drops the baseline.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prev.Close()
	m.prev = gocv.NewMat()
	m.initialized = false
}

// Close releases the baseline. The detector stays usable.
func (m *MotionDetector) Close() { m.Reset() }

// SetThreshold changes the motion threshold. Non-positive values are ignored.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
}

// Threshold returns the current threshold.
func (m *MotionDetector) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}
