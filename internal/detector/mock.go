package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector returns whatever the caller last configured. It backs tests
// and stands in when the MediaPipe service cannot be found.
type MockDetector struct {
	mu    sync.Mutex
	hands []HandLandmarks
	err   error
	calls int
}

func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands replaces the result of subsequent detections.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	m.hands = append([]HandLandmarks(nil), hands...)
	m.mu.Unlock()
}

// SetError makes subsequent detections fail with err. A nil err clears it.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *MockDetector) Detect(*gocv.Mat) ([]HandLandmarks, error) {
	return m.DetectJPEG(nil)
}

func (m *MockDetector) DetectJPEG([]byte) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]HandLandmarks(nil), m.hands...), nil
}

// Calls is the number of detections served so far.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockDetector) Close() error { return nil }
