package detector

import (
	"time"

	"gocv.io/x/gocv"
)

// Detector defines the interface for hand detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected hand landmarks.
	// Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// JPEGDetector is implemented by detectors that can consume an already
// encoded frame. The pipeline encodes every frame once for the evidence
// window and reuses the bytes here.
type JPEGDetector interface {
	DetectJPEG(data []byte) ([]HandLandmarks, error)
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	// Hands scoring below it are dropped.
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// ScriptPath overrides the lookup of mediapipe_service.py.
	ScriptPath string

	// PythonPath overrides the interpreter lookup.
	PythonPath string

	// IdleTimeout stops the subprocess after this long without frames.
	IdleTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
		IdleTimeout:     30 * time.Second,
	}
}

// filter drops low-confidence hands and caps the result at MaxHands.
func (c Config) filter(hands []HandLandmarks) []HandLandmarks {
	out := hands[:0]
	for _, h := range hands {
		if h.Score < c.MinConfidence {
			continue
		}
		out = append(out, h)
		if c.MaxHands > 0 && len(out) == c.MaxHands {
			break
		}
	}
	return out
}
