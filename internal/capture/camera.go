// Package capture reads frames from a camera and gates the detector on
// frame-to-frame motion.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/pkg/logger"
)

// Default camera settings.
const (
	DefaultFPS    = 5
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when reading from a closed camera.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrEmptyFrame is returned when the device delivers no image.
	ErrEmptyFrame = errors.New("camera delivered an empty frame")
)

// Camera is a frame source. ReadFrame hands ownership of the Mat to the
// caller, who must Close it.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// CameraOption configures an OpenCV camera.
type CameraOption func(*cameraImpl)

// WithResolution requests a capture size. Devices may pick the nearest
// supported mode.
func WithResolution(width, height int) CameraOption {
	return func(c *cameraImpl) {
		if width > 0 && height > 0 {
			c.width, c.height = width, height
		}
	}
}

// WithCameraLogger sets the logger.
func WithCameraLogger(l logger.Logger) CameraOption {
	return func(c *cameraImpl) { c.log = l }
}

type cameraImpl struct {
	deviceID int
	width    int
	height   int
	log      logger.Logger

	mu      sync.Mutex
	capture *gocv.VideoCapture
	fps     int
}

// NewCamera creates an OpenCV camera for the given device index.
func NewCamera(deviceID int, opts ...CameraOption) Camera {
	c := &cameraImpl{
		deviceID: deviceID,
		width:    DefaultWidth,
		height:   DefaultHeight,
		fps:      DefaultFPS,
		log:      logger.Named("camera"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open opens the device. Opening an open camera is a no-op.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		return fmt.Errorf("open video capture %d: %w", c.deviceID, err)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.height))
	vc.Set(gocv.VideoCaptureFPS, float64(c.fps))
	c.capture = vc

	c.log.Info(context.Background(), "camera opened",
		logger.Int("device", c.deviceID),
		logger.Int("width", int(vc.Get(gocv.VideoCaptureFrameWidth))),
		logger.Int("height", int(vc.Get(gocv.VideoCaptureFrameHeight))))
	return nil
}

// Close releases the device.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	return err
}

func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, ErrEmptyFrame
	}
	return &mat, nil
}

// SetFPS changes the requested frame rate. Non-positive values are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps
	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil
}
