package app

import (
	"bytes"
	"context"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/pkg/logger"
	"github.com/ayusman/mudra/pkg/metrics"
)

// runPipeline is the frame loop. It reads the camera at IdleFPS until motion
// is seen, then at ActiveFPS until IdleAfter passes without motion. Every
// active frame is JPEG-encoded once; the bytes feed the evidence window, the
// MJPEG stream and, when supported, the detector.
func (a *App) runPipeline(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	active := false
	lastMotion := time.Now()
	ticker := time.NewTicker(time.Second / time.Duration(a.config.IdleFPS))
	defer ticker.Stop()

	setFPS := func(fps int) {
		a.camera.SetFPS(fps)
		a.fps.Store(int64(fps))
		ticker.Reset(time.Second / time.Duration(fps))
	}

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if !a.IsEnabled() {
			continue
		}

		frame, err := a.camera.ReadFrame()
		if err != nil {
			metrics.RecordFrameSkipped()
			a.log.Debug(ctx, "read frame", logger.Error(err))
			continue
		}

		now := time.Now()
		if moved, _ := a.motion.Detect(frame); moved {
			lastMotion = now
			if !active {
				active = true
				setFPS(a.config.ActiveFPS)
				a.log.Debug(ctx, "switched to active mode")
			}
		} else if active && now.Sub(lastMotion) > a.config.IdleAfter {
			active = false
			setFPS(a.config.IdleFPS)
			a.log.Debug(ctx, "switched to idle mode")
		}

		if !active {
			frame.Close()
			metrics.RecordFrameSkipped()
			continue
		}

		jpeg := a.encode(frame)
		hands, err := a.detect(frame, jpeg)
		frame.Close()
		if err != nil {
			metrics.RecordDetectorFailure()
			a.log.Warn(ctx, "detect hands", logger.Error(err))
			continue
		}
		metrics.RecordFrameProcessed()

		if _, err := a.HandleFrame(ctx, now, hands, jpeg); err != nil {
			a.log.Error(ctx, "handle frame", logger.Error(err))
		}
	}
}

// encode returns the frame as JPEG, or nil if encoding fails.
func (a *App) encode(frame *gocv.Mat) []byte {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame,
		[]int{int(gocv.IMWriteJpegQuality), a.config.JPEGQuality})
	if err != nil {
		a.log.Debug(context.Background(), "encode frame", logger.Error(err))
		return nil
	}
	defer buf.Close()
	return bytes.Clone(buf.GetBytes())
}

func (a *App) detect(frame *gocv.Mat, jpeg []byte) ([]detector.HandLandmarks, error) {
	start := time.Now()
	defer func() {
		metrics.RecordDetectorLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()
	if jd, ok := a.detector.(detector.JPEGDetector); ok && jpeg != nil {
		return jd.DetectJPEG(jpeg)
	}
	return a.detector.Detect(frame)
}
