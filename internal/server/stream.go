package server

import (
	"fmt"
	"net/http"
	"time"
)

// FrameSource provides the most recent JPEG-encoded camera frame.
type FrameSource interface {
	LatestJPEG() (jpeg []byte, at time.Time, ok bool)
}

// StreamHandler serves MJPEG frames from a FrameSource.
type StreamHandler struct {
	frames   FrameSource
	interval time.Duration
}

// NewStreamHandler creates a new StreamHandler polling at ~15 FPS.
func NewStreamHandler(frames FrameSource) *StreamHandler {
	return &StreamHandler{frames: frames, interval: 66 * time.Millisecond}
}

// ServeHTTP streams MJPEG frames until the client disconnects. A frame is
// written only when it is newer than the last one sent.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last time.Time
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		buf, at, ok := h.frames.LatestJPEG()
		if !ok || !at.After(last) {
			continue
		}
		last = at

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(buf))
		if _, err := w.Write(buf); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
