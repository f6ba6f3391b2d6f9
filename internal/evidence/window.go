// Package evidence keeps a short rolling window of recent frames so a
// proposal can be shipped to the verifier with visual context.
package evidence

import (
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

// DefaultCapacity holds roughly one second of frames at 30 fps.
const DefaultCapacity = 30

// Snapshot is one captured frame.
type Snapshot struct {
	Seq       uint64                   `json:"seq"`
	Timestamp time.Time                `json:"timestamp"`
	Hands     []detector.HandLandmarks `json:"hands,omitempty"`
	// Image is the JPEG-encoded frame. It is never modified after Push,
	// so copies share the backing array.
	Image []byte `json:"-"`
}

// Window is a fixed-capacity ring of snapshots. It is owned by the frame
// loop; readers get copies and never observe later writes.
type Window struct {
	buf  []Snapshot
	head int // next write position
	size int
	seq  uint64
}

// New creates a window. Non-positive capacity means DefaultCapacity.
func New(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{buf: make([]Snapshot, capacity)}
}

// Push records a frame, overwriting the oldest entry when full.
func (w *Window) Push(ts time.Time, hands []detector.HandLandmarks, image []byte) {
	w.seq++
	w.buf[w.head] = Snapshot{
		Seq:       w.seq,
		Timestamp: ts,
		Hands:     append([]detector.HandLandmarks(nil), hands...),
		Image:     image,
	}
	w.head = (w.head + 1) % len(w.buf)
	if w.size < len(w.buf) {
		w.size++
	}
}

// Len returns the number of buffered snapshots.
func (w *Window) Len() int { return w.size }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// at returns the i-th oldest snapshot.
func (w *Window) at(i int) Snapshot {
	start := (w.head - w.size + len(w.buf)) % len(w.buf)
	s := w.buf[(start+i)%len(w.buf)]
	s.Hands = append([]detector.HandLandmarks(nil), s.Hands...)
	return s
}

// Sample returns up to n snapshots spread evenly from oldest to newest,
// in chronological order. With n == 1 it returns the newest snapshot.
// An empty window or n <= 0 yields nil.
func (w *Window) Sample(n int) []Snapshot {
	d := w.size
	if n <= 0 || d == 0 {
		return nil
	}
	if n == 1 {
		return []Snapshot{w.at(d - 1)}
	}
	if n >= d {
		out := make([]Snapshot, d)
		for i := range out {
			out[i] = w.at(i)
		}
		return out
	}
	out := make([]Snapshot, n)
	for i := range out {
		out[i] = w.at(i * (d - 1) / (n - 1))
	}
	return out
}

// Latest returns the newest snapshot.
func (w *Window) Latest() (Snapshot, bool) {
	if w.size == 0 {
		return Snapshot{}, false
	}
	return w.at(w.size - 1), true
}

// Reset drops every snapshot. Sequence numbers keep increasing.
func (w *Window) Reset() {
	for i := range w.buf {
		w.buf[i] = Snapshot{}
	}
	w.head = 0
	w.size = 0
}
