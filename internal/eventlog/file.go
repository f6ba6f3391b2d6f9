package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

const defaultBufSize = 64 * 1024

// Line kinds in the NDJSON log.
const (
	KindEvent      = "event"
	KindAnnotation = "annotation"
)

// Line is one NDJSON entry.
type Line struct {
	Kind       string      `json:"kind"`
	Event      *Record     `json:"event,omitempty"`
	Annotation *Annotation `json:"annotation,omitempty"`
}

// FileOption configures a FileSink.
type FileOption func(*FileSink)

// WithMaxSize sets the file size in bytes at which the log rotates.
// 0 disables rotation.
func WithMaxSize(bytes int64) FileOption {
	return func(f *FileSink) { f.maxSize = bytes }
}

// WithSync flushes after every line.
func WithSync() FileOption {
	return func(f *FileSink) { f.sync = true }
}

// FileSink appends records as NDJSON with buffered I/O and optional
// size-based rotation.
type FileSink struct {
	mu      sync.Mutex
	w       *bufio.Writer
	f       *os.File
	path    string
	maxSize int64
	written int64
	sync    bool
}

// NewFile opens (or creates) path for appending.
func NewFile(path string, opts ...FileOption) (*FileSink, error) {
	s := &FileSink{path: path}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSink) WriteRecord(_ context.Context, rec Record) error {
	return s.write(Line{Kind: KindEvent, Event: &rec})
}

func (s *FileSink) WriteAnnotation(_ context.Context, ann Annotation) error {
	return s.write(Line{Kind: KindAnnotation, Annotation: &ann})
}

func (s *FileSink) write(l Line) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("eventlog: marshal: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSize > 0 && s.written+int64(len(data)) > s.maxSize {
		if err := s.rotate(); err != nil {
			return fmt.Errorf("eventlog: rotate: %w", err)
		}
	}
	n, err := s.w.Write(data)
	s.written += int64(n)
	if err != nil {
		return fmt.Errorf("eventlog: write: %w", err)
	}
	if s.sync {
		return s.w.Flush()
	}
	return nil
}

// Flush writes buffered lines to the file.
func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

// Close flushes and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return fmt.Errorf("eventlog: flush: %w", err)
	}
	return s.f.Close()
}

func (s *FileSink) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("eventlog: open %s: %w", s.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("eventlog: stat %s: %w", s.path, err)
	}
	s.f = f
	s.w = bufio.NewWriterSize(f, defaultBufSize)
	s.written = info.Size()
	return nil
}

// rotate shifts path.N to path.N+1 and reopens path empty.
func (s *FileSink) rotate() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	if err := s.f.Close(); err != nil {
		return err
	}
	for i := 9; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", s.path, i), fmt.Sprintf("%s.%d", s.path, i+1))
	}
	if err := os.Rename(s.path, s.path+".1"); err != nil {
		return err
	}
	s.written = 0
	return s.open()
}

// ReadLines decodes an NDJSON log.
func ReadLines(r io.Reader) ([]Line, error) {
	var out []Line
	dec := json.NewDecoder(r)
	for {
		var l Line
		if err := dec.Decode(&l); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, fmt.Errorf("eventlog: decode line %d: %w", len(out)+1, err)
		}
		out = append(out, l)
	}
}
