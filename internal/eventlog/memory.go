package eventlog

import (
	"context"
	"sync"
)

// Memory keeps everything in memory. Used by tests and the status API.
type Memory struct {
	mu          sync.Mutex
	records     []Record
	annotations []Annotation
	notify      chan struct{}
	closed      bool
}

func NewMemory() *Memory {
	return &Memory{notify: make(chan struct{}, 1)}
}

func (m *Memory) WriteRecord(_ context.Context, rec Record) error {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	m.signal()
	return nil
}

func (m *Memory) WriteAnnotation(_ context.Context, ann Annotation) error {
	m.mu.Lock()
	m.annotations = append(m.annotations, ann)
	m.mu.Unlock()
	m.signal()
	return nil
}

func (m *Memory) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Records returns a copy of the written records.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// Annotations returns a copy of the written annotations.
func (m *Memory) Annotations() []Annotation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Annotation(nil), m.annotations...)
}

// RecordsFor returns the records written for one event.
func (m *Memory) RecordsFor(id string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if r.EventID == id {
			out = append(out, r)
		}
	}
	return out
}

// Changed is signalled after every write.
func (m *Memory) Changed() <-chan struct{} { return m.notify }
