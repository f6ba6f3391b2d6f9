package eventlog

import (
	"context"
	"errors"
)

// Multi fans out to several sinks. A failing sink does not stop delivery
// to the rest.
type Multi struct {
	sinks []Sink
}

// NewMulti skips nil sinks.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *Multi) WriteRecord(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.WriteRecord(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) WriteAnnotation(ctx context.Context, ann Annotation) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.WriteAnnotation(ctx, ann); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
