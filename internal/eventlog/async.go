package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/ayusman/mudra/pkg/logger"
)

const (
	defaultQueueSize    = 256
	defaultDrainTimeout = 5 * time.Second
)

// AsyncOption configures an Async sink.
type AsyncOption func(*Async)

// WithQueueSize sets the buffer capacity.
func WithQueueSize(n int) AsyncOption {
	return func(a *Async) { a.size = n }
}

// WithOnError sets the callback for inner write failures.
func WithOnError(f func(error)) AsyncOption {
	return func(a *Async) { a.onErr = f }
}

// WithDropOnFull drops entries instead of blocking when the queue is full.
func WithDropOnFull() AsyncOption {
	return func(a *Async) { a.dropOnFull = true }
}

type entry struct {
	rec *Record
	ann *Annotation
}

// Async moves writes off the caller's goroutine. Entries reach the inner
// sink in submission order.
type Async struct {
	inner      Sink
	ch         chan entry
	done       chan struct{}
	onErr      func(error)
	size       int
	dropOnFull bool
	closeOnce  sync.Once
	log        logger.Logger
}

// NewAsync starts the drain goroutine immediately.
func NewAsync(inner Sink, opts ...AsyncOption) *Async {
	a := &Async{
		inner: inner,
		size:  defaultQueueSize,
		log:   logger.Named("eventlog"),
	}
	a.onErr = func(err error) {
		a.log.Warn(context.Background(), "async sink write failed", logger.Error(err))
	}
	for _, opt := range opts {
		opt(a)
	}
	a.ch = make(chan entry, a.size)
	a.done = make(chan struct{})
	go a.drain()
	return a
}

func (a *Async) WriteRecord(_ context.Context, rec Record) error {
	a.enqueue(entry{rec: &rec})
	return nil
}

func (a *Async) WriteAnnotation(_ context.Context, ann Annotation) error {
	a.enqueue(entry{ann: &ann})
	return nil
}

func (a *Async) enqueue(e entry) {
	if a.dropOnFull {
		select {
		case a.ch <- e:
		default:
			a.log.Warn(context.Background(), "async sink full, dropping entry")
		}
		return
	}
	a.ch <- e
}

// Close drains pending entries (bounded by a timeout) and closes the
// inner sink.
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.ch)
		select {
		case <-a.done:
		case <-time.After(defaultDrainTimeout):
			a.log.Warn(context.Background(), "async sink drain timed out")
		}
		err = a.inner.Close()
	})
	return err
}

func (a *Async) drain() {
	defer close(a.done)
	ctx := context.Background()
	for e := range a.ch {
		var err error
		if e.rec != nil {
			err = a.inner.WriteRecord(ctx, *e.rec)
		} else {
			err = a.inner.WriteAnnotation(ctx, *e.ann)
		}
		if err != nil {
			a.onErr(err)
		}
	}
}
