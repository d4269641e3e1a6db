package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

const (
	// asyncQueueSize bounds the number of records waiting for a worker.
	// Beyond this the handler drops rather than backpressures the pipeline.
	asyncQueueSize = 4096
	asyncWorkers   = 2
)

// Closer flushes and stops the logging pipeline on shutdown.
type Closer interface {
	Close()
}

// nopCloser is the Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler decouples log emission from I/O with a buffered channel and
// a small worker pool. Records that arrive while the queue is full are
// counted and dropped.
type AsyncHandler struct {
	inner   slog.Handler
	queue   chan asyncItem
	wg      *sync.WaitGroup
	dropped *atomic.Int64
}

// asyncItem pairs a record with the handler it was logged through, so
// attributes attached via WithAttrs or WithGroup survive the queue.
type asyncItem struct {
	rec   slog.Record
	inner slog.Handler
}

// NewAsyncHandler starts workers draining into inner.
func NewAsyncHandler(inner slog.Handler, queueSize, workers int) *AsyncHandler {
	h := &AsyncHandler{
		inner:   inner,
		queue:   make(chan asyncItem, queueSize),
		wg:      &sync.WaitGroup{},
		dropped: &atomic.Int64{},
	}
	for range workers {
		h.wg.Add(1)
		go h.work()
	}
	return h
}

func (h *AsyncHandler) work() {
	defer h.wg.Done()
	for it := range h.queue {
		_ = it.inner.Handle(context.Background(), it.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, dropping when the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.queue <- asyncItem{rec: rec, inner: h.inner}:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs wraps a derived inner handler over the shared queue.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithAttrs(attrs),
		queue:   h.queue,
		wg:      h.wg,
		dropped: h.dropped,
	}
}

// WithGroup wraps a derived inner handler over the shared queue.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithGroup(name),
		queue:   h.queue,
		wg:      h.wg,
		dropped: h.dropped,
	}
}

// DroppedCount returns the number of records dropped so far.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close stops accepting records and waits for the workers to drain.
func (h *AsyncHandler) Close() {
	close(h.queue)
	h.wg.Wait()
}
