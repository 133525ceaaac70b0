// Package queue provides the bounded change-event queue between the capture
// producer and the polling consumer.
package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/pinterest/debezium/internal/capture"
	"github.com/pinterest/debezium/internal/metrics"
)

// Config holds queue configuration.
type Config struct {
	// PollInterval is how long Poll waits for the first event before
	// returning an empty batch.
	PollInterval time.Duration

	// MaxBatchSize is the maximum number of events returned by a single Poll.
	MaxBatchSize int

	// MaxQueueSize is the capacity of the queue. Enqueue blocks once the
	// queue holds this many events.
	MaxQueueSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 500 * time.Millisecond,
		MaxBatchSize: 2048,
		MaxQueueSize: 8192,
	}
}

// Queue is a bounded FIFO of capture events. A single producer goroutine
// enqueues while a single consumer drains; both sides honor context
// cancellation. Arrival order is preserved.
type Queue struct {
	cfg    Config
	logger *slog.Logger
	events chan capture.Event
}

// New creates a queue with the given configuration.
func New(cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = DefaultConfig().MaxQueueSize
	}

	return &Queue{
		cfg:    cfg,
		logger: logger.With("component", "event-queue"),
		events: make(chan capture.Event, cfg.MaxQueueSize),
	}
}

// Enqueue adds an event to the queue, blocking while the queue is full.
// It returns the context error if ctx expires before space is available.
func (q *Queue) Enqueue(ctx context.Context, ev capture.Event) error {
	select {
	case q.events <- ev:
		metrics.QueueDepth.Set(float64(len(q.events)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll drains currently available events, up to MaxBatchSize, preserving
// arrival order. It waits up to PollInterval for the first event; if none
// arrives the returned batch is empty but never nil. It returns the context
// error if ctx expires while waiting.
func (q *Queue) Poll(ctx context.Context) ([]capture.Event, error) {
	batch := make([]capture.Event, 0, q.cfg.MaxBatchSize)

	timer := time.NewTimer(q.cfg.PollInterval)
	defer timer.Stop()

	select {
	case ev := <-q.events:
		batch = append(batch, ev)
	case <-timer.C:
		return batch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// First event arrived; take whatever else is already buffered.
	for len(batch) < q.cfg.MaxBatchSize {
		select {
		case ev := <-q.events:
			batch = append(batch, ev)
		default:
			metrics.QueueDepth.Set(float64(len(q.events)))
			return batch, nil
		}
	}

	metrics.QueueDepth.Set(float64(len(q.events)))
	return batch, nil
}

// Depth returns the number of events currently buffered.
func (q *Queue) Depth() int {
	return len(q.events)
}

// Capacity returns the configured maximum queue size.
func (q *Queue) Capacity() int {
	return q.cfg.MaxQueueSize
}
