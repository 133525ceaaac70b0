package task

import (
	"context"
	"log/slog"

	"github.com/pinterest/debezium/internal/capture"
	"github.com/pinterest/debezium/internal/metrics"
)

// EventQueue is the consumer side of the bounded change event queue.
type EventQueue interface {
	// Poll drains currently available events up to the configured batch
	// size, blocking up to the poll interval for the first one. An empty
	// batch means no data is currently available.
	Poll(ctx context.Context) ([]capture.Event, error)
}

// BatchPoller drains the event queue into ordered batches and publishes the
// trailing position of each non-empty batch to the offset tracker.
type BatchPoller struct {
	queue   EventQueue
	offsets *OffsetTracker
	logger  *slog.Logger
}

// NewBatchPoller creates a poller over the given queue and tracker.
func NewBatchPoller(queue EventQueue, offsets *OffsetTracker, logger *slog.Logger) *BatchPoller {
	if logger == nil {
		logger = slog.Default()
	}

	return &BatchPoller{
		queue:   queue,
		offsets: offsets,
		logger:  logger.With("component", "batch-poller"),
	}
}

// Poll returns the next batch in arrival order, never transforming or
// reordering events. The batch is empty but non-nil when no data arrived
// within the poll interval. Queue failures propagate to the caller as
// retryable conditions.
func (p *BatchPoller) Poll(ctx context.Context) ([]capture.Event, error) {
	batch, err := p.queue.Poll(ctx)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		batch = []capture.Event{}
	}

	if len(batch) > 0 {
		last := batch[len(batch)-1]
		p.offsets.Record(last.Position)

		metrics.PollBatchesTotal.Inc()
		for i := range batch {
			metrics.EventsPolledTotal.WithLabelValues(
				string(batch[i].TableID()), string(batch[i].Operation),
			).Inc()
		}

		p.logger.Debug("polled batch", "events", len(batch))
	}

	return batch, nil
}
