package capture

import (
	"context"
	"log/slog"

	"github.com/pinterest/debezium/internal/metrics"
)

// Enqueuer is the producer side of the change event queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev Event) error
}

// TableFilter decides whether events for a table are captured.
type TableFilter func(id TableID) bool

// AllTables is a TableFilter that captures every table.
func AllTables(TableID) bool { return true }

// TableAllowList returns a TableFilter that captures only the given tables.
// An empty list captures everything.
func TableAllowList(ids []TableID) TableFilter {
	if len(ids) == 0 {
		return AllTables
	}
	allowed := make(map[TableID]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	return func(id TableID) bool {
		_, ok := allowed[id]
		return ok
	}
}

// Dispatcher emits captured events into the bounded event queue, applying
// the configured table filter.
type Dispatcher struct {
	queue  Enqueuer
	filter TableFilter
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher bound to the given queue.
func NewDispatcher(queue Enqueuer, filter TableFilter, logger *slog.Logger) *Dispatcher {
	if filter == nil {
		filter = AllTables
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		queue:  queue,
		filter: filter,
		logger: logger.With("component", "dispatcher"),
	}
}

// Dispatch enqueues an event, blocking while the queue is full. Events for
// filtered-out tables are dropped and counted.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	if !d.filter(ev.TableID()) {
		metrics.EventsFilteredTotal.Inc()
		return nil
	}

	if err := d.queue.Enqueue(ctx, ev); err != nil {
		return err
	}

	metrics.EventsDispatchedTotal.WithLabelValues(string(ev.TableID()), string(ev.Operation)).Inc()
	return nil
}
