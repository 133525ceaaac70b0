// Package metrics provides Prometheus metrics for the capture task.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var registerOnce sync.Once

const (
	// Namespace is the Prometheus namespace for all task metrics.
	Namespace = "debezium"

	// Subsystem constants for metric organization.
	SubsystemTask     = "task"
	SubsystemQueue    = "queue"
	SubsystemSnapshot = "snapshot"
)

// Label constants for consistent labeling across metrics.
const (
	LabelTable     = "table"
	LabelOperation = "operation"
	LabelErrorType = "error_type"
)

var (
	// Task metrics

	// TaskState represents the current task state (0=stopped, 1=running).
	TaskState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemTask,
			Name:      "state",
			Help:      "Current task state (0=stopped, 1=running)",
		},
	)

	// EventsPolledTotal counts the events returned to the host by poll.
	EventsPolledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemTask,
			Name:      "events_polled_total",
			Help:      "Total number of events returned by poll",
		},
		[]string{LabelTable, LabelOperation},
	)

	// PollBatchesTotal counts poll invocations that returned a non-empty batch.
	PollBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemTask,
			Name:      "poll_batches_total",
			Help:      "Total number of non-empty poll batches",
		},
	)

	// CommitsTotal counts position commits forwarded to the coordinator.
	CommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemTask,
			Name:      "commits_total",
			Help:      "Total number of committed positions",
		},
	)

	// ErrorsTotal counts task-level errors by type.
	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemTask,
			Name:      "errors_total",
			Help:      "Total number of task errors",
		},
		[]string{LabelErrorType},
	)

	// Queue metrics

	// QueueDepth tracks the number of events buffered in the change event queue.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemQueue,
			Name:      "depth",
			Help:      "Number of events buffered in the change event queue",
		},
	)

	// EventsDispatchedTotal counts events dispatched into the queue.
	EventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemQueue,
			Name:      "events_dispatched_total",
			Help:      "Total number of events dispatched into the queue",
		},
		[]string{LabelTable, LabelOperation},
	)

	// EventsFilteredTotal counts events dropped by the table filter.
	EventsFilteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemQueue,
			Name:      "events_filtered_total",
			Help:      "Total number of events dropped by the table filter",
		},
	)

	// Snapshot metrics

	// SnapshotRowsScannedTotal counts rows scanned during the initial snapshot.
	SnapshotRowsScannedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSnapshot,
			Name:      "rows_scanned_total",
			Help:      "Total number of rows scanned during the initial snapshot",
		},
		[]string{LabelTable},
	)

	// allMetrics contains all metrics for registration.
	allMetrics = []prometheus.Collector{
		// Task
		TaskState,
		EventsPolledTotal,
		PollBatchesTotal,
		CommitsTotal,
		ErrorsTotal,
		// Queue
		QueueDepth,
		EventsDispatchedTotal,
		EventsFilteredTotal,
		// Snapshot
		SnapshotRowsScannedTotal,
	}
)

// Register registers all task metrics with the default Prometheus registry.
// It is safe to call multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		for _, m := range allMetrics {
			prometheus.MustRegister(m)
		}
	})
}

// RegisterWith registers all task metrics with the given registry.
func RegisterWith(reg prometheus.Registerer) {
	for _, m := range allMetrics {
		reg.MustRegister(m)
	}
}

// NewRegistry creates a new Prometheus registry with all task metrics
// and standard Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	RegisterWith(reg)

	return reg
}
