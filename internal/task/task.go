package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pinterest/debezium/internal/capture"
	"github.com/pinterest/debezium/internal/capture/coordinator"
	"github.com/pinterest/debezium/internal/capture/queue"
	pgsource "github.com/pinterest/debezium/internal/capture/source/postgres"
	"github.com/pinterest/debezium/internal/checkpoint"
	"github.com/pinterest/debezium/internal/config"
	"github.com/pinterest/debezium/internal/metrics"
	"github.com/pinterest/debezium/internal/snapshot"
)

// Coordinator drives the capture phases on behalf of the task.
type Coordinator interface {
	// Start launches the capture goroutine.
	Start(ctx context.Context) error

	// Stop cancels capture and waits for it to wind down. An error means
	// the coordinator may be in an inconsistent state.
	Stop(ctx context.Context) error

	// CommitPosition checkpoints a position the host has fully received.
	CommitPosition(ctx context.Context, pos capture.Position) error
}

// Connection is the task-owned connection to the source database.
type Connection interface {
	Close(ctx context.Context) error
}

// ChangeEventQueue is the bounded queue between the capture producer and
// the polling host.
type ChangeEventQueue interface {
	capture.Enqueuer
	EventQueue
}

// coordinatorDeps carries everything the coordinator builder needs.
type coordinatorDeps struct {
	cfg          *config.Config
	dispatcher   *capture.Dispatcher
	errorHandler *capture.ErrorHandler
	connection   Connection
	schema       *capture.SchemaModel
	progress     *snapshot.Progress
	logger       *slog.Logger
}

// builders create the task's collaborators. Tests substitute them to run
// the lifecycle against fakes.
type builders struct {
	queue       func(cfg queue.Config, logger *slog.Logger) ChangeEventQueue
	connection  func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Connection, error)
	coordinator func(ctx context.Context, deps coordinatorDeps) (Coordinator, error)
}

func defaultBuilders() builders {
	return builders{
		queue: func(cfg queue.Config, logger *slog.Logger) ChangeEventQueue {
			return queue.New(cfg, logger)
		},
		connection: func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Connection, error) {
			return pgsource.Connect(ctx, cfg.Source.URL(), logger)
		},
		coordinator: buildPostgresCoordinator,
	}
}

// buildPostgresCoordinator wires the default PostgreSQL capture stack: the
// pgstream streaming reader, the chunked snapshotter and the checkpoint
// store.
func buildPostgresCoordinator(ctx context.Context, d coordinatorDeps) (Coordinator, error) {
	srcCfg := pgsource.Config{
		Name:              d.cfg.TaskID,
		ConnectionURL:     d.cfg.Source.URL(),
		SlotName:          d.cfg.Replication.SlotName,
		PublicationName:   d.cfg.Replication.PublicationName,
		Tables:            d.cfg.Replication.Tables,
		EventBufferSize:   d.cfg.Task.MaxQueueSize,
		SnapshotChunkSize: d.cfg.Snapshot.ChunkSize,
	}

	reader, err := pgsource.NewReader(srcCfg, d.logger)
	if err != nil {
		return nil, fmt.Errorf("create streaming reader: %w", err)
	}

	var snapshots coordinator.SnapshotSource
	if d.cfg.Snapshot.Enabled {
		conn, ok := d.connection.(*pgsource.Connection)
		if !ok {
			return nil, fmt.Errorf("snapshot requires a postgres source connection, got %T", d.connection)
		}
		snapshots = pgsource.NewSnapshotter(srcCfg, conn, d.dispatcher, d.schema, d.progress, d.logger)
	}

	var store checkpoint.Store
	if d.cfg.Checkpoint.Enabled {
		store, err = checkpoint.NewPostgresStore(ctx, checkpoint.PostgresConfig{
			DSN:          d.cfg.Checkpoint.DSN,
			MaxOpenConns: d.cfg.Checkpoint.MaxOpenConns,
			MaxIdleConns: d.cfg.Checkpoint.MaxIdleConns,
		}, d.logger)
		if err != nil {
			return nil, fmt.Errorf("create checkpoint store: %w", err)
		}
	}

	coordCfg := coordinator.Config{
		TaskID:          d.cfg.TaskID,
		SnapshotEnabled: d.cfg.Snapshot.Enabled,
	}

	return coordinator.New(coordCfg, snapshots, reader, store, d.dispatcher, d.errorHandler, d.progress, d.logger), nil
}

// Task is the lifecycle controller of one capture task. It owns the
// running/stopped state, constructs the capture collaborators on Start,
// exposes Poll/Commit to the host, and tears everything down exactly once
// regardless of whether shutdown is caller-issued or error-triggered.
type Task struct {
	logger   *slog.Logger
	state    stateValue
	build    builders
	progress *snapshot.Progress

	// Collaborator handles. Created by the single Start that wins the CAS
	// and retained after a failed construction so Stop can still release
	// them. Never reset to nil.
	queue        ChangeEventQueue
	errorHandler *capture.ErrorHandler
	connection   Connection
	schema       *capture.SchemaModel
	coordinator  Coordinator
	offsets      *OffsetTracker
	poller       *BatchPoller
}

// New creates a stopped task. Start brings it to life.
func New(logger *slog.Logger) *Task {
	if logger == nil {
		logger = slog.Default()
	}

	return &Task{
		logger:   logger.With("component", "capture-task"),
		progress: snapshot.NewProgress(),
		build:    defaultBuilders(),
	}
}

// Start transitions the task to running and constructs the capture
// collaborators in dependency order. A Start while already running is a
// logged no-op. If construction fails the error is returned with the
// handles built so far retained, so Stop can still release them.
func (t *Task) Start(ctx context.Context, cfg *config.Config) error {
	if !t.state.CompareAndSwap(StateStopped, StateRunning) {
		t.logger.Info("task has already been started")
		return nil
	}
	metrics.TaskState.Set(1)

	t.logger.Info("starting capture task", "task_id", cfg.TaskID)

	t.offsets = NewOffsetTracker()
	t.queue = t.build.queue(queue.Config{
		PollInterval: cfg.Task.PollInterval,
		MaxBatchSize: cfg.Task.MaxBatchSize,
		MaxQueueSize: cfg.Task.MaxQueueSize,
	}, t.logger)
	t.poller = NewBatchPoller(t.queue, t.offsets, t.logger)

	t.errorHandler = capture.NewErrorHandler(func() {
		if err := t.cleanupResources(context.Background()); err != nil {
			t.logger.Error("error-triggered teardown failed", "error", err)
		}
	}, t.logger)

	conn, err := t.build.connection(ctx, cfg, t.logger)
	if err != nil {
		return fmt.Errorf("connect to source: %w", err)
	}
	t.connection = conn

	t.schema = capture.NewSchemaModel(t.logger)

	filter := capture.TableAllowList(tableIDs(cfg.Replication.Tables))
	dispatcher := capture.NewDispatcher(t.queue, filter, t.logger)

	coord, err := t.build.coordinator(ctx, coordinatorDeps{
		cfg:          cfg,
		dispatcher:   dispatcher,
		errorHandler: t.errorHandler,
		connection:   t.connection,
		schema:       t.schema,
		progress:     t.progress,
		logger:       t.logger,
	})
	if err != nil {
		return fmt.Errorf("create coordinator: %w", err)
	}
	t.coordinator = coord

	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}

	t.logger.Info("capture task started")
	return nil
}

// Poll returns the next ordered batch of captured events. It blocks up to
// the configured poll interval; an empty non-nil batch means no data is
// currently available. Failures propagate to the host, whose retry policy
// governs recovery.
func (t *Task) Poll(ctx context.Context) ([]capture.Event, error) {
	if t.poller == nil {
		return nil, ErrNotStarted
	}
	return t.poller.Poll(ctx)
}

// Commit forwards the most recently polled position to the coordinator's
// checkpoint mechanism. Before any non-empty poll it is a no-op.
func (t *Task) Commit(ctx context.Context) error {
	if t.offsets == nil || t.coordinator == nil {
		return ErrNotStarted
	}

	pos, ok := t.offsets.Last()
	if !ok {
		t.logger.Debug("no position recorded yet, skipping commit")
		return nil
	}

	if err := t.coordinator.CommitPosition(ctx, pos); err != nil {
		metrics.ErrorsTotal.WithLabelValues("commit").Inc()
		return err
	}

	metrics.CommitsTotal.Inc()
	return nil
}

// Stop tears the task down synchronously. It shares the CAS-guarded
// teardown with the error-triggered path, so racing stops are safe: the
// loser observes the already-stopped state and returns.
func (t *Task) Stop(ctx context.Context) error {
	return t.cleanupResources(ctx)
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	return t.state.Load()
}

// SnapshotMetrics returns the progress tracker for the initial data scan.
// It is readable at any point in the task's life, including before Start.
func (t *Task) SnapshotMetrics() *snapshot.Progress {
	return t.progress
}

// ProducerError returns the fatal producer-side failure that triggered an
// automatic teardown, if any. Hosts should treat a non-nil result as a
// failed task.
func (t *Task) ProducerError() error {
	if t.errorHandler == nil {
		return nil
	}
	return t.errorHandler.ProducerError()
}

// cleanupResources is the single teardown sequence. Exactly one caller wins
// the CAS and runs the steps; a coordinator stop failure is fatal and aborts
// the sequence, while later step failures are logged and isolated.
func (t *Task) cleanupResources(ctx context.Context) error {
	if !t.state.CompareAndSwap(StateRunning, StateStopped) {
		t.logger.Info("task has already been stopped")
		return nil
	}
	metrics.TaskState.Set(0)

	t.logger.Info("stopping capture task")

	if t.coordinator != nil {
		if err := t.coordinator.Stop(ctx); err != nil {
			// An interrupted coordinator may be mid-capture; continuing
			// the cleanup could release resources it still uses.
			metrics.ErrorsTotal.WithLabelValues("shutdown").Inc()
			t.logger.Error("interrupted while stopping coordinator", "error", err)
			return &ShutdownError{Step: "coordinator", Err: err}
		}
	}

	if t.errorHandler != nil {
		if err := t.errorHandler.Stop(ctx); err != nil {
			t.logger.Error("interrupted while stopping error handler", "error", err)
		}
	}

	if t.connection != nil {
		if err := t.connection.Close(ctx); err != nil {
			t.logger.Error("failed to close source connection", "error", err)
		}
	}

	if t.schema != nil {
		t.schema.Close()
	}

	t.logger.Info("capture task stopped")
	return nil
}

// tableIDs normalizes configured table names to schema-qualified IDs,
// defaulting bare names to the public schema.
func tableIDs(tables []string) []capture.TableID {
	ids := make([]capture.TableID, len(tables))
	for i, t := range tables {
		if !strings.Contains(t, ".") {
			t = "public." + t
		}
		ids[i] = capture.TableID(t)
	}
	return ids
}
