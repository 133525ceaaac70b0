package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pinterest/debezium/internal/capture"
	"github.com/pinterest/debezium/internal/capture/queue"
	"github.com/pinterest/debezium/internal/config"
)

// fakeQueue is an in-memory ChangeEventQueue fed directly by tests.
type fakeQueue struct {
	mu      sync.Mutex
	pending []capture.Event
}

func (q *fakeQueue) Enqueue(_ context.Context, ev capture.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, ev)
	return nil
}

func (q *fakeQueue) Poll(context.Context) ([]capture.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.pending
	q.pending = nil
	if batch == nil {
		batch = []capture.Event{}
	}
	return batch, nil
}

type fakeConnection struct {
	closeErr   error
	closeCalls atomic.Int32
}

func (c *fakeConnection) Close(context.Context) error {
	c.closeCalls.Add(1)
	return c.closeErr
}

type fakeCoordinator struct {
	startErr  error
	stopErr   error
	commitErr error

	mu        sync.Mutex
	started   int
	stopped   int
	committed []capture.Position
}

func (c *fakeCoordinator) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
	return c.startErr
}

func (c *fakeCoordinator) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped++
	return c.stopErr
}

func (c *fakeCoordinator) CommitPosition(_ context.Context, pos capture.Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commitErr != nil {
		return c.commitErr
	}
	c.committed = append(c.committed, pos)
	return nil
}

func (c *fakeCoordinator) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *fakeCoordinator) lastCommitted() (capture.Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.committed) == 0 {
		return nil, false
	}
	return c.committed[len(c.committed)-1], true
}

// testHarness wires a task with fakes substituted for the real collaborators.
type testHarness struct {
	task        *Task
	queue       *fakeQueue
	connection  *fakeConnection
	coordinator *fakeCoordinator
	deps        coordinatorDeps

	connectionBuilds atomic.Int32
}

func newHarness() *testHarness {
	h := &testHarness{
		queue:       &fakeQueue{},
		connection:  &fakeConnection{},
		coordinator: &fakeCoordinator{},
	}

	h.task = New(slog.Default())
	h.task.build = builders{
		queue: func(queue.Config, *slog.Logger) ChangeEventQueue {
			return h.queue
		},
		connection: func(context.Context, *config.Config, *slog.Logger) (Connection, error) {
			h.connectionBuilds.Add(1)
			return h.connection, nil
		},
		coordinator: func(_ context.Context, deps coordinatorDeps) (Coordinator, error) {
			h.deps = deps
			return h.coordinator, nil
		},
	}

	return h
}

func testConfig() *config.Config {
	return &config.Config{
		TaskID: "test-task",
		Task: config.TaskConfig{
			PollInterval:   10 * time.Millisecond,
			MaxBatchSize:   16,
			MaxQueueSize:   64,
			CommitInterval: time.Second,
		},
	}
}

func TestTask_StartIsIdempotent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.task.Start(ctx, testConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := h.task.Start(ctx, testConfig()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if got := h.connectionBuilds.Load(); got != 1 {
		t.Errorf("connection built %d times, want 1", got)
	}
	if got := h.task.State(); got != StateRunning {
		t.Errorf("State() = %v, want %v", got, StateRunning)
	}
}

func TestTask_PollBeforeStart(t *testing.T) {
	h := newHarness()

	if _, err := h.task.Poll(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Poll() error = %v, want ErrNotStarted", err)
	}
	if err := h.task.Commit(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Commit() error = %v, want ErrNotStarted", err)
	}
}

func TestTask_PollTracksLastPosition(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.task.Start(ctx, testConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	events := []capture.Event{
		{ID: "1", Position: capture.Position{"lsn": "0/10"}},
		{ID: "2", Position: capture.Position{"lsn": "0/20"}},
		{ID: "3", Position: capture.Position{"lsn": "0/30"}},
	}
	for _, ev := range events {
		if err := h.queue.Enqueue(ctx, ev); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	batch, err := h.task.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("Poll() returned %d events, want 3", len(batch))
	}

	if err := h.task.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	pos, ok := h.coordinator.lastCommitted()
	if !ok {
		t.Fatal("expected a committed position")
	}
	if pos["lsn"] != "0/30" {
		t.Errorf("committed position lsn = %v, want 0/30 (from the last event of the batch)", pos["lsn"])
	}
}

func TestTask_EmptyPollKeepsLastPosition(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.task.Start(ctx, testConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	h.queue.Enqueue(ctx, capture.Event{ID: "1", Position: capture.Position{"lsn": "0/10"}})
	if _, err := h.task.Poll(ctx); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	// An empty poll must not regress the recorded position.
	if _, err := h.task.Poll(ctx); err != nil {
		t.Fatalf("empty Poll() error = %v", err)
	}

	if err := h.task.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	pos, ok := h.coordinator.lastCommitted()
	if !ok {
		t.Fatal("expected a committed position")
	}
	if pos["lsn"] != "0/10" {
		t.Errorf("committed position lsn = %v, want 0/10", pos["lsn"])
	}
}

func TestTask_CommitBeforeAnyPoll(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.task.Start(ctx, testConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := h.task.Commit(ctx); err != nil {
		t.Fatalf("Commit() before any poll error = %v, want nil no-op", err)
	}

	if _, ok := h.coordinator.lastCommitted(); ok {
		t.Error("expected no commit forwarded before the first non-empty poll")
	}
}

func TestTask_StopSequence(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.task.Start(ctx, testConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := h.task.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := h.coordinator.stopCount(); got != 1 {
		t.Errorf("coordinator stopped %d times, want 1", got)
	}
	if got := h.connection.closeCalls.Load(); got != 1 {
		t.Errorf("connection closed %d times, want 1", got)
	}
	if got := h.task.State(); got != StateStopped {
		t.Errorf("State() = %v, want %v", got, StateStopped)
	}

	// A second stop is a no-op.
	if err := h.task.Stop(ctx); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if got := h.coordinator.stopCount(); got != 1 {
		t.Errorf("coordinator stopped %d times after repeat stop, want 1", got)
	}
}

func TestTask_StopCoordinatorFailureIsFatal(t *testing.T) {
	h := newHarness()
	h.coordinator.stopErr = errors.New("interrupted")
	ctx := context.Background()

	if err := h.task.Start(ctx, testConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	err := h.task.Stop(ctx)
	var shutdownErr *ShutdownError
	if !errors.As(err, &shutdownErr) {
		t.Fatalf("Stop() error = %v, want *ShutdownError", err)
	}
	if shutdownErr.Step != "coordinator" {
		t.Errorf("ShutdownError.Step = %q, want coordinator", shutdownErr.Step)
	}

	// The remaining teardown steps are aborted.
	if got := h.connection.closeCalls.Load(); got != 0 {
		t.Errorf("connection closed %d times, want 0 after coordinator stop failure", got)
	}
}

func TestTask_StopIsolatesConnectionCloseFailure(t *testing.T) {
	h := newHarness()
	h.connection.closeErr = errors.New("broken pipe")
	ctx := context.Background()

	if err := h.task.Start(ctx, testConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// A registered schema lets us observe that the schema model's close
	// still runs after the connection close fails.
	h.task.schema.Register(capture.TableSchema{Schema: "public", Table: "users"})

	if err := h.task.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v, want nil despite connection close failure", err)
	}
	if got := h.task.State(); got != StateStopped {
		t.Errorf("State() = %v, want %v", got, StateStopped)
	}
	if got := h.connection.closeCalls.Load(); got != 1 {
		t.Errorf("connection closed %d times, want 1", got)
	}
	if _, ok := h.task.schema.Lookup(capture.NewTableID("public", "users")); ok {
		t.Error("schema model still holds tables, close step was skipped")
	}
}

func TestTask_ConcurrentStops(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.task.Start(ctx, testConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.task.Stop(ctx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Stop() #%d error = %v", i, err)
		}
	}
	if got := h.coordinator.stopCount(); got != 1 {
		t.Errorf("coordinator stopped %d times, want exactly 1", got)
	}
}

func TestTask_FailedStartRetainsHandlesForStop(t *testing.T) {
	h := newHarness()
	h.task.build.coordinator = func(context.Context, coordinatorDeps) (Coordinator, error) {
		return nil, errors.New("no slot available")
	}
	ctx := context.Background()

	if err := h.task.Start(ctx, testConfig()); err == nil {
		t.Fatal("Start() error = nil, want coordinator construction failure")
	}

	// The task stays formally running with partial handles; Stop releases them.
	if got := h.task.State(); got != StateRunning {
		t.Fatalf("State() after failed start = %v, want %v", got, StateRunning)
	}
	if err := h.task.Stop(ctx); err != nil {
		t.Fatalf("Stop() after failed start error = %v", err)
	}
	if got := h.connection.closeCalls.Load(); got != 1 {
		t.Errorf("connection closed %d times, want 1", got)
	}
}

func TestTask_ProducerErrorTriggersTeardown(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.task.Start(ctx, testConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	failure := fmt.Errorf("replication slot dropped")
	h.deps.errorHandler.SetProducerError(failure)

	deadline := time.After(2 * time.Second)
	for h.task.State() != StateStopped {
		select {
		case <-deadline:
			t.Fatal("task did not stop after producer error")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if got := h.coordinator.stopCount(); got != 1 {
		t.Errorf("coordinator stopped %d times, want 1", got)
	}
	if err := h.task.ProducerError(); !errors.Is(err, failure) {
		t.Errorf("ProducerError() = %v, want %v", err, failure)
	}
}

func TestTask_SnapshotMetricsAvailableBeforeStart(t *testing.T) {
	h := newHarness()

	p := h.task.SnapshotMetrics()
	if p == nil {
		t.Fatal("SnapshotMetrics() = nil before start")
	}
	if p.Running() {
		t.Error("expected snapshot not running before start")
	}
}
