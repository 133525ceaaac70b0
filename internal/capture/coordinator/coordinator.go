// Package coordinator runs the capture phases: the initial snapshot scan
// followed by streaming, feeding events into the dispatcher and reporting
// progress and failures.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pinterest/debezium/internal/capture"
	"github.com/pinterest/debezium/internal/checkpoint"
	"github.com/pinterest/debezium/internal/snapshot"
)

// StreamingSource produces change events from the source's change log.
type StreamingSource interface {
	// Start begins capturing. The returned channels receive events and
	// errors until the context is cancelled or the source fails.
	Start(ctx context.Context) (<-chan capture.Event, <-chan error)

	// Stop gracefully stops the source and releases its resources.
	Stop(ctx context.Context) error

	// Name returns the name of this source.
	Name() string
}

// SnapshotSource performs the initial data scan, dispatching read events
// and driving the table-level progress callbacks.
type SnapshotSource interface {
	// Execute runs the scan to completion or until ctx is cancelled.
	Execute(ctx context.Context) error

	// Name returns the name of this source.
	Name() string
}

// FailureReporter receives fatal producer-side failures.
type FailureReporter interface {
	SetProducerError(err error)
}

// Config holds coordinator configuration.
type Config struct {
	// TaskID is the logical name of the capture task, used as the
	// checkpoint key.
	TaskID string

	// SnapshotEnabled turns the initial snapshot phase on or off.
	SnapshotEnabled bool
}

// Coordinator sequences the snapshot and streaming phases on a background
// goroutine and forwards committed positions to the checkpoint store.
type Coordinator struct {
	cfg       Config
	snapshots SnapshotSource
	streaming StreamingSource
	store     checkpoint.Store
	events    *capture.Dispatcher
	failures  FailureReporter
	progress  *snapshot.Progress
	logger    *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a coordinator. The snapshot source and checkpoint store may be
// nil when the corresponding features are disabled.
func New(
	cfg Config,
	snapshots SnapshotSource,
	streaming StreamingSource,
	store checkpoint.Store,
	events *capture.Dispatcher,
	failures FailureReporter,
	progress *snapshot.Progress,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		cfg:       cfg,
		snapshots: snapshots,
		streaming: streaming,
		store:     store,
		events:    events,
		failures:  failures,
		progress:  progress,
		logger:    logger.With("component", "coordinator", "task_id", cfg.TaskID),
		done:      make(chan struct{}),
	}
}

// Start launches the capture goroutine. It returns an error if the
// coordinator was already started.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("coordinator already started")
	}
	c.started = true

	// The capture goroutine outlives the Start call; it is bound to the
	// coordinator's own context, cancelled by Stop.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel

	go c.run(runCtx)

	c.logger.Info("coordinator started",
		"snapshot_enabled", c.cfg.SnapshotEnabled && c.snapshots != nil,
		"streaming_source", c.streaming.Name(),
	)

	return nil
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)

	resume, err := c.loadResumePosition(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.failures.SetProducerError(fmt.Errorf("load checkpoint: %w", err))
		}
		return
	}

	if resume != nil {
		c.logger.Info("resuming from committed checkpoint, skipping snapshot", "position", resume)
	} else if c.cfg.SnapshotEnabled && c.snapshots != nil {
		if err := c.runSnapshot(ctx); err != nil {
			if ctx.Err() == nil {
				c.failures.SetProducerError(fmt.Errorf("snapshot failed: %w", err))
			}
			return
		}
	}

	c.runStreaming(ctx)
}

// loadResumePosition returns the position a previous run committed for this
// task, or nil when the task starts fresh and must snapshot. A checkpoint
// holding an empty position cannot be resumed from and is discarded.
func (c *Coordinator) loadResumePosition(ctx context.Context) (capture.Position, error) {
	if c.store == nil {
		return nil, nil
	}

	cp, err := c.store.Load(ctx, c.cfg.TaskID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, nil
	}

	if len(cp.Position) == 0 {
		c.logger.Warn("discarding checkpoint with empty position")
		if err := c.store.Delete(ctx, c.cfg.TaskID); err != nil {
			c.logger.Warn("failed to delete empty checkpoint", "error", err)
		}
		return nil, nil
	}

	return cp.Position, nil
}

func (c *Coordinator) runSnapshot(ctx context.Context) error {
	c.logger.Info("starting snapshot phase", "source", c.snapshots.Name())

	c.progress.SnapshotStarted()
	if err := c.snapshots.Execute(ctx); err != nil {
		c.progress.SnapshotAborted()
		c.logger.Error("snapshot aborted", "error", err)
		return err
	}

	c.progress.SnapshotCompleted()
	c.logger.Info("snapshot completed",
		"tables", c.progress.TotalTableCount(),
		"duration_seconds", c.progress.DurationSeconds(),
	)
	return nil
}

func (c *Coordinator) runStreaming(ctx context.Context) {
	c.logger.Info("starting streaming phase", "source", c.streaming.Name())

	events, errs := c.streaming.Start(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("streaming stopping", "reason", ctx.Err())
			return

		case err := <-errs:
			if err == nil {
				continue
			}
			if ctx.Err() == nil {
				c.failures.SetProducerError(fmt.Errorf("streaming failed: %w", err))
			}
			return

		case ev, ok := <-events:
			if !ok {
				c.logger.Info("streaming event channel closed")
				return
			}
			if err := c.events.Dispatch(ctx, ev); err != nil {
				if ctx.Err() == nil {
					c.failures.SetProducerError(fmt.Errorf("dispatch failed: %w", err))
				}
				return
			}
		}
	}
}

// Stop cancels the capture goroutine and waits for it to exit, then stops
// the streaming source and closes the checkpoint store. If ctx expires
// before the goroutine exits, the coordinator is left in an undefined state
// and the returned error wraps the context error.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.mu.Unlock()

	cancel()

	select {
	case <-c.done:
	case <-ctx.Done():
		return fmt.Errorf("interrupted while stopping coordinator: %w", ctx.Err())
	}

	if err := c.streaming.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("streaming source stop failed", "error", err)
	}

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Warn("checkpoint store close failed", "error", err)
		}
	}

	c.logger.Info("coordinator stopped")
	return nil
}

// CommitPosition persists the given position as the task's checkpoint.
// Checkpointing is at-least-once: positions are only recorded after the host
// has received the corresponding batch.
func (c *Coordinator) CommitPosition(ctx context.Context, pos capture.Position) error {
	if pos == nil {
		return nil
	}

	if c.store == nil {
		c.logger.Debug("checkpointing disabled, dropping position")
		return nil
	}

	cp := checkpoint.Checkpoint{
		TaskID:      c.cfg.TaskID,
		Position:    pos,
		CommittedAt: time.Now(),
	}
	if err := c.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("commit position: %w", err)
	}

	return nil
}
