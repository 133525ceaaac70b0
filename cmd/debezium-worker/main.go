// Package main provides the entry point for the capture worker. The worker
// runs a single capture task against a PostgreSQL source, polls its change
// events, emits them as JSON lines on stdout and periodically commits the
// received position.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pinterest/debezium/internal/capture"
	"github.com/pinterest/debezium/internal/config"
	"github.com/pinterest/debezium/internal/metrics"
	"github.com/pinterest/debezium/internal/ops"
	"github.com/pinterest/debezium/internal/snapshot"
	"github.com/pinterest/debezium/internal/task"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting capture worker",
		"version", cfg.Version,
		"environment", cfg.Environment,
		"task_id", cfg.TaskID,
	)

	registry := metrics.NewRegistry()

	t := task.New(logger)
	registry.MustRegister(snapshot.NewCollector(t.SnapshotMetrics()))

	if err := t.Start(ctx, cfg); err != nil {
		// Handles built before the failure are still held by the task;
		// Stop releases them.
		if stopErr := t.Stop(context.Background()); stopErr != nil {
			logger.Error("cleanup after failed start also failed", "error", stopErr)
		}
		return fmt.Errorf("start task: %w", err)
	}

	opsServer := ops.NewServer(cfg, t, registry, logger)
	opsErrs := make(chan error, 1)
	go func() {
		opsErrs <- opsServer.Start()
	}()

	logger.Info("capture task configured",
		"source_host", cfg.Source.Host,
		"source_database", cfg.Source.Database,
		"replication_slot", cfg.Replication.SlotName,
		"publication", cfg.Replication.PublicationName,
		"snapshot_enabled", cfg.Snapshot.Enabled,
		"checkpoint_enabled", cfg.Checkpoint.Enabled,
	)

	hostErr := hostLoop(ctx, cfg, t, logger)

	stopErr := t.Stop(context.Background())
	if stopErr != nil {
		var shutdownErr *task.ShutdownError
		if errors.As(stopErr, &shutdownErr) {
			logger.Error("task shutdown failed", "step", shutdownErr.Step, "error", shutdownErr.Err)
		} else {
			logger.Error("task shutdown failed", "error", stopErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := opsServer.Stop(shutdownCtx); err != nil {
		logger.Error("ops server shutdown failed", "error", err)
	}
	if err := <-opsErrs; err != nil {
		logger.Error("ops server failed", "error", err)
	}

	if hostErr != nil {
		return hostErr
	}
	if stopErr != nil {
		return stopErr
	}

	logger.Info("capture worker stopped gracefully")
	return nil
}

// hostLoop drives the task: it polls event batches, emits them on stdout and
// commits the received position on the configured interval. It returns when
// the context is cancelled or the producer hits a fatal error.
func hostLoop(ctx context.Context, cfg *config.Config, t *task.Task, logger *slog.Logger) error {
	sink := json.NewEncoder(os.Stdout)

	commitTicker := time.NewTicker(cfg.Task.CommitInterval)
	defer commitTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-commitTicker.C:
			if err := t.Commit(ctx); err != nil {
				logger.Error("commit failed", "error", err)
			}
			continue
		default:
		}

		if err := t.ProducerError(); err != nil {
			return fmt.Errorf("capture failed: %w", err)
		}

		batch, err := t.Poll(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("poll: %w", err)
		}

		if err := emit(sink, batch); err != nil {
			return fmt.Errorf("emit batch: %w", err)
		}
	}
}

func emit(sink *json.Encoder, batch []capture.Event) error {
	for _, ev := range batch {
		if err := sink.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}
