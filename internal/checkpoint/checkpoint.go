// Package checkpoint persists committed capture positions so a restarted
// task can resume from the last checkpoint. Persistence is at-least-once:
// events after the stored position may be delivered again.
package checkpoint

import (
	"context"
	"time"

	"github.com/pinterest/debezium/internal/capture"
)

// Checkpoint is a committed capture position for one task.
type Checkpoint struct {
	// TaskID identifies the task being checkpointed.
	TaskID string `json:"task_id"`

	// Position is the last committed capture position.
	Position capture.Position `json:"position"`

	// CommittedAt is when this checkpoint was committed.
	CommittedAt time.Time `json:"committed_at"`
}

// Store handles checkpoint persistence and retrieval.
type Store interface {
	// Save persists a checkpoint, replacing any previous one for the task.
	Save(ctx context.Context, cp Checkpoint) error

	// Load retrieves the latest checkpoint for a task, or nil if none exists.
	Load(ctx context.Context, taskID string) (*Checkpoint, error)

	// Delete removes the checkpoint for a task.
	Delete(ctx context.Context, taskID string) error

	// Close releases any resources held by the store.
	Close() error
}
