package task

import (
	"sync"

	"github.com/pinterest/debezium/internal/capture"
)

// OffsetTracker is a single-slot holder of the most recently polled
// position. The polling goroutine overwrites it after every non-empty batch
// and the committing goroutine reads it; no merging or validation is done.
type OffsetTracker struct {
	mu  sync.RWMutex
	pos capture.Position
	set bool
}

// NewOffsetTracker creates an empty tracker.
func NewOffsetTracker() *OffsetTracker {
	return &OffsetTracker{}
}

// Record overwrites the tracked position.
func (t *OffsetTracker) Record(pos capture.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pos = pos
	t.set = true
}

// Last returns the tracked position and whether one has ever been recorded.
func (t *OffsetTracker) Last() (capture.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pos, t.set
}
