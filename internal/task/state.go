// Package task owns the lifecycle of a streaming change-data-capture task:
// the running/stopped state machine, the poll/commit surface exposed to the
// host, and the ordered teardown of the capture collaborators.
package task

import (
	"sync/atomic"
)

// State represents the task state.
type State int32

const (
	// StateStopped indicates the task is not running.
	StateStopped State = iota
	// StateRunning indicates the task has been started and not yet stopped.
	StateRunning
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// stateValue holds the authoritative task state. Transitions go through
// CompareAndSwap only, so exactly one start sequence and one teardown
// sequence can take effect at a time.
type stateValue struct {
	v atomic.Int32
}

// Load returns the current state.
func (s *stateValue) Load() State {
	return State(s.v.Load())
}

// CompareAndSwap transitions from old to new, reporting whether it won.
func (s *stateValue) CompareAndSwap(old, new State) bool {
	return s.v.CompareAndSwap(int32(old), int32(new))
}
