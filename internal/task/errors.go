package task

import (
	"errors"
	"fmt"
)

// ErrNotStarted is returned by Poll and Commit before a successful Start.
var ErrNotStarted = errors.New("task has not been started")

// ShutdownError is the fatal result of a teardown that could not complete:
// the capture coordinator did not stop cleanly, leaving it in a state that
// is unsafe to continue from. The host must mark the task failed.
type ShutdownError struct {
	// Step is the teardown step that failed.
	Step string

	// Err is the underlying failure.
	Err error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("shutdown failed while stopping %s, failing the task: %v", e.Step, e.Err)
}

func (e *ShutdownError) Unwrap() error {
	return e.Err
}
