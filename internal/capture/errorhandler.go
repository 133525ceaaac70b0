package capture

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrorHandler receives fatal producer-side failures and triggers a task
// teardown exactly once. The teardown callback runs on its own goroutine so
// the producer reporting the failure is never blocked behind cleanup.
//
// The error-triggered teardown and a caller-issued stop converge on the same
// CAS-guarded sequence in the task; whichever loses that race is a no-op.
type ErrorHandler struct {
	logger   *slog.Logger
	teardown func()

	once    sync.Once
	stopped atomic.Bool

	mu  sync.Mutex
	err error
}

// NewErrorHandler creates an ErrorHandler bound to the given teardown
// callback.
func NewErrorHandler(teardown func(), logger *slog.Logger) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &ErrorHandler{
		logger:   logger.With("component", "error-handler"),
		teardown: teardown,
	}
}

// SetProducerError records a fatal producer failure and starts the teardown.
// Only the first error is kept; later calls are logged and ignored, as are
// errors reported after Stop.
func (h *ErrorHandler) SetProducerError(err error) {
	if err == nil {
		return
	}

	h.mu.Lock()
	if h.err == nil {
		h.err = err
	} else {
		h.mu.Unlock()
		h.logger.Debug("producer error after shutdown already triggered", "error", err)
		return
	}
	h.mu.Unlock()

	if h.stopped.Load() {
		h.logger.Warn("producer error after error handler stopped", "error", err)
		return
	}

	h.logger.Error("producer failure, stopping the task", "error", err)

	h.once.Do(func() {
		if h.teardown != nil {
			go h.teardown()
		}
	})
}

// ProducerError returns the recorded fatal producer error, or nil.
func (h *ErrorHandler) ProducerError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Stop marks the handler stopped; producer errors reported afterwards are
// recorded but no longer trigger teardown. It returns the context error if
// ctx has already expired, so a cancelled shutdown is visible to the caller.
func (h *ErrorHandler) Stop(ctx context.Context) error {
	h.stopped.Store(true)
	return ctx.Err()
}
