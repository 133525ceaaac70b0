package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestErrorHandler_FirstErrorWins(t *testing.T) {
	h := NewErrorHandler(nil, nil)

	first := errors.New("first")
	h.SetProducerError(first)
	h.SetProducerError(errors.New("second"))

	if got := h.ProducerError(); !errors.Is(got, first) {
		t.Errorf("ProducerError() = %v, want first error", got)
	}
}

func TestErrorHandler_NilErrorIgnored(t *testing.T) {
	var teardowns atomic.Int32
	h := NewErrorHandler(func() { teardowns.Add(1) }, nil)

	h.SetProducerError(nil)

	if got := h.ProducerError(); got != nil {
		t.Errorf("ProducerError() = %v, want nil", got)
	}
	if got := teardowns.Load(); got != 0 {
		t.Errorf("teardown ran %d times, want 0", got)
	}
}

func TestErrorHandler_TeardownRunsOnce(t *testing.T) {
	var teardowns atomic.Int32
	done := make(chan struct{}, 8)
	h := NewErrorHandler(func() {
		teardowns.Add(1)
		done <- struct{}{}
	}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.SetProducerError(errors.New("boom"))
		}()
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("teardown never ran")
	}

	// Give any extra teardown goroutines a moment to surface.
	time.Sleep(20 * time.Millisecond)
	if got := teardowns.Load(); got != 1 {
		t.Errorf("teardown ran %d times, want exactly 1", got)
	}
}

func TestErrorHandler_NoTeardownAfterStop(t *testing.T) {
	var teardowns atomic.Int32
	h := NewErrorHandler(func() { teardowns.Add(1) }, nil)

	if err := h.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	h.SetProducerError(errors.New("late failure"))

	time.Sleep(20 * time.Millisecond)
	if got := teardowns.Load(); got != 0 {
		t.Errorf("teardown ran %d times after Stop, want 0", got)
	}
	// The error is still recorded for inspection.
	if got := h.ProducerError(); got == nil {
		t.Error("ProducerError() = nil, want recorded late failure")
	}
}

func TestErrorHandler_StopReturnsContextError(t *testing.T) {
	h := NewErrorHandler(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.Stop(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Stop() error = %v, want context.Canceled", err)
	}
}
