// Package snapshot tracks the progress of an in-flight initial data scan.
package snapshot

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pinterest/debezium/internal/capture"
)

// Progress is a thread-safe aggregator of snapshot run state, per-table scan
// counts and the currently-processing chunk boundaries. It is written by the
// capture coordinator's worker goroutines and read concurrently by the
// metrics-reporting path.
//
// Flags, timestamps and the chunk fields are each independently atomic; there
// is no cross-field transactional guarantee. In particular a reader may
// observe a chunk id that has advanced while the chunk bounds have not yet.
// These fields are advisory progress indicators, so the torn read is accepted.
type Progress struct {
	running   atomic.Bool
	completed atomic.Bool
	aborted   atomic.Bool

	// Unix milliseconds; 0 means unset.
	startTime atomic.Int64
	stopTime  atomic.Int64

	chunkID   atomic.Value // string
	chunkFrom atomic.Value // []any
	chunkTo   atomic.Value // []any
	tableFrom atomic.Value // []any
	tableTo   atomic.Value // []any

	mu          sync.Mutex
	rowsScanned map[capture.TableID]int64
	remaining   map[capture.TableID]struct{}
	captured    map[capture.TableID]struct{}

	// now is overridable for tests.
	now func() time.Time
}

// NewProgress creates a Progress in its initial idle state.
func NewProgress() *Progress {
	return &Progress{
		rowsScanned: make(map[capture.TableID]int64),
		remaining:   make(map[capture.TableID]struct{}),
		captured:    make(map[capture.TableID]struct{}),
		now:         time.Now,
	}
}

// SnapshotStarted records the beginning of a snapshot run. It is valid from
// any state: a new run supersedes any stale prior state, so the terminal
// flags are cleared and the stop time is reset.
func (p *Progress) SnapshotStarted() {
	p.running.Store(true)
	p.completed.Store(false)
	p.aborted.Store(false)
	p.startTime.Store(p.now().UnixMilli())
	p.stopTime.Store(0)
}

// SnapshotCompleted records a successful end of the snapshot run. Calling it
// while not running is accepted and simply sets the flags.
func (p *Progress) SnapshotCompleted() {
	p.completed.Store(true)
	p.aborted.Store(false)
	p.running.Store(false)
	p.stopTime.Store(p.now().UnixMilli())
}

// SnapshotAborted records a failed end of the snapshot run. Calling it while
// not running is accepted and simply sets the flags.
func (p *Progress) SnapshotAborted() {
	p.completed.Store(false)
	p.aborted.Store(true)
	p.running.Store(false)
	p.stopTime.Store(p.now().UnixMilli())
}

// TablesDetermined registers tables selected for the snapshot. It is
// additive and idempotent: tables already registered stay registered, and it
// may be called incrementally as discovery proceeds.
func (p *Progress) TablesDetermined(ids []capture.TableID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		p.remaining[id] = struct{}{}
		p.captured[id] = struct{}{}
	}
}

// TableScanCompleted records the final row count for a table and removes it
// from the remaining set. A table never registered via TablesDetermined still
// gets its count recorded; it just does not affect total-table accounting,
// which is drawn from the captured set.
func (p *Progress) TableScanCompleted(id capture.TableID, rows int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rowsScanned[id] = rows
	delete(p.remaining, id)
}

// RowsScanned updates the running row count for a table mid-scan.
func (p *Progress) RowsScanned(id capture.TableID, rows int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rowsScanned[id] = rows
}

// CurrentChunk records the chunk currently being scanned. The fields are
// overwritten as independent atomics, not as one compound swap.
func (p *Progress) CurrentChunk(chunkID string, from, to []any) {
	p.chunkID.Store(chunkID)
	p.chunkFrom.Store(from)
	p.chunkTo.Store(to)
}

// CurrentChunkWithTableBounds records the chunk currently being scanned along
// with the overall table bounds; the chunk lower bound doubles as the table
// lower bound.
func (p *Progress) CurrentChunkWithTableBounds(chunkID string, from, to, tableTo []any) {
	p.CurrentChunk(chunkID, from, to)
	p.tableFrom.Store(from)
	p.tableTo.Store(tableTo)
}

// Running reports whether a snapshot is currently in progress.
func (p *Progress) Running() bool {
	return p.running.Load()
}

// Completed reports whether the last snapshot finished successfully.
func (p *Progress) Completed() bool {
	return p.completed.Load()
}

// Aborted reports whether the last snapshot was aborted.
func (p *Progress) Aborted() bool {
	return p.aborted.Load()
}

// DurationSeconds returns the snapshot duration in whole seconds: elapsed
// time while running, the frozen final duration once terminal, and 0 before
// any snapshot has started.
func (p *Progress) DurationSeconds() int64 {
	start := p.startTime.Load()
	if start <= 0 {
		return 0
	}
	stop := p.stopTime.Load()
	if stop == 0 {
		stop = p.now().UnixMilli()
	}
	return (stop - start) / 1000
}

// TotalTableCount returns the number of tables registered for the snapshot.
func (p *Progress) TotalTableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.captured)
}

// RemainingTableCount returns the number of registered tables whose scan has
// not completed yet.
func (p *Progress) RemainingTableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.remaining)
}

// CapturedTables returns the tables registered for the snapshot.
func (p *Progress) CapturedTables() []capture.TableID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]capture.TableID, 0, len(p.captured))
	for id := range p.captured {
		ids = append(ids, id)
	}
	return ids
}

// ScannedRows returns a copy of the per-table row counts.
func (p *Progress) ScannedRows() map[capture.TableID]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	rows := make(map[capture.TableID]int64, len(p.rowsScanned))
	for id, n := range p.rowsScanned {
		rows[id] = n
	}
	return rows
}

// ChunkID returns the identifier of the chunk currently being scanned, or ""
// when no chunk is in flight.
func (p *Progress) ChunkID() string {
	if v, ok := p.chunkID.Load().(string); ok {
		return v
	}
	return ""
}

// ChunkFrom returns the lower bound of the current chunk as a string.
func (p *Progress) ChunkFrom() string {
	return boundString(p.chunkFrom.Load())
}

// ChunkTo returns the upper bound of the current chunk as a string.
func (p *Progress) ChunkTo() string {
	return boundString(p.chunkTo.Load())
}

// TableFrom returns the lower bound of the current table scan as a string.
func (p *Progress) TableFrom() string {
	return boundString(p.tableFrom.Load())
}

// TableTo returns the upper bound of the current table scan as a string.
func (p *Progress) TableTo() string {
	return boundString(p.tableTo.Load())
}

// Reset returns all state to the initial idle configuration. It is used when
// a task instance is reused for a new run.
func (p *Progress) Reset() {
	p.running.Store(false)
	p.completed.Store(false)
	p.aborted.Store(false)
	p.startTime.Store(0)
	p.stopTime.Store(0)
	p.chunkID.Store("")
	p.chunkFrom.Store([]any(nil))
	p.chunkTo.Store([]any(nil))
	p.tableFrom.Store([]any(nil))
	p.tableTo.Store([]any(nil))

	p.mu.Lock()
	defer p.mu.Unlock()
	p.rowsScanned = make(map[capture.TableID]int64)
	p.remaining = make(map[capture.TableID]struct{})
	p.captured = make(map[capture.TableID]struct{})
}

func boundString(v any) string {
	vals, ok := v.([]any)
	if !ok || vals == nil {
		return ""
	}
	return fmt.Sprintf("%v", vals)
}
