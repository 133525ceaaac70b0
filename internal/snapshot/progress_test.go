package snapshot

import (
	"sync"
	"testing"
	"time"

	"github.com/pinterest/debezium/internal/capture"
)

func TestProgress_InitialState(t *testing.T) {
	p := NewProgress()

	if p.Running() {
		t.Error("expected Running() = false initially")
	}
	if p.Completed() {
		t.Error("expected Completed() = false initially")
	}
	if p.Aborted() {
		t.Error("expected Aborted() = false initially")
	}
	if got := p.DurationSeconds(); got != 0 {
		t.Errorf("DurationSeconds() = %d, want 0", got)
	}
	if got := p.TotalTableCount(); got != 0 {
		t.Errorf("TotalTableCount() = %d, want 0", got)
	}
	if got := p.ChunkID(); got != "" {
		t.Errorf("ChunkID() = %q, want empty", got)
	}
	if got := p.ChunkFrom(); got != "" {
		t.Errorf("ChunkFrom() = %q, want empty", got)
	}
}

func TestProgress_FlagTransitions(t *testing.T) {
	tests := []struct {
		name      string
		apply     func(p *Progress)
		running   bool
		completed bool
		aborted   bool
	}{
		{
			name:    "started",
			apply:   func(p *Progress) { p.SnapshotStarted() },
			running: true,
		},
		{
			name: "completed",
			apply: func(p *Progress) {
				p.SnapshotStarted()
				p.SnapshotCompleted()
			},
			completed: true,
		},
		{
			name: "aborted",
			apply: func(p *Progress) {
				p.SnapshotStarted()
				p.SnapshotAborted()
			},
			aborted: true,
		},
		{
			name: "restart clears terminal flags",
			apply: func(p *Progress) {
				p.SnapshotStarted()
				p.SnapshotAborted()
				p.SnapshotStarted()
			},
			running: true,
		},
		{
			name: "completed without start",
			apply: func(p *Progress) {
				p.SnapshotCompleted()
			},
			completed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgress()
			tt.apply(p)

			if got := p.Running(); got != tt.running {
				t.Errorf("Running() = %v, want %v", got, tt.running)
			}
			if got := p.Completed(); got != tt.completed {
				t.Errorf("Completed() = %v, want %v", got, tt.completed)
			}
			if got := p.Aborted(); got != tt.aborted {
				t.Errorf("Aborted() = %v, want %v", got, tt.aborted)
			}
		})
	}
}

func TestProgress_DurationSeconds(t *testing.T) {
	p := NewProgress()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }

	p.SnapshotStarted()

	clock = clock.Add(4500 * time.Millisecond)
	if got := p.DurationSeconds(); got != 4 {
		t.Errorf("DurationSeconds() while running = %d, want 4", got)
	}

	p.SnapshotCompleted()

	// Frozen after completion, even as the clock keeps moving.
	clock = clock.Add(time.Hour)
	if got := p.DurationSeconds(); got != 4 {
		t.Errorf("DurationSeconds() after completion = %d, want 4", got)
	}
}

func TestProgress_TableAccounting(t *testing.T) {
	p := NewProgress()

	users := capture.NewTableID("public", "users")
	orders := capture.NewTableID("public", "orders")
	items := capture.NewTableID("public", "items")

	p.TablesDetermined([]capture.TableID{users, orders})
	p.TablesDetermined([]capture.TableID{orders, items}) // additive, idempotent

	if got := p.TotalTableCount(); got != 3 {
		t.Errorf("TotalTableCount() = %d, want 3", got)
	}
	if got := p.RemainingTableCount(); got != 3 {
		t.Errorf("RemainingTableCount() = %d, want 3", got)
	}

	p.TableScanCompleted(users, 120)
	p.TableScanCompleted(orders, 0)

	if got := p.TotalTableCount(); got != 3 {
		t.Errorf("TotalTableCount() after scans = %d, want 3", got)
	}
	if got := p.RemainingTableCount(); got != 1 {
		t.Errorf("RemainingTableCount() after scans = %d, want 1", got)
	}

	rows := p.ScannedRows()
	if rows[users] != 120 {
		t.Errorf("ScannedRows()[users] = %d, want 120", rows[users])
	}
	if rows[orders] != 0 {
		t.Errorf("ScannedRows()[orders] = %d, want 0", rows[orders])
	}
}

func TestProgress_TableScanCompletedUnregistered(t *testing.T) {
	p := NewProgress()

	ghost := capture.NewTableID("public", "ghost")
	p.TableScanCompleted(ghost, 7)

	if got := p.ScannedRows()[ghost]; got != 7 {
		t.Errorf("ScannedRows()[ghost] = %d, want 7", got)
	}
	if got := p.TotalTableCount(); got != 0 {
		t.Errorf("TotalTableCount() = %d, want 0 for unregistered table", got)
	}
	if got := p.RemainingTableCount(); got != 0 {
		t.Errorf("RemainingTableCount() = %d, want 0 for unregistered table", got)
	}
}

func TestProgress_RowsScannedMidScan(t *testing.T) {
	p := NewProgress()
	id := capture.NewTableID("public", "events")

	p.RowsScanned(id, 100)
	p.RowsScanned(id, 250)

	if got := p.ScannedRows()[id]; got != 250 {
		t.Errorf("ScannedRows() = %d, want latest value 250", got)
	}
}

func TestProgress_CurrentChunk(t *testing.T) {
	p := NewProgress()

	p.CurrentChunkWithTableBounds("chunk-1", []any{int64(1)}, []any{int64(1024)}, []any{int64(90000)})

	if got := p.ChunkID(); got != "chunk-1" {
		t.Errorf("ChunkID() = %q, want chunk-1", got)
	}
	if got := p.ChunkFrom(); got != "[1]" {
		t.Errorf("ChunkFrom() = %q, want [1]", got)
	}
	if got := p.ChunkTo(); got != "[1024]" {
		t.Errorf("ChunkTo() = %q, want [1024]", got)
	}
	if got := p.TableFrom(); got != "[1]" {
		t.Errorf("TableFrom() = %q, want [1]", got)
	}
	if got := p.TableTo(); got != "[90000]" {
		t.Errorf("TableTo() = %q, want [90000]", got)
	}

	p.CurrentChunk("chunk-2", []any{int64(1025)}, []any{int64(2048)})

	if got := p.ChunkID(); got != "chunk-2" {
		t.Errorf("ChunkID() = %q, want chunk-2", got)
	}
	// Table bounds survive chunk advances.
	if got := p.TableTo(); got != "[90000]" {
		t.Errorf("TableTo() after chunk advance = %q, want [90000]", got)
	}
}

func TestProgress_Reset(t *testing.T) {
	p := NewProgress()

	p.SnapshotStarted()
	p.TablesDetermined([]capture.TableID{capture.NewTableID("public", "users")})
	p.CurrentChunk("chunk-1", []any{1}, []any{2})
	p.SnapshotCompleted()

	p.Reset()

	if p.Running() || p.Completed() || p.Aborted() {
		t.Error("expected all flags cleared after Reset")
	}
	if got := p.DurationSeconds(); got != 0 {
		t.Errorf("DurationSeconds() after Reset = %d, want 0", got)
	}
	if got := p.TotalTableCount(); got != 0 {
		t.Errorf("TotalTableCount() after Reset = %d, want 0", got)
	}
	if got := p.ChunkID(); got != "" {
		t.Errorf("ChunkID() after Reset = %q, want empty", got)
	}
	if got := p.ChunkFrom(); got != "" {
		t.Errorf("ChunkFrom() after Reset = %q, want empty", got)
	}
}

func TestProgress_ConcurrentUpdates(t *testing.T) {
	p := NewProgress()
	p.SnapshotStarted()

	id := capture.NewTableID("public", "users")
	p.TablesDetermined([]capture.TableID{id})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			for j := int64(0); j < 100; j++ {
				p.RowsScanned(id, n*100+j)
				p.CurrentChunk("chunk", []any{j}, []any{j + 1})
				_ = p.ScannedRows()
				_ = p.ChunkFrom()
				_ = p.DurationSeconds()
			}
		}(int64(i))
	}
	wg.Wait()

	p.TableScanCompleted(id, 800)
	p.SnapshotCompleted()

	if got := p.ScannedRows()[id]; got != 800 {
		t.Errorf("ScannedRows() = %d, want final value 800", got)
	}
	if got := p.RemainingTableCount(); got != 0 {
		t.Errorf("RemainingTableCount() = %d, want 0", got)
	}
}
