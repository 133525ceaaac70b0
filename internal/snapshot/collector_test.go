package snapshot

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pinterest/debezium/internal/capture"
)

func TestCollector_Gauges(t *testing.T) {
	p := NewProgress()
	p.SnapshotStarted()
	p.TablesDetermined([]capture.TableID{
		capture.NewTableID("public", "users"),
		capture.NewTableID("public", "orders"),
	})
	p.TableScanCompleted(capture.NewTableID("public", "users"), 42)

	c := NewCollector(p)

	expected := `
# HELP debezium_snapshot_running Whether a snapshot is currently running (0 or 1)
# TYPE debezium_snapshot_running gauge
debezium_snapshot_running 1
# HELP debezium_snapshot_completed Whether the last snapshot completed successfully (0 or 1)
# TYPE debezium_snapshot_completed gauge
debezium_snapshot_completed 0
# HELP debezium_snapshot_total_tables Number of tables registered for the snapshot
# TYPE debezium_snapshot_total_tables gauge
debezium_snapshot_total_tables 2
# HELP debezium_snapshot_remaining_tables Number of registered tables not yet scanned
# TYPE debezium_snapshot_remaining_tables gauge
debezium_snapshot_remaining_tables 1
# HELP debezium_snapshot_table_rows_scanned Rows scanned per table during the snapshot
# TYPE debezium_snapshot_table_rows_scanned gauge
debezium_snapshot_table_rows_scanned{table="public.users"} 42
`

	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"debezium_snapshot_running",
		"debezium_snapshot_completed",
		"debezium_snapshot_total_tables",
		"debezium_snapshot_remaining_tables",
		"debezium_snapshot_table_rows_scanned",
	)
	if err != nil {
		t.Errorf("unexpected collection result: %v", err)
	}
}

func TestCollector_RegistersCleanly(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(NewProgress())); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) < 6 {
		t.Errorf("gathered %d metric families, want at least 6", len(families))
	}
}
