package snapshot

// Report is a point-in-time view of the snapshot progress, suitable for
// serving over the ops API. Fields are sampled individually; see the torn
// read note on Progress.
type Report struct {
	// Running indicates a snapshot is currently in progress.
	Running bool `json:"running"`

	// Completed indicates the last snapshot finished successfully.
	Completed bool `json:"completed"`

	// Aborted indicates the last snapshot was aborted.
	Aborted bool `json:"aborted"`

	// DurationSeconds is the snapshot duration in whole seconds.
	DurationSeconds int64 `json:"duration_seconds"`

	// TotalTables is the number of tables registered for the snapshot.
	TotalTables int `json:"total_tables"`

	// RemainingTables is the number of tables not yet scanned.
	RemainingTables int `json:"remaining_tables"`

	// RowsScanned maps table identifiers to scanned row counts.
	RowsScanned map[string]int64 `json:"rows_scanned,omitempty"`

	// ChunkID identifies the chunk currently being scanned.
	ChunkID string `json:"chunk_id,omitempty"`

	// ChunkFrom is the lower bound of the current chunk.
	ChunkFrom string `json:"chunk_from,omitempty"`

	// ChunkTo is the upper bound of the current chunk.
	ChunkTo string `json:"chunk_to,omitempty"`

	// TableFrom is the lower bound of the current table scan.
	TableFrom string `json:"table_from,omitempty"`

	// TableTo is the upper bound of the current table scan.
	TableTo string `json:"table_to,omitempty"`
}

// Report returns a point-in-time view of the progress.
func (p *Progress) Report() Report {
	rows := make(map[string]int64)
	for id, n := range p.ScannedRows() {
		rows[string(id)] = n
	}

	return Report{
		Running:         p.Running(),
		Completed:       p.Completed(),
		Aborted:         p.Aborted(),
		DurationSeconds: p.DurationSeconds(),
		TotalTables:     p.TotalTableCount(),
		RemainingTables: p.RemainingTableCount(),
		RowsScanned:     rows,
		ChunkID:         p.ChunkID(),
		ChunkFrom:       p.ChunkFrom(),
		ChunkTo:         p.ChunkTo(),
		TableFrom:       p.TableFrom(),
		TableTo:         p.TableTo(),
	}
}
