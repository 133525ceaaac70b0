// Package capture provides the core types and pipeline plumbing for a
// streaming change-data-capture task.
package capture

import (
	"time"
)

// Operation represents the type of database operation captured.
type Operation string

const (
	// OperationInsert represents an INSERT operation.
	OperationInsert Operation = "INSERT"
	// OperationUpdate represents an UPDATE operation.
	OperationUpdate Operation = "UPDATE"
	// OperationDelete represents a DELETE operation.
	OperationDelete Operation = "DELETE"
	// OperationTruncate represents a TRUNCATE operation.
	OperationTruncate Operation = "TRUNCATE"
	// OperationRead represents a row read during the initial snapshot scan.
	OperationRead Operation = "READ"
)

// Position is an opaque source-specific offset attached to every captured
// event. For PostgreSQL sources it carries the WAL LSN; other sources may
// store whatever they need to resume from.
type Position map[string]any

// TableID identifies a captured table as "schema.table".
type TableID string

// NewTableID builds a TableID from its schema and table parts.
func NewTableID(schema, table string) TableID {
	return TableID(schema + "." + table)
}

// Event represents a single change event captured from the source database.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Position is the source offset this event was captured at.
	Position Position `json:"position"`

	// Timestamp is when the event occurred in the source database.
	Timestamp time.Time `json:"timestamp"`

	// Schema is the database schema name (e.g., "public").
	Schema string `json:"schema"`

	// Table is the table name.
	Table string `json:"table"`

	// Operation is the type of operation.
	Operation Operation `json:"operation"`

	// Before contains the row data before the operation (for UPDATE and DELETE).
	Before map[string]any `json:"before,omitempty"`

	// After contains the row data after the operation (for INSERT, UPDATE and READ).
	After map[string]any `json:"after,omitempty"`

	// KeyColumns contains the names of the primary key columns.
	KeyColumns []string `json:"key_columns,omitempty"`
}

// TableID returns the identifier of the table this event belongs to.
func (e *Event) TableID() TableID {
	return NewTableID(e.Schema, e.Table)
}

// HasBefore returns true if the event has before data.
func (e *Event) HasBefore() bool {
	return len(e.Before) > 0
}

// HasAfter returns true if the event has after data.
func (e *Event) HasAfter() bool {
	return len(e.After) > 0
}

// Column represents a column in a captured table.
type Column struct {
	// Name is the column name.
	Name string `json:"name"`

	// Type is the source data type.
	Type string `json:"type"`

	// Nullable indicates if the column allows NULL values.
	Nullable bool `json:"nullable"`

	// PrimaryKey indicates if this column is part of the primary key.
	PrimaryKey bool `json:"primary_key"`
}

// TableSchema represents the schema of a captured table.
type TableSchema struct {
	// Schema is the database schema name.
	Schema string `json:"schema"`

	// Table is the table name.
	Table string `json:"table"`

	// Columns is the list of columns in the table.
	Columns []Column `json:"columns"`

	// CapturedAt is when this schema was captured.
	CapturedAt time.Time `json:"captured_at"`
}

// ID returns the identifier of the described table.
func (t *TableSchema) ID() TableID {
	return NewTableID(t.Schema, t.Table)
}

// PrimaryKeyColumns returns the columns that are part of the primary key.
func (t *TableSchema) PrimaryKeyColumns() []Column {
	var pkColumns []Column
	for _, col := range t.Columns {
		if col.PrimaryKey {
			pkColumns = append(pkColumns, col)
		}
	}
	return pkColumns
}
