package capture

import (
	"log/slog"
	"sort"
	"sync"
)

// SchemaModel is an in-memory registry of the schemas of captured tables.
// It is populated during the snapshot phase and refreshed as schema changes
// are observed while streaming.
type SchemaModel struct {
	logger *slog.Logger

	mu     sync.RWMutex
	tables map[TableID]TableSchema
	closed bool
}

// NewSchemaModel creates an empty schema model.
func NewSchemaModel(logger *slog.Logger) *SchemaModel {
	if logger == nil {
		logger = slog.Default()
	}

	return &SchemaModel{
		logger: logger.With("component", "schema-model"),
		tables: make(map[TableID]TableSchema),
	}
}

// Register stores or replaces the schema for a table.
func (m *SchemaModel) Register(schema TableSchema) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[schema.ID()] = schema
}

// Lookup returns the schema for a table, if known.
func (m *SchemaModel) Lookup(id TableID) (TableSchema, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	schema, ok := m.tables[id]
	return schema, ok
}

// TableIDs returns the identifiers of all registered tables, sorted.
func (m *SchemaModel) TableIDs() []TableID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]TableID, 0, len(m.tables))
	for id := range m.tables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close releases the model. Further lookups return nothing.
func (m *SchemaModel) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.tables = make(map[TableID]TableSchema)
	m.logger.Debug("schema model closed")
}
