// Package postgres provides the PostgreSQL capture sources: a pgstream-based
// streaming reader and a chunked initial snapshot scanner.
package postgres

import (
	"time"
)

// Config holds configuration for the PostgreSQL capture sources.
type Config struct {
	// Name is a unique identifier for this source.
	Name string

	// ConnectionURL is the PostgreSQL connection URL.
	ConnectionURL string

	// SlotName is the name of the replication slot.
	SlotName string

	// PublicationName is the name of the publication to subscribe to.
	PublicationName string

	// Tables is a list of schema.table identifiers to capture (empty means
	// all tables in the publication).
	Tables []string

	// EventBufferSize is the size of the internal event buffer.
	EventBufferSize int

	// SnapshotChunkSize is the number of rows fetched per snapshot chunk.
	SnapshotChunkSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:              "postgres",
		SlotName:          "debezium_cdc",
		PublicationName:   "debezium_pub",
		EventBufferSize:   1000,
		SnapshotChunkSize: 1024,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ConnectionURL == "" {
		return ErrMissingConnectionURL
	}
	if c.SlotName == "" {
		return ErrMissingSlotName
	}
	if c.PublicationName == "" {
		return ErrMissingPublicationName
	}
	return nil
}

// connectTimeout bounds the initial connection attempt.
const connectTimeout = 10 * time.Second
