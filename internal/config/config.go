// Package config provides configuration loading for the capture task.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the capture task worker.
type Config struct {
	// Version is the application version
	Version string

	// Environment is the deployment environment (development, staging, production)
	Environment string

	// TaskID is the logical name of this capture task
	TaskID string

	// Task configuration
	Task TaskConfig

	// Source configuration for the captured database
	Source SourceConfig

	// Replication slot and publication settings
	Replication ReplicationConfig

	// Snapshot configuration for the initial data scan
	Snapshot SnapshotConfig

	// Checkpoint configuration
	Checkpoint CheckpointConfig

	// Ops HTTP server configuration
	Ops OpsConfig
}

// TaskConfig holds event queue and polling configuration.
type TaskConfig struct {
	// PollInterval is how long a poll waits for the first event
	PollInterval time.Duration

	// MaxBatchSize is the maximum number of events per poll batch
	MaxBatchSize int

	// MaxQueueSize is the capacity of the change event queue
	MaxQueueSize int

	// CommitInterval is how often the host loop commits positions
	CommitInterval time.Duration
}

// SourceConfig holds connection settings for the captured database.
type SourceConfig struct {
	// Host is the source database host
	Host string

	// Port is the source database port
	Port int

	// Database is the source database name
	Database string

	// User is the source database user
	User string

	// Password is the source database password
	Password string

	// SSLMode is the SSL mode for the source connection
	SSLMode string
}

// DSN returns the source database connection string.
func (s SourceConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		s.Host, s.Port, s.Database, s.User, s.Password, s.SSLMode,
	)
}

// URL returns the source database connection URL.
func (s SourceConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, s.Port, s.Database, s.SSLMode,
	)
}

// ReplicationConfig holds replication slot and publication settings.
type ReplicationConfig struct {
	// SlotName is the name of the replication slot
	SlotName string

	// PublicationName is the name of the publication
	PublicationName string

	// Tables is the list of schema.table identifiers to capture (empty = all)
	Tables []string
}

// SnapshotConfig holds configuration for the initial data scan.
type SnapshotConfig struct {
	// Enabled turns the initial snapshot on or off
	Enabled bool

	// ChunkSize is the number of rows fetched per snapshot chunk
	ChunkSize int
}

// CheckpointConfig holds checkpoint persistence settings.
type CheckpointConfig struct {
	// Enabled turns checkpoint persistence on or off
	Enabled bool

	// DSN is the connection string for the checkpoint database
	DSN string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int
}

// OpsConfig holds the ops HTTP server configuration.
type OpsConfig struct {
	// ListenAddr is the address to listen on (e.g., ":9090")
	ListenAddr string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration

	// MetricsEnabled turns the Prometheus /metrics endpoint on or off
	MetricsEnabled bool
}

// Load reads configuration from DEBEZIUM_* environment variables, falling
// back to development defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Version:     getEnv("DEBEZIUM_VERSION", "0.1.0"),
		Environment: getEnv("DEBEZIUM_ENV", "development"),
		TaskID:      getEnv("DEBEZIUM_TASK_ID", "capture-task"),

		Task: TaskConfig{
			PollInterval:   getDurationEnv("DEBEZIUM_POLL_INTERVAL", 500*time.Millisecond),
			MaxBatchSize:   getIntEnv("DEBEZIUM_MAX_BATCH_SIZE", 2048),
			MaxQueueSize:   getIntEnv("DEBEZIUM_MAX_QUEUE_SIZE", 8192),
			CommitInterval: getDurationEnv("DEBEZIUM_COMMIT_INTERVAL", 5*time.Second),
		},

		Source: SourceConfig{
			Host:     getEnv("DEBEZIUM_SOURCE_HOST", "localhost"),
			Port:     getIntEnv("DEBEZIUM_SOURCE_PORT", 5432),
			Database: getEnv("DEBEZIUM_SOURCE_DATABASE", "source"),
			User:     getEnv("DEBEZIUM_SOURCE_USER", "source"),
			Password: getEnv("DEBEZIUM_SOURCE_PASSWORD", "source"),
			SSLMode:  getEnv("DEBEZIUM_SOURCE_SSLMODE", "disable"),
		},

		Replication: ReplicationConfig{
			SlotName:        getEnv("DEBEZIUM_REPLICATION_SLOT", "debezium_cdc"),
			PublicationName: getEnv("DEBEZIUM_PUBLICATION", "debezium_pub"),
			Tables:          getSliceEnv("DEBEZIUM_TABLES", nil),
		},

		Snapshot: SnapshotConfig{
			Enabled:   getBoolEnv("DEBEZIUM_SNAPSHOT_ENABLED", true),
			ChunkSize: getIntEnv("DEBEZIUM_SNAPSHOT_CHUNK_SIZE", 1024),
		},

		Checkpoint: CheckpointConfig{
			Enabled:      getBoolEnv("DEBEZIUM_CHECKPOINT_ENABLED", true),
			DSN:          getEnv("DEBEZIUM_CHECKPOINT_DSN", ""),
			MaxOpenConns: getIntEnv("DEBEZIUM_CHECKPOINT_MAX_OPEN_CONNS", 5),
			MaxIdleConns: getIntEnv("DEBEZIUM_CHECKPOINT_MAX_IDLE_CONNS", 2),
		},

		Ops: OpsConfig{
			ListenAddr:     getEnv("DEBEZIUM_OPS_LISTEN_ADDR", ":9090"),
			ReadTimeout:    getDurationEnv("DEBEZIUM_OPS_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getDurationEnv("DEBEZIUM_OPS_WRITE_TIMEOUT", 15*time.Second),
			MetricsEnabled: getBoolEnv("DEBEZIUM_METRICS_ENABLED", true),
		},
	}

	if cfg.Checkpoint.Enabled && cfg.Checkpoint.DSN == "" {
		// The checkpoint database defaults to the source database.
		cfg.Checkpoint.DSN = cfg.Source.DSN()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.TaskID == "" {
		return fmt.Errorf("task id must not be empty")
	}
	if c.Task.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.Task.PollInterval)
	}
	if c.Task.MaxBatchSize <= 0 {
		return fmt.Errorf("max batch size must be positive, got %d", c.Task.MaxBatchSize)
	}
	if c.Task.MaxQueueSize < c.Task.MaxBatchSize {
		return fmt.Errorf("max queue size %d must be at least max batch size %d",
			c.Task.MaxQueueSize, c.Task.MaxBatchSize)
	}
	if c.Snapshot.Enabled && c.Snapshot.ChunkSize <= 0 {
		return fmt.Errorf("snapshot chunk size must be positive, got %d", c.Snapshot.ChunkSize)
	}
	if c.Replication.SlotName == "" {
		return fmt.Errorf("replication slot name must not be empty")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, p := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
