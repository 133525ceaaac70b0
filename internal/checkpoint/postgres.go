package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/pinterest/debezium/internal/capture"
)

// PostgresStore implements checkpoint persistence using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// PostgresConfig holds configuration for the PostgreSQL checkpoint store.
type PostgresConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration
}

// NewPostgresStore creates a new PostgreSQL checkpoint store.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresStore{
		db:     db,
		logger: logger.With("component", "checkpoint-store"),
	}, nil
}

// Save persists a checkpoint to the database.
func (s *PostgresStore) Save(ctx context.Context, cp Checkpoint) error {
	positionJSON, err := json.Marshal(cp.Position)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}

	query := `
		INSERT INTO debezium.task_checkpoints (task_id, position, committed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id)
		DO UPDATE SET
			position = EXCLUDED.position,
			committed_at = EXCLUDED.committed_at
	`

	committedAt := cp.CommittedAt
	if committedAt.IsZero() {
		committedAt = time.Now()
	}

	if _, err := s.db.ExecContext(ctx, query, cp.TaskID, positionJSON, committedAt); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	s.logger.Debug("checkpoint saved", "task_id", cp.TaskID)

	return nil
}

// Load retrieves the latest checkpoint for a task.
func (s *PostgresStore) Load(ctx context.Context, taskID string) (*Checkpoint, error) {
	query := `
		SELECT task_id, position, committed_at
		FROM debezium.task_checkpoints
		WHERE task_id = $1
	`

	var cp Checkpoint
	var positionJSON []byte

	err := s.db.QueryRowContext(ctx, query, taskID).Scan(
		&cp.TaskID,
		&positionJSON,
		&cp.CommittedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No checkpoint found
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	if len(positionJSON) > 0 {
		cp.Position = make(capture.Position)
		if err := json.Unmarshal(positionJSON, &cp.Position); err != nil {
			s.logger.Warn("failed to unmarshal checkpoint position", "error", err)
		}
	}

	s.logger.Debug("checkpoint loaded", "task_id", cp.TaskID)

	return &cp, nil
}

// Delete removes the checkpoint for a task.
func (s *PostgresStore) Delete(ctx context.Context, taskID string) error {
	query := `DELETE FROM debezium.task_checkpoints WHERE task_id = $1`

	if _, err := s.db.ExecContext(ctx, query, taskID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}

	s.logger.Debug("checkpoint deleted", "task_id", taskID)

	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
