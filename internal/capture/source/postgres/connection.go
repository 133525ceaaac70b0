package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connection is the task-owned connection to the captured database, backed
// by a pgx pool. The snapshot scanner borrows it for its chunk queries.
type Connection struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	closeOnce sync.Once
}

// Connect opens a connection pool against the given URL and verifies it.
func Connect(ctx context.Context, url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.New(pingCtx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return &Connection{
		pool:   pool,
		logger: logger.With("component", "source-connection"),
	}, nil
}

// Pool returns the underlying pgx pool.
func (c *Connection) Pool() *pgxpool.Pool {
	return c.pool
}

// Close releases the pool. It is safe to call multiple times; the context is
// consulted so an already-cancelled shutdown surfaces as an error.
func (c *Connection) Close(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("closing source connection: %w", err)
	}

	c.closeOnce.Do(func() {
		c.pool.Close()
		c.logger.Debug("source connection closed")
	})

	return nil
}
