package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xataio/pgstream/pkg/wal"
	"github.com/xataio/pgstream/pkg/wal/listener"
	pglistener "github.com/xataio/pgstream/pkg/wal/listener/postgres"
	pgreplication "github.com/xataio/pgstream/pkg/wal/replication/postgres"

	"github.com/pinterest/debezium/internal/capture"
)

// Reader is the streaming capture source: it subscribes to the logical
// replication slot via pgstream and converts WAL events into capture events.
type Reader struct {
	config   Config
	logger   *slog.Logger
	listener listener.Listener

	events chan capture.Event
	errors chan error

	mu       sync.RWMutex
	started  bool
	lastLSN  string
	stopOnce sync.Once
}

// NewReader creates a streaming reader with the given configuration.
func NewReader(cfg Config, logger *slog.Logger) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = DefaultConfig().EventBufferSize
	}

	return &Reader{
		config: cfg,
		logger: logger.With("component", "postgres-reader", "source", cfg.Name),
		events: make(chan capture.Event, cfg.EventBufferSize),
		errors: make(chan error, 1),
	}, nil
}

// Start begins capturing change events from PostgreSQL.
func (r *Reader) Start(ctx context.Context) (<-chan capture.Event, <-chan error) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		r.errors <- ErrAlreadyStarted
		return r.events, r.errors
	}
	r.started = true
	r.mu.Unlock()

	go r.run(ctx)

	return r.events, r.errors
}

// Stop gracefully stops the reader. The event channel is left open: a WAL
// callback may still be in flight concurrent with Close, and the consumer
// exits on context cancellation rather than channel close.
func (r *Reader) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return ErrNotStarted
	}
	l := r.listener
	r.mu.Unlock()

	var err error
	r.stopOnce.Do(func() {
		if l != nil {
			err = l.Close()
		}
		r.logger.Info("streaming reader stopped", "last_lsn", r.LastLSN())
	})

	return err
}

// LastLSN returns the last processed LSN, or empty string if none.
func (r *Reader) LastLSN() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastLSN
}

// Name returns the name of this source.
func (r *Reader) Name() string {
	return r.config.Name
}

func (r *Reader) run(ctx context.Context) {
	r.logger.Info("starting PostgreSQL streaming reader",
		"slot", r.config.SlotName,
		"publication", r.config.PublicationName,
	)

	handlerCfg := pgreplication.Config{
		PostgresURL:         r.config.ConnectionURL,
		ReplicationSlotName: r.config.SlotName,
		IncludeTables:       r.config.Tables,
	}

	handler, err := pgreplication.NewHandler(ctx, handlerCfg)
	if err != nil {
		r.logger.Error("failed to create replication handler", "error", err)
		r.errors <- fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		return
	}
	defer handler.Close()

	l := pglistener.New(handler, r.processWALEvent)
	r.mu.Lock()
	r.listener = l
	r.mu.Unlock()

	r.logger.Info("connected to PostgreSQL, starting replication")

	// Listen blocks until the context is cancelled or replication fails.
	if err := l.Listen(ctx); err != nil {
		if ctx.Err() != nil {
			r.logger.Info("reader stopped", "reason", ctx.Err())
			return
		}
		r.logger.Error("replication failed", "error", err)
		r.errors <- fmt.Errorf("%w: %v", ErrReplicationFailed, err)
	}
}

func (r *Reader) processWALEvent(ctx context.Context, event *wal.Event) error {
	if event == nil {
		return nil
	}

	r.mu.Lock()
	r.lastLSN = string(event.CommitPosition)
	r.mu.Unlock()

	// Keep-alive events carry no data, only a checkpoint position.
	if event.Data == nil {
		return nil
	}

	ev, err := r.convertEvent(event)
	if err != nil {
		r.logger.Warn("failed to convert WAL event", "error", err)
		return nil
	}

	select {
	case r.events <- ev:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (r *Reader) convertEvent(event *wal.Event) (capture.Event, error) {
	data := event.Data

	ts, err := data.GetTimestamp()
	if err != nil {
		ts = time.Now()
	}

	op := r.convertOperation(data.Action)
	before, after, keyColumns := r.extractColumnData(data, op)

	return capture.Event{
		ID:         uuid.New().String(),
		Timestamp:  ts,
		Schema:     data.Schema,
		Table:      data.Table,
		Operation:  op,
		Before:     before,
		After:      after,
		KeyColumns: keyColumns,
		Position: capture.Position{
			"lsn":             data.LSN,
			"commit_position": string(event.CommitPosition),
		},
	}, nil
}

func (r *Reader) convertOperation(action string) capture.Operation {
	switch action {
	case "I":
		return capture.OperationInsert
	case "U":
		return capture.OperationUpdate
	case "D":
		return capture.OperationDelete
	case "T":
		return capture.OperationTruncate
	default:
		return capture.Operation(action)
	}
}

func (r *Reader) extractColumnData(data *wal.Data, op capture.Operation) (before, after map[string]any, keyColumns []string) {
	for _, col := range data.Identity {
		keyColumns = append(keyColumns, col.Name)
	}

	// INSERT and UPDATE carry the new values in Columns; DELETE and UPDATE
	// carry the old (identity) values in Identity.
	switch op {
	case capture.OperationInsert:
		after = r.columnsToMap(data.Columns)
	case capture.OperationUpdate:
		before = r.columnsToMap(data.Identity)
		after = r.columnsToMap(data.Columns)
	case capture.OperationDelete:
		before = r.columnsToMap(data.Identity)
	case capture.OperationTruncate:
		// No row data for truncate.
	}

	return before, after, keyColumns
}

func (r *Reader) columnsToMap(columns []wal.Column) map[string]any {
	if len(columns) == 0 {
		return nil
	}
	result := make(map[string]any, len(columns))
	for _, col := range columns {
		result[col.Name] = col.Value
	}
	return result
}
