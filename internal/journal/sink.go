package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	_ "github.com/lib/pq"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
)

// Sink receives batches of journal events. Deliver must be idempotent per
// event_id: the relay retries a batch whose delivery was not confirmed.
type Sink interface {
	Deliver(ctx context.Context, events []ir.Event) error
}

// WriterSink writes events as JSON lines.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Deliver writes one line per event.
func (s *WriterSink) Deliver(_ context.Context, events []ir.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.w)
	enc.SetEscapeHTML(false)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("write event %s: %w", ev.EventID, err)
		}
	}
	return nil
}

// postgresSchema is applied by EnsureSchema.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS swapgraph_events (
    event_id    TEXT PRIMARY KEY,
    seq         BIGINT NOT NULL,
    type        TEXT NOT NULL,
    subject     TEXT NOT NULL,
    payload     JSONB NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL
)`

const postgresInsert = `
		INSERT INTO swapgraph_events (event_id, seq, type, subject, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING`

// PostgresSink mirrors the journal into a PostgreSQL table for downstream
// consumers.
type PostgresSink struct {
	db *sql.DB
}

// OpenPostgres opens a database handle for dsn using lib/pq.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// NewPostgresSink wraps an open database.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// EnsureSchema creates the events table if needed.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create swapgraph_events: %w", err)
	}
	return nil
}

// Deliver inserts the batch in one transaction. Events already present are
// skipped by ON CONFLICT (event_id) DO NOTHING.
func (s *PostgresSink) Deliver(ctx context.Context, events []ir.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delivery: %w", err)
	}
	defer tx.Rollback()

	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, postgresInsert,
			ev.EventID, ev.Seq, ev.Type, ev.Subject, string(ev.Payload), ev.OccurredAt,
		); err != nil {
			return fmt.Errorf("deliver event %s: %w", ev.EventID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delivery: %w", err)
	}
	return nil
}
