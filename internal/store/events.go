package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
)

// AppendEvent adds an event to the journal.
// Uses ON CONFLICT(event_id) DO NOTHING: replaying a transition is a no-op.
// Returns whether a new row was written.
func (t *Tx) AppendEvent(ctx context.Context, ev ir.Event) (bool, error) {
	payload := string(ev.Payload)
	if payload == "" {
		payload = "{}"
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO events (event_id, type, subject, payload, occurred_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`, ev.EventID, ev.Type, ev.Subject, payload, formatTime(ev.OccurredAt))
	if err != nil {
		return false, fmt.Errorf("append event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append event: %w", err)
	}
	return n == 1, nil
}

// ListEvents returns events with seq > afterSeq in seq order.
// limit <= 0 means no limit.
func (t *Tx) ListEvents(ctx context.Context, afterSeq int64, limit int) ([]ir.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	return t.queryEvents(ctx, `
		SELECT seq, event_id, type, subject, payload, occurred_at, relayed_at
		FROM events WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, afterSeq, limit)
}

// ListSubjectEvents returns every event about one subject in seq order.
func (t *Tx) ListSubjectEvents(ctx context.Context, subject string) ([]ir.Event, error) {
	return t.queryEvents(ctx, `
		SELECT seq, event_id, type, subject, payload, occurred_at, relayed_at
		FROM events WHERE subject = ?
		ORDER BY seq ASC
	`, subject)
}

// ListUnrelayedEvents returns the oldest events not yet delivered to a sink.
func (t *Tx) ListUnrelayedEvents(ctx context.Context, limit int) ([]ir.Event, error) {
	return t.queryEvents(ctx, `
		SELECT seq, event_id, type, subject, payload, occurred_at, relayed_at
		FROM events WHERE relayed_at IS NULL
		ORDER BY seq ASC
		LIMIT ?
	`, limit)
}

// MarkRelayed stamps events as delivered.
func (t *Tx) MarkRelayed(ctx context.Context, seqs []int64, at time.Time) error {
	for _, seq := range seqs {
		if _, err := t.tx.ExecContext(ctx, `
			UPDATE events SET relayed_at = ? WHERE seq = ? AND relayed_at IS NULL
		`, formatTime(at), seq); err != nil {
			return fmt.Errorf("mark relayed %d: %w", seq, err)
		}
	}
	return nil
}

func (t *Tx) queryEvents(ctx context.Context, query string, args ...any) ([]ir.Event, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		var (
			ev         ir.Event
			payload    string
			occurredAt string
			relayedAt  sql.NullString
		)
		if err := rows.Scan(&ev.Seq, &ev.EventID, &ev.Type, &ev.Subject, &payload, &occurredAt, &relayedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Payload = []byte(payload)
		if ev.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, err
		}
		if ev.RelayedAt, err = parseNullTime(relayedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
