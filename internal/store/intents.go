package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
)

// InsertIntent stores a new intent.
// Uses ON CONFLICT(id) DO NOTHING; returns false if the id already exists.
func (t *Tx) InsertIntent(ctx context.Context, in ir.SwapIntent) (bool, error) {
	give, err := marshalJSON("give", in.Give)
	if err != nil {
		return false, fmt.Errorf("insert intent: %w", err)
	}
	want, err := marshalJSON("want", in.Want)
	if err != nil {
		return false, fmt.Errorf("insert intent: %w", err)
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO intents (id, actor, give, want, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, in.ID, in.Actor, give, want, string(in.Status), formatTime(in.CreatedAt), formatTime(in.UpdatedAt))
	if err != nil {
		return false, fmt.Errorf("insert intent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert intent: %w", err)
	}
	return n == 1, nil
}

// GetIntent returns the intent with the given id, or ErrNotFound.
func (t *Tx) GetIntent(ctx context.Context, id string) (ir.SwapIntent, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, actor, give, want, status, created_at, updated_at
		FROM intents WHERE id = ?
	`, id)
	in, err := scanIntent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.SwapIntent{}, fmt.Errorf("intent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.SwapIntent{}, fmt.Errorf("get intent: %w", err)
	}
	return in, nil
}

// ListIntents returns intents ordered by id. An empty status lists all.
func (t *Tx) ListIntents(ctx context.Context, status ir.IntentStatus) ([]ir.SwapIntent, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, actor, give, want, status, created_at, updated_at
		FROM intents
		WHERE (? = '' OR status = ?)
		ORDER BY id COLLATE BINARY ASC
	`, string(status), string(status))
	if err != nil {
		return nil, fmt.Errorf("query intents: %w", err)
	}
	defer rows.Close()

	intents := []ir.SwapIntent{}
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		intents = append(intents, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intents: %w", err)
	}
	return intents, nil
}

// SetIntentStatus moves an intent to a new status.
func (t *Tx) SetIntentStatus(ctx context.Context, id string, status ir.IntentStatus, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE intents SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("set intent status: %w", err)
	}
	return expectOne(res, "intent", id)
}

func scanIntent(row scanner) (ir.SwapIntent, error) {
	var (
		in                   ir.SwapIntent
		give, want, status   string
		createdAt, updatedAt string
	)
	if err := row.Scan(&in.ID, &in.Actor, &give, &want, &status, &createdAt, &updatedAt); err != nil {
		return ir.SwapIntent{}, err
	}
	if err := unmarshalJSON("give", give, &in.Give); err != nil {
		return ir.SwapIntent{}, err
	}
	if err := unmarshalJSON("want", want, &in.Want); err != nil {
		return ir.SwapIntent{}, err
	}
	in.Status = ir.IntentStatus(status)
	var err error
	if in.CreatedAt, err = parseTime(createdAt); err != nil {
		return ir.SwapIntent{}, err
	}
	if in.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ir.SwapIntent{}, err
	}
	return in, nil
}

// Reserve records that intentID is held by proposalID.
// Fails if the intent already has a reservation.
func (t *Tx) Reserve(ctx context.Context, intentID, proposalID string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO reservations (intent_id, proposal_id, created_at) VALUES (?, ?, ?)
	`, intentID, proposalID, formatTime(at))
	if err != nil {
		return fmt.Errorf("reserve intent %s: %w", intentID, err)
	}
	return nil
}

// ReservationFor returns the proposal holding intentID, if any.
func (t *Tx) ReservationFor(ctx context.Context, intentID string) (string, bool, error) {
	var proposalID string
	err := t.tx.QueryRowContext(ctx, `
		SELECT proposal_id FROM reservations WHERE intent_id = ?
	`, intentID).Scan(&proposalID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get reservation: %w", err)
	}
	return proposalID, true, nil
}

// ReleaseReservations drops every reservation held by proposalID and
// returns the released intent ids in id order.
func (t *Tx) ReleaseReservations(ctx context.Context, proposalID string) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT intent_id FROM reservations WHERE proposal_id = ?
		ORDER BY intent_id COLLATE BINARY ASC
	`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	rows.Close()

	if _, err := t.tx.ExecContext(ctx, `DELETE FROM reservations WHERE proposal_id = ?`, proposalID); err != nil {
		return nil, fmt.Errorf("release reservations: %w", err)
	}
	return ids, nil
}

func expectOne(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}
