package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
)

// InsertCommit stores the acceptance record for a proposal.
// The proposal_id primary key makes a second accept fail.
func (t *Tx) InsertCommit(ctx context.Context, c ir.Commit) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO commits (proposal_id, accepted_by, phase, created_at, accepted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ProposalID, c.AcceptedBy, string(c.Phase),
		formatTime(c.CreatedAt), formatTime(c.AcceptedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert commit %s: %w", c.ProposalID, err)
	}
	return nil
}

// GetCommit returns the commit for a proposal, or ErrNotFound.
func (t *Tx) GetCommit(ctx context.Context, proposalID string) (ir.Commit, error) {
	var (
		c                                ir.Commit
		phase                            string
		createdAt, acceptedAt, updatedAt string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT proposal_id, accepted_by, phase, created_at, accepted_at, updated_at
		FROM commits WHERE proposal_id = ?
	`, proposalID).Scan(&c.ProposalID, &c.AcceptedBy, &phase, &createdAt, &acceptedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Commit{}, fmt.Errorf("commit %s: %w", proposalID, ErrNotFound)
	}
	if err != nil {
		return ir.Commit{}, fmt.Errorf("get commit: %w", err)
	}
	c.Phase = ir.CommitPhase(phase)
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return ir.Commit{}, err
	}
	if c.AcceptedAt, err = parseTime(acceptedAt); err != nil {
		return ir.Commit{}, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ir.Commit{}, err
	}
	return c, nil
}

// SetCommitPhase advances a commit's phase.
func (t *Tx) SetCommitPhase(ctx context.Context, proposalID string, phase ir.CommitPhase, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE commits SET phase = ?, updated_at = ? WHERE proposal_id = ?
	`, string(phase), formatTime(at), proposalID)
	if err != nil {
		return fmt.Errorf("set commit phase: %w", err)
	}
	return expectOne(res, "commit", proposalID)
}

// InsertTimeline stores a new timeline and all of its legs.
func (t *Tx) InsertTimeline(ctx context.Context, tl ir.SettlementTimeline) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO timelines (cycle_id, state, deposit_deadline_at, failure_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tl.CycleID, string(tl.State), formatTime(tl.DepositDeadlineAt), tl.FailureReason,
		formatTime(tl.CreatedAt), formatTime(tl.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert timeline %s: %w", tl.CycleID, err)
	}
	for _, leg := range tl.Legs {
		assets, err := marshalJSON("assets", leg.Assets)
		if err != nil {
			return fmt.Errorf("insert leg: %w", err)
		}
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO legs (cycle_id, idx, intent_id, from_actor, to_actor, assets, status, deposit_ref, deposited_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, tl.CycleID, leg.Index, leg.IntentID, leg.FromActor, leg.ToActor, assets,
			string(leg.Status), leg.DepositRef, formatNullTime(leg.DepositedAt))
		if err != nil {
			return fmt.Errorf("insert leg %s/%d: %w", tl.CycleID, leg.Index, err)
		}
	}
	return nil
}

// GetTimeline returns a timeline with its legs in index order, or ErrNotFound.
func (t *Tx) GetTimeline(ctx context.Context, cycleID string) (ir.SettlementTimeline, error) {
	var (
		tl                   ir.SettlementTimeline
		state, deadline      string
		createdAt, updatedAt string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT cycle_id, state, deposit_deadline_at, failure_reason, created_at, updated_at
		FROM timelines WHERE cycle_id = ?
	`, cycleID).Scan(&tl.CycleID, &state, &deadline, &tl.FailureReason, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.SettlementTimeline{}, fmt.Errorf("timeline %s: %w", cycleID, ErrNotFound)
	}
	if err != nil {
		return ir.SettlementTimeline{}, fmt.Errorf("get timeline: %w", err)
	}
	tl.State = ir.TimelineState(state)
	if tl.DepositDeadlineAt, err = parseTime(deadline); err != nil {
		return ir.SettlementTimeline{}, err
	}
	if tl.CreatedAt, err = parseTime(createdAt); err != nil {
		return ir.SettlementTimeline{}, err
	}
	if tl.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ir.SettlementTimeline{}, err
	}

	legs, err := t.legs(ctx, cycleID)
	if err != nil {
		return ir.SettlementTimeline{}, err
	}
	tl.Legs = legs
	return tl, nil
}

func (t *Tx) legs(ctx context.Context, cycleID string) ([]ir.Leg, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT idx, intent_id, from_actor, to_actor, assets, status, deposit_ref, deposited_at
		FROM legs WHERE cycle_id = ?
		ORDER BY idx ASC
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("query legs: %w", err)
	}
	defer rows.Close()

	legs := []ir.Leg{}
	for rows.Next() {
		var (
			leg         ir.Leg
			assets      string
			status      string
			depositedAt sql.NullString
		)
		if err := rows.Scan(&leg.Index, &leg.IntentID, &leg.FromActor, &leg.ToActor,
			&assets, &status, &leg.DepositRef, &depositedAt); err != nil {
			return nil, fmt.Errorf("scan leg: %w", err)
		}
		if err := unmarshalJSON("assets", assets, &leg.Assets); err != nil {
			return nil, err
		}
		leg.Status = ir.LegStatus(status)
		if leg.DepositedAt, err = parseNullTime(depositedAt); err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legs: %w", err)
	}
	return legs, nil
}

// UpdateTimelineState sets a timeline's state and failure reason.
func (t *Tx) UpdateTimelineState(ctx context.Context, cycleID string, state ir.TimelineState, reason string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE timelines SET state = ?, failure_reason = ?, updated_at = ? WHERE cycle_id = ?
	`, string(state), reason, formatTime(at), cycleID)
	if err != nil {
		return fmt.Errorf("update timeline: %w", err)
	}
	return expectOne(res, "timeline", cycleID)
}

// UpdateLeg writes a leg's status and deposit fields.
func (t *Tx) UpdateLeg(ctx context.Context, cycleID string, leg ir.Leg) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE legs SET status = ?, deposit_ref = ?, deposited_at = ?
		WHERE cycle_id = ? AND idx = ?
	`, string(leg.Status), leg.DepositRef, formatNullTime(leg.DepositedAt), cycleID, leg.Index)
	if err != nil {
		return fmt.Errorf("update leg: %w", err)
	}
	return expectOne(res, "leg", fmt.Sprintf("%s/%d", cycleID, leg.Index))
}

// ListTimelineIDs returns cycle ids in the given state, ordered by id.
// An empty state lists all.
func (t *Tx) ListTimelineIDs(ctx context.Context, state ir.TimelineState) ([]string, error) {
	return t.queryIDs(ctx, `
		SELECT cycle_id FROM timelines
		WHERE (? = '' OR state = ?)
		ORDER BY cycle_id COLLATE BINARY ASC
	`, string(state), string(state))
}

// ListOverdueTimelineIDs returns pending timelines whose deposit deadline is
// at or before now and that still have an undeposited leg, earliest deadline
// first. Fully deposited timelines are waiting for execution, not expiry.
func (t *Tx) ListOverdueTimelineIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return t.queryIDs(ctx, `
		SELECT cycle_id FROM timelines
		WHERE state = ? AND deposit_deadline_at <= ?
		  AND EXISTS (
			SELECT 1 FROM legs l
			WHERE l.cycle_id = timelines.cycle_id AND l.status = ?
		  )
		ORDER BY deposit_deadline_at ASC, cycle_id COLLATE BINARY ASC
		LIMIT ?
	`, string(ir.StatePending), formatTime(now), string(ir.LegPending), limit)
}

func (t *Tx) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

// InsertReceipt stores a receipt. The cycle_id UNIQUE constraint rejects a
// second receipt for the same cycle.
func (t *Tx) InsertReceipt(ctx context.Context, r ir.SwapReceipt) error {
	record, err := marshalJSON("receipt", r)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO receipts (id, cycle_id, final_state, record, created_at) VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.CycleID, string(r.FinalState), record, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert receipt for %s: %w", r.CycleID, err)
	}
	return nil
}

// GetReceipt returns the receipt for a cycle, or ErrNotFound.
func (t *Tx) GetReceipt(ctx context.Context, cycleID string) (ir.SwapReceipt, error) {
	var record string
	err := t.tx.QueryRowContext(ctx, `SELECT record FROM receipts WHERE cycle_id = ?`, cycleID).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.SwapReceipt{}, fmt.Errorf("receipt for %s: %w", cycleID, ErrNotFound)
	}
	if err != nil {
		return ir.SwapReceipt{}, fmt.Errorf("get receipt: %w", err)
	}
	var r ir.SwapReceipt
	if err := unmarshalJSON("receipt", record, &r); err != nil {
		return ir.SwapReceipt{}, err
	}
	return r, nil
}

// CountReceipts returns how many receipts exist for a cycle (0 or 1).
func (t *Tx) CountReceipts(ctx context.Context, cycleID string) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM receipts WHERE cycle_id = ?`, cycleID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count receipts: %w", err)
	}
	return n, nil
}
