package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
)

// InsertProposal stores a new proposal. Proposals are never edited; only
// their status moves via SetProposalStatus.
func (t *Tx) InsertProposal(ctx context.Context, p ir.CycleProposal) error {
	parts, err := marshalJSON("participants", p.Participants)
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO proposals (id, run_id, participants, confidence_score, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.RunID, parts, p.ConfidenceScore.String(), string(p.Status),
		formatTime(p.CreatedAt), formatTime(p.ExpiresAt))
	if err != nil {
		return fmt.Errorf("insert proposal %s: %w", p.ID, err)
	}
	return nil
}

// GetProposal returns the proposal with the given id, or ErrNotFound.
func (t *Tx) GetProposal(ctx context.Context, id string) (ir.CycleProposal, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, run_id, participants, confidence_score, status, created_at, expires_at
		FROM proposals WHERE id = ?
	`, id)
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.CycleProposal{}, fmt.Errorf("proposal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.CycleProposal{}, fmt.Errorf("get proposal: %w", err)
	}
	return p, nil
}

// ListProposals returns proposals ordered by id. An empty status lists all.
func (t *Tx) ListProposals(ctx context.Context, status ir.ProposalStatus) ([]ir.CycleProposal, error) {
	return t.queryProposals(ctx, `
		SELECT id, run_id, participants, confidence_score, status, created_at, expires_at
		FROM proposals
		WHERE (? = '' OR status = ?)
		ORDER BY id COLLATE BINARY ASC
	`, string(status), string(status))
}

// ListRunProposals returns the proposals created by a run, ordered by id.
func (t *Tx) ListRunProposals(ctx context.Context, runID string) ([]ir.CycleProposal, error) {
	return t.queryProposals(ctx, `
		SELECT id, run_id, participants, confidence_score, status, created_at, expires_at
		FROM proposals
		WHERE run_id = ?
		ORDER BY id COLLATE BINARY ASC
	`, runID)
}

func (t *Tx) queryProposals(ctx context.Context, query string, args ...any) ([]ir.CycleProposal, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query proposals: %w", err)
	}
	defer rows.Close()

	proposals := []ir.CycleProposal{}
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}
	return proposals, nil
}

// SetProposalStatus moves a proposal off open.
func (t *Tx) SetProposalStatus(ctx context.Context, id string, status ir.ProposalStatus) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE proposals SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("set proposal status: %w", err)
	}
	return expectOne(res, "proposal", id)
}

func scanProposal(row scanner) (ir.CycleProposal, error) {
	var (
		p                    ir.CycleProposal
		parts, score, status string
		createdAt, expiresAt string
	)
	if err := row.Scan(&p.ID, &p.RunID, &parts, &score, &status, &createdAt, &expiresAt); err != nil {
		return ir.CycleProposal{}, err
	}
	if err := unmarshalJSON("participants", parts, &p.Participants); err != nil {
		return ir.CycleProposal{}, err
	}
	var err error
	if p.ConfidenceScore, err = decimal.NewFromString(score); err != nil {
		return ir.CycleProposal{}, fmt.Errorf("parse confidence score: %w", err)
	}
	p.Status = ir.ProposalStatus(status)
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return ir.CycleProposal{}, err
	}
	if p.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return ir.CycleProposal{}, err
	}
	return p, nil
}

// InsertRun stores an immutable matching run record.
func (t *Tx) InsertRun(ctx context.Context, run ir.MatchingRun) error {
	record, err := marshalJSON("run", run)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO matching_runs (run_id, actor, idempotency_key, snapshot_hash, record, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.RunID, run.Actor, run.IdempotencyKey, run.SnapshotHash, record, formatTime(run.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}
	return nil
}

// GetRun returns the run with the given id, or ErrNotFound.
func (t *Tx) GetRun(ctx context.Context, runID string) (ir.MatchingRun, error) {
	var record string
	err := t.tx.QueryRowContext(ctx, `SELECT record FROM matching_runs WHERE run_id = ?`, runID).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.MatchingRun{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return ir.MatchingRun{}, fmt.Errorf("get run: %w", err)
	}
	var run ir.MatchingRun
	if err := unmarshalJSON("run", record, &run); err != nil {
		return ir.MatchingRun{}, err
	}
	return run, nil
}

// ListRuns returns runs oldest first.
func (t *Tx) ListRuns(ctx context.Context) ([]ir.MatchingRun, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT record FROM matching_runs ORDER BY created_at ASC, run_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.MatchingRun{}
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var run ir.MatchingRun
		if err := unmarshalJSON("run", record, &run); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
