package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
)

// GetIdempotency looks up the stored outcome for (actor, operation, key).
// Callers run this inside the same Update as the operation it guards.
func (t *Tx) GetIdempotency(ctx context.Context, actor, operation, key string) (ir.IdempotencyRecord, bool, error) {
	var (
		rec       ir.IdempotencyRecord
		result    sql.NullString
		createdAt string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT actor, operation, key, payload_digest, result, error_code, error_reason, error_message, created_at
		FROM idempotency_records
		WHERE actor = ? AND operation = ? AND key = ?
	`, actor, operation, key).Scan(&rec.Actor, &rec.Operation, &rec.Key, &rec.PayloadDigest,
		&result, &rec.ErrorCode, &rec.ErrorReason, &rec.ErrorMessage, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return ir.IdempotencyRecord{}, false, fmt.Errorf("get idempotency record: %w", err)
	}
	if result.Valid {
		rec.Result = []byte(result.String)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return ir.IdempotencyRecord{}, false, err
	}
	return rec, true, nil
}

// PutIdempotency stores an outcome. ON CONFLICT DO NOTHING keeps the first
// outcome if two writers race on the same key.
func (t *Tx) PutIdempotency(ctx context.Context, rec ir.IdempotencyRecord) error {
	var result sql.NullString
	if len(rec.Result) > 0 {
		result = sql.NullString{String: string(rec.Result), Valid: true}
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO idempotency_records
		(actor, operation, key, payload_digest, result, error_code, error_reason, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(actor, operation, key) DO NOTHING
	`, rec.Actor, rec.Operation, rec.Key, rec.PayloadDigest, result,
		rec.ErrorCode, rec.ErrorReason, rec.ErrorMessage, formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("put idempotency record: %w", err)
	}
	return nil
}
