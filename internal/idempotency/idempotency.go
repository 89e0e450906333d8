// Package idempotency makes keyed mutating operations replay-safe.
//
// Do runs the lookup, the operation and the record write in one store
// transaction, so a crash can never leave an applied mutation without its
// stored outcome (or the reverse). Domain errors are recorded too, in a
// separate transaction after the failed one rolls back, so a retry with the
// same key and payload observes the same error. Internal errors are never
// recorded: they are transient and the retry should run for real.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/store"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/swaperr"
)

// Scope identifies a keyed call. Keys are scoped per (actor, operation).
// An empty Key disables the guard.
type Scope struct {
	Actor     string
	Operation string
	Key       string
}

// Outcome describes how Do produced its result.
type Outcome struct {
	// Replayed is true when the result or error came from a stored record.
	Replayed bool
}

// Do runs fn under the idempotency guard.
//
// If a record exists for scope with the same payload digest, its stored
// result (or error) is returned and fn is not called. A record with a
// different digest yields conflict/idempotency_key_reused. Otherwise fn
// runs, and its result is stored in the same transaction.
func Do[T any](ctx context.Context, s *store.Store, scope Scope, payload any, at time.Time, fn func(tx *store.Tx) (T, error)) (T, Outcome, error) {
	var zero T
	digest, err := ir.PayloadDigest(payload)
	if err != nil {
		return zero, Outcome{}, swaperr.Validation(swaperr.ReasonInvalidPayload, "payload is not canonicalizable: %v", err)
	}

	var (
		result   T
		existing bool
		replayed bool
	)
	err = s.Update(ctx, func(tx *store.Tx) error {
		if scope.Key != "" {
			rec, ok, err := tx.GetIdempotency(ctx, scope.Actor, scope.Operation, scope.Key)
			if err != nil {
				return err
			}
			if ok {
				existing = true
				if rec.PayloadDigest != digest {
					return swaperr.Conflict(swaperr.ReasonIdempotencyReused,
						"idempotency key %q was used with a different payload", scope.Key).
						WithDetail("operation", scope.Operation)
				}
				replayed = true
				if rec.ErrorCode != "" {
					return storedError(rec)
				}
				if err := json.Unmarshal(rec.Result, &result); err != nil {
					return fmt.Errorf("decode stored result: %w", err)
				}
				return nil
			}
		}

		r, err := fn(tx)
		if err != nil {
			return err
		}
		result = r
		if scope.Key == "" {
			return nil
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		return tx.PutIdempotency(ctx, ir.IdempotencyRecord{
			Actor:         scope.Actor,
			Operation:     scope.Operation,
			Key:           scope.Key,
			PayloadDigest: digest,
			Result:        data,
			CreatedAt:     at,
		})
	})
	if err == nil {
		return result, Outcome{Replayed: replayed}, nil
	}

	if scope.Key != "" && !existing && swaperr.Recordable(err) {
		if recErr := recordError(ctx, s, scope, digest, at, err); recErr != nil {
			return zero, Outcome{}, swaperr.Internal(errors.Join(err, recErr), "record idempotent error")
		}
	}
	return zero, Outcome{Replayed: replayed}, err
}

func recordError(ctx context.Context, s *store.Store, scope Scope, digest string, at time.Time, opErr error) error {
	se := swaperr.From(opErr)
	return s.Update(ctx, func(tx *store.Tx) error {
		return tx.PutIdempotency(ctx, ir.IdempotencyRecord{
			Actor:         scope.Actor,
			Operation:     scope.Operation,
			Key:           scope.Key,
			PayloadDigest: digest,
			ErrorCode:     string(se.Kind),
			ErrorReason:   se.ReasonCode,
			ErrorMessage:  se.Message,
			CreatedAt:     at,
		})
	})
}

func storedError(rec ir.IdempotencyRecord) *swaperr.Error {
	return &swaperr.Error{
		Kind:       swaperr.Kind(rec.ErrorCode),
		ReasonCode: rec.ErrorReason,
		Message:    rec.ErrorMessage,
	}
}
