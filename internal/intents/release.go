package intents

import (
	"context"
	"time"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/journal"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/store"
)

// Release drops the reservations held by proposalID inside tx and returns
// reserved intents to the active pool, journaling intent.unreserved for
// each. Returns the released intent ids in id order.
func Release(ctx context.Context, tx *store.Tx, proposalID string, at time.Time) ([]string, error) {
	released, err := tx.ReleaseReservations(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	for _, id := range released {
		in, err := tx.GetIntent(ctx, id)
		if err != nil {
			return nil, err
		}
		if in.Status != ir.IntentReserved {
			continue
		}
		if err := tx.SetIntentStatus(ctx, id, ir.IntentActive, at); err != nil {
			return nil, err
		}
		if _, err := journal.Append(ctx, tx, ir.EventIntentUnreserved, id, proposalID, map[string]any{
			"intent_id":   id,
			"proposal_id": proposalID,
		}, at); err != nil {
			return nil, err
		}
	}
	return released, nil
}

// Reserve holds every intent of p for it and marks them reserved.
func Reserve(ctx context.Context, tx *store.Tx, p ir.CycleProposal, at time.Time) error {
	for _, id := range p.IntentIDs() {
		if err := tx.Reserve(ctx, id, p.ID, at); err != nil {
			return err
		}
		if err := tx.SetIntentStatus(ctx, id, ir.IntentReserved, at); err != nil {
			return err
		}
		if _, err := journal.Append(ctx, tx, ir.EventIntentReserved, id, p.ID, map[string]any{
			"intent_id":   id,
			"proposal_id": p.ID,
		}, at); err != nil {
			return err
		}
	}
	return nil
}

// Fulfill drops the reservations held by proposalID and marks its intents
// fulfilled. Fulfilled is terminal, so no event is needed for the pool.
func Fulfill(ctx context.Context, tx *store.Tx, proposalID string, intentIDs []string, at time.Time) error {
	if _, err := tx.ReleaseReservations(ctx, proposalID); err != nil {
		return err
	}
	for _, id := range intentIDs {
		if err := tx.SetIntentStatus(ctx, id, ir.IntentFulfilled, at); err != nil {
			return err
		}
	}
	return nil
}
