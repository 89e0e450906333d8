package settlement

import (
	"slices"
	"time"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/swaperr"
)

// transitions lists the legal forward moves of a timeline. Terminal states
// have no entry.
var transitions = map[ir.TimelineState][]ir.TimelineState{
	ir.StatePending:   {ir.StateExecuting, ir.StateFailed},
	ir.StateExecuting: {ir.StateCompleted, ir.StateFailed},
}

// CanTransition reports whether a timeline may move from one state to
// another.
func CanTransition(from, to ir.TimelineState) bool {
	return slices.Contains(transitions[from], to)
}

// checkTransition returns the structured error for an illegal move.
func checkTransition(cycleID string, from, to ir.TimelineState) error {
	if CanTransition(from, to) {
		return nil
	}
	if from.Terminal() {
		return swaperr.Precondition(swaperr.ReasonTimelineTerminal,
			"cycle %s is already %s", cycleID, from).
			WithDetail("state", string(from))
	}
	return swaperr.Precondition(swaperr.ReasonInvalidTransition,
		"cycle %s cannot move from %s to %s", cycleID, from, to).
		WithDetail("state", string(from))
}

// phaseFor maps a timeline state to the commit phase that mirrors it.
func phaseFor(s ir.TimelineState) ir.CommitPhase {
	switch s {
	case ir.StatePending:
		return ir.PhasePending
	case ir.StateExecuting:
		return ir.PhaseExecuting
	case ir.StateCompleted:
		return ir.PhaseCompleted
	default:
		return ir.PhaseFailed
	}
}

// buildLegs creates one pending leg per participant: participant i hands
// its give to participant i+1.
func buildLegs(p ir.CycleProposal) []ir.Leg {
	n := len(p.Participants)
	legs := make([]ir.Leg, n)
	for i, part := range p.Participants {
		legs[i] = ir.Leg{
			Index:     i,
			IntentID:  part.IntentID,
			FromActor: part.Actor,
			ToActor:   p.Participants[(i+1)%n].Actor,
			Assets:    part.Give,
			Status:    ir.LegPending,
		}
	}
	return legs
}

// receiptFor builds the unsigned terminal receipt of a cycle.
func receiptFor(p ir.CycleProposal, state ir.ReceiptState, reason string, at time.Time) ir.SwapReceipt {
	return ir.SwapReceipt{
		ID:         ir.ReceiptID(p.ID),
		CycleID:    p.ID,
		FinalState: state,
		IntentIDs:  p.IntentIDs(),
		AssetIDs:   p.AssetIDs(),
		ReasonCode: reason,
		Version:    ir.SchemaVersion,
		CreatedAt:  at,
	}
}
