package matching

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
)

// Skip reasons returned by BuildProposal.
const (
	SkipEdgeUnsatisfied = "edge_unsatisfied"
	SkipDuplicateActor  = "duplicate_actor"
	SkipZeroValue       = "zero_value"
)

// ScoreDecimals is the number of places kept in a confidence score.
const ScoreDecimals = 4

// ProposalOutcome is either a built proposal or the reason the cycle was
// skipped. Exactly one field is set.
type ProposalOutcome struct {
	Proposal *ir.CycleProposal
	Skip     string
}

// BuildProposal turns a cycle into a scored proposal.
//
// Each hand-off is recomputed from the intents in g rather than trusted
// from the search, so a cycle whose intents no longer satisfy each other is
// skipped. The returned error is reserved for hashing failures.
func BuildProposal(runID string, cycle Cycle, g *Graph, createdAt time.Time, ttl time.Duration) (ProposalOutcome, error) {
	n := len(cycle)
	if n < MinCycleLength {
		return ProposalOutcome{Skip: SkipEdgeUnsatisfied}, nil
	}

	intents := make([]ir.SwapIntent, n)
	actors := make(map[string]bool, n)
	for i, id := range cycle {
		in, ok := g.Intent(id)
		if !ok {
			return ProposalOutcome{Skip: SkipEdgeUnsatisfied}, nil
		}
		if actors[in.Actor] {
			return ProposalOutcome{Skip: SkipDuplicateActor}, nil
		}
		actors[in.Actor] = true
		intents[i] = in
	}

	// handoffs[i] flows from position i to position i+1.
	handoffs := make([][]ir.Asset, n)
	values := make([]decimal.Decimal, n)
	for i := range intents {
		next := intents[(i+1)%n]
		assets, value, ok := Handoff(intents[i].Give, next.Want)
		if !ok {
			return ProposalOutcome{Skip: SkipEdgeUnsatisfied}, nil
		}
		handoffs[i] = assets
		values[i] = value
	}

	participants := make([]ir.Participant, n)
	fairness := make([]decimal.Decimal, n)
	for i, in := range intents {
		prev := (i + n - 1) % n
		participants[i] = ir.Participant{
			Actor:    in.Actor,
			IntentID: in.ID,
			Give:     handoffs[i],
			Receive:  handoffs[prev],
		}
		f, ok := Fairness(values[i], values[prev])
		if !ok {
			return ProposalOutcome{Skip: SkipZeroValue}, nil
		}
		fairness[i] = f
	}

	id, err := ir.ProposalID(runID, participants)
	if err != nil {
		return ProposalOutcome{}, fmt.Errorf("build proposal: %w", err)
	}
	return ProposalOutcome{Proposal: &ir.CycleProposal{
		ID:              id,
		RunID:           runID,
		Participants:    participants,
		ConfidenceScore: ConfidenceScore(fairness),
		Status:          ir.ProposalOpen,
		CreatedAt:       createdAt,
		ExpiresAt:       createdAt.Add(ttl),
	}}, nil
}

// Fairness is min(given, received) / max(given, received) to 8 places.
// ok is false when both sides are zero.
func Fairness(given, received decimal.Decimal) (decimal.Decimal, bool) {
	hi := decimal.Max(given, received)
	if !hi.IsPositive() {
		return decimal.Zero, false
	}
	lo := decimal.Min(given, received)
	return lo.DivRound(hi, 8), true
}

// ConfidenceScore is the mean of the per-participant fairness ratios,
// rounded half-up to ScoreDecimals places.
func ConfidenceScore(fairness []decimal.Decimal) decimal.Decimal {
	if len(fairness) == 0 {
		return decimal.Zero
	}
	sum := decimal.Sum(decimal.Zero, fairness...)
	mean := sum.DivRound(decimal.NewFromInt(int64(len(fairness))), 8)
	return mean.Round(ScoreDecimals)
}

// ScoreUnits converts a confidence score to integer units of 1e-4, the
// representation the optimizer works in.
func ScoreUnits(score decimal.Decimal) int64 {
	return score.Shift(ScoreDecimals).Round(0).IntPart()
}

// CandidateOf converts a proposal to an optimizer candidate.
func CandidateOf(p ir.CycleProposal) Candidate {
	return Candidate{
		ID:        p.ID,
		IntentIDs: p.IntentIDs(),
		Score:     ScoreUnits(p.ConfidenceScore),
	}
}
