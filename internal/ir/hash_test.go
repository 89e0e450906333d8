package ir

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func participants(ids ...string) []Participant {
	out := make([]Participant, len(ids))
	for i, id := range ids {
		out[i] = Participant{
			Actor:    "actor-" + id,
			IntentID: id,
			Give:     []Asset{{ID: "asset-" + id, Class: "card", Value: decimal.NewFromInt(10)}},
			Receive:  []Asset{},
		}
	}
	return out
}

func TestProposalIDDeterminism(t *testing.T) {
	id1, err := ProposalID("run-1", participants("a", "b", "c"))
	require.NoError(t, err)
	id2, err := ProposalID("run-1", participants("a", "b", "c"))
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "ProposalID must be deterministic")
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestProposalIDChangesWithInput(t *testing.T) {
	base := mustProposalID(t, "run-1", participants("a", "b"))

	assert.NotEqual(t, base, mustProposalID(t, "run-2", participants("a", "b")), "run id is part of identity")
	assert.NotEqual(t, base, mustProposalID(t, "run-1", participants("b", "a")), "cycle order is part of identity")
}

func mustProposalID(t *testing.T, runID string, parts []Participant) string {
	t.Helper()
	id, err := ProposalID(runID, parts)
	require.NoError(t, err)
	return id
}

func TestRunIDScopedByActorAndKey(t *testing.T) {
	assert.Equal(t, RunID("ops", "k1"), RunID("ops", "k1"))
	assert.NotEqual(t, RunID("ops", "k1"), RunID("ops", "k2"))
	assert.NotEqual(t, RunID("ops", "k1"), RunID("partner", "k1"))
	assert.True(t, strings.HasPrefix(RunID("ops", "k1"), "run_"))
}

func TestEventIDStablePerTransition(t *testing.T) {
	a := EventID(EventCycleStateChanged, "cycle-1", "escrow.pending")
	b := EventID(EventCycleStateChanged, "cycle-1", "escrow.pending")
	c := EventID(EventCycleStateChanged, "cycle-1", "escrow.executing")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSnapshotHashIsOrderIndependent(t *testing.T) {
	mk := func(id string) SwapIntent {
		return SwapIntent{
			ID:     id,
			Actor:  "actor-" + id,
			Give:   []Asset{{ID: "x-" + id, Class: "card", Value: decimal.NewFromInt(1)}},
			Want:   WantSpec{Classes: []string{"card"}, MinValue: decimal.Zero},
			Status: IntentActive,
		}
	}
	h1, err := SnapshotHash([]SwapIntent{mk("a"), mk("b")})
	require.NoError(t, err)
	h2, err := SnapshotHash([]SwapIntent{mk("b"), mk("a")})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func TestPayloadDigestDiffersOnPayload(t *testing.T) {
	d1 := MustPayloadDigest(map[string]any{"proposal_id": "p1"})
	d2 := MustPayloadDigest(map[string]any{"proposal_id": "p2"})
	assert.NotEqual(t, d1, d2)
	assert.Equal(t, d1, MustPayloadDigest(map[string]any{"proposal_id": "p1"}))
}

func TestReceiptIDOnePerCycle(t *testing.T) {
	assert.Equal(t, ReceiptID("c1"), ReceiptID("c1"))
	assert.NotEqual(t, ReceiptID("c1"), ReceiptID("c2"))
}
