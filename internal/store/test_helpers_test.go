package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testIntent(id, actor string) ir.SwapIntent {
	return ir.SwapIntent{
		ID:        id,
		Actor:     actor,
		Give:      []ir.Asset{{ID: "asset-" + id, Class: "card", Value: decimal.NewFromInt(10)}},
		Want:      ir.WantSpec{Classes: []string{"card"}, MinValue: decimal.NewFromInt(5)},
		Status:    ir.IntentActive,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
}

func testProposal(id string, intentIDs ...string) ir.CycleProposal {
	parts := make([]ir.Participant, len(intentIDs))
	for i, in := range intentIDs {
		parts[i] = ir.Participant{
			Actor:    "actor-" + in,
			IntentID: in,
			Give:     []ir.Asset{{ID: "asset-" + in, Class: "card", Value: decimal.NewFromInt(10)}},
			Receive:  []ir.Asset{},
		}
	}
	return ir.CycleProposal{
		ID:              id,
		RunID:           "run_test",
		Participants:    parts,
		ConfidenceScore: decimal.RequireFromString("0.75"),
		Status:          ir.ProposalOpen,
		CreatedAt:       t0,
		ExpiresAt:       t0.Add(time.Hour),
	}
}

// seedCommit inserts intents, a proposal and its commit so timeline rows
// satisfy their foreign keys.
func seedCommit(t *testing.T, s *Store, proposalID string, intentIDs ...string) ir.CycleProposal {
	t.Helper()
	p := testProposal(proposalID, intentIDs...)
	err := s.Update(context.Background(), func(tx *Tx) error {
		for _, id := range intentIDs {
			if _, err := tx.InsertIntent(context.Background(), testIntent(id, "actor-"+id)); err != nil {
				return err
			}
		}
		if err := tx.InsertProposal(context.Background(), p); err != nil {
			return err
		}
		return tx.InsertCommit(context.Background(), ir.Commit{
			ProposalID: proposalID,
			AcceptedBy: "actor-" + intentIDs[0],
			Phase:      ir.PhaseAccepted,
			CreatedAt:  t0,
			AcceptedAt: t0,
			UpdatedAt:  t0,
		})
	})
	if err != nil {
		t.Fatalf("seed commit: %v", err)
	}
	return p
}
