package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
)

func TestIntents_InsertGetList(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		for _, id := range []string{"i2", "i1", "i3"} {
			inserted, err := tx.InsertIntent(ctx, testIntent(id, "actor-"+id))
			require.NoError(t, err)
			assert.True(t, inserted)
		}
		inserted, err := tx.InsertIntent(ctx, testIntent("i1", "someone-else"))
		require.NoError(t, err)
		assert.False(t, inserted, "duplicate id must not overwrite")
		return tx.SetIntentStatus(ctx, "i3", ir.IntentCancelled, t0.Add(time.Minute))
	})
	require.NoError(t, err)

	err = s.View(ctx, func(tx *Tx) error {
		got, err := tx.GetIntent(ctx, "i1")
		require.NoError(t, err)
		assert.Equal(t, "actor-i1", got.Actor)
		assert.True(t, got.Want.MinValue.Equal(testIntent("i1", "").Want.MinValue))
		assert.Equal(t, t0, got.CreatedAt)

		all, err := tx.ListIntents(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "i1", all[0].ID)
		assert.Equal(t, "i3", all[2].ID)

		active, err := tx.ListIntents(ctx, ir.IntentActive)
		require.NoError(t, err)
		assert.Len(t, active, 2)

		_, err = tx.GetIntent(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestIntents_ListEmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.View(ctx, func(tx *Tx) error {
		got, err := tx.ListIntents(ctx, "")
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
		return nil
	})
	require.NoError(t, err)
}

func TestReservations_OnePerIntent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		for _, id := range []string{"a", "b"} {
			if _, err := tx.InsertIntent(ctx, testIntent(id, "actor-"+id)); err != nil {
				return err
			}
		}
		if err := tx.InsertProposal(ctx, testProposal("p1", "a", "b")); err != nil {
			return err
		}
		if err := tx.InsertProposal(ctx, testProposal("p2", "a", "b")); err != nil {
			return err
		}
		if err := tx.Reserve(ctx, "a", "p1", t0); err != nil {
			return err
		}
		return tx.Reserve(ctx, "b", "p1", t0)
	})
	require.NoError(t, err)

	err = s.Update(ctx, func(tx *Tx) error {
		return tx.Reserve(ctx, "a", "p2", t0)
	})
	require.Error(t, err, "an intent cannot be held by two proposals")

	err = s.Update(ctx, func(tx *Tx) error {
		holder, ok, err := tx.ReservationFor(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "p1", holder)

		released, err := tx.ReleaseReservations(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, released)

		_, ok, err = tx.ReservationFor(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestProposals_RoundTripAndStatus(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	p := testProposal("p1", "a", "b")

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.InsertProposal(ctx, p); err != nil {
			return err
		}
		return tx.SetProposalStatus(ctx, "p1", ir.ProposalSuperseded)
	})
	require.NoError(t, err)

	err = s.View(ctx, func(tx *Tx) error {
		got, err := tx.GetProposal(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, ir.ProposalSuperseded, got.Status)
		assert.Equal(t, p.IntentIDs(), got.IntentIDs())
		assert.Equal(t, "0.75", got.ConfidenceScore.String())
		assert.Equal(t, p.ExpiresAt, got.ExpiresAt)

		byRun, err := tx.ListRunProposals(ctx, "run_test")
		require.NoError(t, err)
		assert.Len(t, byRun, 1)

		open, err := tx.ListProposals(ctx, ir.ProposalOpen)
		require.NoError(t, err)
		assert.Empty(t, open)
		return nil
	})
	require.NoError(t, err)

	err = s.Update(ctx, func(tx *Tx) error {
		return tx.SetProposalStatus(ctx, "nope", ir.ProposalExpired)
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRuns_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run := ir.MatchingRun{
		RunID:               ir.RunID("ops", "k1"),
		Actor:               "ops",
		IdempotencyKey:      "k1",
		SnapshotHash:        "abc",
		Bounds:              ir.Bounds{MaxCycleLength: 3, MaxCandidates: 10, TimeoutMS: 500},
		SelectedProposalIDs: []string{"p1"},
		Stats:               ir.RunStats{CandidateCycles: 2, SelectedProposalsCount: 1},
		Selection:           ir.SelectionSummary{Method: "exact", TotalScore: 7500, GreedyTotalScore: 7500},
		CreatedAt:           t0,
	}

	require.NoError(t, s.Update(ctx, func(tx *Tx) error { return tx.InsertRun(ctx, run) }))
	require.Error(t, s.Update(ctx, func(tx *Tx) error { return tx.InsertRun(ctx, run) }))

	err := s.View(ctx, func(tx *Tx) error {
		got, err := tx.GetRun(ctx, run.RunID)
		require.NoError(t, err)
		assert.Equal(t, run, got)

		runs, err := tx.ListRuns(ctx)
		require.NoError(t, err)
		assert.Len(t, runs, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestCommits_SinglePerProposal(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedCommit(t, s, "p1", "a", "b")

	err := s.Update(ctx, func(tx *Tx) error {
		return tx.InsertCommit(ctx, ir.Commit{ProposalID: "p1", AcceptedBy: "x", Phase: ir.PhaseAccepted})
	})
	require.Error(t, err)

	err = s.Update(ctx, func(tx *Tx) error {
		return tx.SetCommitPhase(ctx, "p1", ir.PhasePending, t0.Add(time.Second))
	})
	require.NoError(t, err)

	err = s.View(ctx, func(tx *Tx) error {
		c, err := tx.GetCommit(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, ir.PhasePending, c.Phase)
		assert.Equal(t, t0.Add(time.Second), c.UpdatedAt)
		assert.Equal(t, t0, c.AcceptedAt)

		_, err = tx.GetCommit(ctx, "p2")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestTimelines_LegsAndOverdue(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	p := seedCommit(t, s, "p1", "a", "b")

	tl := ir.SettlementTimeline{
		CycleID:           "p1",
		State:             ir.StatePending,
		DepositDeadlineAt: t0.Add(time.Hour),
		CreatedAt:         t0,
		UpdatedAt:         t0,
	}
	for i, part := range p.Participants {
		tl.Legs = append(tl.Legs, ir.Leg{
			Index:     i,
			IntentID:  part.IntentID,
			FromActor: part.Actor,
			ToActor:   p.Participants[(i+1)%len(p.Participants)].Actor,
			Assets:    part.Give,
			Status:    ir.LegPending,
		})
	}
	require.NoError(t, s.Update(ctx, func(tx *Tx) error { return tx.InsertTimeline(ctx, tl) }))

	depositedAt := t0.Add(time.Minute)
	err := s.Update(ctx, func(tx *Tx) error {
		got, err := tx.GetTimeline(ctx, "p1")
		if err != nil {
			return err
		}
		leg, ok := got.Leg("b")
		require.True(t, ok)
		leg.Status = ir.LegDeposited
		leg.DepositRef = "dep-b"
		leg.DepositedAt = &depositedAt
		return tx.UpdateLeg(ctx, "p1", *leg)
	})
	require.NoError(t, err)

	err = s.View(ctx, func(tx *Tx) error {
		got, err := tx.GetTimeline(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, got.Legs, 2)
		assert.Equal(t, "a", got.Legs[0].IntentID)
		assert.Equal(t, ir.LegDeposited, got.Legs[1].Status)
		assert.Equal(t, "dep-b", got.Legs[1].DepositRef)
		require.NotNil(t, got.Legs[1].DepositedAt)
		assert.Equal(t, depositedAt, *got.Legs[1].DepositedAt)
		assert.Nil(t, got.Legs[0].DepositedAt)
		assert.Equal(t, []string{"a"}, got.Outstanding())

		early, err := tx.ListOverdueTimelineIDs(ctx, t0.Add(30*time.Minute), 10)
		require.NoError(t, err)
		assert.Empty(t, early)

		due, err := tx.ListOverdueTimelineIDs(ctx, t0.Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"p1"}, due, "deadline is inclusive")
		return nil
	})
	require.NoError(t, err)

	err = s.Update(ctx, func(tx *Tx) error {
		got, err := tx.GetTimeline(ctx, "p1")
		if err != nil {
			return err
		}
		leg, ok := got.Leg("a")
		require.True(t, ok)
		leg.Status = ir.LegDeposited
		leg.DepositRef = "dep-a"
		leg.DepositedAt = &depositedAt
		return tx.UpdateLeg(ctx, "p1", *leg)
	})
	require.NoError(t, err)

	err = s.View(ctx, func(tx *Tx) error {
		due, err := tx.ListOverdueTimelineIDs(ctx, t0.Add(2*time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, due, "fully deposited timelines wait for execution")
		return nil
	})
	require.NoError(t, err)

	err = s.Update(ctx, func(tx *Tx) error {
		return tx.UpdateTimelineState(ctx, "p1", ir.StateFailed, "deposit_window_elapsed", t0.Add(time.Hour))
	})
	require.NoError(t, err)

	err = s.View(ctx, func(tx *Tx) error {
		got, err := tx.GetTimeline(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, ir.StateFailed, got.State)
		assert.Equal(t, "deposit_window_elapsed", got.FailureReason)

		due, err := tx.ListOverdueTimelineIDs(ctx, t0.Add(2*time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, due, "terminal timelines are never overdue")

		failed, err := tx.ListTimelineIDs(ctx, ir.StateFailed)
		require.NoError(t, err)
		assert.Equal(t, []string{"p1"}, failed)
		return nil
	})
	require.NoError(t, err)
}

func TestReceipts_OnePerCycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	r := ir.SwapReceipt{
		ID:         ir.ReceiptID("c1"),
		CycleID:    "c1",
		FinalState: ir.ReceiptSettled,
		IntentIDs:  []string{"a", "b"},
		AssetIDs:   []string{"x", "y"},
		Version:    ir.SchemaVersion,
		CreatedAt:  t0,
		Signature:  &ir.Signature{KeyID: "k1", Algorithm: "ed25519", PublicKey: "aa", Value: "bb"},
	}

	require.NoError(t, s.Update(ctx, func(tx *Tx) error { return tx.InsertReceipt(ctx, r) }))

	dup := r
	dup.ID = "rcpt_other"
	require.Error(t, s.Update(ctx, func(tx *Tx) error { return tx.InsertReceipt(ctx, dup) }))

	err := s.View(ctx, func(tx *Tx) error {
		got, err := tx.GetReceipt(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, r, got)

		n, err := tx.CountReceipts(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = tx.GetReceipt(ctx, "c2")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestIdempotency_FirstWriterWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	first := ir.IdempotencyRecord{
		Actor:         "alice",
		Operation:     "settlement.accept",
		Key:           "k1",
		PayloadDigest: "d1",
		Result:        json.RawMessage(`{"phase":"accepted"}`),
		CreatedAt:     t0,
	}
	second := first
	second.PayloadDigest = "d2"
	second.Result = nil
	second.ErrorCode = "conflict"

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.PutIdempotency(ctx, first); err != nil {
			return err
		}
		return tx.PutIdempotency(ctx, second)
	})
	require.NoError(t, err)

	err = s.View(ctx, func(tx *Tx) error {
		got, ok, err := tx.GetIdempotency(ctx, "alice", "settlement.accept", "k1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, first, got)

		_, ok, err = tx.GetIdempotency(ctx, "bob", "settlement.accept", "k1")
		require.NoError(t, err)
		assert.False(t, ok, "keys are scoped per actor")
		return nil
	})
	require.NoError(t, err)
}

func TestEvents_DedupAndRelay(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mk := func(subject, disc string) ir.Event {
		return ir.Event{
			EventID:    ir.EventID(ir.EventCycleStateChanged, subject, disc),
			Type:       ir.EventCycleStateChanged,
			Subject:    subject,
			Payload:    json.RawMessage(`{"to":"` + disc + `"}`),
			OccurredAt: t0,
		}
	}

	err := s.Update(ctx, func(tx *Tx) error {
		for _, ev := range []ir.Event{mk("c1", "escrow.pending"), mk("c2", "escrow.pending"), mk("c1", "escrow.executing")} {
			inserted, err := tx.AppendEvent(ctx, ev)
			require.NoError(t, err)
			assert.True(t, inserted)
		}
		inserted, err := tx.AppendEvent(ctx, mk("c1", "escrow.pending"))
		require.NoError(t, err)
		assert.False(t, inserted, "same transition is journaled once")
		return nil
	})
	require.NoError(t, err)

	err = s.Update(ctx, func(tx *Tx) error {
		all, err := tx.ListEvents(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Less(t, all[0].Seq, all[1].Seq)

		after, err := tx.ListEvents(ctx, all[0].Seq, 1)
		require.NoError(t, err)
		require.Len(t, after, 1)
		assert.Equal(t, all[1].EventID, after[0].EventID)

		c1, err := tx.ListSubjectEvents(ctx, "c1")
		require.NoError(t, err)
		assert.Len(t, c1, 2)
		assert.JSONEq(t, `{"to":"escrow.pending"}`, string(c1[0].Payload))

		pending, err := tx.ListUnrelayedEvents(ctx, 2)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		return tx.MarkRelayed(ctx, []int64{pending[0].Seq, pending[1].Seq}, t0.Add(time.Second))
	})
	require.NoError(t, err)

	err = s.View(ctx, func(tx *Tx) error {
		pending, err := tx.ListUnrelayedEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, mk("c1", "escrow.executing").EventID, pending[0].EventID)
		assert.Nil(t, pending[0].RelayedAt)
		return nil
	})
	require.NoError(t, err)
}
