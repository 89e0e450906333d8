package matching

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/store"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/swaperr"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/testutil"
)

func newTestService(t *testing.T, intents []ir.SwapIntent) (*Service, *store.Store) {
	t.Helper()
	s := testutil.OpenStore(t)
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx *store.Tx) error {
		for _, in := range intents {
			if _, err := tx.InsertIntent(ctx, in); err != nil {
				return err
			}
		}
		return nil
	}))
	return NewService(s, WithClock(testutil.NewClock())), s
}

func runReq(key string, at time.Time) RunRequest {
	return RunRequest{Actor: "ops", IdempotencyKey: key, OccurredAt: at}
}

func intentStatus(t *testing.T, s *store.Store, id string) ir.IntentStatus {
	t.Helper()
	var status ir.IntentStatus
	require.NoError(t, s.View(context.Background(), func(tx *store.Tx) error {
		in, err := tx.GetIntent(context.Background(), id)
		status = in.Status
		return err
	}))
	return status
}

func countEvents(t *testing.T, s *store.Store, eventType string) int {
	t.Helper()
	n := 0
	require.NoError(t, s.View(context.Background(), func(tx *store.Tx) error {
		events, err := tx.ListEvents(context.Background(), 0, 0)
		for _, ev := range events {
			if ev.Type == eventType {
				n++
			}
		}
		return err
	}))
	return n
}

func TestRun_SelectsAndReserves(t *testing.T) {
	svc, s := newTestService(t, marketplace())
	ctx := context.Background()

	run, err := svc.Run(ctx, runReq("k1", testutil.Epoch))
	require.NoError(t, err)

	assert.Equal(t, ir.RunID("ops", "k1"), run.RunID)
	assert.Equal(t, 2, run.Stats.CandidateCycles)
	assert.Equal(t, 2, run.Stats.SelectedProposalsCount)
	assert.Len(t, run.SelectedProposalIDs, 2)
	assert.Equal(t, ir.Bounds{MaxCycleLength: 6, MaxCandidates: 1000, TimeoutMS: 2000}, run.Bounds)
	assert.Equal(t, MethodExact, run.Selection.Method)
	assert.Equal(t, run.Selection.GreedyTotalScore, run.Selection.TotalScore)
	require.NotNil(t, run.Shadow)
	assert.True(t, run.Shadow.Agreement)

	for _, id := range []string{"r0", "r1", "r2", "d0", "d1"} {
		assert.Equal(t, ir.IntentReserved, intentStatus(t, s, id), id)
	}
	assert.Equal(t, 2, countEvents(t, s, ir.EventProposalCreated))
	assert.Equal(t, 5, countEvents(t, s, ir.EventIntentReserved))
	assert.Equal(t, 1, countEvents(t, s, ir.EventRunCompleted))

	require.NoError(t, s.View(ctx, func(tx *store.Tx) error {
		stored, err := tx.GetRun(ctx, run.RunID)
		require.NoError(t, err)
		assert.Equal(t, run.SelectedProposalIDs, stored.SelectedProposalIDs)

		proposals, err := tx.ListRunProposals(ctx, run.RunID)
		require.NoError(t, err)
		assert.Len(t, proposals, 2, "only selected proposals are persisted")
		return nil
	}))
}

func TestRun_ReplayReturnsStoredRun(t *testing.T) {
	svc, s := newTestService(t, marketplace())
	ctx := context.Background()

	first, err := svc.Run(ctx, runReq("k1", testutil.Epoch))
	require.NoError(t, err)
	second, err := svc.Run(ctx, runReq("k1", testutil.Epoch.Add(time.Minute)))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, countEvents(t, s, ir.EventRunCompleted))
}

func TestRun_KeyReuseWithDifferentBounds(t *testing.T) {
	svc, _ := newTestService(t, marketplace())
	ctx := context.Background()

	_, err := svc.Run(ctx, runReq("k1", testutil.Epoch))
	require.NoError(t, err)

	req := runReq("k1", testutil.Epoch)
	req.Bounds.MaxCycleLength = 3
	_, err = svc.Run(ctx, req)
	require.Error(t, err)
	assert.True(t, swaperr.IsConflict(err))
	assert.Equal(t, swaperr.ReasonIdempotencyReused, swaperr.ReasonOf(err))
}

func TestRun_SupersedesOpenProposals(t *testing.T) {
	svc, s := newTestService(t, marketplace())
	ctx := context.Background()

	first, err := svc.Run(ctx, runReq("k1", testutil.Epoch))
	require.NoError(t, err)
	second, err := svc.Run(ctx, runReq("k2", testutil.Epoch.Add(time.Minute)))
	require.NoError(t, err)

	assert.Equal(t, 2, second.Stats.ReplacedProposalsCount)
	assert.Zero(t, second.Stats.ExpiredProposalsCount)
	assert.Equal(t, 2, second.Stats.SelectedProposalsCount, "released intents rejoin the pool")
	assert.NotEqual(t, first.SelectedProposalIDs, second.SelectedProposalIDs)

	require.NoError(t, s.View(ctx, func(tx *store.Tx) error {
		for _, id := range first.SelectedProposalIDs {
			p, err := tx.GetProposal(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, ir.ProposalSuperseded, p.Status)
		}
		return nil
	}))
	assert.Equal(t, 5, countEvents(t, s, ir.EventIntentUnreserved))
	assert.Equal(t, ir.IntentReserved, intentStatus(t, s, "r0"))
}

func TestRun_ExpiresStaleProposals(t *testing.T) {
	svc, s := newTestService(t, marketplace())
	ctx := context.Background()

	first, err := svc.Run(ctx, runReq("k1", testutil.Epoch))
	require.NoError(t, err)
	second, err := svc.Run(ctx, runReq("k2", testutil.Epoch.Add(DefaultProposalTTL)))
	require.NoError(t, err)

	assert.Equal(t, 2, second.Stats.ExpiredProposalsCount, "expires_at is inclusive")
	assert.Zero(t, second.Stats.ReplacedProposalsCount)
	assert.Equal(t, 2, countEvents(t, s, ir.EventProposalExpired))

	require.NoError(t, s.View(ctx, func(tx *store.Tx) error {
		p, err := tx.GetProposal(ctx, first.SelectedProposalIDs[0])
		require.NoError(t, err)
		assert.Equal(t, ir.ProposalExpired, p.Status)
		return nil
	}))
}

func TestRun_DeterministicAcrossStores(t *testing.T) {
	a, _ := newTestService(t, marketplace())
	b, _ := newTestService(t, marketplace())
	ctx := context.Background()

	ra, err := a.Run(ctx, runReq("k1", testutil.Epoch))
	require.NoError(t, err)
	rb, err := b.Run(ctx, runReq("k1", testutil.Epoch))
	require.NoError(t, err)

	assert.Equal(t, ra, rb)
}

func TestRun_SkipsReservedAndCancelled(t *testing.T) {
	intents := marketplace()
	intents[0].Status = ir.IntentCancelled // r0
	svc, _ := newTestService(t, intents)

	run, err := svc.Run(context.Background(), runReq("k1", testutil.Epoch))
	require.NoError(t, err)

	assert.Equal(t, 1, run.Stats.CandidateCycles, "the r ring is broken")
}

func TestRun_Validation(t *testing.T) {
	svc, _ := newTestService(t, marketplace())
	ctx := context.Background()

	tests := []struct {
		name string
		req  RunRequest
	}{
		{"missing actor", RunRequest{IdempotencyKey: "k"}},
		{"missing key", RunRequest{Actor: "ops"}},
		{"cycle length", RunRequest{Actor: "ops", IdempotencyKey: "k", Bounds: ir.Bounds{MaxCycleLength: 9}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Run(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, swaperr.KindValidation, swaperr.KindOf(err))
			assert.Equal(t, swaperr.ReasonInvalidPayload, swaperr.ReasonOf(err))
		})
	}
}

func TestRun_EmptyMarket(t *testing.T) {
	svc, _ := newTestService(t, nil)

	run, err := svc.Run(context.Background(), runReq("k1", testutil.Epoch))
	require.NoError(t, err)

	assert.NotNil(t, run.SelectedProposalIDs)
	assert.Empty(t, run.SelectedProposalIDs)
	assert.Equal(t, MethodExact, run.Selection.Method)
}

func TestDescribe(t *testing.T) {
	run := ir.MatchingRun{RunID: "run_x", Stats: ir.RunStats{CandidateCycles: 3, SelectedProposalsCount: 2},
		Selection: ir.SelectionSummary{Method: MethodExact, TotalScore: 20000, GreedyTotalScore: 20000}}

	assert.Equal(t, "run run_x: 2 selected of 3 cycles (exact, total 20000 vs greedy 20000)", Describe(run))
}
