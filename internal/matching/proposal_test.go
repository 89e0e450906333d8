package matching

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/swaperr"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/testutil"
)

func reasonOf(err error) string {
	return swaperr.ReasonOf(err)
}

func build(t *testing.T, intents []ir.SwapIntent, cycle ...string) ProposalOutcome {
	t.Helper()
	out, err := BuildProposal("run_test", Cycle(cycle), BuildGraph(intents), testutil.Epoch, time.Hour)
	require.NoError(t, err)
	return out
}

func TestBuildProposal_EvenRing(t *testing.T) {
	out := build(t, testutil.Ring("r", 3, 10), "r0", "r1", "r2")
	require.NotNil(t, out.Proposal)
	p := out.Proposal

	assert.Equal(t, "1", p.ConfidenceScore.String())
	assert.Equal(t, ir.ProposalOpen, p.Status)
	assert.Equal(t, testutil.Epoch.Add(time.Hour), p.ExpiresAt)
	assert.Equal(t, []string{"r0", "r1", "r2"}, p.IntentIDs())

	first := p.Participants[0]
	assert.Equal(t, "actor-r0", first.Actor)
	assert.Equal(t, "asset-r0", first.Give[0].ID)
	assert.Equal(t, "asset-r2", first.Receive[0].ID, "receives from the previous position")
}

func TestBuildProposal_UnevenValues(t *testing.T) {
	intents := []ir.SwapIntent{
		testutil.Intent("a", "alice", testutil.Asset("xa", "card", 10), "xc"),
		testutil.Intent("b", "bob", testutil.Asset("xb", "card", 10), "xa"),
		testutil.Intent("c", "carol", testutil.Asset("xc", "card", 5), "xb"),
	}
	out := build(t, intents, "a", "b", "c")
	require.NotNil(t, out.Proposal)

	// Fairness 0.5, 1, 0.5: mean 0.66666667 rounds to 0.6667.
	assert.Equal(t, "0.6667", out.Proposal.ConfidenceScore.String())
	assert.Equal(t, int64(6667), CandidateOf(*out.Proposal).Score)
}

func TestBuildProposal_IDIsDeterministic(t *testing.T) {
	a := build(t, testutil.Ring("r", 3, 10), "r0", "r1", "r2")
	b := build(t, testutil.Ring("r", 3, 10), "r0", "r1", "r2")
	assert.Equal(t, a.Proposal.ID, b.Proposal.ID)

	other, err := BuildProposal("run_other", Cycle{"r0", "r1", "r2"}, BuildGraph(testutil.Ring("r", 3, 10)), testutil.Epoch, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a.Proposal.ID, other.Proposal.ID)
}

func TestBuildProposal_Skips(t *testing.T) {
	t.Run("edge unsatisfied", func(t *testing.T) {
		intents := []ir.SwapIntent{
			testutil.Intent("a", "alice", testutil.Asset("xa", "card", 10), "xb"),
			testutil.Intent("b", "bob", testutil.Asset("xb", "card", 10), "zz"),
		}
		assert.Equal(t, SkipEdgeUnsatisfied, build(t, intents, "a", "b").Skip)
	})

	t.Run("unknown intent", func(t *testing.T) {
		assert.Equal(t, SkipEdgeUnsatisfied, build(t, testutil.Ring("r", 2, 10), "r0", "ghost").Skip)
	})

	t.Run("duplicate actor", func(t *testing.T) {
		intents := []ir.SwapIntent{
			testutil.Intent("a", "alice", testutil.Asset("xa", "card", 10), "xb"),
			testutil.Intent("b", "alice", testutil.Asset("xb", "card", 10), "xa"),
		}
		assert.Equal(t, SkipDuplicateActor, build(t, intents, "a", "b").Skip)
	})

	t.Run("zero value", func(t *testing.T) {
		assert.Equal(t, SkipZeroValue, build(t, testutil.Ring("z", 2, 0), "z0", "z1").Skip)
	})

	t.Run("too short", func(t *testing.T) {
		assert.Equal(t, SkipEdgeUnsatisfied, build(t, testutil.Ring("r", 2, 10), "r0").Skip)
	})
}

func TestFairnessAndScore(t *testing.T) {
	f, ok := Fairness(decimal.NewFromInt(10), decimal.NewFromInt(5))
	require.True(t, ok)
	assert.Equal(t, "0.5", f.String())

	f, ok = Fairness(decimal.Zero, decimal.NewFromInt(5))
	require.True(t, ok)
	assert.True(t, f.IsZero())

	_, ok = Fairness(decimal.Zero, decimal.Zero)
	assert.False(t, ok)

	assert.True(t, ConfidenceScore(nil).IsZero())
	assert.Equal(t, int64(10000), ScoreUnits(decimal.NewFromInt(1)))
	assert.Equal(t, int64(3333), ScoreUnits(decimal.RequireFromString("0.3333")))
}
