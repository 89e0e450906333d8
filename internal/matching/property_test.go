//go:build property

package matching

import (
	"fmt"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genCandidates produces up to 14 candidates over a pool of 8 intents so
// conflicts are frequent.
func genCandidates() gopter.Gen {
	one := gopter.CombineGens(
		gen.Int64Range(0, 10000),
		gen.SliceOfN(3, gen.IntRange(0, 7)),
		gen.IntRange(2, 3),
	)
	return gen.SliceOf(one).Map(func(rows [][]any) []Candidate {
		if len(rows) > 14 {
			rows = rows[:14]
		}
		out := make([]Candidate, 0, len(rows))
		for i, vals := range rows {
			picks := vals[1].([]int)[:vals[2].(int)]
			ids := []string{}
			for _, p := range picks {
				id := fmt.Sprintf("i%d", p)
				if !slices.Contains(ids, id) {
					ids = append(ids, id)
				}
			}
			out = append(out, Candidate{ID: fmt.Sprintf("c%02d", i), IntentIDs: ids, Score: vals[0].(int64)})
		}
		return out
	})
}

func TestOptimizeProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("never below greedy", prop.ForAll(
		func(cands []Candidate) bool {
			return Optimize(cands, DefaultOptions()).Total >= Greedy(cands).Total
		},
		genCandidates(),
	))

	properties.Property("selection is valid", prop.ForAll(
		func(cands []Candidate) bool {
			return Verify(Optimize(cands, DefaultOptions()), cands) == nil &&
				Verify(Greedy(cands), cands) == nil
		},
		genCandidates(),
	))

	properties.Property("input order does not matter", prop.ForAll(
		func(cands []Candidate) bool {
			rev := slices.Clone(cands)
			slices.Reverse(rev)
			a := Optimize(cands, DefaultOptions())
			b := Optimize(rev, DefaultOptions())
			return slices.Equal(a.IDs, b.IDs) && a.Total == b.Total
		},
		genCandidates(),
	))

	properties.Property("heuristic never below greedy", prop.ForAll(
		func(cands []Candidate) bool {
			sel := Optimize(cands, Options{ExactLimit: 0, NodeBudget: 1, MaxRounds: 8})
			return sel.Total >= Greedy(cands).Total && Verify(sel, cands) == nil
		},
		genCandidates(),
	))

	properties.TestingRun(t)
}
