package matching

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// Selection methods.
const (
	MethodGreedy    = "greedy"
	MethodExact     = "exact"
	MethodHeuristic = "heuristic"
	MethodMixed     = "mixed"
)

// Candidate is a proposal as the optimizer sees it: an id, the intents it
// consumes and a non-negative score in units of 1e-4.
type Candidate struct {
	ID        string
	IntentIDs []string
	Score     int64
}

// Selection is a set of intent-disjoint candidates.
// IDs are sorted ascending.
type Selection struct {
	IDs    []string
	Total  int64
	Method string
}

// Options tunes Optimize.
type Options struct {
	// ExactLimit is the largest conflict component solved exactly.
	ExactLimit int
	// NodeBudget caps branch-and-bound nodes per component. A component
	// that exceeds it falls back to local search.
	NodeBudget int
	// MaxRounds caps improving exchanges per component in local search.
	MaxRounds int
}

// DefaultOptions returns the production tuning.
func DefaultOptions() Options {
	return Options{
		ExactLimit: 32,
		NodeBudget: 200000,
		MaxRounds:  64,
	}
}

// Greedy is the baseline selector: candidates in (score desc, id asc)
// order, each accepted unless it shares an intent with one already taken.
func Greedy(cands []Candidate) Selection {
	order := greedyOrder(cands)
	taken := make(map[string]bool)
	sel := Selection{IDs: []string{}, Method: MethodGreedy}
	for _, i := range order {
		c := cands[i]
		if conflictsWith(c, taken) {
			continue
		}
		for _, id := range c.IntentIDs {
			taken[id] = true
		}
		sel.IDs = append(sel.IDs, c.ID)
		sel.Total += c.Score
	}
	slices.Sort(sel.IDs)
	return sel
}

// Optimize selects a maximum-total set of intent-disjoint candidates.
//
// Candidates are split into connected components of the conflict graph.
// Components no larger than opts.ExactLimit are solved by branch-and-bound
// seeded with the greedy solution; the rest, and any component that runs
// out of node budget, are improved from greedy by local search. Both only
// replace the greedy choice on a strictly higher total, so the result is
// never worse than Greedy and ties resolve to the greedy selection.
func Optimize(cands []Candidate, opts Options) Selection {
	if opts.ExactLimit <= 0 && opts.NodeBudget <= 0 && opts.MaxRounds <= 0 {
		opts = DefaultOptions()
	}
	order := greedyOrder(cands)
	ranked := make([]Candidate, len(order))
	for r, i := range order {
		ranked[r] = cands[i]
	}
	conflicts := conflictLists(ranked)

	sel := Selection{IDs: []string{}}
	exact, heuristic := 0, 0
	for _, comp := range components(conflicts) {
		p := newComponent(ranked, conflicts, comp)
		var chosen []int
		solved := false
		if len(comp) <= opts.ExactLimit {
			chosen, solved = p.branchAndBound(opts.NodeBudget)
		}
		if solved {
			exact++
		} else {
			chosen = p.localSearch(opts.MaxRounds)
			heuristic++
		}
		for _, local := range chosen {
			c := ranked[comp[local]]
			sel.IDs = append(sel.IDs, c.ID)
			sel.Total += c.Score
		}
	}
	slices.Sort(sel.IDs)

	switch {
	case heuristic == 0:
		sel.Method = MethodExact
	case exact == 0:
		sel.Method = MethodHeuristic
	default:
		sel.Method = MethodMixed
	}
	return sel
}

// Verify checks that sel names known candidates, is intent-disjoint and
// reports the right total.
func Verify(sel Selection, cands []Candidate) error {
	byID := make(map[string]Candidate, len(cands))
	for _, c := range cands {
		if _, dup := byID[c.ID]; dup {
			return fmt.Errorf("duplicate candidate id %s", c.ID)
		}
		byID[c.ID] = c
	}

	taken := make(map[string]string)
	var total int64
	for _, id := range sel.IDs {
		c, ok := byID[id]
		if !ok {
			return fmt.Errorf("selection names unknown candidate %s", id)
		}
		for _, intent := range c.IntentIDs {
			if other, clash := taken[intent]; clash {
				return fmt.Errorf("intent %s selected by both %s and %s", intent, other, id)
			}
			taken[intent] = id
		}
		total += c.Score
	}
	if total != sel.Total {
		return fmt.Errorf("selection total %d does not match candidate scores %d", sel.Total, total)
	}
	if !slices.IsSorted(sel.IDs) {
		return errors.New("selection ids are not sorted")
	}
	return nil
}

// greedyOrder returns candidate indices sorted by score desc, id asc.
func greedyOrder(cands []Candidate) []int {
	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		if c := cmp.Compare(cands[b].Score, cands[a].Score); c != 0 {
			return c
		}
		return cmp.Compare(cands[a].ID, cands[b].ID)
	})
	return order
}

func conflictsWith(c Candidate, taken map[string]bool) bool {
	for _, id := range c.IntentIDs {
		if taken[id] {
			return true
		}
	}
	return false
}

// conflictLists returns, for each ranked candidate, the sorted indices of
// the other candidates sharing at least one intent.
func conflictLists(ranked []Candidate) [][]int {
	byIntent := make(map[string][]int)
	for i, c := range ranked {
		for _, id := range c.IntentIDs {
			byIntent[id] = append(byIntent[id], i)
		}
	}
	out := make([][]int, len(ranked))
	for i, c := range ranked {
		seen := map[int]bool{i: true}
		list := []int{}
		for _, id := range c.IntentIDs {
			for _, j := range byIntent[id] {
				if !seen[j] {
					seen[j] = true
					list = append(list, j)
				}
			}
		}
		slices.Sort(list)
		out[i] = list
	}
	return out
}

// components groups ranked indices into connected components of the
// conflict graph. Each component is sorted by rank and components are
// ordered by their best-ranked member.
func components(conflicts [][]int) [][]int {
	seen := make([]bool, len(conflicts))
	out := [][]int{}
	for root := range conflicts {
		if seen[root] {
			continue
		}
		comp := []int{root}
		seen[root] = true
		for k := 0; k < len(comp); k++ {
			for _, j := range conflicts[comp[k]] {
				if !seen[j] {
					seen[j] = true
					comp = append(comp, j)
				}
			}
		}
		slices.Sort(comp)
		out = append(out, comp)
	}
	return out
}

// component is one conflict component re-indexed locally 0..k-1 in rank
// order.
type component struct {
	scores    []int64
	conflicts [][]int
}

func newComponent(ranked []Candidate, conflicts [][]int, members []int) *component {
	local := make(map[int]int, len(members))
	for l, g := range members {
		local[g] = l
	}
	p := &component{
		scores:    make([]int64, len(members)),
		conflicts: make([][]int, len(members)),
	}
	for l, g := range members {
		p.scores[l] = ranked[g].Score
		list := make([]int, 0, len(conflicts[g]))
		for _, other := range conflicts[g] {
			list = append(list, local[other])
		}
		slices.Sort(list)
		p.conflicts[l] = list
	}
	return p
}

// greedy returns the rank-order greedy solution within the component.
func (p *component) greedy() []bool {
	in := make([]bool, len(p.scores))
	for i := range p.scores {
		if !p.blocked(in, i) {
			in[i] = true
		}
	}
	return in
}

func (p *component) blocked(in []bool, i int) bool {
	for _, j := range p.conflicts[i] {
		if in[j] {
			return true
		}
	}
	return false
}

func (p *component) total(in []bool) int64 {
	var t int64
	for i, ok := range in {
		if ok {
			t += p.scores[i]
		}
	}
	return t
}

func members(in []bool) []int {
	out := []int{}
	for i, ok := range in {
		if ok {
			out = append(out, i)
		}
	}
	return out
}
