package matching

import "fmt"

// nodeBudget counts branch-and-bound nodes and stops the search once the
// limit is passed.
type nodeBudget struct {
	limit   int
	current int
}

// errBudgetExceeded aborts a branch-and-bound search.
type errBudgetExceeded struct {
	Nodes int
	Limit int
}

func (e *errBudgetExceeded) Error() string {
	return fmt.Sprintf("branch-and-bound exceeded node budget: %d > %d", e.Nodes, e.Limit)
}

// check counts one node.
func (b *nodeBudget) check() error {
	b.current++
	if b.limit > 0 && b.current > b.limit {
		return &errBudgetExceeded{Nodes: b.current, Limit: b.limit}
	}
	return nil
}

// branchAndBound searches include-first in rank order with a suffix-sum
// bound. The incumbent starts as greedy and is only replaced by a strictly
// larger total. ok is false when the node budget ran out.
func (p *component) branchAndBound(limit int) (chosen []int, ok bool) {
	k := len(p.scores)
	suffix := make([]int64, k+1)
	for i := k - 1; i >= 0; i-- {
		suffix[i] = suffix[i+1] + max(p.scores[i], 0)
	}

	greedy := p.greedy()
	best := p.total(greedy)
	bestSet := greedy

	budget := &nodeBudget{limit: limit}
	in := make([]bool, k)
	blockedBy := make([]int, k)

	var walk func(i int, total int64) error
	walk = func(i int, total int64) error {
		if err := budget.check(); err != nil {
			return err
		}
		if i == k {
			if total > best {
				best = total
				bestSet = append([]bool(nil), in...)
			}
			return nil
		}
		if total+suffix[i] <= best {
			return nil
		}
		if blockedBy[i] == 0 && p.scores[i] > 0 {
			in[i] = true
			for _, j := range p.conflicts[i] {
				blockedBy[j]++
			}
			err := walk(i+1, total+p.scores[i])
			for _, j := range p.conflicts[i] {
				blockedBy[j]--
			}
			in[i] = false
			if err != nil {
				return err
			}
		}
		return walk(i+1, total)
	}

	if err := walk(0, 0); err != nil {
		return nil, false
	}
	return members(bestSet), true
}

// localSearch starts from greedy and applies 1-for-k exchanges: insert a
// candidate, evict everything it conflicts with, then refill greedily in
// rank order. An exchange is kept only if the total strictly increases.
// The first improving exchange in rank order is taken each round.
func (p *component) localSearch(maxRounds int) []int {
	cur := p.greedy()
	curTotal := p.total(cur)

	for round := 0; round < maxRounds; round++ {
		improved := false
		for c := range p.scores {
			if cur[c] {
				continue
			}
			next := append([]bool(nil), cur...)
			for _, j := range p.conflicts[c] {
				next[j] = false
			}
			next[c] = true
			for i := range p.scores {
				if !next[i] && !p.blocked(next, i) {
					next[i] = true
				}
			}
			if t := p.total(next); t > curTotal {
				cur, curTotal = next, t
				improved = true
				break
			}
		}
		if !improved {
			break
		}
	}
	return members(cur)
}
