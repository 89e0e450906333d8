package matching

import (
	"context"
	"time"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
)

// deadlineCheckInterval is how many DFS steps pass between clock reads.
const deadlineCheckInterval = 64

// Cycle is a simple directed cycle given as intent ids. It starts at its
// smallest id; position i gives to position i+1 and the last gives to the
// first.
type Cycle []string

// CycleSearch is the result of FindCycles. Truncation is reported through
// the flags, never as an error.
type CycleSearch struct {
	Cycles           []Cycle
	Steps            int
	MaxCyclesReached bool
	TimeoutReached   bool
}

// FindCycles enumerates simple cycles of length 2..b.MaxCycleLength.
//
// The search starts a DFS from each vertex in id order and only extends to
// vertices with a larger id than the start, so every cycle is found exactly
// once, already rotated to its smallest id. Output order is a pure function
// of the graph and bounds unless the deadline fires.
//
// The deadline is now() + b.Timeout(), checked every deadlineCheckInterval
// steps. A cancelled ctx stops the search the same way.
func FindCycles(ctx context.Context, g *Graph, b ir.Bounds, now func() time.Time) CycleSearch {
	s := &cycleSearcher{
		g:        g,
		maxLen:   b.MaxCycleLength,
		maxCount: b.MaxCandidates,
		ctx:      ctx,
		now:      now,
		onPath:   make([]bool, g.Len()),
		result:   CycleSearch{Cycles: []Cycle{}},
	}
	if b.TimeoutMS > 0 {
		s.deadline = now().Add(b.Timeout())
		s.hasDeadline = true
	}
	if s.maxLen < MinCycleLength || s.maxCount <= 0 {
		return s.result
	}

	for start := 0; start < g.Len() && !s.stop; start++ {
		s.start = start
		s.path = append(s.path[:0], start)
		s.onPath[start] = true
		s.visit(start)
		s.onPath[start] = false
	}
	return s.result
}

type cycleSearcher struct {
	g           *Graph
	maxLen      int
	maxCount    int
	ctx         context.Context
	now         func() time.Time
	deadline    time.Time
	hasDeadline bool

	start  int
	path   []int
	onPath []bool
	stop   bool
	result CycleSearch
}

func (s *cycleSearcher) visit(v int) {
	for _, e := range s.g.Adj[v] {
		if s.stop {
			return
		}
		s.result.Steps++
		if s.result.Steps%deadlineCheckInterval == 0 && s.expired() {
			s.result.TimeoutReached = true
			s.stop = true
			return
		}

		w := e.To
		switch {
		case w == s.start:
			if len(s.path) >= MinCycleLength {
				s.emit()
			}
		case w > s.start && !s.onPath[w] && len(s.path) < s.maxLen:
			s.path = append(s.path, w)
			s.onPath[w] = true
			s.visit(w)
			s.onPath[w] = false
			s.path = s.path[:len(s.path)-1]
		}
	}
}

func (s *cycleSearcher) expired() bool {
	if s.ctx.Err() != nil {
		return true
	}
	return s.hasDeadline && !s.now().Before(s.deadline)
}

// emit records the current path. Finding a cycle past maxCount marks the
// search as truncated.
func (s *cycleSearcher) emit() {
	if len(s.result.Cycles) >= s.maxCount {
		s.result.MaxCyclesReached = true
		s.stop = true
		return
	}
	c := make(Cycle, len(s.path))
	for i, v := range s.path {
		c[i] = s.g.Intents[v].ID
	}
	s.result.Cycles = append(s.result.Cycles, c)
}
