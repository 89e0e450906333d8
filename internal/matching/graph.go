package matching

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
)

// Edge is a directed hand-off from one intent to another.
type Edge struct {
	To      int
	Handoff []ir.Asset
	Value   decimal.Decimal
}

// Graph is the want-graph over active intents.
// Vertices are indexed in intent id order; adjacency lists are sorted by
// target index, which is the same as target id order.
type Graph struct {
	Intents []ir.SwapIntent
	Adj     [][]Edge
	index   map[string]int
}

// BuildGraph builds the want-graph from a snapshot. Only intents with
// status active become vertices. An edge A -> B exists when the intents
// belong to different actors and A's hand-off to B satisfies B's want.
func BuildGraph(intents []ir.SwapIntent) *Graph {
	active := make([]ir.SwapIntent, 0, len(intents))
	for _, in := range intents {
		if in.Status == ir.IntentActive {
			active = append(active, in)
		}
	}
	slices.SortFunc(active, func(a, b ir.SwapIntent) int {
		return cmp.Compare(a.ID, b.ID)
	})

	g := &Graph{
		Intents: active,
		Adj:     make([][]Edge, len(active)),
		index:   make(map[string]int, len(active)),
	}
	for i, in := range active {
		g.index[in.ID] = i
	}
	for i, from := range active {
		edges := []Edge{}
		for j, to := range active {
			if i == j || from.Actor == to.Actor {
				continue
			}
			handoff, value, ok := Handoff(from.Give, to.Want)
			if !ok {
				continue
			}
			edges = append(edges, Edge{To: j, Handoff: handoff, Value: value})
		}
		g.Adj[i] = edges
	}
	return g
}

// Handoff returns the subset of give (in give order) accepted by want and
// its total value. ok is false when the subset is empty or worth less than
// want.MinValue.
func Handoff(give []ir.Asset, want ir.WantSpec) ([]ir.Asset, decimal.Decimal, bool) {
	subset := []ir.Asset{}
	total := decimal.Zero
	for _, a := range give {
		if want.Accepts(a) {
			subset = append(subset, a)
			total = total.Add(a.Value)
		}
	}
	if len(subset) == 0 || total.LessThan(want.MinValue) {
		return nil, decimal.Zero, false
	}
	return subset, total, true
}

// Len returns the number of vertices.
func (g *Graph) Len() int {
	return len(g.Intents)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, edges := range g.Adj {
		n += len(edges)
	}
	return n
}

// Intent returns the intent with the given id.
func (g *Graph) Intent(id string) (ir.SwapIntent, bool) {
	i, ok := g.index[id]
	if !ok {
		return ir.SwapIntent{}, false
	}
	return g.Intents[i], true
}

// Edge returns the edge between two intent ids.
func (g *Graph) Edge(from, to string) (Edge, bool) {
	i, ok := g.index[from]
	if !ok {
		return Edge{}, false
	}
	j, ok := g.index[to]
	if !ok {
		return Edge{}, false
	}
	k, found := slices.BinarySearchFunc(g.Adj[i], j, func(e Edge, target int) int {
		return cmp.Compare(e.To, target)
	})
	if !found {
		return Edge{}, false
	}
	return g.Adj[i][k], true
}
