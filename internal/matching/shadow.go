package matching

import (
	"fmt"
	"slices"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
)

// Selector is a named pure selection function.
type Selector struct {
	Name   string
	Select func([]Candidate) Selection
}

// GreedySelector wraps Greedy.
func GreedySelector() Selector {
	return Selector{Name: MethodGreedy, Select: Greedy}
}

// OptimizerSelector wraps Optimize with fixed options.
func OptimizerSelector(opts Options) Selector {
	return Selector{
		Name: "optimizer",
		Select: func(cands []Candidate) Selection {
			return Optimize(cands, opts)
		},
	}
}

// Shadow runs two selectors over the same candidates and compares them.
// Each side runs on its own copy of the input behind a recover, and its
// output is checked with Verify; any failure is reported in the
// diagnostic's Error field. Shadow never returns an error and never
// influences the caller's authoritative selection.
func Shadow(cands []Candidate, legacy, candidate Selector) ir.ShadowDiagnostic {
	d := ir.ShadowDiagnostic{Legacy: legacy.Name, Candidate: candidate.Name}

	ls, lerr := guardedSelect(legacy, cands)
	cs, cerr := guardedSelect(candidate, cands)
	if err := firstErr(lerr, cerr); err != nil {
		d.Error = err.Error()
		return d
	}

	d.LegacyTotal = ls.Total
	d.CandidateTotal = cs.Total
	d.Delta = cs.Total - ls.Total
	d.Agreement = slices.Equal(ls.IDs, cs.IDs)
	return d
}

func guardedSelect(s Selector, cands []Candidate) (sel Selection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s selector panicked: %v", s.Name, r)
		}
	}()
	if s.Select == nil {
		return Selection{}, fmt.Errorf("%s selector is nil", s.Name)
	}
	sel = s.Select(cloneCandidates(cands))
	if err := Verify(sel, cands); err != nil {
		return Selection{}, fmt.Errorf("%s selector: %w", s.Name, err)
	}
	return sel, nil
}

func cloneCandidates(cands []Candidate) []Candidate {
	out := make([]Candidate, len(cands))
	for i, c := range cands {
		out[i] = Candidate{ID: c.ID, IntentIDs: slices.Clone(c.IntentIDs), Score: c.Score}
	}
	return out
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
