package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/signing"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s by %s -> %s", ev.Seq, ev.Phase, ev.Operation, ev.Actor, ev.Outcome)
			if ev.Reason != "" {
				fmt.Fprintf(&buf, " (%s)", ev.Reason)
			}
			buf.WriteString("\n")
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the scenario's services.
type AssertionContext struct {
	Ctx     context.Context
	Harness *Harness
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	if len(assertions) == 0 {
		return errs
	}

	journal, err := actx.journal()
	if err != nil {
		return []string{fmt.Sprintf("read journal: %v", err)}
	}

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertEventCount:
			err = actx.assertEventCount(journal, a)
		case AssertEventOrder:
			err = actx.assertEventOrder(journal, a)
		case AssertFinalState:
			err = actx.assertFinalState(a)
		case AssertReceiptVerified:
			err = actx.assertReceiptVerified(a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			if ae, ok := err.(*AssertionError); ok {
				ae.Trace = result.Trace
			}
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func (c *AssertionContext) journal() ([]ir.Event, error) {
	var events []ir.Event
	err := c.Harness.store.View(c.Ctx, func(tx *store.Tx) error {
		var err error
		events, err = tx.ListEvents(c.Ctx, 0, 0)
		return err
	})
	return events, err
}

func (c *AssertionContext) subject(a Assertion) (string, error) {
	if a.Subject == "" {
		return "", nil
	}
	v, err := c.Harness.substitute(c.Ctx, a.Subject)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// assertEventCount checks that exactly Count events of the type (and
// subject, when given) were journaled.
func (c *AssertionContext) assertEventCount(journal []ir.Event, a Assertion) error {
	subject, err := c.subject(a)
	if err != nil {
		return err
	}
	n := 0
	for _, e := range journal {
		if e.Type == a.Event && (subject == "" || e.Subject == subject) {
			n++
		}
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s events%s", *a.Count, a.Event, forSubject(a.Subject)),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// assertEventOrder checks that the event types appear in the given order.
// Events need not be consecutive.
func (c *AssertionContext) assertEventOrder(journal []ir.Event, a Assertion) error {
	subject, err := c.subject(a)
	if err != nil {
		return err
	}
	next := 0
	for _, e := range journal {
		if next == len(a.Events) {
			break
		}
		if subject != "" && e.Subject != subject {
			continue
		}
		if e.Type == a.Events[next] {
			next++
		}
	}
	if next < len(a.Events) {
		return &AssertionError{
			Type:     AssertEventOrder,
			Expected: fmt.Sprintf("events in order %v%s", a.Events, forSubject(a.Subject)),
			Actual:   fmt.Sprintf("stopped before %s", a.Events[next]),
		}
	}
	return nil
}

// assertFinalState loads a record and subset-matches it against Expect.
func (c *AssertionContext) assertFinalState(a Assertion) error {
	v, err := c.Harness.substitute(c.Ctx, a.ID)
	if err != nil {
		return err
	}
	id := v.(string)

	actual, err := c.Harness.record(c.Ctx, a.Record, id)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s %s", a.Record, a.ID),
			Actual:   err.Error(),
		}
	}
	expected, err := c.Harness.substitute(c.Ctx, a.Expect)
	if err != nil {
		return err
	}
	if !matchFields(actual, expected.(map[string]any)) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s %s with %v", a.Record, a.ID, a.Expect),
			Actual:   fmt.Sprintf("%v", actual),
		}
	}
	return nil
}

// assertReceiptVerified checks the receipt signature against the scenario key.
func (c *AssertionContext) assertReceiptVerified(a Assertion) error {
	v, err := c.Harness.substitute(c.Ctx, a.ID)
	if err != nil {
		return err
	}
	r, err := c.Harness.settlement.Receipt(c.Ctx, v.(string))
	if err != nil {
		return &AssertionError{Type: AssertReceiptVerified, Expected: "receipt for " + a.ID, Actual: err.Error()}
	}
	if err := signing.Verify(r, c.Harness.signer.PublicKey()); err != nil {
		return &AssertionError{Type: AssertReceiptVerified, Expected: "valid signature on " + a.ID, Actual: err.Error()}
	}
	return nil
}

// record loads one record in its JSON form. Timelines gain a leg_counts
// field mapping leg status to the number of legs in it.
func (h *Harness) record(ctx context.Context, kind, id string) (any, error) {
	var (
		v   any
		err error
	)
	switch kind {
	case RecordIntent:
		v, err = h.intents.Get(ctx, id)
	case RecordProposal:
		v, err = h.settlement.Proposal(ctx, id)
	case RecordCommit:
		v, err = h.settlement.Commit(ctx, id)
	case RecordReceipt:
		v, err = h.settlement.Receipt(ctx, id)
	case RecordTimeline:
		tl, terr := h.settlement.Timeline(ctx, id)
		if terr != nil {
			return nil, terr
		}
		out, gerr := toGeneric(tl)
		if gerr != nil {
			return nil, gerr
		}
		counts := map[string]any{}
		for _, leg := range tl.Legs {
			n, _ := counts[string(leg.Status)].(float64)
			counts[string(leg.Status)] = n + 1
		}
		out.(map[string]any)["leg_counts"] = counts
		return out, nil
	default:
		return nil, fmt.Errorf("unknown record %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return toGeneric(v)
}

func forSubject(subject string) string {
	if subject == "" {
		return ""
	}
	return " for " + subject
}

// matchFields reports whether every field of expected matches actual.
// Expected values are normalized to their JSON form first, so YAML
// integers compare equal to JSON numbers.
func matchFields(actual any, expected map[string]any) bool {
	norm, err := toGeneric(expected)
	if err != nil {
		return false
	}
	return valuesEqual(actual, norm)
}

// valuesEqual compares with subset semantics for objects: actual may carry
// fields that expected does not name. Arrays must match element-wise.
func valuesEqual(actual, expected any) bool {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, ev := range exp {
			av, ok := act[k]
			if !ok || !valuesEqual(av, ev) {
				return false
			}
		}
		return true
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesEqual(act[i], exp[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(actual, expected)
	}
}
