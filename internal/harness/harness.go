package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/clock"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/gateway"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/intents"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/matching"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/policy"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/schema"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/settlement"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/signing"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/store"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/testutil"
)

// SigningKeyID is the key id of the fixed scenario signer.
const SigningKeyID = "harness"

// Harness is the scenario execution engine. It drives the gateway over a
// private in-memory store with a manual clock and a fixed signing key, so
// a scenario produces the same trace on every run.
type Harness struct {
	store      *store.Store
	gateway    *gateway.Gateway
	settlement *settlement.Service
	intents    *intents.Service
	signer     *signing.Signer
	clock      *clock.Manual
	logger     *slog.Logger

	cursor  time.Time
	lastSeq int64
	vars    map[string]string
	aliases map[string]string
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Build the services and the gateway
//  2. Execute setup steps (any failure aborts)
//  3. Execute flow steps, checking expect clauses
//  4. Evaluate assertions against the journal and final state
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario.Settings)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{Ctx: ctx, Harness: h}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	if err := h.aliasProposals(ctx); err != nil {
		return nil, err
	}
	for i := range result.Trace {
		for j := range result.Trace[i].Events {
			result.Trace[i].Events[j].Subject = h.alias(result.Trace[i].Events[j].Subject)
		}
		sortEvents(result.Trace[i].Events)
	}
	for k, v := range h.vars {
		result.Vars[k] = v
	}
	return result, nil
}

func newHarness(st *store.Store, settings Settings) (*Harness, error) {
	validator, err := schema.New()
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	signer, err := signing.NewSigner(SigningKeyID, bytes.Repeat([]byte{0x5a}, 32))
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}

	clk := testutil.NewClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	matchOpts := []matching.Option{matching.WithClock(clk), matching.WithLogger(logger)}
	if settings.ProposalTTL != "" {
		d, err := time.ParseDuration(settings.ProposalTTL)
		if err != nil {
			return nil, fmt.Errorf("proposal_ttl: %w", err)
		}
		matchOpts = append(matchOpts, matching.WithProposalTTL(d))
	}
	settleOpts := []settlement.Option{settlement.WithClock(clk), settlement.WithLogger(logger)}
	if settings.DepositWindow != "" {
		d, err := time.ParseDuration(settings.DepositWindow)
		if err != nil {
			return nil, fmt.Errorf("deposit_window: %w", err)
		}
		settleOpts = append(settleOpts, settlement.WithDepositWindow(d))
	}
	gwOpts := []gateway.Option{gateway.WithClock(clk), gateway.WithLogger(logger)}
	if len(settings.Policy) > 0 {
		rules, err := policy.NewCEL(settings.Policy)
		if err != nil {
			return nil, fmt.Errorf("policy: %w", err)
		}
		gwOpts = append(gwOpts, gateway.WithPolicy(rules))
	}

	in := intents.NewService(st,
		intents.WithClock(clk),
		intents.WithLogger(logger),
		intents.WithIDGenerator(ir.NewSequenceGenerator("intent")),
	)
	sv := settlement.NewService(st, signer, settleOpts...)
	m := matching.NewService(st, matchOpts...)

	return &Harness{
		store:      st,
		gateway:    gateway.New(validator, in, m, sv, gwOpts...),
		settlement: sv,
		intents:    in,
		signer:     signer,
		clock:      clk,
		logger:     logger,
		cursor:     testutil.Epoch,
		vars:       map[string]string{},
		aliases:    map[string]string{},
	}, nil
}

// executeSetup runs all setup steps. Any failure aborts the scenario.
func (h *Harness) executeSetup(ctx context.Context, setup []Step, result *Result) error {
	for i, step := range setup {
		ev, resp, err := h.execute(ctx, PhaseSetup, step, result)
		if err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Op, err)
		}
		if !resp.OK {
			return fmt.Errorf("setup step %d (%s): %s: %v", i, step.Op, ev.Outcome, resp.Error["message"])
		}
		if err := h.save(step, ev.Result); err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Op, err)
		}
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses. Mismatches
// are recorded on result; only harness failures are returned.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) error {
	for i, step := range flow {
		ev, resp, err := h.execute(ctx, PhaseFlow, step, result)
		if err != nil {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Op, err)
		}

		want := Expect{Code: outcomeOK}
		if step.Expect != nil {
			want = *step.Expect
			if want.Code == "" {
				want.Code = outcomeOK
			}
		}
		if ev.Outcome != want.Code {
			msg := fmt.Sprintf("flow step %d (%s): expected outcome %s, got %s", i, step.Op, want.Code, ev.Outcome)
			if !resp.OK {
				msg += fmt.Sprintf(" (%s: %v)", ev.Reason, resp.Error["message"])
			}
			result.AddError(msg)
			continue
		}
		if want.Reason != "" && ev.Reason != want.Reason {
			result.AddError(fmt.Sprintf("flow step %d (%s): expected reason %s, got %s", i, step.Op, want.Reason, ev.Reason))
		}
		if want.Result != nil {
			expected, err := h.substitute(ctx, want.Result)
			if err != nil {
				return fmt.Errorf("flow step %d (%s): %w", i, step.Op, err)
			}
			if !matchFields(ev.Result, expected.(map[string]any)) {
				result.AddError(fmt.Sprintf("flow step %d (%s): result %v does not match %v", i, step.Op, ev.Result, expected))
			}
		}
		if resp.OK {
			if err := h.save(step, ev.Result); err != nil {
				return fmt.Errorf("flow step %d (%s): %w", i, step.Op, err)
			}
		}

		h.logger.Info("flow step completed",
			"step", i,
			"operation", step.Op,
			"outcome", ev.Outcome,
		)
	}
	return nil
}

// execute invokes one step through the gateway and appends its trace event.
func (h *Harness) execute(ctx context.Context, phase string, step Step, result *Result) (TraceEvent, gateway.Response, error) {
	payload, err := h.substitute(ctx, step.Payload)
	if err != nil {
		return TraceEvent{}, gateway.Response{}, err
	}
	at, err := h.resolveTime(ctx, step.At)
	if err != nil {
		return TraceEvent{}, gateway.Response{}, err
	}
	h.cursor = at
	h.clock.Set(at)

	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return TraceEvent{}, gateway.Response{}, fmt.Errorf("encode payload: %w", err)
	}
	env, err := json.Marshal(gateway.Envelope{
		Operation:      step.Op,
		Actor:          step.Actor,
		IdempotencyKey: step.Key,
		OccurredAt:     at.Format(time.RFC3339Nano),
		Payload:        body,
	})
	if err != nil {
		return TraceEvent{}, gateway.Response{}, fmt.Errorf("encode envelope: %w", err)
	}

	resp := h.gateway.Handle(ctx, env)
	if step.Op == matching.OperationRun {
		h.aliases[ir.RunID(step.Actor, step.Key)] = "run:" + step.Actor + "/" + step.Key
	}

	ev := TraceEvent{
		Seq:       len(result.Trace) + 1,
		Phase:     phase,
		Operation: step.Op,
		Actor:     step.Actor,
		Outcome:   outcomeOK,
	}
	if resp.OK {
		if ev.Result, err = toGeneric(resp.Result); err != nil {
			return TraceEvent{}, resp, err
		}
	} else {
		ev.Outcome = fmt.Sprint(resp.Error["code"])
		if details, ok := resp.Error["details"].(map[string]string); ok {
			ev.Reason = details["reason_code"]
		}
	}
	if ev.Events, err = h.drainEvents(ctx); err != nil {
		return TraceEvent{}, resp, err
	}
	result.Trace = append(result.Trace, ev)
	return ev, resp, nil
}

// drainEvents returns the journal events appended since the last call.
func (h *Harness) drainEvents(ctx context.Context) ([]JournalEvent, error) {
	var events []ir.Event
	err := h.store.View(ctx, func(tx *store.Tx) error {
		var err error
		events, err = tx.ListEvents(ctx, h.lastSeq, 0)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	out := make([]JournalEvent, 0, len(events))
	for _, e := range events {
		out = append(out, JournalEvent{Type: e.Type, Subject: e.Subject})
		h.lastSeq = e.Seq
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// resolveTime turns a step's at field into an instant.
func (h *Harness) resolveTime(ctx context.Context, at string) (time.Time, error) {
	if at == "" {
		return h.cursor, nil
	}
	v, err := h.substitute(ctx, at)
	if err != nil {
		return time.Time{}, err
	}
	s := v.(string)
	if strings.HasPrefix(s, "+") {
		d, err := time.ParseDuration(s[1:])
		if err != nil {
			return time.Time{}, fmt.Errorf("at %q: %w", at, err)
		}
		return testutil.Epoch.Add(d), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("at %q: %w", at, err)
	}
	return t.UTC(), nil
}

// save binds the step's save variables from result.
func (h *Harness) save(step Step, result any) error {
	for name, path := range step.Save {
		v, ok := lookupPath(result, path)
		if !ok {
			return fmt.Errorf("save %s: result has no field %q", name, path)
		}
		h.vars[name] = scalarString(v)
	}
	return nil
}

// aliasProposals names every proposal by its sorted intent set, so content
// addressed ids render the same way on every run.
func (h *Harness) aliasProposals(ctx context.Context) error {
	proposals, err := h.settlement.Proposals(ctx, "")
	if err != nil {
		return fmt.Errorf("list proposals: %w", err)
	}
	for _, p := range proposals {
		h.aliases[p.ID] = proposalAlias(p.IntentIDs())
	}
	return nil
}

func (h *Harness) alias(subject string) string {
	if a, ok := h.aliases[subject]; ok {
		return a
	}
	return subject
}

func proposalAlias(intentIDs []string) string {
	ids := append([]string(nil), intentIDs...)
	sort.Strings(ids)
	return "proposal:" + strings.Join(ids, ",")
}

// sortEvents orders the events of one step by type and subject. Within a
// step the journal order follows content addresses, which carry no meaning.
func sortEvents(events []JournalEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Type != events[j].Type {
			return events[i].Type < events[j].Type
		}
		return events[i].Subject < events[j].Subject
	})
}

// toGeneric renders v in its JSON form (maps, slices, float64, string, bool).
func toGeneric(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}
