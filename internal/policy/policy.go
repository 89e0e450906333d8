// Package policy decides whether an actor may invoke an operation.
//
// Rules are CEL expressions evaluated against the request. Every rule that
// applies to an operation must evaluate to true; the wildcard operation "*"
// applies to all of them. An evaluation error denies the request.
package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/swaperr"
)

// Wildcard selects rules that apply to every operation.
const Wildcard = "*"

// costLimit bounds the work a single rule may do.
const costLimit = 10000

// Request is the input visible to rules as the variables actor, operation,
// payload and now.
type Request struct {
	Actor     string
	Operation string
	Payload   map[string]any
	At        time.Time
}

// Evaluator authorizes requests. Authorize returns nil when allowed and a
// swaperr forbidden error when denied.
type Evaluator interface {
	Authorize(ctx context.Context, req Request) error
}

// AllowAll permits every request.
type AllowAll struct{}

// Authorize implements Evaluator.
func (AllowAll) Authorize(context.Context, Request) error { return nil }

// CEL evaluates per-operation CEL rules.
//
// Thread-safety: safe for concurrent use.
type CEL struct {
	env   *cel.Env
	rules map[string][]string

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCEL compiles rules keyed by operation name. A rule that fails to
// compile or does not produce a bool is reported here rather than at
// request time.
func NewCEL(rules map[string][]string) (*CEL, error) {
	env, err := cel.NewEnv(
		cel.Variable("actor", cel.StringType),
		cel.Variable("operation", cel.StringType),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("now", cel.TimestampType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: create CEL environment: %w", err)
	}
	e := &CEL{
		env:   env,
		rules: make(map[string][]string, len(rules)),
		cache: make(map[string]cel.Program),
	}
	for op, exprs := range rules {
		e.rules[op] = append([]string(nil), exprs...)
		for _, expr := range exprs {
			if _, err := e.program(expr); err != nil {
				return nil, fmt.Errorf("policy: rule for %s: %w", op, err)
			}
		}
	}
	return e, nil
}

// Operations lists the operations with rules, sorted.
func (e *CEL) Operations() []string {
	ops := make([]string, 0, len(e.rules))
	for op := range e.rules {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Authorize implements Evaluator.
func (e *CEL) Authorize(ctx context.Context, req Request) error {
	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	input := map[string]any{
		"actor":     req.Actor,
		"operation": req.Operation,
		"payload":   payload,
		"now":       req.At.UTC(),
	}

	for _, expr := range e.applicable(req.Operation) {
		if err := ctx.Err(); err != nil {
			return err
		}
		allowed, err := e.eval(expr, input)
		if err != nil {
			return swaperr.Forbidden(swaperr.ReasonPolicyDenied,
				"policy rule for %s failed: %v", req.Operation, err).
				WithDetail("rule", expr)
		}
		if !allowed {
			return swaperr.Forbidden(swaperr.ReasonPolicyDenied,
				"actor %q may not invoke %s", req.Actor, req.Operation).
				WithDetail("rule", expr)
		}
	}
	return nil
}

func (e *CEL) applicable(op string) []string {
	out := append([]string(nil), e.rules[Wildcard]...)
	if op != Wildcard {
		out = append(out, e.rules[op]...)
	}
	return out
}

func (e *CEL) eval(expr string, input map[string]any) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result is %v, not bool", out.Type())
	}
	return val, nil
}

// program returns the cached program for expr, compiling it on first use.
func (e *CEL) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.cache[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.cache[expr]; hit {
		return prg, nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("compile: rule yields %s, want bool", ast.OutputType())
	}
	prg, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(costLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	e.cache[expr] = prg
	return prg, nil
}
