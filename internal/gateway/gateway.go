// Package gateway is the invoking layer in front of the core services.
//
// An invocation is a JSON envelope {operation, actor, idempotency_key,
// occurred_at, payload}. Handle decodes it, validates the envelope and the
// payload against their schemas, asks the policy evaluator, dispatches to
// the intents, matching or settlement service and renders the outcome as
// {ok, result} or {ok:false, error:{code, message, details}}.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/clock"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/intents"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/matching"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/policy"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/schema"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/settlement"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/swaperr"
)

// Envelope is one invocation.
type Envelope struct {
	Operation      string          `json:"operation"`
	Actor          string          `json:"actor"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	OccurredAt     string          `json:"occurred_at,omitempty"`
	Payload        json.RawMessage `json:"payload"`
}

// Response is the rendered outcome of an invocation.
type Response struct {
	OK     bool           `json:"ok"`
	Result any            `json:"result,omitempty"`
	Error  map[string]any `json:"error,omitempty"`
}

// call is a decoded invocation handed to a handler.
type call struct {
	env Envelope
	at  time.Time
}

type handler func(ctx context.Context, c call) (any, error)

// Gateway validates, authorizes and dispatches invocations.
//
// Thread-safety: safe for concurrent use.
type Gateway struct {
	validator  *schema.Validator
	policy     policy.Evaluator
	intents    *intents.Service
	matching   *matching.Service
	settlement *settlement.Service
	clock      clock.Clock
	logger     *slog.Logger
	bounds     ir.Bounds
	handlers   map[string]handler
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPolicy sets the policy evaluator. Default: policy.AllowAll.
func WithPolicy(p policy.Evaluator) Option {
	return func(g *Gateway) { g.policy = p }
}

// WithClock sets the clock used when an envelope omits occurred_at.
func WithClock(c clock.Clock) Option {
	return func(g *Gateway) { g.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithDefaultBounds fills zero bound fields of matching runs.
func WithDefaultBounds(b ir.Bounds) Option {
	return func(g *Gateway) { g.bounds = b }
}

// New creates a gateway over the three services.
func New(v *schema.Validator, in *intents.Service, m *matching.Service, s *settlement.Service, opts ...Option) *Gateway {
	g := &Gateway{
		validator:  v,
		policy:     policy.AllowAll{},
		intents:    in,
		matching:   m,
		settlement: s,
		clock:      clock.System{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.handlers = map[string]handler{
		intents.OperationSubmit:            g.submitIntent,
		intents.OperationCancel:            g.cancelIntent,
		matching.OperationRun:              g.runMatching,
		settlement.OperationAccept:         g.accept,
		settlement.OperationStart:          g.start,
		settlement.OperationDeposit:        g.deposit,
		settlement.OperationBeginExecution: g.beginExecution,
		settlement.OperationComplete:       g.complete,
		settlement.OperationExpire:         g.expire,
		settlement.OperationFail:           g.fail,
	}
	return g
}

// Operations lists the operations the gateway dispatches, sorted.
func (g *Gateway) Operations() []string {
	ops := make([]string, 0, len(g.handlers))
	for op := range g.handlers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Handle decodes and invokes raw, rendering any error on the wire.
func (g *Gateway) Handle(ctx context.Context, raw []byte) Response {
	result, err := g.handle(ctx, raw)
	if err != nil {
		return Response{Error: swaperr.From(err).Wire()}
	}
	return Response{OK: true, Result: result}
}

func (g *Gateway) handle(ctx context.Context, raw []byte) (any, error) {
	if err := g.validator.ValidateJSON(schema.Envelope, raw); err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, swaperr.Validation(swaperr.ReasonInvalidPayload, "decode envelope: %v", err)
	}
	return g.Invoke(ctx, env)
}

// Invoke validates, authorizes and dispatches env.
func (g *Gateway) Invoke(ctx context.Context, env Envelope) (any, error) {
	h, ok := g.handlers[env.Operation]
	if !ok {
		return nil, swaperr.Validation(swaperr.ReasonUnknownOperation, "unknown operation %q", env.Operation).
			WithDetail("operation", env.Operation)
	}
	if env.Actor == "" {
		return nil, swaperr.Validation(swaperr.ReasonInvalidPayload, "actor is required")
	}
	if len(env.Payload) == 0 {
		env.Payload = json.RawMessage(`{}`)
	}
	if err := g.validator.ValidateJSON(env.Operation, env.Payload); err != nil {
		return nil, err
	}

	at := g.clock.Now().UTC()
	if env.OccurredAt != "" {
		t, err := time.Parse(time.RFC3339Nano, env.OccurredAt)
		if err != nil {
			return nil, swaperr.Validation(swaperr.ReasonInvalidPayload, "occurred_at: %v", err).
				WithDetail("field", "/occurred_at")
		}
		at = t.UTC()
	}

	var view map[string]any
	if err := json.Unmarshal(env.Payload, &view); err != nil {
		return nil, swaperr.Validation(swaperr.ReasonInvalidPayload, "decode payload: %v", err)
	}
	if err := g.policy.Authorize(ctx, policy.Request{
		Actor:     env.Actor,
		Operation: env.Operation,
		Payload:   view,
		At:        at,
	}); err != nil {
		g.logger.InfoContext(ctx, "invocation denied", "operation", env.Operation, "actor", env.Actor, "error", err)
		return nil, err
	}

	result, err := h(ctx, call{env: env, at: at})
	if err != nil {
		if swaperr.KindOf(err) == swaperr.KindInternal {
			g.logger.ErrorContext(ctx, "invocation failed", "operation", env.Operation, "actor", env.Actor, "error", err)
		} else {
			g.logger.DebugContext(ctx, "invocation rejected", "operation", env.Operation, "actor", env.Actor, "error", err)
		}
		return nil, err
	}
	return result, nil
}

// decode unmarshals the already validated payload.
func decode[T any](c call) (T, error) {
	var p T
	if err := json.Unmarshal(c.env.Payload, &p); err != nil {
		return p, swaperr.Validation(swaperr.ReasonInvalidPayload, "decode %s payload: %v", c.env.Operation, err)
	}
	return p, nil
}

func (c call) request() settlement.Request {
	return settlement.Request{Actor: c.env.Actor, IdempotencyKey: c.env.IdempotencyKey, OccurredAt: c.at}
}
