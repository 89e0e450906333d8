// Package intents manages the intent pool: submission, cancellation and
// the reservation hand-back shared by matching and settlement.
package intents

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/clock"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/idempotency"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/journal"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/store"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/swaperr"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/telemetry"
)

// Operation names used for idempotency scoping.
const (
	OperationSubmit = "intents.submit"
	OperationCancel = "intents.cancel"
)

// Service owns intent lifecycle changes made on behalf of actors.
type Service struct {
	store     *store.Store
	ids       ir.IDGenerator
	clock     clock.Clock
	telemetry *telemetry.Provider
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithIDGenerator sets the generator for intents submitted without an id.
// Default: UUIDv7.
func WithIDGenerator(g ir.IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

// WithClock sets the clock used when a request omits OccurredAt.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithTelemetry sets the telemetry provider.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(s *Service) { s.telemetry = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates an intent service on st.
func NewService(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:     st,
		ids:       ir.UUIDv7Generator{},
		clock:     clock.System{},
		telemetry: telemetry.Noop(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitRequest creates an intent. ID is optional.
type SubmitRequest struct {
	Actor          string
	IdempotencyKey string
	ID             string
	Give           []ir.Asset
	Want           ir.WantSpec
	OccurredAt     time.Time
}

// CancelRequest withdraws an active intent.
type CancelRequest struct {
	Actor          string
	IdempotencyKey string
	IntentID       string
	OccurredAt     time.Time
}

// Submit validates and stores a new active intent.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (ir.SwapIntent, error) {
	ctx, done := s.telemetry.TrackOperation(ctx, OperationSubmit, kindLabel,
		attribute.String("actor", req.Actor))
	in, err := s.submit(ctx, req)
	done(err)
	return in, err
}

func (s *Service) submit(ctx context.Context, req SubmitRequest) (ir.SwapIntent, error) {
	if err := validateSubmit(req); err != nil {
		return ir.SwapIntent{}, err
	}
	at := s.at(req.OccurredAt)
	id := req.ID
	if id == "" {
		if req.IdempotencyKey != "" {
			// Retries must land on the same id.
			id = "int_" + ir.MustPayloadDigest(map[string]any{
				"actor": req.Actor,
				"key":   req.IdempotencyKey,
			})[:32]
		} else {
			id = s.ids.NewID()
		}
	}

	in := ir.SwapIntent{
		ID:        id,
		Actor:     req.Actor,
		Give:      req.Give,
		Want:      req.Want,
		Status:    ir.IntentActive,
		CreatedAt: at,
		UpdatedAt: at,
	}

	scope := idempotency.Scope{Actor: req.Actor, Operation: OperationSubmit, Key: req.IdempotencyKey}
	payload := map[string]any{"id": req.ID, "give": req.Give, "want": req.Want}
	out, _, err := idempotency.Do(ctx, s.store, scope, payload, at, func(tx *store.Tx) (ir.SwapIntent, error) {
		inserted, err := tx.InsertIntent(ctx, in)
		if err != nil {
			return ir.SwapIntent{}, err
		}
		if !inserted {
			return ir.SwapIntent{}, swaperr.Conflict(swaperr.ReasonIntentExists, "intent %s already exists", in.ID)
		}
		if _, err := journal.Append(ctx, tx, ir.EventIntentCreated, in.ID, "created", map[string]any{
			"intent_id": in.ID,
			"actor":     in.Actor,
			"give":      in.Give,
			"want":      in.Want,
		}, at); err != nil {
			return ir.SwapIntent{}, err
		}
		return in, nil
	})
	if err != nil {
		return ir.SwapIntent{}, err
	}
	s.logger.InfoContext(ctx, "intent submitted", "intent_id", out.ID, "actor", out.Actor)
	return out, nil
}

func validateSubmit(req SubmitRequest) error {
	if req.Actor == "" {
		return swaperr.Validation(swaperr.ReasonInvalidPayload, "actor is required")
	}
	if len(req.Give) == 0 {
		return swaperr.Validation(swaperr.ReasonInvalidPayload, "give must list at least one asset")
	}
	seen := make(map[string]bool, len(req.Give))
	for _, a := range req.Give {
		if a.ID == "" || a.Class == "" {
			return swaperr.Validation(swaperr.ReasonInvalidPayload, "asset id and class are required")
		}
		if seen[a.ID] {
			return swaperr.Validation(swaperr.ReasonInvalidPayload, "asset %s listed twice", a.ID)
		}
		seen[a.ID] = true
		if a.Value.IsNegative() {
			return swaperr.Validation(swaperr.ReasonInvalidPayload, "asset %s has a negative value", a.ID)
		}
	}
	if len(req.Want.AssetIDs) == 0 && len(req.Want.Classes) == 0 {
		return swaperr.Validation(swaperr.ReasonInvalidPayload, "want must name asset ids or classes")
	}
	if req.Want.MinValue.LessThan(decimal.Zero) {
		return swaperr.Validation(swaperr.ReasonInvalidPayload, "min_value must not be negative")
	}
	return nil
}

// Cancel withdraws an active intent owned by req.Actor. Reserved intents
// cannot be cancelled; intents owned by someone else are reported as not
// found.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (ir.SwapIntent, error) {
	ctx, done := s.telemetry.TrackOperation(ctx, OperationCancel, kindLabel,
		attribute.String("actor", req.Actor))
	in, err := s.cancel(ctx, req)
	done(err)
	return in, err
}

func (s *Service) cancel(ctx context.Context, req CancelRequest) (ir.SwapIntent, error) {
	if req.Actor == "" || req.IntentID == "" {
		return ir.SwapIntent{}, swaperr.Validation(swaperr.ReasonInvalidPayload, "actor and intent_id are required")
	}
	at := s.at(req.OccurredAt)

	scope := idempotency.Scope{Actor: req.Actor, Operation: OperationCancel, Key: req.IdempotencyKey}
	payload := map[string]any{"intent_id": req.IntentID}
	out, _, err := idempotency.Do(ctx, s.store, scope, payload, at, func(tx *store.Tx) (ir.SwapIntent, error) {
		in, err := tx.GetIntent(ctx, req.IntentID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && in.Actor != req.Actor) {
			return ir.SwapIntent{}, swaperr.NotFound(swaperr.ReasonIntentNotFound, "intent %s not found", req.IntentID)
		}
		if err != nil {
			return ir.SwapIntent{}, err
		}
		if in.Status == ir.IntentCancelled {
			return in, nil
		}
		if in.Status != ir.IntentActive {
			return ir.SwapIntent{}, swaperr.Precondition(swaperr.ReasonIntentNotActive,
				"intent %s is %s", in.ID, in.Status).WithDetail("status", string(in.Status))
		}
		if err := tx.SetIntentStatus(ctx, in.ID, ir.IntentCancelled, at); err != nil {
			return ir.SwapIntent{}, err
		}
		if _, err := journal.Append(ctx, tx, ir.EventIntentCancelled, in.ID, "cancelled", map[string]any{
			"intent_id": in.ID,
			"actor":     in.Actor,
		}, at); err != nil {
			return ir.SwapIntent{}, err
		}
		in.Status = ir.IntentCancelled
		in.UpdatedAt = at
		return in, nil
	})
	if err != nil {
		return ir.SwapIntent{}, err
	}
	s.logger.InfoContext(ctx, "intent cancelled", "intent_id", out.ID)
	return out, nil
}

// Get returns one intent.
func (s *Service) Get(ctx context.Context, id string) (ir.SwapIntent, error) {
	var in ir.SwapIntent
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		in, err = tx.GetIntent(ctx, id)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return ir.SwapIntent{}, swaperr.NotFound(swaperr.ReasonIntentNotFound, "intent %s not found", id)
	}
	return in, err
}

// List returns intents in the given status ordered by id; empty lists all.
func (s *Service) List(ctx context.Context, status ir.IntentStatus) ([]ir.SwapIntent, error) {
	var out []ir.SwapIntent
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListIntents(ctx, status)
		return err
	})
	return out, err
}

func (s *Service) at(t time.Time) time.Time {
	if t.IsZero() {
		return s.clock.Now()
	}
	return t.UTC()
}

func kindLabel(err error) string {
	return string(swaperr.KindOf(err))
}
