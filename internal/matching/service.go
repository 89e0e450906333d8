package matching

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/clock"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/idempotency"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/intents"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/journal"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/lock"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/store"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/swaperr"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/telemetry"
)

// OperationRun is the idempotency operation name for matching runs.
const OperationRun = "matching.run"

// DefaultProposalTTL is how long a proposal stays open for acceptance.
const DefaultProposalTTL = time.Hour

// Service runs matching against the store.
//
// Thread-safety: safe for concurrent use; runs are serialized by the
// locker on MatchingKey.
type Service struct {
	store     *store.Store
	locker    lock.Locker
	clock     clock.Clock
	telemetry *telemetry.Provider
	logger    *slog.Logger

	ttl       time.Duration
	optimizer Options
	shadow    bool
}

// Option configures a Service.
type Option func(*Service)

// WithLocker sets the locker. Default: an in-process lock.Keyed.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithClock sets the clock used for the cycle-search deadline and for
// requests that omit OccurredAt.
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

// WithProposalTTL sets how long new proposals stay open.
func WithProposalTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithOptimizerOptions tunes the selection optimizer.
func WithOptimizerOptions(o Options) Option {
	return func(s *Service) { s.optimizer = o }
}

// WithShadow enables or disables the greedy-vs-optimizer comparison.
func WithShadow(enabled bool) Option {
	return func(s *Service) { s.shadow = enabled }
}

// NewService creates a matching service on st.
func NewService(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:     st,
		locker:    lock.NewKeyed(),
		clock:     clock.System{},
		telemetry: telemetry.Noop(),
		logger:    slog.Default(),
		ttl:       DefaultProposalTTL,
		optimizer: DefaultOptions(),
		shadow:    true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunRequest is a matching invocation.
type RunRequest struct {
	Actor          string
	IdempotencyKey string
	Bounds         ir.Bounds
	// OccurredAt timestamps the run and its proposals. Zero means now.
	OccurredAt time.Time
}

// Run executes one matching run.
//
// In a single transaction it expires stale open proposals, supersedes the
// remaining open ones (their intents rejoin the pool), matches the active
// intents, persists and reserves the selected proposals, and records the
// run. A replay with the same key and bounds returns the stored run.
func (s *Service) Run(ctx context.Context, req RunRequest) (ir.MatchingRun, error) {
	ctx, done := s.telemetry.TrackOperation(ctx, OperationRun, kindLabel,
		attribute.String("actor", req.Actor))
	run, err := s.run(ctx, req)
	done(err)
	return run, err
}

func (s *Service) run(ctx context.Context, req RunRequest) (ir.MatchingRun, error) {
	if req.Actor == "" {
		return ir.MatchingRun{}, swaperr.Validation(swaperr.ReasonInvalidPayload, "actor is required")
	}
	if req.IdempotencyKey == "" {
		return ir.MatchingRun{}, swaperr.Validation(swaperr.ReasonInvalidPayload, "idempotency_key is required")
	}
	bounds, err := NormalizeBounds(req.Bounds)
	if err != nil {
		return ir.MatchingRun{}, err
	}
	at := req.OccurredAt
	if at.IsZero() {
		at = s.clock.Now()
	}
	at = at.UTC()

	unlock, err := s.locker.Lock(ctx, lock.MatchingKey)
	if err != nil {
		return ir.MatchingRun{}, err
	}
	defer unlock()

	scope := idempotency.Scope{Actor: req.Actor, Operation: OperationRun, Key: req.IdempotencyKey}
	payload := map[string]any{"bounds": bounds}
	run, outcome, err := idempotency.Do(ctx, s.store, scope, payload, at, func(tx *store.Tx) (ir.MatchingRun, error) {
		return s.runTx(ctx, tx, req, bounds, at)
	})
	if err != nil {
		return ir.MatchingRun{}, err
	}
	if outcome.Replayed {
		s.logger.DebugContext(ctx, "matching run replayed", "run_id", run.RunID)
		return run, nil
	}

	s.telemetry.RecordRun(ctx, run)
	s.logger.InfoContext(ctx, "matching run completed",
		"run_id", run.RunID,
		"actor", run.Actor,
		"candidate_cycles", run.Stats.CandidateCycles,
		"selected", run.Stats.SelectedProposalsCount,
		"replaced", run.Stats.ReplacedProposalsCount,
		"expired", run.Stats.ExpiredProposalsCount,
		"method", run.Selection.Method,
	)
	return run, nil
}

func (s *Service) runTx(ctx context.Context, tx *store.Tx, req RunRequest, bounds ir.Bounds, at time.Time) (ir.MatchingRun, error) {
	run := ir.MatchingRun{
		RunID:               ir.RunID(req.Actor, req.IdempotencyKey),
		Actor:               req.Actor,
		IdempotencyKey:      req.IdempotencyKey,
		Bounds:              bounds,
		SelectedProposalIDs: []string{},
		CreatedAt:           at,
	}

	if err := s.retireOpenProposals(ctx, tx, &run, at); err != nil {
		return ir.MatchingRun{}, err
	}

	pool, err := tx.ListIntents(ctx, ir.IntentActive)
	if err != nil {
		return ir.MatchingRun{}, err
	}
	if run.SnapshotHash, err = ir.SnapshotHash(pool); err != nil {
		return ir.MatchingRun{}, err
	}

	g := BuildGraph(pool)
	search := FindCycles(ctx, g, bounds, s.clock.Now)
	run.Stats.CandidateCycles = len(search.Cycles)
	run.Stats.MaxCyclesReached = search.MaxCyclesReached
	run.Stats.TimeoutReached = search.TimeoutReached
	s.logger.DebugContext(ctx, "cycle search finished",
		"run_id", run.RunID,
		"vertices", g.Len(),
		"edges", g.EdgeCount(),
		"cycles", len(search.Cycles),
		"steps", search.Steps,
		"timeout_reached", search.TimeoutReached,
	)

	proposals := make(map[string]ir.CycleProposal, len(search.Cycles))
	cands := make([]Candidate, 0, len(search.Cycles))
	for _, c := range search.Cycles {
		out, err := BuildProposal(run.RunID, c, g, at, s.ttl)
		if err != nil {
			return ir.MatchingRun{}, err
		}
		if out.Proposal == nil {
			run.Stats.SkippedCandidates++
			continue
		}
		proposals[out.Proposal.ID] = *out.Proposal
		cands = append(cands, CandidateOf(*out.Proposal))
	}

	sel := Optimize(cands, s.optimizer)
	if err := Verify(sel, cands); err != nil {
		return ir.MatchingRun{}, swaperr.Internal(err, "optimizer produced an invalid selection")
	}
	run.Selection = ir.SelectionSummary{
		Method:           sel.Method,
		TotalScore:       sel.Total,
		GreedyTotalScore: Greedy(cands).Total,
	}
	if s.shadow {
		d := Shadow(cands, GreedySelector(), OptimizerSelector(s.optimizer))
		run.Shadow = &d
	}

	for _, id := range sel.IDs {
		if err := s.persistProposal(ctx, tx, proposals[id], at); err != nil {
			return ir.MatchingRun{}, err
		}
		run.SelectedProposalIDs = append(run.SelectedProposalIDs, id)
	}
	run.Stats.SelectedProposalsCount = len(run.SelectedProposalIDs)

	if err := tx.InsertRun(ctx, run); err != nil {
		return ir.MatchingRun{}, err
	}
	if _, err := journal.Append(ctx, tx, ir.EventRunCompleted, run.RunID, "completed", map[string]any{
		"actor":                 run.Actor,
		"snapshot_hash":         run.SnapshotHash,
		"selected_proposal_ids": run.SelectedProposalIDs,
		"stats":                 run.Stats,
	}, at); err != nil {
		return ir.MatchingRun{}, err
	}
	return run, nil
}

// retireOpenProposals expires open proposals past their deadline and
// supersedes the rest, releasing their reservations.
func (s *Service) retireOpenProposals(ctx context.Context, tx *store.Tx, run *ir.MatchingRun, at time.Time) error {
	open, err := tx.ListProposals(ctx, ir.ProposalOpen)
	if err != nil {
		return err
	}
	for _, p := range open {
		status, eventType := ir.ProposalSuperseded, ir.EventProposalSuperseded
		if !at.Before(p.ExpiresAt) {
			status, eventType = ir.ProposalExpired, ir.EventProposalExpired
			run.Stats.ExpiredProposalsCount++
		} else {
			run.Stats.ReplacedProposalsCount++
		}

		if err := tx.SetProposalStatus(ctx, p.ID, status); err != nil {
			return err
		}
		if _, err := journal.Append(ctx, tx, eventType, p.ID, string(status), map[string]any{
			"proposal_id": p.ID,
			"run_id":      run.RunID,
		}, at); err != nil {
			return err
		}
		if _, err := intents.Release(ctx, tx, p.ID, at); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) persistProposal(ctx context.Context, tx *store.Tx, p ir.CycleProposal, at time.Time) error {
	if err := tx.InsertProposal(ctx, p); err != nil {
		return err
	}
	if _, err := journal.Append(ctx, tx, ir.EventProposalCreated, p.ID, "created", map[string]any{
		"proposal_id":      p.ID,
		"run_id":           p.RunID,
		"intent_ids":       p.IntentIDs(),
		"confidence_score": p.ConfidenceScore.String(),
		"expires_at":       p.ExpiresAt.Format(time.RFC3339Nano),
	}, at); err != nil {
		return err
	}
	return intents.Reserve(ctx, tx, p, at)
}

func kindLabel(err error) string {
	return string(swaperr.KindOf(err))
}

// Describe renders a one-line summary of a run for logs and the CLI.
func Describe(run ir.MatchingRun) string {
	return fmt.Sprintf("run %s: %d selected of %d cycles (%s, total %d vs greedy %d)",
		run.RunID, run.Stats.SelectedProposalsCount, run.Stats.CandidateCycles,
		run.Selection.Method, run.Selection.TotalScore, run.Selection.GreedyTotalScore)
}
