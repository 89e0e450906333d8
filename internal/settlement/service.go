// Package settlement drives an accepted cycle proposal through escrow to a
// signed terminal receipt.
//
// Every operation runs in one store transaction under a per-cycle lock and
// an optional idempotency key. Each committed transition appends exactly
// one journal event whose id is derived from the cycle and the transition,
// so a replayed transition never duplicates its event.
package settlement

import (
	"context"
	"errors"
	"log/slog"
	"strings"
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

// Operation names used for idempotency scoping and telemetry.
const (
	OperationAccept         = "cycleProposals.accept"
	OperationStart          = "settlement.start"
	OperationDeposit        = "settlement.depositConfirmed"
	OperationBeginExecution = "settlement.beginExecution"
	OperationComplete       = "settlement.complete"
	OperationExpire         = "settlement.expireDepositWindow"
	OperationFail           = "settlement.fail"
)

// DefaultDepositWindow is the time participants have to deposit after start.
const DefaultDepositWindow = 24 * time.Hour

// Signer signs terminal receipts.
type Signer interface {
	Sign(r *ir.SwapReceipt) error
}

// Request carries the caller context shared by every operation.
type Request struct {
	Actor string
	// IdempotencyKey is optional; empty disables replay protection.
	IdempotencyKey string
	// OccurredAt is the logical time of the call. Zero means now.
	OccurredAt time.Time
}

// Service is the settlement state machine.
//
// Thread-safety: safe for concurrent use; operations on one cycle are
// serialized by the locker.
type Service struct {
	store     *store.Store
	signer    Signer
	locker    lock.Locker
	clock     clock.Clock
	telemetry *telemetry.Provider
	logger    *slog.Logger
	window    time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLocker sets the locker. Default: an in-process lock.Keyed.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) { s.locker = l }
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

// WithDepositWindow sets the deposit window applied by Start.
func WithDepositWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.window = d
		}
	}
}

// NewService creates a settlement service. signer signs every receipt.
func NewService(st *store.Store, signer Signer, opts ...Option) *Service {
	s := &Service{
		store:     st,
		signer:    signer,
		locker:    lock.NewKeyed(),
		clock:     clock.System{},
		telemetry: telemetry.Noop(),
		logger:    slog.Default(),
		window:    DefaultDepositWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// move is a committed state change, reported after the transaction.
type move struct {
	cycleID  string
	from, to string
}

// txn is the per-call transaction context handed to operation bodies.
type txn struct {
	tx    *store.Tx
	at    time.Time
	moves []move
}

func (t *txn) moved(cycleID, from, to string) {
	t.moves = append(t.moves, move{cycleID: cycleID, from: from, to: to})
}

// execute runs body under the locks, the idempotency guard and telemetry.
func execute[T any](ctx context.Context, s *Service, op string, req Request, keys []string, payload any, body func(ctx context.Context, t *txn) (T, error)) (T, error) {
	ctx, done := s.telemetry.TrackOperation(ctx, op, kindLabel, attribute.String("actor", req.Actor))
	out, err := executeLocked(ctx, s, op, req, keys, payload, body)
	done(err)
	return out, err
}

func executeLocked[T any](ctx context.Context, s *Service, op string, req Request, keys []string, payload any, body func(ctx context.Context, t *txn) (T, error)) (T, error) {
	var zero T
	if req.Actor == "" {
		return zero, swaperr.Validation(swaperr.ReasonInvalidPayload, "actor is required")
	}
	at := req.OccurredAt
	if at.IsZero() {
		at = s.clock.Now()
	}
	at = at.UTC()

	unlock, err := s.locker.Lock(ctx, keys...)
	if err != nil {
		return zero, err
	}
	defer unlock()

	var t *txn
	scope := idempotency.Scope{Actor: req.Actor, Operation: op, Key: req.IdempotencyKey}
	out, outcome, err := idempotency.Do(ctx, s.store, scope, payload, at, func(tx *store.Tx) (T, error) {
		t = &txn{tx: tx, at: at}
		return body(ctx, t)
	})
	if err != nil {
		s.logger.DebugContext(ctx, "settlement operation rejected",
			"operation", op, "actor", req.Actor, "error", err)
		return zero, err
	}
	if outcome.Replayed || t == nil {
		s.logger.DebugContext(ctx, "settlement operation replayed", "operation", op, "actor", req.Actor)
		return out, nil
	}
	for _, m := range t.moves {
		s.telemetry.RecordTransition(ctx, m.from, m.to)
		s.logger.InfoContext(ctx, "cycle transition",
			"cycle_id", m.cycleID, "from", m.from, "to", m.to, "operation", op, "actor", req.Actor)
	}
	return out, nil
}

// Accept turns an open proposal into a commit at phase accepted.
func (s *Service) Accept(ctx context.Context, req Request, proposalID string) (ir.Commit, error) {
	if proposalID == "" {
		return ir.Commit{}, swaperr.Validation(swaperr.ReasonInvalidPayload, "proposal_id is required")
	}
	keys := []string{lock.MatchingKey, lock.ProposalKey(proposalID)}
	payload := map[string]any{"proposal_id": proposalID}
	return execute(ctx, s, OperationAccept, req, keys, payload, func(ctx context.Context, t *txn) (ir.Commit, error) {
		return s.accept(ctx, t, req.Actor, proposalID)
	})
}

func (s *Service) accept(ctx context.Context, t *txn, actor, proposalID string) (ir.Commit, error) {
	p, err := t.tx.GetProposal(ctx, proposalID)
	if errors.Is(err, store.ErrNotFound) {
		return ir.Commit{}, swaperr.NotFound(swaperr.ReasonProposalNotFound, "proposal %s not found", proposalID)
	}
	if err != nil {
		return ir.Commit{}, err
	}

	switch {
	case p.Status == ir.ProposalAccepted:
		return ir.Commit{}, swaperr.Conflict(swaperr.ReasonAlreadyAccepted, "proposal %s is already accepted", p.ID)
	case p.Status == ir.ProposalSuperseded:
		return ir.Commit{}, swaperr.Precondition(swaperr.ReasonProposalSuperseded, "proposal %s was superseded", p.ID)
	case p.Status == ir.ProposalExpired || !t.at.Before(p.ExpiresAt):
		return ir.Commit{}, swaperr.Precondition(swaperr.ReasonProposalExpired,
			"proposal %s expired at %s", p.ID, p.ExpiresAt.Format(time.RFC3339))
	}

	for _, id := range p.IntentIDs() {
		holder, ok, err := t.tx.ReservationFor(ctx, id)
		if err != nil {
			return ir.Commit{}, err
		}
		if !ok || holder != p.ID {
			return ir.Commit{}, swaperr.Conflict(swaperr.ReasonReservationLost,
				"intent %s is no longer reserved for proposal %s", id, p.ID).
				WithDetail("intent_id", id)
		}
	}

	c := ir.Commit{
		ProposalID: p.ID,
		AcceptedBy: actor,
		Phase:      ir.PhaseAccepted,
		CreatedAt:  t.at,
		AcceptedAt: t.at,
		UpdatedAt:  t.at,
	}
	if err := t.tx.InsertCommit(ctx, c); err != nil {
		return ir.Commit{}, err
	}
	if err := t.tx.SetProposalStatus(ctx, p.ID, ir.ProposalAccepted); err != nil {
		return ir.Commit{}, err
	}
	if _, err := journal.Append(ctx, t.tx, ir.EventProposalAccepted, p.ID, string(ir.ProposalAccepted), map[string]any{
		"proposal_id": p.ID,
		"accepted_by": actor,
	}, t.at); err != nil {
		return ir.Commit{}, err
	}
	t.moved(p.ID, string(ir.ProposalOpen), string(ir.PhaseAccepted))
	return c, nil
}

// Start opens escrow for an accepted cycle. Calling it again returns the
// existing timeline unchanged.
func (s *Service) Start(ctx context.Context, req Request, cycleID string) (ir.SettlementTimeline, error) {
	if cycleID == "" {
		return ir.SettlementTimeline{}, swaperr.Validation(swaperr.ReasonInvalidPayload, "cycle_id is required")
	}
	payload := map[string]any{"cycle_id": cycleID}
	return execute(ctx, s, OperationStart, req, cycleKeys(cycleID), payload, func(ctx context.Context, t *txn) (ir.SettlementTimeline, error) {
		return s.start(ctx, t, cycleID)
	})
}

func (s *Service) start(ctx context.Context, t *txn, cycleID string) (ir.SettlementTimeline, error) {
	existing, err := t.tx.GetTimeline(ctx, cycleID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return ir.SettlementTimeline{}, err
	}

	c, err := t.tx.GetCommit(ctx, cycleID)
	if errors.Is(err, store.ErrNotFound) {
		return ir.SettlementTimeline{}, swaperr.NotFound(swaperr.ReasonCommitNotFound, "no commit for cycle %s", cycleID)
	}
	if err != nil {
		return ir.SettlementTimeline{}, err
	}
	if c.Phase != ir.PhaseAccepted {
		return ir.SettlementTimeline{}, swaperr.Precondition(swaperr.ReasonCommitNotAccepted,
			"commit for cycle %s is %s", cycleID, c.Phase)
	}
	p, err := t.tx.GetProposal(ctx, cycleID)
	if err != nil {
		return ir.SettlementTimeline{}, err
	}

	tl := ir.SettlementTimeline{
		CycleID:           cycleID,
		State:             ir.StatePending,
		Legs:              buildLegs(p),
		DepositDeadlineAt: t.at.Add(s.window),
		CreatedAt:         t.at,
		UpdatedAt:         t.at,
	}
	if err := t.tx.InsertTimeline(ctx, tl); err != nil {
		return ir.SettlementTimeline{}, err
	}
	if err := t.tx.SetCommitPhase(ctx, cycleID, ir.PhasePending, t.at); err != nil {
		return ir.SettlementTimeline{}, err
	}
	if err := appendStateChanged(ctx, t, cycleID, string(ir.PhaseAccepted), ir.StatePending, map[string]any{
		"deposit_deadline_at": tl.DepositDeadlineAt.Format(time.RFC3339Nano),
		"legs":                len(tl.Legs),
	}); err != nil {
		return ir.SettlementTimeline{}, err
	}
	return tl, nil
}

// ConfirmDeposit records that the participant behind intentID deposited
// its leg. Re-confirming with the same deposit ref is a no-op.
func (s *Service) ConfirmDeposit(ctx context.Context, req Request, cycleID, intentID, depositRef string) (ir.SettlementTimeline, error) {
	if cycleID == "" || intentID == "" || depositRef == "" {
		return ir.SettlementTimeline{}, swaperr.Validation(swaperr.ReasonInvalidPayload,
			"cycle_id, intent_id and deposit_ref are required")
	}
	payload := map[string]any{"cycle_id": cycleID, "intent_id": intentID, "deposit_ref": depositRef}
	return execute(ctx, s, OperationDeposit, req, cycleKeys(cycleID), payload, func(ctx context.Context, t *txn) (ir.SettlementTimeline, error) {
		return s.confirmDeposit(ctx, t, cycleID, intentID, depositRef)
	})
}

func (s *Service) confirmDeposit(ctx context.Context, t *txn, cycleID, intentID, depositRef string) (ir.SettlementTimeline, error) {
	tl, err := loadTimeline(ctx, t.tx, cycleID)
	if err != nil {
		return ir.SettlementTimeline{}, err
	}
	if tl.State.Terminal() {
		return ir.SettlementTimeline{}, checkTransition(cycleID, tl.State, ir.StatePending)
	}
	leg, ok := tl.Leg(intentID)
	if !ok {
		return ir.SettlementTimeline{}, swaperr.NotFound(swaperr.ReasonLegNotFound,
			"cycle %s has no leg for intent %s", cycleID, intentID)
	}
	if leg.Status == ir.LegDeposited {
		if leg.DepositRef == depositRef {
			return tl, nil
		}
		return ir.SettlementTimeline{}, swaperr.Conflict(swaperr.ReasonDepositRefConflict,
			"leg %s was deposited with a different ref", intentID).
			WithDetail("intent_id", intentID)
	}
	if tl.State != ir.StatePending {
		return ir.SettlementTimeline{}, checkTransition(cycleID, tl.State, ir.StatePending)
	}
	if !t.at.Before(tl.DepositDeadlineAt) {
		return ir.SettlementTimeline{}, swaperr.Expired(swaperr.ReasonDepositWindowClosed,
			"deposit window for cycle %s closed at %s", cycleID, tl.DepositDeadlineAt.Format(time.RFC3339))
	}

	at := t.at
	leg.Status = ir.LegDeposited
	leg.DepositRef = depositRef
	leg.DepositedAt = &at
	if err := t.tx.UpdateLeg(ctx, cycleID, *leg); err != nil {
		return ir.SettlementTimeline{}, err
	}
	if err := t.tx.UpdateTimelineState(ctx, cycleID, tl.State, "", at); err != nil {
		return ir.SettlementTimeline{}, err
	}
	tl.UpdatedAt = at
	if _, err := journal.Append(ctx, t.tx, ir.EventLegDeposited, cycleID, intentID, map[string]any{
		"cycle_id":    cycleID,
		"intent_id":   intentID,
		"deposit_ref": depositRef,
		"outstanding": tl.Outstanding(),
	}, at); err != nil {
		return ir.SettlementTimeline{}, err
	}
	return tl, nil
}

// BeginExecution moves a fully deposited cycle to escrow.executing.
func (s *Service) BeginExecution(ctx context.Context, req Request, cycleID string) (ir.SettlementTimeline, error) {
	if cycleID == "" {
		return ir.SettlementTimeline{}, swaperr.Validation(swaperr.ReasonInvalidPayload, "cycle_id is required")
	}
	payload := map[string]any{"cycle_id": cycleID}
	return execute(ctx, s, OperationBeginExecution, req, cycleKeys(cycleID), payload, func(ctx context.Context, t *txn) (ir.SettlementTimeline, error) {
		return s.beginExecution(ctx, t, cycleID)
	})
}

func (s *Service) beginExecution(ctx context.Context, t *txn, cycleID string) (ir.SettlementTimeline, error) {
	tl, err := loadTimeline(ctx, t.tx, cycleID)
	if err != nil {
		return ir.SettlementTimeline{}, err
	}
	if tl.State == ir.StateExecuting {
		return tl, nil
	}
	if err := checkTransition(cycleID, tl.State, ir.StateExecuting); err != nil {
		return ir.SettlementTimeline{}, err
	}
	if outstanding := tl.Outstanding(); len(outstanding) > 0 {
		return ir.SettlementTimeline{}, swaperr.Precondition(swaperr.ReasonLegsOutstanding,
			"cycle %s has %d legs not deposited", cycleID, len(outstanding)).
			WithDetail("outstanding_legs", strings.Join(outstanding, ","))
	}

	if err := s.advance(ctx, t, &tl, ir.StateExecuting, "", nil); err != nil {
		return ir.SettlementTimeline{}, err
	}
	return tl, nil
}

// Complete releases every leg of an executing cycle and issues the signed
// settled receipt. On a completed cycle it returns the existing receipt.
func (s *Service) Complete(ctx context.Context, req Request, cycleID string) (ir.SwapReceipt, error) {
	if cycleID == "" {
		return ir.SwapReceipt{}, swaperr.Validation(swaperr.ReasonInvalidPayload, "cycle_id is required")
	}
	payload := map[string]any{"cycle_id": cycleID}
	return execute(ctx, s, OperationComplete, req, cycleKeys(cycleID), payload, func(ctx context.Context, t *txn) (ir.SwapReceipt, error) {
		return s.complete(ctx, t, cycleID)
	})
}

func (s *Service) complete(ctx context.Context, t *txn, cycleID string) (ir.SwapReceipt, error) {
	tl, err := loadTimeline(ctx, t.tx, cycleID)
	if err != nil {
		return ir.SwapReceipt{}, err
	}
	if tl.State == ir.StateCompleted {
		return t.tx.GetReceipt(ctx, cycleID)
	}
	if err := checkTransition(cycleID, tl.State, ir.StateCompleted); err != nil {
		return ir.SwapReceipt{}, err
	}
	p, err := t.tx.GetProposal(ctx, cycleID)
	if err != nil {
		return ir.SwapReceipt{}, err
	}

	for i := range tl.Legs {
		tl.Legs[i].Status = ir.LegReleased
		if err := t.tx.UpdateLeg(ctx, cycleID, tl.Legs[i]); err != nil {
			return ir.SwapReceipt{}, err
		}
	}
	if err := intents.Fulfill(ctx, t.tx, cycleID, p.IntentIDs(), t.at); err != nil {
		return ir.SwapReceipt{}, err
	}
	if err := s.advance(ctx, t, &tl, ir.StateCompleted, "", map[string]any{"released_legs": len(tl.Legs)}); err != nil {
		return ir.SwapReceipt{}, err
	}
	return s.issueReceipt(ctx, t, p, ir.ReceiptSettled, "")
}

// ExpireDepositWindow fails a pending cycle whose deposit deadline has
// passed with legs still outstanding. req.OccurredAt is the "now" compared
// against the deadline. On a failed cycle it returns the existing receipt.
func (s *Service) ExpireDepositWindow(ctx context.Context, req Request, cycleID string) (ir.SwapReceipt, error) {
	if cycleID == "" {
		return ir.SwapReceipt{}, swaperr.Validation(swaperr.ReasonInvalidPayload, "cycle_id is required")
	}
	payload := map[string]any{"cycle_id": cycleID}
	return execute(ctx, s, OperationExpire, req, cycleKeys(cycleID), payload, func(ctx context.Context, t *txn) (ir.SwapReceipt, error) {
		return s.expire(ctx, t, cycleID)
	})
}

func (s *Service) expire(ctx context.Context, t *txn, cycleID string) (ir.SwapReceipt, error) {
	tl, err := loadTimeline(ctx, t.tx, cycleID)
	if err != nil {
		return ir.SwapReceipt{}, err
	}
	if tl.State == ir.StateFailed {
		return t.tx.GetReceipt(ctx, cycleID)
	}
	if tl.State != ir.StatePending {
		return ir.SwapReceipt{}, checkTransition(cycleID, tl.State, ir.StatePending)
	}
	if t.at.Before(tl.DepositDeadlineAt) {
		return ir.SwapReceipt{}, swaperr.Precondition(swaperr.ReasonDeadlineNotReached,
			"deposit window for cycle %s is open until %s", cycleID, tl.DepositDeadlineAt.Format(time.RFC3339)).
			WithDetail("deposit_deadline_at", tl.DepositDeadlineAt.Format(time.RFC3339))
	}
	if len(tl.Outstanding()) == 0 {
		return ir.SwapReceipt{}, swaperr.Precondition(swaperr.ReasonAllLegsDeposited,
			"every leg of cycle %s is deposited", cycleID)
	}
	return s.compensate(ctx, t, tl, swaperr.ReasonDepositWindowClosed)
}

// Fail aborts a pending or executing cycle with the caller's reason code,
// refunding deposited legs. On a failed cycle it returns the existing
// receipt.
func (s *Service) Fail(ctx context.Context, req Request, cycleID, reasonCode string) (ir.SwapReceipt, error) {
	if cycleID == "" || reasonCode == "" {
		return ir.SwapReceipt{}, swaperr.Validation(swaperr.ReasonInvalidPayload, "cycle_id and reason_code are required")
	}
	payload := map[string]any{"cycle_id": cycleID, "reason_code": reasonCode}
	return execute(ctx, s, OperationFail, req, cycleKeys(cycleID), payload, func(ctx context.Context, t *txn) (ir.SwapReceipt, error) {
		tl, err := loadTimeline(ctx, t.tx, cycleID)
		if err != nil {
			return ir.SwapReceipt{}, err
		}
		if tl.State == ir.StateFailed {
			return t.tx.GetReceipt(ctx, cycleID)
		}
		if err := checkTransition(cycleID, tl.State, ir.StateFailed); err != nil {
			return ir.SwapReceipt{}, err
		}
		return s.compensate(ctx, t, tl, reasonCode)
	})
}

// compensate refunds deposited legs, returns the intents to the pool and
// issues the failed receipt.
func (s *Service) compensate(ctx context.Context, t *txn, tl ir.SettlementTimeline, reason string) (ir.SwapReceipt, error) {
	p, err := t.tx.GetProposal(ctx, tl.CycleID)
	if err != nil {
		return ir.SwapReceipt{}, err
	}
	refunded := 0
	for i := range tl.Legs {
		if tl.Legs[i].Status != ir.LegDeposited {
			continue
		}
		tl.Legs[i].Status = ir.LegRefunded
		if err := t.tx.UpdateLeg(ctx, tl.CycleID, tl.Legs[i]); err != nil {
			return ir.SwapReceipt{}, err
		}
		refunded++
	}
	if _, err := intents.Release(ctx, t.tx, tl.CycleID, t.at); err != nil {
		return ir.SwapReceipt{}, err
	}
	if err := s.advance(ctx, t, &tl, ir.StateFailed, reason, map[string]any{
		"reason_code":   reason,
		"refunded_legs": refunded,
	}); err != nil {
		return ir.SwapReceipt{}, err
	}
	return s.issueReceipt(ctx, t, p, ir.ReceiptFailed, reason)
}

// advance writes a timeline state change, mirrors it on the commit and
// journals it.
func (s *Service) advance(ctx context.Context, t *txn, tl *ir.SettlementTimeline, to ir.TimelineState, reason string, extra map[string]any) error {
	from := tl.State
	if err := t.tx.UpdateTimelineState(ctx, tl.CycleID, to, reason, t.at); err != nil {
		return err
	}
	if err := t.tx.SetCommitPhase(ctx, tl.CycleID, phaseFor(to), t.at); err != nil {
		return err
	}
	tl.State = to
	tl.FailureReason = reason
	tl.UpdatedAt = t.at
	return appendStateChanged(ctx, t, tl.CycleID, string(from), to, extra)
}

func appendStateChanged(ctx context.Context, t *txn, cycleID, from string, to ir.TimelineState, extra map[string]any) error {
	payload := map[string]any{
		"cycle_id": cycleID,
		"from":     from,
		"to":       string(to),
	}
	for k, v := range extra {
		payload[k] = v
	}
	if _, err := journal.Append(ctx, t.tx, ir.EventCycleStateChanged, cycleID, string(to), payload, t.at); err != nil {
		return err
	}
	t.moved(cycleID, from, string(to))
	return nil
}

func (s *Service) issueReceipt(ctx context.Context, t *txn, p ir.CycleProposal, state ir.ReceiptState, reason string) (ir.SwapReceipt, error) {
	r := receiptFor(p, state, reason, t.at)
	if err := s.signer.Sign(&r); err != nil {
		return ir.SwapReceipt{}, swaperr.Internal(err, "sign receipt for cycle %s", p.ID)
	}
	if err := t.tx.InsertReceipt(ctx, r); err != nil {
		return ir.SwapReceipt{}, err
	}
	if _, err := journal.Append(ctx, t.tx, ir.EventReceiptCreated, p.ID, string(state), map[string]any{
		"receipt_id":  r.ID,
		"cycle_id":    p.ID,
		"final_state": string(state),
	}, t.at); err != nil {
		return ir.SwapReceipt{}, err
	}
	return r, nil
}

func loadTimeline(ctx context.Context, tx *store.Tx, cycleID string) (ir.SettlementTimeline, error) {
	tl, err := tx.GetTimeline(ctx, cycleID)
	if errors.Is(err, store.ErrNotFound) {
		return ir.SettlementTimeline{}, swaperr.NotFound(swaperr.ReasonTimelineNotFound, "no settlement for cycle %s", cycleID)
	}
	return tl, err
}

func cycleKeys(cycleID string) []string {
	return []string{lock.CycleKey(cycleID)}
}

func kindLabel(err error) string {
	return string(swaperr.KindOf(err))
}
