package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/clock"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/store"
)

// Sweeper defaults.
const (
	DefaultSweepBatch = 100
	SweeperActor      = "system:sweeper"
)

// SweepResult reports one sweep.
type SweepResult struct {
	// Expired lists cycles failed by this sweep, in deadline order.
	Expired []string `json:"expired"`
	// Skipped maps cycles that could not be expired to the error text.
	Skipped map[string]string `json:"skipped"`
}

// Sweeper expires overdue deposit windows.
type Sweeper struct {
	svc     *Service
	clock   clock.Clock
	limiter *rate.Limiter
	batch   int
	actor   string
	logger  *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepRate caps expirations per second. Zero means unlimited.
func WithSweepRate(perSecond float64) SweeperOption {
	return func(w *Sweeper) {
		if perSecond > 0 {
			w.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithSweepBatch sets how many overdue cycles one sweep handles.
func WithSweepBatch(n int) SweeperOption {
	return func(w *Sweeper) {
		if n > 0 {
			w.batch = n
		}
	}
}

// WithSweepClock sets the clock Run reads each tick.
func WithSweepClock(c clock.Clock) SweeperOption {
	return func(w *Sweeper) { w.clock = c }
}

// WithSweepLogger sets the logger.
func WithSweepLogger(l *slog.Logger) SweeperOption {
	return func(w *Sweeper) { w.logger = l }
}

// NewSweeper creates a sweeper driving svc.
func NewSweeper(svc *Service, opts ...SweeperOption) *Sweeper {
	w := &Sweeper{
		svc:     svc,
		clock:   clock.System{},
		limiter: rate.NewLimiter(rate.Inf, 1),
		batch:   DefaultSweepBatch,
		actor:   SweeperActor,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Sweep expires every pending cycle whose deadline is at or before now.
// Each expiry is keyed by cycle, so overlapping sweepers converge on the
// same receipt. Cycles whose legs are all deposited are not overdue. A
// cycle that still cannot be expired (a concurrent transition won) is
// reported in Skipped and does not stop the sweep.
func (w *Sweeper) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	res := SweepResult{Expired: []string{}, Skipped: map[string]string{}}

	var ids []string
	err := w.svc.store.View(ctx, func(tx *store.Tx) error {
		var err error
		ids, err = tx.ListOverdueTimelineIDs(ctx, now, w.batch)
		return err
	})
	if err != nil {
		return res, fmt.Errorf("sweep: %w", err)
	}

	for _, id := range ids {
		if err := w.limiter.Wait(ctx); err != nil {
			return res, fmt.Errorf("sweep: %w", err)
		}
		r, err := w.svc.ExpireDepositWindow(ctx, Request{
			Actor:          w.actor,
			IdempotencyKey: "sweep:" + id,
			OccurredAt:     now,
		}, id)
		if err != nil {
			res.Skipped[id] = err.Error()
			w.logger.WarnContext(ctx, "sweep could not expire cycle", "cycle_id", id, "error", err)
			continue
		}
		if r.FinalState == ir.ReceiptFailed {
			res.Expired = append(res.Expired, id)
		}
	}
	if len(ids) > 0 {
		w.logger.InfoContext(ctx, "sweep finished", "overdue", len(ids), "expired", len(res.Expired))
	}
	return res, nil
}

// Run sweeps every interval until ctx is done.
func (w *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := w.Sweep(ctx, w.clock.Now()); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			w.logger.ErrorContext(ctx, "sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
