package journal

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

// DefaultBatchSize is the number of events delivered per sink call.
const DefaultBatchSize = 100

// Relay drains unrelayed events from the store into a Sink.
type Relay struct {
	store   *store.Store
	sink    Sink
	batch   int
	limiter *rate.Limiter
	clock   clock.Clock
	logger  *slog.Logger
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithBatchSize sets the events per delivery.
func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithRateLimit caps deliveries per second. Zero means unlimited.
func WithRateLimit(perSecond float64) RelayOption {
	return func(r *Relay) {
		if perSecond > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithRelayClock sets the clock used to stamp relayed_at.
func WithRelayClock(c clock.Clock) RelayOption {
	return func(r *Relay) { r.clock = c }
}

// WithRelayLogger sets the logger.
func WithRelayLogger(l *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = l }
}

// NewRelay creates a relay from s to sink.
func NewRelay(s *store.Store, sink Sink, opts ...RelayOption) *Relay {
	r := &Relay{
		store:   s,
		sink:    sink,
		batch:   DefaultBatchSize,
		limiter: rate.NewLimiter(rate.Inf, 1),
		clock:   clock.System{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Flush delivers every currently unrelayed event and returns how many were
// delivered. Events are read and marked in separate transactions so the
// store is never locked while the sink is called; a crash in between
// redelivers the batch.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		var events []ir.Event
		err := r.store.View(ctx, func(tx *store.Tx) error {
			var err error
			events, err = tx.ListUnrelayedEvents(ctx, r.batch)
			return err
		})
		if err != nil {
			return total, fmt.Errorf("relay: %w", err)
		}
		if len(events) == 0 {
			return total, nil
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return total, fmt.Errorf("relay: %w", err)
		}
		if err := r.sink.Deliver(ctx, events); err != nil {
			return total, fmt.Errorf("relay: %w", err)
		}

		seqs := make([]int64, len(events))
		for i, ev := range events {
			seqs[i] = ev.Seq
		}
		if err := r.store.Update(ctx, func(tx *store.Tx) error {
			return tx.MarkRelayed(ctx, seqs, r.clock.Now())
		}); err != nil {
			return total, fmt.Errorf("relay: mark relayed: %w", err)
		}
		total += len(events)
		r.logger.DebugContext(ctx, "relayed events", "count", len(events), "last_seq", seqs[len(seqs)-1])
	}
}

// Run flushes every interval until ctx is done.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.Flush(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			r.logger.ErrorContext(ctx, "relay flush failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
