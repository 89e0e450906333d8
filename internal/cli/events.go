package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/journal"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/store"
)

// NewEventsCommand creates the events command group.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read and relay the event journal",
	}
	cmd.AddCommand(newEventsListCommand(rootOpts))
	cmd.AddCommand(newEventsRelayCommand(rootOpts))
	return cmd
}

func newEventsListCommand(rootOpts *RootOptions) *cobra.Command {
	var after int64
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journal events in sequence order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				var events []ir.Event
				err := app.Store.View(ctx, func(tx *store.Tx) error {
					var err error
					events, err = tx.ListEvents(ctx, after, limit)
					return err
				})
				if err != nil {
					return err
				}
				if rootOpts.Format == "json" {
					return out.Success(events)
				}
				return out.Success(eventTable(events))
			})
		},
	}
	cmd.Flags().Int64Var(&after, "after", 0, "only events with seq greater than this")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum events to list (0 = all)")
	return cmd
}

func eventTable(events []ir.Event) string {
	if len(events) == 0 {
		return "no events"
	}
	var b strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&b, "%6d  %s  %-22s %s\n", ev.Seq, ev.OccurredAt.Format(time.RFC3339), ev.Type, ev.Subject)
	}
	return strings.TrimRight(b.String(), "\n")
}

func newEventsRelayCommand(rootOpts *RootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Deliver unrelayed events to the configured sink",
		Long: `Deliver unrelayed events to the configured sink.

With journal.postgres_dsn set, events are mirrored into PostgreSQL;
otherwise they are written to stdout as JSON lines. Delivery is
at-least-once and deduplicated by event_id downstream.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				cfg := app.Config.Journal

				var sink journal.Sink = journal.NewWriterSink(cmd.OutOrStdout())
				if cfg.PostgresDSN != "" {
					db, err := journal.OpenPostgres(cfg.PostgresDSN)
					if err != nil {
						return err
					}
					defer db.Close()
					pg := journal.NewPostgresSink(db)
					if err := pg.EnsureSchema(ctx); err != nil {
						return err
					}
					sink = pg
				}

				relay := journal.NewRelay(app.Store, sink,
					journal.WithBatchSize(cfg.BatchSize),
					journal.WithRateLimit(cfg.Rate),
					journal.WithRelayLogger(app.Logger),
				)

				if watch {
					ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
					defer stop()
					app.Logger.Info("relay started", "interval", cfg.Interval.D(), "postgres", cfg.PostgresDSN != "")
					return relay.Run(ctx, cfg.Interval.D())
				}

				n, err := relay.Flush(ctx)
				if err != nil {
					return err
				}
				app.Logger.Info("relay flushed", "events", n)
				if cfg.PostgresDSN != "" {
					return out.Success(fmt.Sprintf("relayed %d event(s)", n))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep relaying until interrupted")
	return cmd
}
