package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/settlement"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	Watch bool
	At    string
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire cycles whose deposit window has elapsed",
		Long: `Expire cycles whose deposit window has elapsed.

Without --watch a single sweep runs and its result is printed. With
--watch the sweeper runs every settlement.sweep_interval until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				cfg := app.Config.Settlement
				sweeper := settlement.NewSweeper(app.Settlement,
					settlement.WithSweepRate(cfg.SweepRate),
					settlement.WithSweepBatch(cfg.SweepBatch),
					settlement.WithSweepLogger(app.Logger),
				)

				if opts.Watch {
					ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
					defer stop()
					app.Logger.Info("sweeper started", "interval", cfg.SweepInterval.D())
					return sweeper.Run(ctx, cfg.SweepInterval.D())
				}

				now := time.Now().UTC()
				if opts.At != "" {
					t, err := time.Parse(time.RFC3339Nano, opts.At)
					if err != nil {
						return NewExitError(ExitCommandError, fmt.Sprintf("invalid --at %q: %v", opts.At, err))
					}
					now = t.UTC()
				}
				res, err := sweeper.Sweep(ctx, now)
				if err != nil {
					return err
				}
				if rootOpts.Format == "json" {
					return out.Success(res)
				}
				return out.Success(sweepText(res))
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "keep sweeping until interrupted")
	cmd.Flags().StringVar(&opts.At, "at", "", "sweep as of this RFC 3339 time (default now)")

	return cmd
}

func sweepText(res settlement.SweepResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "expired %d cycle(s)", len(res.Expired))
	for _, id := range res.Expired {
		fmt.Fprintf(&b, "\n  %s", id)
	}
	skipped := make([]string, 0, len(res.Skipped))
	for id := range res.Skipped {
		skipped = append(skipped, id)
	}
	sort.Strings(skipped)
	for _, id := range skipped {
		fmt.Fprintf(&b, "\n  skipped %s: %s", id, res.Skipped[id])
	}
	return b.String()
}
