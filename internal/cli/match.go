package cli

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/matching"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/store"
)

// MatchOptions holds flags for the match command.
type MatchOptions struct {
	*RootOptions
	mutation
	Bounds ir.Bounds
}

// NewMatchCommand creates the match command.
func NewMatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Run the matching engine over active intents",
		Long: `Run the matching engine over active intents.

The run replaces every open proposal with the new disjoint selection.
Zero bounds fall back to the configured defaults. Reusing --key replays
the recorded run; without --key a fresh run key is generated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.key == "" {
				opts.key = uuid.NewString()
			}
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				res, err := app.Invoke(ctx, matching.OperationRun, &opts.mutation, map[string]any{"bounds": opts.Bounds})
				if err != nil {
					return err
				}
				run, ok := res.(ir.MatchingRun)
				if ok && rootOpts.Format != "json" {
					return out.Success(matching.Describe(run))
				}
				return out.Success(res)
			})
		},
	}

	opts.bind(cmd)
	cmd.Flags().IntVar(&opts.Bounds.MaxCycleLength, "max-cycle-length", 0, "longest cycle to search (2-8)")
	cmd.Flags().IntVar(&opts.Bounds.MaxCandidates, "max-candidates", 0, "stop after this many candidate cycles")
	cmd.Flags().Int64Var(&opts.Bounds.TimeoutMS, "timeout-ms", 0, "search time budget in milliseconds")

	cmd.AddCommand(newMatchRunsCommand(rootOpts))
	return cmd
}

func newMatchRunsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List recorded matching runs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				var runs []ir.MatchingRun
				err := app.Store.View(ctx, func(tx *store.Tx) error {
					var err error
					runs, err = tx.ListRuns(ctx)
					return err
				})
				if err != nil {
					return err
				}
				if rootOpts.Format == "json" {
					return out.Success(runs)
				}
				if len(runs) == 0 {
					return out.Success("no runs")
				}
				lines := make([]string, len(runs))
				for i, run := range runs {
					lines[i] = matching.Describe(run)
				}
				return out.Success(strings.Join(lines, "\n"))
			})
		},
	}
}
