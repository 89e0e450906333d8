package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/settlement"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/store"
)

// NewSettleCommand creates the settle command group. Each subcommand is
// one settlement transition on an accepted cycle.
func NewSettleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Drive an accepted cycle through escrow",
		Long: `Drive an accepted cycle through escrow.

  start     open the deposit window (accepted -> escrow.pending)
  deposit   confirm one participant's deposit
  execute   begin execution once every leg is deposited
  complete  release every leg and issue a settled receipt
  expire    fail a cycle whose deposit window has elapsed
  fail      fail a cycle during execution with a reason code`,
	}

	cmd.AddCommand(newCycleTransitionCommand(rootOpts, "start", "Open the deposit window", settlement.OperationStart))
	cmd.AddCommand(newDepositCommand(rootOpts))
	cmd.AddCommand(newCycleTransitionCommand(rootOpts, "execute", "Begin execution", settlement.OperationBeginExecution))
	cmd.AddCommand(newCycleTransitionCommand(rootOpts, "complete", "Complete the cycle and issue its receipt", settlement.OperationComplete))
	cmd.AddCommand(newCycleTransitionCommand(rootOpts, "expire", "Expire an elapsed deposit window", settlement.OperationExpire))
	cmd.AddCommand(newFailCommand(rootOpts))
	cmd.AddCommand(newSettleShowCommand(rootOpts))
	cmd.AddCommand(newSettleListCommand(rootOpts))
	return cmd
}

func newCycleTransitionCommand(rootOpts *RootOptions, use, short, op string) *cobra.Command {
	m := &mutation{}
	cmd := &cobra.Command{
		Use:   use + " <cycle-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				res, err := app.Invoke(ctx, op, m, map[string]any{"cycle_id": args[0]})
				if err != nil {
					return err
				}
				return out.Success(res)
			})
		},
	}
	m.bind(cmd)
	return cmd
}

func newDepositCommand(rootOpts *RootOptions) *cobra.Command {
	m := &mutation{}
	var intentID, ref string
	cmd := &cobra.Command{
		Use:   "deposit <cycle-id>",
		Short: "Confirm a participant's deposit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				res, err := app.Invoke(ctx, settlement.OperationDeposit, m, map[string]any{
					"cycle_id":    args[0],
					"intent_id":   intentID,
					"deposit_ref": ref,
				})
				if err != nil {
					return err
				}
				return out.Success(res)
			})
		},
	}
	m.bind(cmd)
	cmd.Flags().StringVar(&intentID, "intent", "", "intent id of the depositing participant (required)")
	cmd.Flags().StringVar(&ref, "ref", "", "custody reference for the deposit (required)")
	_ = cmd.MarkFlagRequired("intent")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}

func newFailCommand(rootOpts *RootOptions) *cobra.Command {
	m := &mutation{}
	var reason string
	cmd := &cobra.Command{
		Use:   "fail <cycle-id>",
		Short: "Fail an executing cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				res, err := app.Invoke(ctx, settlement.OperationFail, m, map[string]any{
					"cycle_id":    args[0],
					"reason_code": reason,
				})
				if err != nil {
					return err
				}
				return out.Success(res)
			})
		},
	}
	m.bind(cmd)
	cmd.Flags().StringVar(&reason, "reason", "", "failure reason code, e.g. custody_error (required)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newSettleShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <cycle-id>",
		Short: "Show a cycle's settlement timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				tl, err := app.Settlement.Timeline(ctx, args[0])
				if err != nil {
					return err
				}
				if rootOpts.Format == "json" {
					return out.Success(tl)
				}
				return out.Success(timelineText(tl))
			})
		},
	}
}

func timelineText(tl ir.SettlementTimeline) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cycle %s: %s (deposit deadline %s)\n", tl.CycleID, tl.State, tl.DepositDeadlineAt.Format(time.RFC3339))
	if tl.FailureReason != "" {
		fmt.Fprintf(&b, "failure: %s\n", tl.FailureReason)
	}
	for _, l := range tl.Legs {
		fmt.Fprintf(&b, "  [%d] %s -> %s  %-9s intent %s", l.Index, l.FromActor, l.ToActor, l.Status, l.IntentID)
		if l.DepositRef != "" {
			fmt.Fprintf(&b, " ref %s", l.DepositRef)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func newSettleListCommand(rootOpts *RootOptions) *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cycle ids in a settlement state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				var ids []string
				err := app.Store.View(ctx, func(tx *store.Tx) error {
					var err error
					ids, err = tx.ListTimelineIDs(ctx, ir.TimelineState(state))
					return err
				})
				if err != nil {
					return err
				}
				if rootOpts.Format == "json" {
					return out.Success(ids)
				}
				if len(ids) == 0 {
					return out.Success("no cycles in " + state)
				}
				return out.Success(strings.Join(ids, "\n"))
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", string(ir.StatePending), "escrow.pending|escrow.executing|completed|failed, empty lists all")
	return cmd
}
