package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/settlement"
)

// NewProposalCommand creates the proposal command group.
func NewProposalCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "proposal",
		Aliases: []string{"proposals"},
		Short:   "Inspect cycle proposals",
	}
	cmd.AddCommand(newProposalListCommand(rootOpts))
	cmd.AddCommand(newProposalShowCommand(rootOpts))
	return cmd
}

func newProposalListCommand(rootOpts *RootOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List proposals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				list, err := app.Settlement.Proposals(ctx, ir.ProposalStatus(status))
				if err != nil {
					return err
				}
				if rootOpts.Format == "json" {
					return out.Success(list)
				}
				return out.Success(proposalTable(list))
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (open|accepted|superseded|expired)")
	return cmd
}

func newProposalShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <proposal-id>",
		Short: "Show one proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				p, err := app.Settlement.Proposal(ctx, args[0])
				if err != nil {
					return err
				}
				return out.Success(p)
			})
		},
	}
}

func proposalTable(list []ir.CycleProposal) string {
	if len(list) == 0 {
		return "no proposals"
	}
	var b strings.Builder
	for _, p := range list {
		fmt.Fprintf(&b, "%s  %-10s score %s  %s\n",
			p.ID, p.Status, p.ConfidenceScore.StringFixed(4), strings.Join(p.IntentIDs(), " -> "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewAcceptCommand creates the accept command.
func NewAcceptCommand(rootOpts *RootOptions) *cobra.Command {
	m := &mutation{}
	cmd := &cobra.Command{
		Use:   "accept <proposal-id>",
		Short: "Accept an open proposal and create its commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				res, err := app.Invoke(ctx, settlement.OperationAccept, m, map[string]any{"proposal_id": args[0]})
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
