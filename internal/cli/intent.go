package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/intents"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
)

// IntentAddOptions holds flags for intent add.
type IntentAddOptions struct {
	*RootOptions
	mutation
	ID         string
	Give       []string
	WantAssets []string
	WantClass  []string
	MinValue   string
}

// NewIntentCommand creates the intent command group.
func NewIntentCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intent",
		Short: "Submit, cancel and list swap intents",
	}
	cmd.AddCommand(newIntentAddCommand(rootOpts))
	cmd.AddCommand(newIntentCancelCommand(rootOpts))
	cmd.AddCommand(newIntentListCommand(rootOpts))
	return cmd
}

func newIntentAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IntentAddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Submit a swap intent",
		Long: `Submit a swap intent offering one or more assets.

Example:
  swapgraph intent add --actor alice --id A \
    --give card-a:trading-card:10 --want-class trading-card --min-value 8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := opts.payload()
			if err != nil {
				return NewExitError(ExitCommandError, err.Error())
			}
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				res, err := app.Invoke(ctx, intents.OperationSubmit, &opts.mutation, payload)
				if err != nil {
					return err
				}
				return out.Success(res)
			})
		},
	}

	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.ID, "id", "", "intent id (required)")
	cmd.Flags().StringArrayVar(&opts.Give, "give", nil, "offered asset as id:class:value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.WantAssets, "want-asset", nil, "acceptable asset id (repeatable)")
	cmd.Flags().StringArrayVar(&opts.WantClass, "want-class", nil, "acceptable asset class (repeatable)")
	cmd.Flags().StringVar(&opts.MinValue, "min-value", "0", "minimum total value to receive")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("give")

	return cmd
}

func (o *IntentAddOptions) payload() (map[string]any, error) {
	give := make([]ir.Asset, 0, len(o.Give))
	for _, g := range o.Give {
		a, err := parseAsset(g)
		if err != nil {
			return nil, err
		}
		give = append(give, a)
	}
	minValue, err := decimal.NewFromString(o.MinValue)
	if err != nil {
		return nil, fmt.Errorf("invalid --min-value %q: %w", o.MinValue, err)
	}
	return map[string]any{
		"id":   o.ID,
		"give": give,
		"want": ir.WantSpec{
			AssetIDs: o.WantAssets,
			Classes:  o.WantClass,
			MinValue: minValue,
		},
	}, nil
}

// parseAsset reads "id:class:value".
func parseAsset(s string) (ir.Asset, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return ir.Asset{}, fmt.Errorf("invalid --give %q: want id:class:value", s)
	}
	v, err := decimal.NewFromString(parts[2])
	if err != nil {
		return ir.Asset{}, fmt.Errorf("invalid --give %q: value: %w", s, err)
	}
	return ir.Asset{ID: parts[0], Class: parts[1], Value: v}, nil
}

func newIntentCancelCommand(rootOpts *RootOptions) *cobra.Command {
	m := &mutation{}
	cmd := &cobra.Command{
		Use:   "cancel <intent-id>",
		Short: "Cancel an active intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				res, err := app.Invoke(ctx, intents.OperationCancel, m, map[string]any{"intent_id": args[0]})
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

func newIntentListCommand(rootOpts *RootOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List intents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				list, err := app.Intents.List(ctx, ir.IntentStatus(status))
				if err != nil {
					return err
				}
				if rootOpts.Format == "json" {
					return out.Success(list)
				}
				return out.Success(intentTable(list))
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active|reserved|cancelled|fulfilled)")
	return cmd
}

func intentTable(list []ir.SwapIntent) string {
	if len(list) == 0 {
		return "no intents"
	}
	var b strings.Builder
	for _, in := range list {
		assets := make([]string, len(in.Give))
		for i, a := range in.Give {
			assets[i] = a.ID
		}
		fmt.Fprintf(&b, "%-12s %-10s %-10s gives %s\n", in.ID, in.Actor, in.Status, strings.Join(assets, ","))
	}
	return strings.TrimRight(b.String(), "\n")
}
