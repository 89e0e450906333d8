package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/signing"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/swaperr"
)

// NewReceiptCommand creates the receipt command group.
func NewReceiptCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipt",
		Short: "Show and verify swap receipts",
	}
	cmd.AddCommand(newReceiptShowCommand(rootOpts))
	cmd.AddCommand(newReceiptVerifyCommand(rootOpts))
	return cmd
}

func newReceiptShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <cycle-id>",
		Short: "Show the receipt of a finished cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				r, err := app.Settlement.Receipt(ctx, args[0])
				if err != nil {
					return err
				}
				return out.Success(r)
			})
		},
	}
}

func newReceiptVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	var publicKey string
	cmd := &cobra.Command{
		Use:   "verify <cycle-id>",
		Short: "Verify a receipt signature",
		Long: `Verify a receipt signature.

The signature is checked against the public key it carries. With
--public-key, or when a local signing key exists, that key must also
match.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				r, err := app.Settlement.Receipt(ctx, args[0])
				if err != nil {
					return err
				}
				trusted := publicKey
				if trusted == "" && app.Signer != nil {
					trusted = app.Signer.PublicKey()
				}
				if err := signing.Verify(r, trusted); err != nil {
					return swaperr.Precondition(swaperr.ReasonSignatureInvalid, "%v", err)
				}
				return out.Success(fmt.Sprintf("receipt %s for cycle %s: signature ok (key %s)",
					r.ID, r.CycleID, r.Signature.KeyID))
			})
		},
	}
	cmd.Flags().StringVar(&publicKey, "public-key", "", "trusted hex public key")
	return cmd
}
