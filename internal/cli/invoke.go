package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/swaperr"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	File string
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Invoke an operation from a raw JSON envelope",
		Long: `Invoke an operation from a raw JSON envelope.

The envelope is read from --file, or from stdin when --file is omitted
or "-". The gateway response {ok, result} or {ok:false, error} is
written to stdout as JSON regardless of --format.

Example:
  echo '{"operation":"settlement.start","actor":"dave",
         "idempotency_key":"s-1","payload":{"cycle_id":"..."}}' | swapgraph invoke`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readEnvelope(cmd, opts.File)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read envelope", err)
			}
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				resp := app.Gateway.Handle(ctx, raw)
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(resp); err != nil {
					return err
				}
				if resp.OK {
					return nil
				}
				code, _ := resp.Error["code"].(string)
				message, _ := resp.Error["message"].(string)
				return &ExitError{
					Code:     ExitCodeFor(swaperr.Kind(code)),
					Message:  fmt.Sprintf("%s: %s", code, message),
					Reported: true,
				}
			})
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "envelope file (default stdin)")

	return cmd
}

func readEnvelope(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
