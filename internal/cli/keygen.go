package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/signing"
)

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the receipt signing key",
		Long: `Generate the Ed25519 receipt signing key at signing.seed_file.

An existing key is never overwritten unless --force is given; receipts
signed with the old key stop verifying against the new public key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			path := cfg.Signing.SeedFile

			if _, err := os.Stat(path); err == nil && !force {
				return NewExitError(ExitFailure, fmt.Sprintf("signing key %s already exists (use --force to replace it)", path))
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return WrapExitError(ExitFailure, "failed to stat signing key", err)
			}

			signer, err := signing.Generate(cfg.Signing.KeyID)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to generate key", err)
			}
			if err := signer.WriteSeedFile(path); err != nil {
				return WrapExitError(ExitFailure, "failed to write key", err)
			}

			if rootOpts.Format == "json" {
				return out.Success(map[string]string{
					"key_id":     signer.KeyID(),
					"public_key": signer.PublicKey(),
					"seed_file":  path,
				})
			}
			return out.Success(fmt.Sprintf("wrote %s\nkey id:     %s\npublic key: %s", path, signer.KeyID(), signer.PublicKey()))
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing key")
	return cmd
}
