package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and inspect the CUE configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Check a config file against the schema",
		Long: `Check a config file against the embedded CUE schema.

Errors carry the CUE position of the offending value. Defaults the
file omits are filled in and are not errors.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.ConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			out := rootOpts.formatter(cmd)
			if _, err := os.Stat(path); err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("config file not found: %s", path))
			}
			if _, err := config.Load(path); err != nil {
				if ferr := out.Error("config_invalid", err.Error(), map[string]string{"file": path}); ferr != nil {
					return ferr
				}
				return &ExitError{Code: ExitCommandError, Message: err.Error(), Reported: true}
			}
			if rootOpts.Format == "json" {
				return out.Success(map[string]any{"valid": true, "file": path})
			}
			return out.Success(fmt.Sprintf("✓ %s is valid", path))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with defaults applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			cfg.Lock.Password = redact(cfg.Lock.Password)
			cfg.Journal.PostgresDSN = redact(cfg.Journal.PostgresDSN)
			return rootOpts.formatter(cmd).Success(cfg)
		},
	})
	return cmd
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
