// Package cmd implements the eigrpd command line.
package cmd

import (
	"github.com/spf13/cobra"
)

// DefaultConfigPath is used when neither -c nor a positional path is given.
const DefaultConfigPath = "/etc/eigrpd.json"

var version = "dev"

// NewRootCmd creates the root cobra command for eigrpd. A bare invocation
// runs the daemon in the foreground.
func NewRootCmd(v string) *cobra.Command {
	version = v

	root := &cobra.Command{
		Use:           "eigrpd",
		Short:         "EIGRP routing daemon",
		Long:          "eigrpd runs the EIGRP protocol engine and serves eigrpctl on a local control socket.",
		Args:          cobra.NoArgs,
		RunE:          runRun,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newLogsCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newConfigCmd())

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().StringP("socket", "s", "", "control socket path (overrides config)")
	root.PersistentFlags().BoolP("verbose", "v", false, "log at debug level")

	return root
}

// resolveConfigPath returns the config file path from (in priority order):
// 1. Positional argument
// 2. --config / -c flag
// 3. DefaultConfigPath
func resolveConfigPath(cmd *cobra.Command, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	if f := cmd.Flag("config"); f != nil && f.Changed {
		return f.Value.String()
	}
	if f := cmd.Root().PersistentFlags().Lookup("config"); f != nil && f.Changed {
		return f.Value.String()
	}
	return DefaultConfigPath
}

// socketOverride returns the -s flag, or "" when unset.
func socketOverride(cmd *cobra.Command) string {
	if f := cmd.Flag("socket"); f != nil && f.Changed {
		return f.Value.String()
	}
	return ""
}
