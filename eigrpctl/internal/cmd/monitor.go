package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/amurg-ai/eigrpd/eigrpctl/internal/tui/dashboard"
)

func newMonitorCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch interfaces, neighbors and route changes live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval < 100*time.Millisecond {
				return fmt.Errorf("interval %s too short", interval)
			}
			return dashboard.Run(cmd.Context(), dashboard.Options{
				Socket:   socketPath(cmd),
				Interval: interval,
				Timeout:  requestTimeout(cmd),
			})
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", 2*time.Second, "poll interval")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "eigrpctl %s\n", version)
		},
	}
}
