package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/daemon"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE:  runStop,
	}
}

func runStop(cmd *cobra.Command, args []string) error {
	paths := daemon.DefaultPaths()
	out := cmd.OutOrStdout()

	pid, err := paths.ReadPID()
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	if pid == 0 {
		_, _ = fmt.Fprintln(out, "eigrpd is not running (no PID file)")
		return nil
	}

	if !daemon.IsRunning(pid) {
		_ = paths.RemovePID()
		_, _ = fmt.Fprintf(out, "eigrpd is not running (stale PID %d removed)\n", pid)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Stopping eigrpd (PID %d)...\n", pid)
	if err := daemon.StopProcess(pid, 5*time.Second); err != nil {
		return err
	}

	_ = paths.RemovePID()
	_, _ = fmt.Fprintln(out, "eigrpd stopped")
	return nil
}
