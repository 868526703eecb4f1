package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/config"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/daemon"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start [config-file]",
		Short: "Start the daemon as a background process",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStart,
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	configPath := resolveConfigPath(cmd, args)
	paths := daemon.DefaultPaths()
	out := cmd.OutOrStdout()

	if _, err := config.Load(configPath); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	pid, _ := paths.ReadPID()
	if pid > 0 && daemon.IsRunning(pid) {
		return fmt.Errorf("eigrpd is already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	logFile, err := paths.OpenLogFile()
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	childArgs := []string{"run", configPath}
	if sock := socketOverride(cmd); sock != "" {
		childArgs = append(childArgs, "--socket", sock)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		childArgs = append(childArgs, "--verbose")
	}

	child := exec.Command(exe, childArgs...)
	child.Stdout = logFile
	child.Stderr = logFile
	child.SysProcAttr = daemon.DetachSysProcAttr()

	if err := child.Start(); err != nil {
		return fmt.Errorf("start eigrpd: %w", err)
	}

	if err := paths.WritePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}

	_, _ = fmt.Fprintf(out, "eigrpd started (PID %d)\n", child.Process.Pid)
	_, _ = fmt.Fprintf(out, "  Config: %s\n", configPath)
	_, _ = fmt.Fprintf(out, "  Logs:   %s\n", paths.LogPath())
	return nil
}
