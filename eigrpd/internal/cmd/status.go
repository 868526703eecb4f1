package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/config"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/daemon"
	"github.com/amurg-ai/eigrpd/pkg/client"
	"github.com/amurg-ai/eigrpd/pkg/ctl"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE:  runStatus,
	}
}

type liveStatus struct {
	interfaces int
	neighbors  int
	stats      []ctl.Stats
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configPath := resolveConfigPath(cmd, nil)

	socket := socketOverride(cmd)
	cfg, cfgErr := config.Load(configPath)
	if socket == "" {
		socket = config.DefaultControlSocket
		if cfgErr == nil {
			socket = cfg.ControlSocket
		}
	}

	// Try the control socket first for live status.
	ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
	defer cancel()
	if st, err := queryStatus(ctx, socket); err == nil {
		_, _ = fmt.Fprintf(out, "Status:     running\n")
		_, _ = fmt.Fprintf(out, "Socket:     %s\n", socket)
		_, _ = fmt.Fprintf(out, "Interfaces: %d\n", st.interfaces)
		_, _ = fmt.Fprintf(out, "Neighbors:  %d\n", st.neighbors)
		for _, s := range st.stats {
			printInstance(out, s)
		}
		return nil
	}

	// Fall back to the PID file.
	paths := daemon.DefaultPaths()
	pid, _ := paths.ReadPID()

	if pid == 0 {
		_, _ = fmt.Fprintln(out, "Status:  stopped (no PID file)")
		return nil
	}

	if !daemon.IsRunning(pid) {
		_, _ = fmt.Fprintf(out, "Status:  stopped (stale PID %d)\n", pid)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Status:  running (control socket unreachable)\n")
	_, _ = fmt.Fprintf(out, "PID:     %d\n", pid)
	_, _ = fmt.Fprintf(out, "Socket:  %s\n", socket)
	_, _ = fmt.Fprintf(out, "Logs:    %s\n", paths.LogPath())
	return nil
}

func printInstance(w io.Writer, s ctl.Stats) {
	_, _ = fmt.Fprintf(w, "Instance:   AS %d %s (hellos %d/%d, updates %d/%d, queries %d/%d)\n",
		s.AS, ctl.AFName(s.AF), s.HellosSent, s.HellosRecv,
		s.UpdatesSent, s.UpdatesRecv, s.QueriesSent, s.QueriesRecv)
}

func queryStatus(ctx context.Context, socket string) (*liveStatus, error) {
	c, err := client.Dial(ctx, socket)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Close() }()

	ifs, err := c.Interfaces(ctx, 0)
	if err != nil {
		return nil, err
	}
	nbrs, err := c.Neighbors(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := c.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &liveStatus{interfaces: len(ifs), neighbors: len(nbrs), stats: stats}, nil
}
