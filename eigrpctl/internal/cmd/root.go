// Package cmd implements the eigrpctl command line.
package cmd

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/spf13/cobra"

	"github.com/amurg-ai/eigrpd/pkg/cli"
	"github.com/amurg-ai/eigrpd/pkg/client"
	"github.com/amurg-ai/eigrpd/pkg/ctl"
)

var version = "dev"

type confirmer interface {
	Interactive() bool
	Confirm(question string, defaultYes bool) bool
}

var prompter = func() confirmer { return cli.DefaultPrompter() }

// NewRootCmd creates the root cobra command for eigrpctl.
func NewRootCmd(v string) *cobra.Command {
	version = v

	root := &cobra.Command{
		Use:           "eigrpctl",
		Short:         "Control the EIGRP routing daemon",
		Long:          "eigrpctl queries and controls a running eigrpd over its control socket.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newShowCmd())
	root.AddCommand(newReloadCmd())
	root.AddCommand(newFibCmd())
	root.AddCommand(newClearCmd())
	root.AddCommand(newLogCmd())
	root.AddCommand(newMonitorCmd())
	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringP("socket", "s", client.DefaultSocket, "control socket path")
	root.PersistentFlags().StringP("output", "o", "table", "output format: table or json")
	root.PersistentFlags().Duration("timeout", 5*time.Second, "request timeout")

	return root
}

func socketPath(cmd *cobra.Command) string {
	s, _ := cmd.Flags().GetString("socket")
	return s
}

func requestTimeout(cmd *cobra.Command) time.Duration {
	d, _ := cmd.Flags().GetDuration("timeout")
	if d <= 0 {
		d = 5 * time.Second
	}
	return d
}

// withClient dials the daemon and runs fn under the request timeout.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout(cmd))
	defer cancel()

	c, err := client.Dial(ctx, socketPath(cmd))
	if err != nil {
		return fmt.Errorf("connect to eigrpd: %w", err)
	}
	defer func() { _ = c.Close() }()
	return fn(ctx, c)
}

// parseFamily maps a --family value to an address family; "" means any.
func parseFamily(s string) (uint8, error) {
	switch s {
	case "":
		return 0, nil
	case "inet", "ipv4", "4":
		return ctl.AFInet, nil
	case "inet6", "ipv6", "6":
		return ctl.AFInet6, nil
	default:
		return 0, fmt.Errorf("unknown address family %q", s)
	}
}

func familyOf(a netip.Addr) uint8 {
	if a.Is4() {
		return ctl.AFInet
	}
	return ctl.AFInet6
}

// parsePrefix accepts a prefix or a bare address, which selects the host
// route.
func parsePrefix(s string) (netip.Prefix, error) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return p.Masked(), nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid prefix %q", s)
	}
	return netip.PrefixFrom(a, a.BitLen()), nil
}
