package cmd

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/spf13/cobra"

	"github.com/amurg-ai/eigrpd/pkg/client"
	"github.com/amurg-ai/eigrpd/pkg/ctl"
)

// send runs a request that has no reply and reports msg on success.
func send(cmd *cobra.Command, msg string, fn func(c *client.Client) error) error {
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	if err := withClient(cmd, func(_ context.Context, c *client.Client) error { return fn(c) }); err != nil {
		return err
	}
	return p.message(msg)
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the daemon configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, "reload request sent", (*client.Client).Reload)
		},
	}
}

func newFibCmd() *cobra.Command {
	fib := &cobra.Command{
		Use:   "fib",
		Short: "Couple or decouple the forwarding table",
	}
	fib.AddCommand(&cobra.Command{
		Use:   "couple",
		Short: "Install EIGRP routes into the kernel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, "couple request sent", func(c *client.Client) error { return c.Couple(true) })
		},
	})
	fib.AddCommand(&cobra.Command{
		Use:   "decouple",
		Short: "Remove EIGRP routes from the kernel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, "decouple request sent", func(c *client.Client) error { return c.Couple(false) })
		},
	})
	return fib
}

func newClearCmd() *cobra.Command {
	clr := &cobra.Command{
		Use:   "clear",
		Short: "Reset daemon state",
	}

	var (
		family string
		as     uint16
		yes    bool
	)
	nbrs := &cobra.Command{
		Use:     "neighbors [address]",
		Aliases: []string{"neighbor", "nbr"},
		Short:   "Reset EIGRP adjacencies",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			af, err := parseFamily(family)
			if err != nil {
				return err
			}
			req := ctl.Nbr{AF: af, AS: as}
			target := "all neighbors"
			if len(args) == 1 {
				a, err := netip.ParseAddr(args[0])
				if err != nil {
					return fmt.Errorf("invalid neighbor address %q", args[0])
				}
				if req.AF == 0 {
					req.AF = familyOf(a)
				} else if req.AF != familyOf(a) {
					return fmt.Errorf("address %s is not in family %s", a, family)
				}
				req.Addr = ctl.AddrFrom(a)
				target = "neighbor " + a.String()
			}
			if as != 0 {
				target += fmt.Sprintf(" in AS %d", as)
			}

			if pr := prompter(); !yes && pr.Interactive() {
				if !pr.Confirm("Clear "+target+"?", false) {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}
			return send(cmd, "clear request sent for "+target, func(c *client.Client) error {
				return c.ClearNeighbors(req)
			})
		},
	}
	nbrs.Flags().StringVar(&family, "family", "", "address family: inet or inet6")
	nbrs.Flags().Uint16Var(&as, "as", 0, "autonomous system; 0 matches every instance")
	nbrs.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	clr.AddCommand(nbrs)
	return clr
}

func newLogCmd() *cobra.Command {
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Change the daemon log level",
	}
	logCmd.AddCommand(&cobra.Command{
		Use:   "verbose",
		Short: "Log at debug level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, "logging verbose", func(c *client.Client) error { return c.LogVerbose(1) })
		},
	})
	logCmd.AddCommand(&cobra.Command{
		Use:   "brief",
		Short: "Log at info level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, "logging brief", func(c *client.Client) error { return c.LogVerbose(0) })
		},
	})
	return logCmd
}
