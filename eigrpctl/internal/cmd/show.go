package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/amurg-ai/eigrpd/eigrpctl/internal/view"
	"github.com/amurg-ai/eigrpd/pkg/client"
	"github.com/amurg-ai/eigrpd/pkg/ctl"
)

func newShowCmd() *cobra.Command {
	show := &cobra.Command{
		Use:   "show",
		Short: "Show daemon state",
	}
	show.AddCommand(newShowInterfacesCmd())
	show.AddCommand(newShowNeighborCmd())
	show.AddCommand(newShowTopologyCmd())
	show.AddCommand(newShowTrafficCmd())
	show.AddCommand(newShowFibCmd())
	return show
}

func newShowInterfacesCmd() *cobra.Command {
	var family string
	cmd := &cobra.Command{
		Use:     "interfaces [ifindex|name]",
		Aliases: []string{"interface", "iface"},
		Short:   "Show EIGRP interfaces",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			af, err := parseFamily(family)
			if err != nil {
				return err
			}
			var ifindex uint32
			var name string
			if len(args) == 1 {
				if n, err := strconv.ParseUint(args[0], 10, 32); err == nil {
					ifindex = uint32(n)
				} else {
					name = args[0]
				}
			}
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				recs, err := c.Interfaces(ctx, ifindex)
				if err != nil {
					return err
				}
				out := make([]view.Interface, 0, len(recs))
				rows := make([][]string, 0, len(recs))
				for _, r := range recs {
					if af != 0 && r.AF != af {
						continue
					}
					if name != "" && r.Name.String() != name {
						continue
					}
					v := view.FromIface(r)
					out = append(out, v)
					rows = append(rows, v.Row())
				}
				return p.print(out, view.InterfaceHeaders, rows)
			})
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "address family: inet or inet6")
	return cmd
}

func newShowNeighborCmd() *cobra.Command {
	var family string
	cmd := &cobra.Command{
		Use:     "neighbor",
		Aliases: []string{"neighbors", "nbr"},
		Short:   "Show EIGRP neighbors",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			af, err := parseFamily(family)
			if err != nil {
				return err
			}
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				recs, err := c.Neighbors(ctx)
				if err != nil {
					return err
				}
				out := make([]view.Neighbor, 0, len(recs))
				rows := make([][]string, 0, len(recs))
				for _, r := range recs {
					if af != 0 && r.AF != af {
						continue
					}
					v := view.FromNbr(r)
					out = append(out, v)
					rows = append(rows, v.Row())
				}
				return p.print(out, view.NeighborHeaders, rows)
			})
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "address family: inet or inet6")
	return cmd
}

func newShowTopologyCmd() *cobra.Command {
	var (
		family   string
		active   bool
		allLinks bool
	)
	cmd := &cobra.Command{
		Use:   "topology [prefix]",
		Short: "Show the EIGRP topology table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			af, err := parseFamily(family)
			if err != nil {
				return err
			}
			var req ctl.ShowTopologyReq
			if len(args) == 1 {
				pfx, err := parsePrefix(args[0])
				if err != nil {
					return err
				}
				if paf := familyOf(pfx.Addr()); af == 0 {
					af = paf
				} else if af != paf {
					return fmt.Errorf("prefix %s is not in family %s", pfx, family)
				}
				req.Prefix = ctl.AddrFrom(pfx.Addr())
				req.PrefixLen = uint8(pfx.Bits())
			}
			req.AF = af
			if active {
				req.Flags |= ctl.TopoActiveOnly
			}
			if allLinks {
				req.Flags |= ctl.TopoAllLinks
			}

			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				recs, err := c.Topology(ctx, req)
				if err != nil {
					return err
				}
				out := make([]view.Route, 0, len(recs))
				rows := make([][]string, 0, len(recs))
				for _, r := range recs {
					v := view.FromTopo(r)
					out = append(out, v)
					rows = append(rows, v.Row())
				}
				return p.print(out, view.RouteHeaders, rows)
			})
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "address family: inet or inet6")
	cmd.Flags().BoolVar(&active, "active", false, "only routes in the active state")
	cmd.Flags().BoolVar(&allLinks, "all-links", false, "include routes through non-feasible successors")
	return cmd
}

func newShowTrafficCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "traffic",
		Aliases: []string{"stats"},
		Short:   "Show per-instance packet counters",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				recs, err := c.Stats(ctx)
				if err != nil {
					return err
				}
				out := make([]view.Traffic, 0, len(recs))
				var rows [][]string
				for _, r := range recs {
					v := view.FromStats(r)
					out = append(out, v)
					rows = append(rows, v.Rows()...)
				}
				return p.print(out, view.TrafficHeaders, rows)
			})
		},
	}
}

func newShowFibCmd() *cobra.Command {
	fib := &cobra.Command{
		Use:       "fib [inet|inet6]",
		Short:     "Show the forwarding table",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"inet", "inet6"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *ctl.Kroute
			if len(args) == 1 {
				af, err := parseFamily(args[0])
				if err != nil {
					return err
				}
				filter = &ctl.Kroute{AF: af}
			}
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				recs, err := c.Kroutes(ctx, filter)
				if err != nil {
					return err
				}
				out := make([]view.FIBRoute, 0, len(recs))
				rows := make([][]string, 0, len(recs))
				for _, r := range recs {
					v := view.FromKroute(r)
					out = append(out, v)
					rows = append(rows, v.Row())
				}
				return p.print(out, view.FIBHeaders, rows)
			})
		},
	}

	fib.AddCommand(&cobra.Command{
		Use:   "interface [ifindex]",
		Short: "Show host interfaces as the kernel reports them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ifindex uint32
			if len(args) == 1 {
				n, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil || n == 0 {
					return fmt.Errorf("invalid ifindex %q", args[0])
				}
				ifindex = uint32(n)
			}
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				recs, err := c.Ifinfo(ctx, ifindex)
				if err != nil {
					return err
				}
				out := make([]view.Link, 0, len(recs))
				rows := make([][]string, 0, len(recs))
				for _, r := range recs {
					v := view.FromIfinfo(r)
					out = append(out, v)
					rows = append(rows, v.Row())
				}
				return p.print(out, view.LinkHeaders, rows)
			})
		},
	})
	return fib
}
