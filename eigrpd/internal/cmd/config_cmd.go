package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/config"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the daemon configuration",
		RunE:  runConfigShow,
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show [config-file]",
		Short: "Display the configuration with defaults applied",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigShow,
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "check [config-file]",
		Short: "Validate the configuration and exit",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigCheck,
	})
	return configCmd
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath := resolveConfigPath(cmd, args)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Config: %s\n\n", configPath)
	_, _ = fmt.Fprintln(out, string(data))
	return nil
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	configPath := resolveConfigPath(cmd, args)
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	var ifaces, nbrs int
	for _, inst := range cfg.Instances {
		ifaces += len(inst.Interfaces)
		nbrs += len(inst.Neighbors)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "configuration OK (%d instances, %d interfaces, %d neighbors)\n",
		len(cfg.Instances), ifaces, nbrs)
	return nil
}
