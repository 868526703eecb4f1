package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amurg-ai/eigrpd/eigrpd/internal/app"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/config"
	"github.com/amurg-ai/eigrpd/eigrpd/internal/logging"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [config-file]",
		Short: "Run the daemon in the foreground (default when no subcommand is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRun,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath := resolveConfigPath(cmd, args)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("error: %w", err)
	}
	if sock := socketOverride(cmd); sock != "" {
		cfg.ControlSocket = sock
	}

	level := cfg.LogLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	ring := logging.NewRing(512)
	logger, verbosity := logging.New(os.Stdout, logging.Options{
		Level:  level,
		Format: cfg.LogFormat,
		Ring:   ring,
	})

	d := app.New(cfg, app.Options{
		ConfigPath: configPath,
		Logger:     logger,
		Verbosity:  verbosity,
		Ring:       ring,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				logger.Info("received SIGHUP, reloading configuration")
				if err := d.Reload(); err != nil {
					logger.Warn("reload failed", "error", err)
				}
				continue
			}
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return
		}
	}()

	logger.Info("eigrpd starting", "version", version, "config", configPath)

	if err := d.Run(ctx); err != nil {
		logger.Error("eigrpd error", "error", err)
		return err
	}

	logger.Info("eigrpd stopped")
	return nil
}
