package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/volume-sync/internal/daemon"
	"github.com/jmylchreest/volume-sync/internal/pulse"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the volume sync daemon",
	Long: `Run the volume sync daemon in the foreground.

The daemon connects to PulseAudio, tracks the sinks named in the config file
and copies volume changes between them until interrupted. Losing the
connection to the audio server is fatal; use a service manager to restart.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := configPath()
	logger.Info("starting volume-sync", "version", version, "config", path)

	client := pulse.NewClient(logger)
	d := daemon.New(client, path, logger)
	d.SetConfigCallback(applyLogLevel)

	if err := d.Run(ctx); err != nil {
		return err
	}

	if ctx.Err() != nil {
		logger.Info("received signal, shutting down")
	}
	logger.Info("volume-sync stopped")
	return nil
}
