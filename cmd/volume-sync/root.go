package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/volume-sync/internal/config"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Global options and state
var (
	globalOpts struct {
		verbose    bool
		configPath string
	}
	logger   *slog.Logger
	logLevel = new(slog.LevelVar)
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "volume-sync",
	Short: "Keep the volume of several audio sinks in sync",
	Long: `volume-sync keeps the output volume of a set of PulseAudio sinks in sync.

Whenever the volume of one tracked sink changes, every other tracked sink is
set to the same volume. Sinks are tracked by name, configured in
$XDG_CONFIG_HOME/volume-sync.toml:

  sinks = [
    "alsa_output.usb-Audeze_LLC_Audeze_Maxwell_Dongle-01.pro-output-0",
    "alsa_output.usb-Audeze_LLC_Audeze_Maxwell_Dongle-01.pro-output-1",
  ]
  log_level = "info"

The file is watched and reloaded on change. The PulseAudio server must have
module-dbus-protocol loaded.

Running volume-sync without a subcommand starts the daemon.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger()
	},
	// Default to the daemon when no subcommand is provided
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Printed directly so log_level = "off" cannot hide why we exit
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable debug logging (overrides log_level from the config file)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to config file (default: $XDG_CONFIG_HOME/volume-sync.toml)")
}

// setupLogger configures the global slog logger.
func setupLogger() {
	logLevel.Set(slog.LevelInfo)
	if globalOpts.verbose {
		logLevel.Set(slog.LevelDebug)
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// applyLogLevel switches the log level to the one in cfg unless --verbose pinned it.
func applyLogLevel(cfg *config.Config) {
	if globalOpts.verbose {
		return
	}
	level := cfg.LogLevel.SlogLevel()
	if level != logLevel.Level() {
		logLevel.Set(level)
		logger.Debug("log level changed", "level", string(cfg.LogLevel))
	}
}

// configPath returns the config file path from --config or the default location.
func configPath() string {
	if globalOpts.configPath != "" {
		return globalOpts.configPath
	}
	return config.Path(logger)
}
