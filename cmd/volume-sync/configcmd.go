package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/volume-sync/internal/config"
)

var configInitOpts struct {
	force bool
	sinks []string
}

// configCmd represents the config command group.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the config file",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Long: `Print the path of the config file volume-sync reads.

The path is $XDG_CONFIG_HOME/volume-sync.toml, falling back to
$HOME/.config/volume-sync.toml and then ./volume-sync.toml.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), configPath())
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write a config file with default settings.

Use --sink (repeatable) to fill in the tracked sink names; 'volume-sync sinks'
lists the names known to the audio server. An existing file is only
overwritten with --force.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVarP(&configInitOpts.force, "force", "f", false,
		"Overwrite an existing config file")
	configInitCmd.Flags().StringArrayVarP(&configInitOpts.sinks, "sink", "s", nil,
		"Sink name to track (repeatable)")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath()

	if _, err := os.Stat(path); err == nil && !configInitOpts.force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	cfg := config.Default()
	if len(configInitOpts.sinks) > 0 {
		cfg.Sinks = configInitOpts.sinks
	}

	if err := cfg.Save(path); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
	return nil
}
