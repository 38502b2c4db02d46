package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/volume-sync/internal/config"
	"github.com/jmylchreest/volume-sync/internal/pulse"
)

var sinksOpts struct {
	output string
}

// sinkEntry is a sink as printed by the sinks command.
type sinkEntry struct {
	pulse.Sink `yaml:",inline"`
	Percent    int  `json:"percent" yaml:"percent"`
	Tracked    bool `json:"tracked" yaml:"tracked"`
}

var sinksCmd = &cobra.Command{
	Use:   "sinks",
	Short: "List the sinks known to the audio server",
	Long: `List all sinks known to the audio server with their current volume.

Sinks whose name appears in the config file are marked as tracked. Use the
NAME column to fill in the sinks list of the config file.

Output formats:
  plain  Aligned columns (default)
  json   JSON array
  yaml   YAML sequence`,
	Args: cobra.NoArgs,
	RunE: runSinks,
}

func init() {
	rootCmd.AddCommand(sinksCmd)

	sinksCmd.Flags().StringVarP(&sinksOpts.output, "output", "o", "plain",
		"Output format (plain, json, yaml)")
}

func runSinks(cmd *cobra.Command, args []string) error {
	path := configPath()
	cfg, err := config.Load(path)
	if err != nil {
		logger.Warn("failed to load config, no sinks marked as tracked", "path", path, "error", err)
		cfg = config.Default()
	}

	client := pulse.NewClient(logger)
	if err := client.Connect(cmd.Context()); err != nil {
		return fmt.Errorf("failed to connect to audio server: %w", err)
	}
	defer func() { _ = client.Close() }()

	sinks, err := client.ListSinks(cmd.Context())
	if err != nil {
		return err
	}

	return printSinks(cmd.OutOrStdout(), sinksOpts.output, sinkEntries(sinks, cfg.TrackedNames()))
}

// sinkEntries sorts sinks by index and marks the tracked ones.
func sinkEntries(sinks []pulse.Sink, names map[string]struct{}) []sinkEntry {
	entries := make([]sinkEntry, 0, len(sinks))
	for _, s := range sinks {
		_, tracked := names[s.Name]
		entries = append(entries, sinkEntry{
			Sink:    s,
			Percent: s.Volume.Percent(),
			Tracked: tracked,
		})
	}
	slices.SortFunc(entries, func(a, b sinkEntry) int {
		return cmp.Compare(a.Index, b.Index)
	})
	return entries
}

// printSinks writes the entries in the requested format.
func printSinks(w io.Writer, format string, entries []sinkEntry) error {
	switch strings.ToLower(format) {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)

	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(entries); err != nil {
			return err
		}
		return encoder.Close()

	case "plain", "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "INDEX\tVOLUME\tMUTE\tTRACKED\tNAME")
		for _, e := range entries {
			tracked := ""
			if e.Tracked {
				tracked = "*"
			}
			fmt.Fprintf(tw, "%d\t%s\t%t\t%s\t%s\n", e.Index, e.Volume.String(), e.Mute, tracked, e.Name)
		}
		return tw.Flush()

	default:
		return fmt.Errorf("unknown output format %q, must be one of: plain, json, yaml", format)
	}
}
