package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"community-orchestrator/core/requirements"
	"community-orchestrator/core/weather"
)

var weatherCmd = &cobra.Command{
	Use:   "weather <community> <path>",
	Short: "Retarget archetype files to a community's weather",
	Long: `Rewrites the weather block of an archetype file, or of every archetype
file under a directory, with the community's weather reference. Files
already carrying the reference are left untouched.`,
	Args: cobra.ExactArgs(2),
	RunE: runWeather,
}

func init() {
	rootCmd.AddCommand(weatherCmd)
}

func runWeather(cmd *cobra.Command, args []string) error {
	community, root := args[0], args[1]

	location, err := requirements.NewCatalog(cfg.Paths.CSVDir, cfg.Selection.Headroom, logger).WeatherLocation(community)
	if err != nil {
		return err
	}
	ref, err := weather.NewResolver(cfg.Paths.CSVDir).Resolve(community, location)
	if err != nil {
		return err
	}

	res, err := weather.NewMutator(logger).MutateTree(root, *ref)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s -> %s (%s, HDD %s)\n", community, ref.Location, ref.Region.English, ref.HDD)
	fmt.Fprintf(out, "changed: %d, unchanged: %d, failed: %d\n", len(res.Changed), len(res.Unchanged), len(res.Failed))

	failed := make([]string, 0, len(res.Failed))
	for path := range res.Failed {
		failed = append(failed, path)
	}
	sort.Strings(failed)
	for _, path := range failed {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %v\n", path, res.Failed[path])
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d files could not be retargeted", len(failed))
	}
	return nil
}
