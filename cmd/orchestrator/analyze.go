package main

import (
	"github.com/spf13/cobra"

	"community-orchestrator/core/orchestrator"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <community>",
	Short: "Re-aggregate the collected time series of a community",
	Long: `Aggregates the time-series files already present in the community
workspace and rewrites the analysis outputs. No conversion is run.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&runJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	app, err := orchestrator.Bootstrap(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.Service.Analyze(cmd.Context(), args[0])
	if res != nil {
		if perr := printResult(cmd, res); perr != nil {
			return perr
		}
	}
	return err
}
