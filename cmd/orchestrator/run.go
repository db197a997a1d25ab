package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/models"
	"community-orchestrator/core/orchestrator"
)

var (
	runKeepOutput bool
	runJSON       bool
)

var runCmd = &cobra.Command{
	Use:   "run <community>...",
	Short: "Run communities end to end",
	Long: `Runs each community in turn: selection, staging, weather mutation,
parallel conversion and aggregation. A fatal error stops that community
only; the command fails if any community did not produce a result.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runKeepOutput, "keep-output", false, "keep converter scratch output")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("keep-output") {
		cfg.Converter.KeepOutput = runKeepOutput
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := orchestrator.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	go app.Monitor.Start(ctx)

	var failed []string
	for _, community := range args {
		res, err := runOne(ctx, app.Service, community)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s error: %v\n", community, errors.ScopeOf(err), err)
			failed = append(failed, community)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if err := printResult(cmd, res); err != nil {
			return err
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("no result for: %s", strings.Join(failed, ", "))
	}
	return nil
}

func runOne(ctx context.Context, svc *orchestrator.Service, community string) (*models.CommunityAnalysisResult, error) {
	runID, err := svc.StartRun(ctx, community)
	if err != nil {
		return nil, err
	}
	run, err := svc.Wait(ctx, runID)
	if err != nil {
		return nil, err
	}
	res, err := svc.Result(runID)
	if err != nil {
		return nil, fmt.Errorf("run %s %s: %w", runID, run.Status, err)
	}
	return res, nil
}

func printResult(cmd *cobra.Command, res *models.CommunityAnalysisResult) error {
	out := cmd.OutOrStdout()
	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(out, "%s (%s)\n", res.Community, res.WeatherLocation)
	fmt.Fprintf(out, "  files used:     %d/%d\n", res.FilesUsed, res.FilesSelected)
	fmt.Fprintf(out, "  heating load:   %s GJ\n", humanize.CommafWithDigits(res.Totals.HeatingLoadGJ, 1))
	fmt.Fprintf(out, "  heating energy: %s GJ\n", humanize.CommafWithDigits(res.Totals.TotalEnergyGJ, 1))
	for _, issue := range res.Issues {
		fmt.Fprintf(out, "  ! %s %s: %s\n", issue.Scope, issue.Model, issue.Message)
	}
	if res.AlignmentError != "" {
		fmt.Fprintf(out, "  ! %s\n", res.AlignmentError)
	}
	return nil
}
