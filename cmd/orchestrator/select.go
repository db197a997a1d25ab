package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"community-orchestrator/core/orchestrator"
)

var selectCmd = &cobra.Command{
	Use:   "select <community>",
	Short: "Preview the archetype selection of a community",
	Long: `Loads the community's requirements and draws archetypes from the
library with the configured seed. No workspace is touched.`,
	Args: cobra.ExactArgs(1),
	RunE: runSelect,
}

func init() {
	rootCmd.AddCommand(selectCmd)
}

func runSelect(cmd *cobra.Command, args []string) error {
	app, err := orchestrator.Bootstrap(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	sel, err := app.Service.Preview(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Community: %s\nSeed: %s\n\n", sel.Community, app.Seeds.Selection)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REQUIREMENT\tHOUSES\tTARGET\tMATCHED\tSELECTED\tSHORTFALL")
	for _, rs := range sel.Selections {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
			rs.Requirement.Key, rs.Requirement.Houses, rs.Requirement.Target,
			rs.Matched, len(rs.Selected), rs.Shortfall)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d archetypes selected\n", sel.Total())
	return nil
}
