package analysis

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"community-orchestrator/core/models"
	"community-orchestrator/core/workspace"
)

// TotalColumns is the header of the community total CSV.
var TotalColumns = []string{
	"Time", "Heating_Load_GJ", "Heating_Propane_GJ", "Heating_Oil_GJ", "Heating_Electricity_GJ", "Total_Heating_Energy_GJ",
}

// Report lists the files written for a result.
type Report struct {
	TotalCSV string
	Markdown string
	JSON     string
}

// Paths returns the written files, skipping any not produced.
func (r Report) Paths() []string {
	var out []string
	for _, p := range []string{r.TotalCSV, r.Markdown, r.JSON} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TotalCSVPath returns the community total series path.
func TotalCSVPath(layout workspace.Layout) string {
	return filepath.Join(layout.Analysis, layout.Community+"-community_total.csv")
}

// MarkdownPath returns the human-readable summary path.
func MarkdownPath(layout workspace.Layout) string {
	return filepath.Join(layout.Analysis, layout.Community+"_analysis.md")
}

// JSONPath returns the serialized result path.
func JSONPath(layout workspace.Layout) string {
	return filepath.Join(layout.Analysis, layout.Community+"-result.json")
}

// WriteReport writes the analysis artifacts of res into the analysis
// directory. The total series is skipped when the result has none.
func WriteReport(layout workspace.Layout, res *models.CommunityAnalysisResult) (Report, error) {
	var rep Report
	if len(res.Series) > 0 {
		rep.TotalCSV = TotalCSVPath(layout)
		if err := writeTotalCSV(rep.TotalCSV, res.Series); err != nil {
			return rep, err
		}
	}

	rep.Markdown = MarkdownPath(layout)
	if err := os.WriteFile(rep.Markdown, []byte(RenderMarkdown(res)), 0o644); err != nil {
		return rep, fmt.Errorf("write analysis summary: %w", err)
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return rep, fmt.Errorf("encode result: %w", err)
	}
	rep.JSON = JSONPath(layout)
	if err := os.WriteFile(rep.JSON, data, 0o644); err != nil {
		return rep, fmt.Errorf("write result: %w", err)
	}
	return rep, nil
}

func writeTotalCSV(path string, points []models.SeriesPoint) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create community total: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(TotalColumns); err != nil {
		return err
	}
	for _, p := range points {
		row := []string{
			p.Time,
			formatGJ(p.HeatingLoadGJ),
			formatGJ(p.PropaneGJ),
			formatGJ(p.OilGJ),
			formatGJ(p.ElectricityGJ),
			formatGJ(p.TotalEnergyGJ),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write community total: %w", err)
	}
	return f.Close()
}

func formatGJ(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RenderMarkdown renders the community summary.
func RenderMarkdown(res *models.CommunityAnalysisResult) string {
	var b strings.Builder
	t := res.Totals
	s := res.Statistics

	fmt.Fprintf(&b, "# %s Community Analysis\n\n", res.Community)
	if res.WeatherLocation != "" {
		fmt.Fprintf(&b, "Weather location: %s\n\n", res.WeatherLocation)
	}

	b.WriteString("## Heating Load (what the houses need)\n")
	fmt.Fprintf(&b, "- Total Annual Load: %s GJ\n", energy(t.HeatingLoadGJ, 1))
	fmt.Fprintf(&b, "- Maximum Hourly Load: %s GJ\n", energy(s.PeakHourlyLoadGJ, 3))
	fmt.Fprintf(&b, "- Average Hourly Load: %s GJ\n\n", energy(s.AverageHourlyLoadGJ, 3))

	b.WriteString("## Heating Energy (what the equipment uses)\n")
	fmt.Fprintf(&b, "- Total Annual Energy: %s GJ\n", energy(t.TotalEnergyGJ, 1))
	fmt.Fprintf(&b, "  - Propane: %s GJ (%s%%)\n", energy(t.PropaneGJ, 1), share(t.PropaneGJ, t.TotalEnergyGJ))
	fmt.Fprintf(&b, "  - Oil: %s GJ (%s%%)\n", energy(t.OilGJ, 1), share(t.OilGJ, t.TotalEnergyGJ))
	fmt.Fprintf(&b, "  - Electricity: %s GJ (%s%%)\n", energy(t.ElectricityGJ, 1), share(t.ElectricityGJ, t.TotalEnergyGJ))
	fmt.Fprintf(&b, "- Maximum Hourly Energy: %s GJ\n", energy(s.PeakHourlyEnergyGJ, 3))
	fmt.Fprintf(&b, "- Average Hourly Energy: %s GJ\n\n", energy(s.AverageHourlyEnergyGJ, 3))

	b.WriteString("## Requirements\n")
	for _, m := range res.Manifest {
		fmt.Fprintf(&b, "- %s: %d houses, %d succeeded, %d failed", m.Requirement, m.Houses, len(m.Succeeded), len(m.Failed))
		if len(m.Duplicates) > 0 {
			fmt.Fprintf(&b, ", %d duplicated", len(m.Duplicates))
		}
		if m.Unfilled > 0 {
			fmt.Fprintf(&b, ", %d unfilled", m.Unfilled)
		}
		if m.Shortfall > 0 {
			fmt.Fprintf(&b, ", selection shortfall %d", m.Shortfall)
		}
		b.WriteString("\n")
		for _, f := range m.Failed {
			fmt.Fprintf(&b, "  - failed %s: %s\n", f.Model, f.Error)
		}
	}
	b.WriteString("\n")

	if len(res.Issues) > 0 || res.AlignmentError != "" {
		b.WriteString("## Issues\n")
		for _, issue := range res.Issues {
			if issue.Model != "" {
				fmt.Fprintf(&b, "- [%s] %s: %s\n", issue.Scope, issue.Model, issue.Message)
			} else {
				fmt.Fprintf(&b, "- [%s] %s\n", issue.Scope, issue.Message)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Files used: %d/%d\n", res.FilesUsed, res.FilesSelected)
	fmt.Fprintf(&b, "Generated: %s\n", res.GeneratedAt.Format("2006-01-02 15:04:05"))
	return b.String()
}

func energy(v float64, decimals int) string {
	return humanize.CommafWithDigits(roundTo(v, decimals), decimals)
}

func share(part, total float64) string {
	if total == 0 {
		return "0.0"
	}
	return strconv.FormatFloat(part/total*100, 'f', 1, 64)
}

// roundTo rounds v to decimals; CommafWithDigits only truncates.
func roundTo(v float64, decimals int) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', decimals, 64), 64)
	return f
}
