package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/models"
	"community-orchestrator/core/workspace"
)

const header = "Time,Load: Heating: Delivered,End Use: Electricity: Heating,System Use: HeatingSystem1: Propane: Heating\n"

// writeSeries writes hours rows where every value column equals kbtu.
func writeSeries(t *testing.T, dir, model string, hours int, kbtu float64, start int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("TS,kBtu,kBtu,kBtu\n")
	for h := 0; h < hours; h++ {
		fmt.Fprintf(&b, "2024-01-01T%02d:00:00,%g,%g,%g\n", start+h, kbtu, kbtu, kbtu)
	}
	path := filepath.Join(dir, models.StemOf(model)+"-results_timeseries.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func selection(reqs ...models.Requirement) *models.SelectionResult {
	sel := &models.SelectionResult{Community: "Old Crow", Seed: "s"}
	for _, r := range reqs {
		sel.Selections = append(sel.Selections, models.RequirementSelection{Requirement: r})
	}
	return sel
}

func TestReadSeries(t *testing.T) {
	dir := t.TempDir()
	path := writeSeries(t, dir, "pre-2000-single_A.H2K", 3, 1000, 0)

	s, err := ReadSeries("pre-2000-single_A.H2K", path)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Points) != 3 || s.Rows != 4 {
		t.Fatalf("points = %d rows = %d, want 3 and 4 (units row skipped)", len(s.Points), s.Rows)
	}
	p := s.Points[0]
	if !near(p.HeatingLoadGJ, 1000*KBtuToGJ) || p.OilGJ != 0 {
		t.Errorf("point = %+v", p)
	}
	if !near(p.TotalEnergyGJ, 2000*KBtuToGJ) {
		t.Errorf("total energy = %v, want propane+electricity", p.TotalEnergyGJ)
	}

	bad := filepath.Join(dir, "bad.csv")
	os.WriteFile(bad, []byte("Time,Other\n1,2\n"), 0o644)
	if _, err := ReadSeries("bad", bad); err == nil {
		t.Error("expected missing column error")
	}
}

func TestAggregateExcludesFailedJobs(t *testing.T) {
	dir := t.TempDir()
	req := models.Requirement{Key: "pre-2000-single", Houses: 5, Target: 6}
	var jobs []models.Job
	for i := 1; i <= 5; i++ {
		model := fmt.Sprintf("pre-2000-single_%d.H2K", i)
		job := models.Job{Model: model, Requirement: req.Key, Status: models.JobStatusSucceeded}
		if i == 3 {
			job.Status = models.JobStatusFailed
			job.Error = "expected output artifact missing"
		} else {
			job.TimeseriesPath = writeSeries(t, dir, model, 4, float64(i*100), 0)
		}
		jobs = append(jobs, job)
	}

	agg := NewAggregator(Options{Seed: "a", ExpectedRows: 5, Workers: 2}, nil)
	res, err := agg.Aggregate(context.Background(), Input{RunID: "r", Community: "Old Crow", Selection: selection(req), Jobs: jobs})
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Buildings) != 4 {
		t.Fatalf("buildings = %d, want 4", len(res.Buildings))
	}
	for _, b := range res.Buildings {
		if b.Model == "pre-2000-single_3.H2K" {
			t.Error("failed job contributed")
		}
	}
	want := float64((100+200+400+500)*4) * KBtuToGJ
	if !near(res.Totals.HeatingLoadGJ, want) {
		t.Errorf("heating load = %v, want %v", res.Totals.HeatingLoadGJ, want)
	}
	if len(res.Series) != 4 || !near(res.Series[0].HeatingLoadGJ, 1200*KBtuToGJ) {
		t.Errorf("series = %+v", res.Series)
	}
	if !near(res.Statistics.PeakHourlyLoadGJ, 1200*KBtuToGJ) {
		t.Errorf("peak = %v", res.Statistics.PeakHourlyLoadGJ)
	}

	m := res.Manifest[0]
	if len(m.Succeeded) != 4 || len(m.Failed) != 1 || m.Failed[0].Model != "pre-2000-single_3.H2K" {
		t.Errorf("manifest = %+v", m)
	}
	if m.Unfilled != 1 || res.FilesUsed != 4 {
		t.Errorf("unfilled = %d files used = %d", m.Unfilled, res.FilesUsed)
	}
	if res.AlignmentError != "" {
		t.Errorf("unexpected alignment error %s", res.AlignmentError)
	}
}

func TestAggregateCapsAndFills(t *testing.T) {
	dir := t.TempDir()
	capped := models.Requirement{Key: "pre-2000-single", Houses: 2, Target: 3}
	filled := models.Requirement{Key: "post-2016-semi", Houses: 4, Target: 5}
	var jobs []models.Job
	for _, m := range []string{"pre-2000-single_c.H2K", "pre-2000-single_a.H2K", "pre-2000-single_b.H2K"} {
		jobs = append(jobs, models.Job{Model: m, Requirement: capped.Key, Status: models.JobStatusSucceeded,
			TimeseriesPath: writeSeries(t, dir, m, 2, 10, 0)})
	}
	for _, m := range []string{"post-2016-double_x.H2K", "post-2016-double_y.H2K"} {
		jobs = append(jobs, models.Job{Model: m, Requirement: filled.Key, Status: models.JobStatusSucceeded,
			TimeseriesPath: writeSeries(t, dir, m, 2, 10, 0)})
	}

	run := func() *models.CommunityAnalysisResult {
		agg := NewAggregator(Options{Seed: "fill", FillShortfall: true}, nil)
		res, err := agg.Aggregate(context.Background(), Input{Community: "Old Crow", Selection: selection(capped, filled), Jobs: jobs})
		if err != nil {
			t.Fatal(err)
		}
		return res
	}
	res := run()

	if ex := res.Manifest[0].Excluded; len(ex) != 1 || ex[0] != "pre-2000-single_c.H2K" {
		t.Errorf("excluded = %v, want the last model by name", ex)
	}
	dups := res.Manifest[1].Duplicates
	if len(dups) != 2 || res.Manifest[1].Unfilled != 0 {
		t.Errorf("duplicates = %v unfilled = %d", dups, res.Manifest[1].Unfilled)
	}
	if res.FilesUsed != 6 || res.Requirements[1].Counted != 4 {
		t.Errorf("files used = %d counted = %d", res.FilesUsed, res.Requirements[1].Counted)
	}
	if again := run().Manifest[1].Duplicates; strings.Join(again, ",") != strings.Join(dups, ",") {
		t.Errorf("duplicate draw not reproducible: %v vs %v", dups, again)
	}
}

func TestAggregateAlignmentError(t *testing.T) {
	dir := t.TempDir()
	req := models.Requirement{Key: "pre-2000-single", Houses: 2, Target: 2}
	jobs := []models.Job{
		{Model: "pre-2000-single_a.H2K", Requirement: req.Key, Status: models.JobStatusSucceeded,
			TimeseriesPath: writeSeries(t, dir, "pre-2000-single_a.H2K", 3, 1, 0)},
		{Model: "pre-2000-single_b.H2K", Requirement: req.Key, Status: models.JobStatusSucceeded,
			TimeseriesPath: writeSeries(t, dir, "pre-2000-single_b.H2K", 3, 1, 1)},
	}

	res, err := NewAggregator(Options{}, nil).Aggregate(context.Background(), Input{Selection: selection(req), Jobs: jobs})
	var alignErr *errors.AggregationAlignmentError
	if !errors.As(err, &alignErr) {
		t.Fatalf("err = %v, want AggregationAlignmentError", err)
	}
	if alignErr.Model != "pre-2000-single_b.H2K" || res == nil || res.AlignmentError == "" {
		t.Errorf("result = %+v", res)
	}
	if len(res.Manifest[0].Succeeded) != 2 {
		t.Error("alignment failure altered the job manifest")
	}
	if errors.ScopeOf(err) != errors.ScopeAggregation {
		t.Errorf("scope = %s", errors.ScopeOf(err))
	}
}

func TestAggregateWaitsForTerminalJobs(t *testing.T) {
	req := models.Requirement{Key: "pre-2000-single", Houses: 1}
	jobs := []models.Job{{Model: "m.H2K", Requirement: req.Key, Status: models.JobStatusRunning}}
	_, err := NewAggregator(Options{}, nil).Aggregate(context.Background(), Input{Selection: selection(req), Jobs: jobs})
	if !errors.Is(err, errors.ErrResultPending) {
		t.Errorf("err = %v, want ErrResultPending", err)
	}
}

func TestWriteReport(t *testing.T) {
	m := workspace.NewManager(t.TempDir(), nil)
	layout, err := m.Prepare("Old Crow")
	if err != nil {
		t.Fatal(err)
	}
	res := &models.CommunityAnalysisResult{
		Community: "Old Crow",
		Totals:    models.EnergyTotals{HeatingLoadGJ: 1234.56, PropaneGJ: 250, ElectricityGJ: 750, TotalEnergyGJ: 1000},
		Manifest: []models.ManifestEntry{{
			Requirement: "pre-2000-single", Houses: 3,
			Succeeded: []string{"a"}, Failed: []models.FailedModel{{Model: "b", Error: "boom"}},
		}},
		Issues:        []models.AnalysisIssue{{Scope: IssueUnfilled, Message: "pre-2000-single: 1 of 3 houses"}},
		FilesUsed:     2,
		FilesSelected: 3,
		Series:        []models.SeriesPoint{{Time: "t0", HeatingLoadGJ: 1.5}},
	}

	rep, err := WriteReport(layout, res)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Paths()) != 3 {
		t.Fatalf("paths = %v", rep.Paths())
	}

	md, _ := os.ReadFile(rep.Markdown)
	for _, want := range []string{
		"Total Annual Load: 1,234.6 GJ",
		"Propane: 250 GJ (25.0%)",
		"Electricity: 750 GJ (75.0%)",
		"failed b: boom",
		"Files used: 2/3",
	} {
		if !strings.Contains(string(md), want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	csvData, _ := os.ReadFile(rep.TotalCSV)
	if !strings.HasPrefix(string(csvData), strings.Join(TotalColumns, ",")+"\nt0,1.5,") {
		t.Errorf("csv = %q", csvData)
	}

	var decoded models.CommunityAnalysisResult
	raw, _ := os.ReadFile(rep.JSON)
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.FilesUsed != 2 {
		t.Errorf("json decode: %v %+v", err, decoded)
	}
}
