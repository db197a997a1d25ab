package analysis

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/logging"
	"community-orchestrator/core/models"
	"community-orchestrator/core/selector"
)

// Issue scopes recorded in the result.
const (
	IssueRead      = "read"
	IssueRowCount  = "row_count"
	IssueAlignment = "alignment"
	IssueUnfilled  = "unfilled"
)

// Options controls aggregation.
type Options struct {
	Seed          string
	FillShortfall bool
	ExpectedRows  int
	Workers       int
}

// Input is a terminal run to aggregate.
type Input struct {
	RunID           string
	Community       string
	WeatherLocation string
	Selection       *models.SelectionResult
	Jobs            []models.Job
}

// Aggregator sums the time series of succeeded jobs.
type Aggregator struct {
	opts   Options
	logger *logging.Logger
	now    func() time.Time
}

// NewAggregator creates a new aggregator.
func NewAggregator(opts Options, logger *logging.Logger) *Aggregator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Aggregator{opts: opts, logger: logger, now: time.Now}
}

type contributor struct {
	model       string
	requirement string
	path        string
	weight      int
}

// Aggregate produces the community result. Every job must be terminal.
// Misaligned series yield a result with AlignmentError set together with
// an AggregationAlignmentError; job outcomes are never touched.
func (a *Aggregator) Aggregate(ctx context.Context, in Input) (*models.CommunityAnalysisResult, error) {
	for _, job := range in.Jobs {
		if !job.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: job %s is %s", errors.ErrResultPending, job.Model, job.Status)
		}
	}
	if in.Selection == nil {
		return nil, fmt.Errorf("aggregate %s: no selection recorded", in.Community)
	}
	logger := a.logger.WithRun(in.RunID).WithCommunity(in.Community)

	result := &models.CommunityAnalysisResult{
		RunID:           in.RunID,
		Community:       in.Community,
		WeatherLocation: in.WeatherLocation,
		GeneratedAt:     a.now().UTC(),
		FilesSelected:   in.Selection.Total(),
		Buildings:       []models.BuildingTotals{},
		Requirements:    []models.RequirementRollup{},
		Issues:          []models.AnalysisIssue{},
	}

	contributors := a.plan(in, result)

	series, err := a.readAll(ctx, contributors)
	if err != nil {
		return nil, err
	}

	// drop unreadable contributors, keeping the planned order
	usable := contributors[:0]
	for _, c := range contributors {
		s, ok := series[c.model]
		if !ok {
			continue
		}
		if s.err != nil {
			result.Issues = append(result.Issues, models.AnalysisIssue{Model: c.model, Scope: IssueRead, Message: s.err.Error()})
			logger.Warn("skipping unreadable time series", "model", c.model, "error", s.err.Error())
			continue
		}
		if a.opts.ExpectedRows > 0 && s.rows != a.opts.ExpectedRows {
			result.Issues = append(result.Issues, models.AnalysisIssue{
				Model: c.model, Scope: IssueRowCount,
				Message: fmt.Sprintf("has %d rows, expected %d", s.rows, a.opts.ExpectedRows),
			})
		}
		usable = append(usable, c)
	}

	rollups := make(map[string]*models.RequirementRollup)
	for _, sel := range in.Selection.Selections {
		rollups[sel.Requirement.Key] = &models.RequirementRollup{Requirement: sel.Requirement.Key, Houses: sel.Requirement.Houses}
	}
	for _, c := range usable {
		s := series[c.model].series
		building := s.Totals()
		weighted := building.Scale(c.weight)
		result.Buildings = append(result.Buildings, models.BuildingTotals{
			Model: c.model, Requirement: c.requirement, Weight: c.weight,
			Rows: series[c.model].rows, Totals: building,
		})
		result.Totals.Add(weighted)
		result.FilesUsed += c.weight
		if r, ok := rollups[c.requirement]; ok {
			r.Counted += c.weight
			r.Totals.Add(weighted)
		}
	}
	for _, sel := range in.Selection.Selections {
		result.Requirements = append(result.Requirements, *rollups[sel.Requirement.Key])
	}

	if alignErr := checkAlignment(usable, series); alignErr != nil {
		result.AlignmentError = alignErr.Error()
		result.Issues = append(result.Issues, models.AnalysisIssue{Model: alignErr.Model, Scope: IssueAlignment, Message: alignErr.Error()})
		logger.Error("time series misaligned", "reference", alignErr.Reference, "model", alignErr.Model, "detail", alignErr.Detail)
		return result, alignErr
	}

	result.Series = sumSeries(usable, series)
	result.Statistics = statistics(result.Series)
	logger.Info("aggregated community",
		"files_used", result.FilesUsed, "files_selected", result.FilesSelected,
		"total_energy_gj", result.Totals.TotalEnergyGJ, "issues", len(result.Issues))
	return result, nil
}

// plan decides which succeeded models contribute to each requirement and
// fills the manifest.
func (a *Aggregator) plan(in Input, result *models.CommunityAnalysisResult) []contributor {
	byReq := make(map[string][]models.Job)
	for _, job := range in.Jobs {
		byReq[job.Requirement] = append(byReq[job.Requirement], job)
	}

	var out []contributor
	for _, sel := range in.Selection.Selections {
		req := sel.Requirement
		jobs := byReq[req.Key]
		sort.Slice(jobs, func(i, j int) bool { return jobs[i].Model < jobs[j].Model })

		entry := models.ManifestEntry{
			Requirement: req.Key,
			Houses:      req.Houses,
			Target:      req.Target,
			Matched:     sel.Matched,
			Shortfall:   sel.Shortfall,
			Succeeded:   []string{},
			Failed:      []models.FailedModel{},
			Excluded:    []string{},
			Duplicates:  []string{},
		}

		var succeeded []models.Job
		for _, job := range jobs {
			switch job.Status {
			case models.JobStatusSucceeded:
				entry.Succeeded = append(entry.Succeeded, job.Model)
				succeeded = append(succeeded, job)
			case models.JobStatusFailed:
				entry.Failed = append(entry.Failed, models.FailedModel{Model: job.Model, Error: job.Error})
			}
		}

		counted := succeeded
		if len(counted) > req.Houses {
			for _, job := range counted[req.Houses:] {
				entry.Excluded = append(entry.Excluded, job.Model)
			}
			counted = counted[:req.Houses]
		}

		weights := make(map[string]int, len(counted))
		for _, job := range counted {
			weights[job.Model] = 1
		}
		missing := req.Houses - len(counted)
		if missing > 0 && a.opts.FillShortfall && len(counted) > 0 {
			rng := rand.New(rand.NewSource(selector.SeedValue(a.opts.Seed + ":" + req.Key)))
			for i := 0; i < missing; i++ {
				pick := counted[rng.Intn(len(counted))].Model
				weights[pick]++
				entry.Duplicates = append(entry.Duplicates, pick)
			}
			missing = 0
		}
		if missing > 0 {
			entry.Unfilled = missing
			result.Issues = append(result.Issues, models.AnalysisIssue{
				Scope:   IssueUnfilled,
				Message: fmt.Sprintf("%s: %d of %d houses have no contributing model", req.Key, missing, req.Houses),
			})
		}

		for _, job := range counted {
			out = append(out, contributor{
				model: job.Model, requirement: req.Key,
				path: job.TimeseriesPath, weight: weights[job.Model],
			})
		}
		result.Manifest = append(result.Manifest, entry)
	}
	return out
}

type loaded struct {
	series *Series
	rows   int
	err    error
}

func (a *Aggregator) readAll(ctx context.Context, contributors []contributor) (map[string]*loaded, error) {
	out := make(map[string]*loaded, len(contributors))
	for _, c := range contributors {
		out[c.model] = &loaded{}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for _, c := range contributors {
		slot := out[c.model]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := ReadSeries(c.model, c.path)
			if err != nil {
				slot.err = err
				return nil
			}
			slot.series = s
			slot.rows = s.Rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func checkAlignment(contributors []contributor, series map[string]*loaded) *errors.AggregationAlignmentError {
	if len(contributors) < 2 {
		return nil
	}
	ref := contributors[0]
	refPoints := series[ref.model].series.Points
	for _, c := range contributors[1:] {
		points := series[c.model].series.Points
		if len(points) != len(refPoints) {
			return &errors.AggregationAlignmentError{
				Reference: ref.model, Model: c.model,
				Detail: fmt.Sprintf("%d rows against %d", len(points), len(refPoints)),
			}
		}
		for i := range points {
			if points[i].Time != refPoints[i].Time {
				return &errors.AggregationAlignmentError{
					Reference: ref.model, Model: c.model,
					Detail: fmt.Sprintf("row %d has time %q, expected %q", i+1, points[i].Time, refPoints[i].Time),
				}
			}
		}
	}
	return nil
}

func sumSeries(contributors []contributor, series map[string]*loaded) []models.SeriesPoint {
	if len(contributors) == 0 {
		return nil
	}
	ref := series[contributors[0].model].series.Points
	total := make([]models.SeriesPoint, len(ref))
	for i, p := range ref {
		total[i].Time = p.Time
	}
	for _, c := range contributors {
		w := float64(c.weight)
		for i, p := range series[c.model].series.Points {
			total[i].HeatingLoadGJ += p.HeatingLoadGJ * w
			total[i].PropaneGJ += p.PropaneGJ * w
			total[i].OilGJ += p.OilGJ * w
			total[i].ElectricityGJ += p.ElectricityGJ * w
			total[i].TotalEnergyGJ += p.TotalEnergyGJ * w
		}
	}
	return total
}

func statistics(points []models.SeriesPoint) models.CommunityStatistics {
	var s models.CommunityStatistics
	if len(points) == 0 {
		return s
	}
	var load, energy float64
	for i, p := range points {
		load += p.HeatingLoadGJ
		energy += p.TotalEnergyGJ
		if i == 0 || p.HeatingLoadGJ > s.PeakHourlyLoadGJ {
			s.PeakHourlyLoadGJ = p.HeatingLoadGJ
		}
		if i == 0 || p.TotalEnergyGJ > s.PeakHourlyEnergyGJ {
			s.PeakHourlyEnergyGJ = p.TotalEnergyGJ
		}
	}
	n := float64(len(points))
	s.AverageHourlyLoadGJ = load / n
	s.AverageHourlyEnergyGJ = energy / n
	return s
}
