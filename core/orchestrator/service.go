// Package orchestrator runs a community end to end: requirements,
// selection, staging, parallel conversion and aggregation.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"community-orchestrator/core/analysis"
	"community-orchestrator/core/errors"
	"community-orchestrator/core/executor"
	"community-orchestrator/core/logging"
	"community-orchestrator/core/models"
	"community-orchestrator/core/requirements"
	"community-orchestrator/core/selector"
	"community-orchestrator/core/tracker"
	"community-orchestrator/core/weather"
	"community-orchestrator/core/workspace"
	"community-orchestrator/storage"
)

// Deps are the collaborators of a Service. Publisher is optional.
type Deps struct {
	Catalog    *requirements.Catalog
	Resolver   *weather.Resolver
	Library    *selector.Library
	Selector   *selector.Selector
	Workspace  *workspace.Manager
	Runner     *executor.Runner
	Tracker    *tracker.Tracker
	Aggregator *analysis.Aggregator
	Publisher  *storage.Publisher
	Workers    int
	KeepOutput bool
	Logger     *logging.Logger
}

// Service is the run query interface.
type Service struct {
	catalog    *requirements.Catalog
	resolver   *weather.Resolver
	library    *selector.Library
	selector   *selector.Selector
	workspace  *workspace.Manager
	runner     *executor.Runner
	tracker    *tracker.Tracker
	aggregator *analysis.Aggregator
	publisher  *storage.Publisher
	workers    int
	keepOutput bool
	logger     *logging.Logger

	mu      sync.RWMutex
	results map[string]*models.CommunityAnalysisResult
	wg      sync.WaitGroup
}

// NewService creates a new orchestration service
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Service{
		catalog:    d.Catalog,
		resolver:   d.Resolver,
		library:    d.Library,
		selector:   d.Selector,
		workspace:  d.Workspace,
		runner:     d.Runner,
		tracker:    d.Tracker,
		aggregator: d.Aggregator,
		publisher:  d.Publisher,
		workers:    d.Workers,
		keepOutput: d.KeepOutput,
		logger:     logger,
		results:    make(map[string]*models.CommunityAnalysisResult),
	}
}

// plan is a run that passed the fatal phase and is ready for dispatch.
type plan struct {
	run       *models.Run
	layout    workspace.Layout
	reference weather.Reference
	tasks     []executor.Task
}

// StartRun validates, selects and stages a community, then dispatches its
// jobs in the background. Fatal errors are returned here and no jobs are
// created; the returned run id is still set when a run record exists.
func (s *Service) StartRun(ctx context.Context, community string) (string, error) {
	if err := workspace.ValidateName(community); err != nil {
		return "", err
	}
	run, err := s.tracker.Start(community)
	if err != nil {
		return "", err
	}

	p, err := s.prepare(run)
	if err != nil {
		s.logger.WithRun(run.ID).WithCommunity(community).Error("run aborted",
			"scope", string(errors.ScopeOf(err)), "error", err.Error())
		if abortErr := s.tracker.Abort(run.ID, err); abortErr != nil {
			s.logger.Error("failed to abort run", "run_id", run.ID, "error", abortErr.Error())
		}
		return run.ID, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(context.WithoutCancel(ctx), p)
	}()
	return run.ID, nil
}

// prepare performs every step whose failure aborts the run.
func (s *Service) prepare(run *models.Run) (*plan, error) {
	community := run.Community
	logger := s.logger.WithRun(run.ID).WithCommunity(community)

	reqs, err := s.catalog.Load(community)
	if err != nil {
		return nil, err
	}
	location, err := s.catalog.WeatherLocation(community)
	if err != nil {
		return nil, err
	}
	ref, err := s.resolver.Resolve(community, location)
	if err != nil {
		return nil, err
	}

	layout, err := s.workspace.Prepare(community)
	if err != nil {
		return nil, err
	}
	library, err := s.library.Snapshot()
	if err != nil {
		return nil, &errors.WorkspaceError{Op: "snapshot", Path: s.library.Dir(), Err: err}
	}

	debug, err := logging.NewLogger(layout.SelectionLogPath(), logging.LevelDebug)
	if err != nil {
		return nil, &errors.WorkspaceError{Op: "open", Path: layout.SelectionLogPath(), Err: err}
	}
	sel, err := s.selector.Select(selector.Request{
		Community:    community,
		Requirements: reqs,
		Library:      library,
		Debug:        debug.WithRun(run.ID),
	})
	debug.Close()
	if err != nil {
		return nil, err
	}
	if err := s.tracker.SetSelection(run.ID, sel, ref.Location); err != nil {
		return nil, err
	}

	staged, err := s.workspace.StageSelection(sel, library, layout)
	if err != nil {
		return nil, err
	}
	if _, err := s.workspace.WriteManifest(layout, workspace.ManifestInput{
		Community:       community,
		WeatherLocation: ref.Location,
		Requirements:    reqs,
		Selection:       sel,
		CreatedAt:       run.CreatedAt,
	}); err != nil {
		return nil, err
	}

	var jobs []models.Job
	for _, rs := range sel.Selections {
		for _, name := range rs.Selected {
			jobs = append(jobs, models.Job{
				Requirement:   rs.Requirement.Key,
				Model:         name,
				ArchetypePath: staged[name],
			})
		}
	}
	added, err := s.tracker.AddJobs(run.ID, jobs)
	if err != nil {
		return nil, err
	}

	tasks := make([]executor.Task, len(added))
	for i, job := range added {
		tasks[i] = executor.Task{Job: job, Reference: *ref, Layout: layout}
	}
	logger.Info("run dispatched", "jobs", len(tasks), "workers", s.workers, "location", ref.Location)
	return &plan{run: run, layout: layout, reference: *ref, tasks: tasks}, nil
}

// execute runs the jobs, aggregates once all are terminal and releases the run.
func (s *Service) execute(ctx context.Context, p *plan) {
	runID := p.run.ID
	logger := s.logger.WithRun(runID).WithCommunity(p.run.Community)

	executor.NewPool(s.workers, s.runner, s.tracker, s.logger).Run(ctx, p.tasks)

	snapshot, err := s.tracker.Get(runID)
	if err != nil {
		logger.Error("run vanished before aggregation", "error", err.Error())
		s.tracker.Release(runID, err)
		return
	}

	res, aggErr := s.aggregator.Aggregate(ctx, analysis.Input{
		RunID:           runID,
		Community:       snapshot.Community,
		WeatherLocation: snapshot.WeatherLocation,
		Selection:       snapshot.Selection,
		Jobs:            snapshot.Jobs,
	})

	var report analysis.Report
	if res != nil {
		report, err = analysis.WriteReport(p.layout, res)
		if err != nil {
			logger.Error("failed to write analysis", "error", err.Error())
			aggErr = errors.Join(aggErr, err)
		}
		s.mu.Lock()
		s.results[runID] = res
		s.mu.Unlock()
	}
	if aggErr != nil {
		logger.Error("aggregation failed", "scope", string(errors.ScopeOf(aggErr)), "error", aggErr.Error())
	}

	if !s.keepOutput {
		if err := s.workspace.CleanupOutput(p.layout); err != nil {
			logger.Warn("failed to remove converter output", "error", err.Error())
		}
	}

	if s.publisher.Enabled() {
		files := publishFiles(p.layout, report, snapshot.Jobs)
		if _, err := s.publisher.Publish(ctx, runID, snapshot.Community, files, res); err != nil {
			logger.Warn("publishing incomplete", "error", err.Error())
		}
	}

	if err := s.tracker.Complete(runID, aggErr); err != nil {
		logger.Error("failed to complete run", "error", err.Error())
		s.tracker.Release(runID, err)
	}
}

func publishFiles(layout workspace.Layout, report analysis.Report, jobs []models.Job) []storage.File {
	var files []storage.File
	for _, path := range report.Paths() {
		files = append(files, storage.File{Type: models.ArtifactTypeAnalysis, Path: path})
	}
	files = append(files,
		storage.File{Type: models.ArtifactTypeManifest, Path: layout.ManifestPath()},
		storage.File{Type: models.ArtifactTypeDebugLog, Path: layout.SelectionLogPath()},
	)
	for _, job := range jobs {
		if job.Status == models.JobStatusSucceeded && job.TimeseriesPath != "" {
			files = append(files, storage.File{Type: models.ArtifactTypeTimeseries, Path: job.TimeseriesPath})
		}
	}
	return files
}

// Status returns a snapshot of a run.
func (s *Service) Status(runID string) (*models.Run, error) {
	return s.tracker.Get(runID)
}

// Result returns the analysis of a finished run. It fails with
// ErrResultPending while the run is still executing or aggregating.
func (s *Service) Result(runID string) (*models.CommunityAnalysisResult, error) {
	run, err := s.tracker.Get(runID)
	if err != nil {
		return nil, err
	}
	done, err := s.tracker.Done(runID)
	if err != nil {
		return nil, err
	}
	select {
	case <-done:
	default:
		return nil, fmt.Errorf("%w: run %s is %s", errors.ErrResultPending, runID, run.Status)
	}

	s.mu.RLock()
	res, ok := s.results[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, &errors.NotFoundError{Kind: "result", ID: runID}
	}
	return res, nil
}

// Wait blocks until the run releases the active slot or ctx is done.
func (s *Service) Wait(ctx context.Context, runID string) (*models.Run, error) {
	done, err := s.tracker.Done(runID)
	if err != nil {
		return nil, err
	}
	select {
	case <-done:
		return s.tracker.Get(runID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Current returns the run holding the active slot.
func (s *Service) Current() (*models.Run, bool) {
	return s.tracker.Current()
}

// List returns every run of this process, newest first.
func (s *Service) List() ([]*models.Run, error) {
	return s.tracker.List()
}

// Events returns the recorded transitions of a run.
func (s *Service) Events(runID string) ([]models.TransitionEvent, error) {
	return s.tracker.Events(runID)
}

// AnalysisMarkdown returns the rendered summary of a finished run.
func (s *Service) AnalysisMarkdown(runID string) ([]byte, error) {
	res, err := s.Result(runID)
	if err != nil {
		return nil, err
	}
	layout, err := s.workspace.Layout(res.Community)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(analysis.MarkdownPath(layout))
	if os.IsNotExist(err) {
		return []byte(analysis.RenderMarkdown(res)), nil
	}
	return data, err
}

// Preview returns the selection a run would make without touching any
// workspace.
func (s *Service) Preview(community string) (*models.SelectionResult, error) {
	reqs, err := s.catalog.Load(community)
	if err != nil {
		return nil, err
	}
	library, err := s.library.Snapshot()
	if err != nil {
		return nil, &errors.WorkspaceError{Op: "snapshot", Path: s.library.Dir(), Err: err}
	}
	return s.selector.Select(selector.Request{Community: community, Requirements: reqs, Library: library})
}

// Analyze aggregates the collected time series of a community workspace
// without running any jobs. Every time-series file counts as a succeeded
// job of the requirement its name maps to.
func (s *Service) Analyze(ctx context.Context, community string) (*models.CommunityAnalysisResult, error) {
	reqs, err := s.catalog.Load(community)
	if err != nil {
		return nil, err
	}
	layout, err := s.workspace.Layout(community)
	if err != nil {
		return nil, err
	}
	paths, err := filepath.Glob(filepath.Join(layout.Timeseries, "*"+executor.TimeseriesSuffix))
	if err != nil {
		return nil, err
	}

	sel := &models.SelectionResult{Community: community}
	var jobs []models.Job
	for _, req := range reqs {
		criteria, err := selector.NewCriteria(req)
		if err != nil {
			return nil, err
		}
		rs := models.RequirementSelection{Requirement: req, Patterns: selector.PatternsFor(req)}
		for _, path := range paths {
			model := modelFromTimeseries(filepath.Base(path))
			if !criteria.Match(model) {
				continue
			}
			rs.Selected = append(rs.Selected, model)
			jobs = append(jobs, models.Job{
				Community: community, Requirement: req.Key, Model: model,
				TimeseriesPath: path, Status: models.JobStatusSucceeded,
			})
		}
		rs.Matched = len(rs.Selected)
		sel.Selections = append(sel.Selections, rs)
	}

	location, err := s.catalog.WeatherLocation(community)
	if err != nil {
		return nil, err
	}
	res, err := s.aggregator.Aggregate(ctx, analysis.Input{
		Community: community, WeatherLocation: location, Selection: sel, Jobs: jobs,
	})
	if res != nil {
		if _, werr := analysis.WriteReport(layout, res); werr != nil {
			return res, errors.Join(err, werr)
		}
	}
	return res, err
}

func modelFromTimeseries(name string) string {
	return name[:len(name)-len(executor.TimeseriesSuffix)] + selector.ArchetypeExt
}

// Close waits for background runs to finish.
func (s *Service) Close() {
	s.wg.Wait()
}
