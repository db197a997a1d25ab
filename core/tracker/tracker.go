// Package tracker is the in-memory state machine of runs and their jobs.
// It enforces a single active run per process and publishes every
// transition to registered listeners.
package tracker

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/executor"
	"community-orchestrator/core/logging"
	"community-orchestrator/core/models"
)

// Listener observes transitions after they are recorded.
type Listener interface {
	OnTransition(ev models.TransitionEvent)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ev models.TransitionEvent)

// OnTransition calls f.
func (f ListenerFunc) OnTransition(ev models.TransitionEvent) { f(ev) }

// Tracker records run and job lifecycles.
type Tracker struct {
	store     Store
	logger    *logging.Logger
	listeners []Listener
	now       func() time.Time

	mu      sync.Mutex
	current *models.Run // the single active slot; nil when idle
	done    map[string]chan struct{}
}

// NewTracker creates a new tracker backed by store.
func NewTracker(store Store, logger *logging.Logger, listeners ...Listener) *Tracker {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Tracker{
		store:     store,
		logger:    logger,
		listeners: listeners,
		now:       time.Now,
		done:      make(map[string]chan struct{}),
	}
}

// AddListener registers l for subsequent transitions.
func (t *Tracker) AddListener(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// Start creates a run for community and moves it to running. It fails with
// ConcurrentRunError while another run holds the active slot.
func (t *Tracker) Start(community string) (*models.Run, error) {
	t.mu.Lock()
	if t.current != nil {
		active := t.current
		t.mu.Unlock()
		return nil, &errors.ConcurrentRunError{ActiveRunID: active.ID, ActiveCommunity: active.Community}
	}

	now := t.now()
	run := &models.Run{
		ID:        uuid.New().String(),
		Community: community,
		Status:    models.RunStatusNotStarted,
		CreatedAt: now,
	}
	if err := t.store.Create(run); err != nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	t.current = run
	t.done[run.ID] = make(chan struct{})
	t.mu.Unlock()

	started, err := t.store.Update(run.ID, func(r *models.Run) error {
		r.Status = models.RunStatusRunning
		r.StartedAt = &now
		return nil
	})
	if err != nil {
		t.release(run.ID)
		return nil, err
	}
	t.emit(models.TransitionEvent{
		RunID: run.ID, Community: community,
		FromStatus: string(models.RunStatusNotStarted), ToStatus: string(models.RunStatusRunning),
		Reason: "run_started",
	})
	t.logger.WithRun(run.ID).Info("run started", "community", community)
	return started, nil
}

// SetSelection records the selection and weather location of a run.
func (t *Tracker) SetSelection(runID string, sel *models.SelectionResult, location string) error {
	_, err := t.store.Update(runID, func(r *models.Run) error {
		r.Selection = sel
		r.WeatherLocation = location
		return nil
	})
	return err
}

// Abort fails a run before dispatch and frees the active slot.
func (t *Tracker) Abort(runID string, cause error) error {
	var from models.RunStatus
	now := t.now()
	_, err := t.store.Update(runID, func(r *models.Run) error {
		if r.Status.IsTerminal() {
			return fmt.Errorf("%w: run %s is already %s", errors.ErrIllegalTransition, runID, r.Status)
		}
		from = r.Status
		r.Status = models.RunStatusFailed
		r.FinishedAt = &now
		if cause != nil {
			r.Error = cause.Error()
		}
		return nil
	})
	if err != nil {
		return err
	}

	reason := "aborted"
	meta := map[string]interface{}{}
	if cause != nil {
		meta["error"] = cause.Error()
		meta["scope"] = string(errors.ScopeOf(cause))
	}
	t.emitRun(runID, from, models.RunStatusFailed, reason, meta)
	t.release(runID)
	return nil
}

// AddJobs registers pending jobs. Job and run ids are assigned when empty.
func (t *Tracker) AddJobs(runID string, jobs []models.Job) ([]models.Job, error) {
	now := t.now()
	var added []models.Job
	run, err := t.store.Update(runID, func(r *models.Run) error {
		if r.Status != models.RunStatusRunning {
			return fmt.Errorf("%w: cannot add jobs to %s run", errors.ErrIllegalTransition, r.Status)
		}
		added = make([]models.Job, len(jobs))
		for i, job := range jobs {
			if job.ID == "" {
				job.ID = uuid.New().String()
			}
			job.RunID = runID
			job.Community = r.Community
			job.Status = models.JobStatusPending
			job.CreatedAt = now
			added[i] = job
		}
		r.Jobs = append(r.Jobs, added...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, job := range added {
		t.emit(models.TransitionEvent{
			RunID: runID, JobID: job.ID, Model: job.Model, Community: run.Community,
			ToStatus: string(models.JobStatusPending), Reason: "job_created",
			Meta: map[string]interface{}{"requirement": job.Requirement},
		})
	}
	return added, nil
}

// JobStarted moves a job from pending to running.
func (t *Tracker) JobStarted(runID, jobID string) error {
	return t.transitionJob(runID, jobID, models.JobStatusRunning, "job_started", func(j *models.Job, now time.Time) {
		j.StartedAt = &now
	})
}

// JobFinished records the terminal outcome of a job. When it is the last
// job to finish, the run moves to its terminal status.
func (t *Tracker) JobFinished(runID string, outcome executor.Outcome) error {
	reason := "job_succeeded"
	if outcome.Status == models.JobStatusFailed {
		reason = "job_failed"
	}
	return t.transitionJob(runID, outcome.JobID, outcome.Status, reason, func(j *models.Job, now time.Time) {
		j.FinishedAt = &now
		j.TimeseriesPath = outcome.TimeseriesPath
		if outcome.Err != nil {
			j.Error = outcome.Err.Error()
		}
	})
}

func (t *Tracker) transitionJob(runID, jobID string, to models.JobStatus, reason string, apply func(*models.Job, time.Time)) error {
	now := t.now()
	var (
		job     models.Job
		from    models.JobStatus
		runFrom models.RunStatus
		runTo   models.RunStatus
	)

	run, err := t.store.Update(runID, func(r *models.Run) error {
		idx := -1
		for i := range r.Jobs {
			if r.Jobs[i].ID == jobID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return errors.NewJobNotFound(jobID)
		}
		j := &r.Jobs[idx]
		if !j.Status.CanTransition(to) {
			return fmt.Errorf("%w: job %s %s -> %s", errors.ErrIllegalTransition, jobID, j.Status, to)
		}
		from = j.Status
		j.Status = to
		apply(j, now)
		job = *j

		runFrom = r.Status
		if to.IsTerminal() && r.Status == models.RunStatusRunning {
			if next := models.DeriveRunStatus(r.Jobs); next.IsTerminal() {
				r.Status = next
				r.FinishedAt = &now
			}
		}
		runTo = r.Status
		return nil
	})
	if err != nil {
		return err
	}

	meta := map[string]interface{}{"requirement": job.Requirement}
	if job.Error != "" && to == models.JobStatusFailed {
		meta["error"] = job.Error
	}
	t.emit(models.TransitionEvent{
		RunID: runID, JobID: jobID, Model: job.Model, Community: run.Community,
		FromStatus: string(from), ToStatus: string(to), Reason: reason, Meta: meta,
	})

	if runTo != runFrom {
		counts := run.JobCounts()
		t.emitRun(runID, runFrom, runTo, "jobs_terminal", map[string]interface{}{
			"succeeded": counts[models.JobStatusSucceeded],
			"failed":    counts[models.JobStatusFailed],
		})
		t.logger.WithRun(runID).Info("run jobs finished", "status", string(runTo),
			"succeeded", counts[models.JobStatusSucceeded], "failed", counts[models.JobStatusFailed])
	}
	return nil
}

// Complete marks the run's result as available and frees the active slot.
// aggErr is an aggregation failure; it never changes job outcomes.
func (t *Tracker) Complete(runID string, aggErr error) error {
	_, err := t.store.Update(runID, func(r *models.Run) error {
		if !r.Status.IsTerminal() {
			return fmt.Errorf("%w: run %s is still %s", errors.ErrIllegalTransition, runID, r.Status)
		}
		r.ResultReady = aggErr == nil
		if aggErr != nil {
			r.Error = aggErr.Error()
		}
		return nil
	})
	if err != nil {
		return err
	}
	t.release(runID)
	return nil
}

// Release frees the active slot held by runID even when the store cannot
// record the outcome. The run is marked failed with cause when possible.
func (t *Tracker) Release(runID string, cause error) {
	defer t.release(runID)

	now := t.now()
	_, err := t.store.Update(runID, func(r *models.Run) error {
		if !r.Status.IsTerminal() {
			r.Status = models.RunStatusFailed
			r.FinishedAt = &now
		}
		r.ResultReady = false
		if cause != nil {
			r.Error = cause.Error()
		}
		return nil
	})
	if err != nil {
		t.logger.WithRun(runID).Error("released run without recording outcome", "error", err.Error())
	}
}

// Get returns a snapshot of a run.
func (t *Tracker) Get(runID string) (*models.Run, error) {
	return t.store.Get(runID)
}

// Current returns the run holding the active slot, if any.
func (t *Tracker) Current() (*models.Run, bool) {
	t.mu.Lock()
	cur := t.current
	t.mu.Unlock()
	if cur == nil {
		return nil, false
	}
	run, err := t.store.Get(cur.ID)
	if err != nil {
		return nil, false
	}
	return run, true
}

// List returns all runs known to this process, newest first.
func (t *Tracker) List() ([]*models.Run, error) {
	return t.store.List()
}

// Events returns the recorded transitions of a run.
func (t *Tracker) Events(runID string) ([]models.TransitionEvent, error) {
	return t.store.Events(runID)
}

// Done returns a channel closed once the run frees the active slot.
func (t *Tracker) Done(runID string) (<-chan struct{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.done[runID]
	if ok {
		return ch, nil
	}
	if _, err := t.store.Get(runID); err != nil {
		return nil, err
	}
	closed := make(chan struct{})
	close(closed)
	return closed, nil
}

func (t *Tracker) release(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil && t.current.ID == runID {
		t.current = nil
	}
	if ch, ok := t.done[runID]; ok {
		close(ch)
		delete(t.done, runID)
	}
}

func (t *Tracker) emitRun(runID string, from, to models.RunStatus, reason string, meta map[string]interface{}) {
	run, err := t.store.Get(runID)
	community := ""
	if err == nil {
		community = run.Community
	}
	t.emit(models.TransitionEvent{
		RunID: runID, Community: community,
		FromStatus: string(from), ToStatus: string(to), Reason: reason, Meta: meta,
	})
}

func (t *Tracker) emit(ev models.TransitionEvent) {
	ev.At = t.now()
	recorded, err := t.store.AppendEvent(ev)
	if err != nil {
		t.logger.Error("failed to record transition", "run_id", ev.RunID, "error", err.Error())
		return
	}

	t.mu.Lock()
	listeners := append([]Listener(nil), t.listeners...)
	t.mu.Unlock()
	for _, l := range listeners {
		l.OnTransition(recorded)
	}
}
