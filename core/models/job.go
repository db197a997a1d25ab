package models

import "time"

// Job is the unit of work for one staged archetype within a run:
// mutate the weather reference, then convert and simulate.
type Job struct {
	ID             string     `json:"id"`
	RunID          string     `json:"run_id"`
	Community      string     `json:"community"`
	Requirement    string     `json:"requirement"`               // requirement key the model was selected for
	Model          string     `json:"model"`                     // archetype identity (file name)
	ArchetypePath  string     `json:"archetype_path"`            // staged copy inside the community workspace
	TimeseriesPath string     `json:"timeseries_path,omitempty"` // collected artifact, set on success
	Status         JobStatus  `json:"status"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// CanTransition reports whether a job may move from s to next.
// Allowed: pending->running, running->succeeded, running->failed.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next == JobStatusSucceeded || next == JobStatusFailed
	default:
		return false
	}
}

// RunStatus represents the overall status of a run
type RunStatus string

const (
	RunStatusNotStarted          RunStatus = "not_started"
	RunStatusRunning             RunStatus = "running"
	RunStatusSucceeded           RunStatus = "succeeded"
	RunStatusCompletedWithErrors RunStatus = "completed_with_errors"
	RunStatusFailed              RunStatus = "failed"
)

// IsTerminal reports whether the run has finished.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusCompletedWithErrors, RunStatusFailed:
		return true
	default:
		return false
	}
}

// Run is one end-to-end orchestration attempt for a single community.
type Run struct {
	ID              string           `json:"id"`
	Community       string           `json:"community"`
	Status          RunStatus        `json:"status"`
	WeatherLocation string           `json:"weather_location,omitempty"`
	Jobs            []Job            `json:"jobs"`
	Selection       *SelectionResult `json:"selection,omitempty"`
	Error           string           `json:"error,omitempty"` // fatal error or aggregation failure summary
	ResultReady     bool             `json:"result_ready"`
	CreatedAt       time.Time        `json:"created_at"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
}

// JobCounts tallies jobs by status.
func (r *Run) JobCounts() map[JobStatus]int {
	counts := map[JobStatus]int{
		JobStatusPending:   0,
		JobStatusRunning:   0,
		JobStatusSucceeded: 0,
		JobStatusFailed:    0,
	}
	for _, job := range r.Jobs {
		counts[job.Status]++
	}
	return counts
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (r *Run) Clone() *Run {
	out := *r
	out.Jobs = make([]Job, len(r.Jobs))
	for i, job := range r.Jobs {
		out.Jobs[i] = job
		out.Jobs[i].StartedAt = cloneTime(job.StartedAt)
		out.Jobs[i].FinishedAt = cloneTime(job.FinishedAt)
	}
	if r.Selection != nil {
		sel := *r.Selection
		sel.Selections = make([]RequirementSelection, len(r.Selection.Selections))
		for i, s := range r.Selection.Selections {
			s.Selected = append([]string(nil), s.Selected...)
			s.Patterns = append([]string(nil), s.Patterns...)
			sel.Selections[i] = s
		}
		out.Selection = &sel
	}
	out.StartedAt = cloneTime(r.StartedAt)
	out.FinishedAt = cloneTime(r.FinishedAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// DeriveRunStatus applies the terminal rule: succeeded when every job
// succeeded, failed when every job failed, completed_with_errors otherwise.
// It returns running while any job is not terminal.
func DeriveRunStatus(jobs []Job) RunStatus {
	if len(jobs) == 0 {
		return RunStatusFailed
	}
	succeeded, failed := 0, 0
	for _, job := range jobs {
		switch job.Status {
		case JobStatusSucceeded:
			succeeded++
		case JobStatusFailed:
			failed++
		default:
			return RunStatusRunning
		}
	}
	switch {
	case failed == 0:
		return RunStatusSucceeded
	case succeeded == 0:
		return RunStatusFailed
	default:
		return RunStatusCompletedWithErrors
	}
}
