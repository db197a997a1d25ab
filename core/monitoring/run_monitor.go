package monitoring

import (
	"context"
	"time"

	"community-orchestrator/core/logging"
	"community-orchestrator/core/models"
)

// RunSource exposes the active run.
type RunSource interface {
	Current() (*models.Run, bool)
}

// RunMonitor periodically logs progress of the active run and warns about
// jobs running longer than the stall threshold.
type RunMonitor struct {
	source   RunSource
	logger   *logging.Logger
	interval time.Duration
	stall    time.Duration
	now      func() time.Time
}

// NewRunMonitor creates a new run monitor. A zero stall threshold disables
// stall warnings.
func NewRunMonitor(source RunSource, interval, stall time.Duration, logger *logging.Logger) *RunMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &RunMonitor{
		source:   source,
		logger:   logger,
		interval: interval,
		stall:    stall,
		now:      time.Now,
	}
}

// Start runs the monitoring loop until ctx is done.
func (rm *RunMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rm.Check()
		}
	}
}

// Check inspects the active run once and returns the jobs considered stalled.
func (rm *RunMonitor) Check() []models.Job {
	run, ok := rm.source.Current()
	if !ok {
		return nil
	}

	counts := run.JobCounts()
	logger := rm.logger.WithRun(run.ID).WithCommunity(run.Community)
	fields := []any{
		"status", string(run.Status),
		"pending", counts[models.JobStatusPending],
		"running", counts[models.JobStatusRunning],
		"succeeded", counts[models.JobStatusSucceeded],
		"failed", counts[models.JobStatusFailed],
	}
	if run.StartedAt != nil {
		fields = append(fields, "elapsed", rm.now().Sub(*run.StartedAt).Round(time.Second).String())
	}
	logger.Info("run progress", fields...)

	if rm.stall <= 0 {
		return nil
	}
	var stalled []models.Job
	for _, job := range run.Jobs {
		if job.Status != models.JobStatusRunning || job.StartedAt == nil {
			continue
		}
		if elapsed := rm.now().Sub(*job.StartedAt); elapsed >= rm.stall {
			stalled = append(stalled, job)
			logger.WithJob(job.ID, job.Model).Warn("job running longer than expected",
				"elapsed", elapsed.Round(time.Second).String())
		}
	}
	return stalled
}
