package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/logging"
	"community-orchestrator/core/models"
	"community-orchestrator/core/weather"
	"community-orchestrator/core/workspace"
)

// TimeseriesSuffix is appended to the model stem of collected artifacts.
const TimeseriesSuffix = "-results_timeseries.csv"

// TimeseriesName returns the collected artifact name of a model.
func TimeseriesName(model string) string {
	return models.StemOf(model) + TimeseriesSuffix
}

// Task is one job ready for execution.
type Task struct {
	Job       models.Job
	Reference weather.Reference
	Layout    workspace.Layout
}

// Outcome is the terminal result of a task.
type Outcome struct {
	JobID          string
	Model          string
	Requirement    string
	Status         models.JobStatus
	TimeseriesPath string
	Err            error
	Duration       time.Duration
}

// Runner executes a single job: weather mutation, then conversion, then
// artifact collection.
type Runner struct {
	converter Converter
	mutator   *weather.Mutator
	timeout   time.Duration
	logger    *logging.Logger
}

// NewRunner creates a new job runner
func NewRunner(converter Converter, mutator *weather.Mutator, timeout time.Duration, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if mutator == nil {
		mutator = weather.NewMutator(logger)
	}
	return &Runner{
		converter: converter,
		mutator:   mutator,
		timeout:   timeout,
		logger:    logger,
	}
}

// Execute runs task to completion. Failures are returned in the outcome,
// never as a panic or a cancelled sibling.
func (r *Runner) Execute(ctx context.Context, task Task) Outcome {
	job := task.Job
	logger := r.logger.WithRun(job.RunID).WithJob(job.ID, job.Model)
	start := time.Now()

	out := Outcome{JobID: job.ID, Model: job.Model, Requirement: job.Requirement}
	path, err := r.execute(ctx, task, logger)
	out.Duration = time.Since(start)
	if err != nil {
		out.Status = models.JobStatusFailed
		out.Err = err
		logger.Warn("job failed", "error", err.Error(), "duration", out.Duration.String())
		return out
	}

	out.Status = models.JobStatusSucceeded
	out.TimeseriesPath = path
	logger.Info("job succeeded", "timeseries", path, "duration", out.Duration.String())
	return out
}

func (r *Runner) execute(ctx context.Context, task Task, logger *logging.Logger) (string, error) {
	job := task.Job

	if _, err := r.mutator.MutateFile(job.ArchetypePath, task.Reference); err != nil {
		return "", err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	res, err := r.converter.Convert(ctx, job.ArchetypePath, task.Layout.Output)
	if res == nil {
		res = &ConvertResult{}
	}
	if err != nil {
		return "", &errors.JobExecutionError{
			Model:    job.Model,
			ExitCode: res.ExitCode,
			Summary:  summarize(res.Output),
			Err:      err,
		}
	}

	artifact := ExpectedArtifact(task.Layout.Output, job.ArchetypePath)
	if _, err := os.Stat(artifact); err != nil {
		return "", &errors.JobExecutionError{
			Model:    job.Model,
			ExitCode: res.ExitCode,
			Summary:  summarize(res.Output),
			Err:      fmt.Errorf("%w: %s", errors.ErrMissingArtifact, artifact),
		}
	}

	dst := filepath.Join(task.Layout.Timeseries, TimeseriesName(job.Model))
	if err := copyArtifact(artifact, dst); err != nil {
		return "", &errors.JobExecutionError{Model: job.Model, Err: fmt.Errorf("collect time series: %w", err)}
	}
	logger.Debug("collected time series", "from", artifact, "to", dst)
	return dst, nil
}

func summarize(output string) string {
	s := strings.TrimSpace(output)
	if len(s) > SummaryLimit {
		s = s[len(s)-SummaryLimit:]
	}
	return s
}

func copyArtifact(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
