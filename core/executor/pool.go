// Package executor dispatches archetype jobs to the external converter
// through a bounded worker pool.
package executor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"community-orchestrator/core/logging"
)

// Reporter receives job transitions as they happen.
type Reporter interface {
	JobStarted(runID, jobID string) error
	JobFinished(runID string, outcome Outcome) error
}

// envelope carries a task to a worker together with its own result channel.
type envelope struct {
	task   Task
	result chan Outcome
}

// Pool runs tasks on a fixed number of workers.
type Pool struct {
	workers  int
	runner   *Runner
	reporter Reporter
	logger   *logging.Logger
}

// NewPool creates a new worker pool. Sizes below one are raised to one.
func NewPool(workers int, runner *Runner, reporter Reporter, logger *logging.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Pool{workers: workers, runner: runner, reporter: reporter, logger: logger}
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// Run executes every task and returns outcomes in task order. It returns
// once all tasks are terminal. A failing task never stops the others.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Outcome {
	queue := make(chan envelope)
	results := make([]chan Outcome, len(tasks))
	for i := range results {
		results[i] = make(chan Outcome, 1)
	}

	workers := p.workers
	if workers > len(tasks) {
		workers = len(tasks)
	}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for env := range queue {
				env.result <- p.handle(ctx, env.task)
			}
			return nil
		})
	}

	for i, task := range tasks {
		queue <- envelope{task: task, result: results[i]}
	}
	close(queue)
	_ = g.Wait()

	outcomes := make([]Outcome, len(tasks))
	for i, ch := range results {
		outcomes[i] = <-ch
	}
	return outcomes
}

func (p *Pool) handle(ctx context.Context, task Task) Outcome {
	job := task.Job
	if p.reporter != nil {
		if err := p.reporter.JobStarted(job.RunID, job.ID); err != nil {
			p.logger.Error("failed to record job start", "run_id", job.RunID, "job_id", job.ID, "error", err.Error())
		}
	}

	outcome := p.runner.Execute(ctx, task)

	if p.reporter != nil {
		if err := p.reporter.JobFinished(job.RunID, outcome); err != nil {
			p.logger.Error("failed to record job outcome", "run_id", job.RunID, "job_id", job.ID, "error", err.Error())
		}
	}
	return outcome
}
