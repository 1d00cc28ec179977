package job

import (
	"context"
	"time"
)

// RunOptions configures one reconciliation run.
type RunOptions struct {
	// PollInterval is the sleep between status evaluations.
	PollInterval time.Duration
	// Timeout bounds how long a Job may stay active, and a pod may stay
	// Pending, before an image pull failure is treated as terminal.
	Timeout time.Duration
	// IsCancelled is checked once per iteration before sleeping. Nil never cancels.
	IsCancelled func() bool
}

// RunToCompletion submits the Job (adopting an existing one) and polls it until
// it reaches Complete, Failed or Error, or until IsCancelled reports true, in
// which case the Job is deleted and Cancelled is returned.
//
// ctx scopes the cluster calls only; cancellation goes through IsCancelled.
func (j *Job) RunToCompletion(ctx context.Context, opts RunOptions) (Status, error) {
	j.timeout = opts.Timeout
	started := j.clock.Now()

	if err := j.Submit(ctx); err != nil {
		return j.status, err
	}

	allPodsRunning := false
	status, allPodsRunning, err := j.EvaluateStatus(ctx, allPodsRunning)
	if err != nil {
		return status, err
	}

	for status == StatusRunning {
		if opts.IsCancelled != nil && opts.IsCancelled() {
			j.status = StatusCancelled
			j.metrics.outcome(ctx, j.namespace, j.status, j.clock.Since(started))
			return j.status, j.Delete(ctx)
		}
		j.clock.Sleep(opts.PollInterval)
		status, allPodsRunning, err = j.EvaluateStatus(ctx, allPodsRunning)
		if err != nil {
			return status, err
		}
	}

	j.logger.Info("Job finished", "status", status.String())
	j.metrics.outcome(ctx, j.namespace, status, j.clock.Since(started))
	return status, nil
}
