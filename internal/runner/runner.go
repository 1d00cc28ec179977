// Package runner executes one Job run end to end: tracing, run history and
// the reconciliation loop.
package runner

import (
	"context"
	"log/slog"
	"time"

	"taskmaster/internal/job"
	"taskmaster/internal/logger"
	"taskmaster/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	batchv1 "k8s.io/api/batch/v1"
	"k8s.io/utils/clock"
)

// Config holds the loop parameters applied to every run.
type Config struct {
	PollInterval time.Duration
	PodTimeout   time.Duration
}

// Runner drives Jobs through a cluster and records each run.
type Runner struct {
	cluster job.Cluster
	runs    store.RunStore
	config  Config
	logger  *slog.Logger
	clock   clock.Clock
}

// Result describes a finished run.
type Result struct {
	RunID      uuid.UUID
	JobName    string
	Namespace  string
	Status     job.Status
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall-clock length of the run.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// New creates a runner. runs may be nil to skip run history.
func New(cluster job.Cluster, runs store.RunStore, config Config, log *slog.Logger) *Runner {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.PodTimeout <= 0 {
		config.PodTimeout = job.DefaultTimeout
	}

	return &Runner{
		cluster: cluster,
		runs:    runs,
		config:  config,
		logger:  log,
		clock:   clock.RealClock{},
	}
}

// WithClock swaps the clock used by the runner and the Jobs it creates.
func (r *Runner) WithClock(c clock.Clock) *Runner {
	r.clock = c
	return r
}

// Run submits body as name in namespace and blocks until the Job reaches a
// terminal status or isCancelled reports true.
func (r *Runner) Run(ctx context.Context, body *batchv1.Job, name, namespace string, isCancelled func() bool) (Result, error) {
	runID := uuid.New()
	ctx = logger.WithRunID(ctx, runID.String())
	log := logger.FromContext(ctx, r.logger)

	tracer := otel.Tracer("taskmaster-runner")
	ctx, span := tracer.Start(ctx, "run_job",
		trace.WithAttributes(
			attribute.String("run.id", runID.String()),
			attribute.String("job.name", name),
			attribute.String("job.namespace", namespace),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	j := job.New(r.cluster, body, name, namespace, job.WithLogger(log), job.WithClock(r.clock))

	result := Result{
		RunID:     runID,
		JobName:   j.Name(),
		Namespace: j.Namespace(),
		StartedAt: r.clock.Now().UTC(),
	}

	r.recordStart(ctx, log, result)
	log.Info("Starting run", "poll_interval", r.config.PollInterval.String(), "pod_timeout", r.config.PodTimeout.String())

	status, err := j.RunToCompletion(ctx, job.RunOptions{
		PollInterval: r.config.PollInterval,
		Timeout:      r.config.PodTimeout,
		IsCancelled:  isCancelled,
	})

	result.Status = status
	result.FinishedAt = r.clock.Now().UTC()
	span.SetAttributes(attribute.String("job.status", status.String()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("Run aborted", "status", status.String(), "error", err)
	} else {
		log.Info("Run finished", "status", status.String(), "duration", result.Duration().String())
	}

	r.recordFinish(ctx, log, result, err)
	return result, err
}

// recordStart and recordFinish never fail the run; history is best effort.
func (r *Runner) recordStart(ctx context.Context, log *slog.Logger, result Result) {
	if r.runs == nil {
		return
	}
	err := r.runs.CreateRun(ctx, &store.RunRecord{
		ID:        result.RunID,
		JobName:   result.JobName,
		Namespace: result.Namespace,
		Status:    job.StatusRunning.String(),
		StartedAt: result.StartedAt,
	})
	if err != nil {
		log.Warn("Failed to record run start", "error", err)
	}
}

func (r *Runner) recordFinish(ctx context.Context, log *slog.Logger, result Result, runErr error) {
	if r.runs == nil {
		return
	}

	status := result.Status.String()
	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
		if !result.Status.Terminal() {
			status = job.StatusError.String()
		}
	}

	// The run context may already be cancelled by a signal.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := r.runs.FinishRun(recordCtx, result.RunID, status, errMsg, result.FinishedAt); err != nil {
		log.Warn("Failed to record run finish", "error", err)
	}
}
