// Package job drives a single Kubernetes Job from submission to a terminal
// outcome, classifying the stuck states the Job controller never reports.
package job

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/clock"
)

const (
	// DefaultName is used when a handle is constructed without a name.
	DefaultName = "task-job"
	// DefaultNamespace is used when a handle is constructed without a namespace.
	DefaultNamespace = "default"
	// DefaultTimeout applies unless WithTimeout is given or RunToCompletion
	// sets the run's timeout.
	DefaultTimeout = 240 * time.Second
)

// Job is a handle bound to one named Job in one namespace.
// A Job is not safe for concurrent use; exactly one loop polls it.
type Job struct {
	name      string
	namespace string
	status    Status
	body      *batchv1.Job
	timeout   time.Duration

	cluster Cluster
	clock   clock.Clock
	logger  *slog.Logger
	metrics *telemetry
}

// Option customizes a Job at construction.
type Option func(*Job)

// WithLogger sets the structured log sink. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// WithTimeout sets the staleness timeout used by EvaluateStatus on a handle
// that is polled without RunToCompletion. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(j *Job) {
		if d > 0 {
			j.timeout = d
		}
	}
}

// WithClock replaces the wall clock used for sleeps and staleness checks.
func WithClock(c clock.Clock) Option {
	return func(j *Job) {
		if c != nil {
			j.clock = c
		}
	}
}

// New binds body to name in namespace. The body is copied and its
// metadata.name is overwritten with name; the caller's object is untouched.
func New(cluster Cluster, body *batchv1.Job, name, namespace string, opts ...Option) *Job {
	if name == "" {
		name = DefaultName
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	var desc *batchv1.Job
	if body != nil {
		desc = body.DeepCopy()
	} else {
		desc = &batchv1.Job{}
	}
	desc.Name = name

	j := &Job{
		name:      name,
		namespace: namespace,
		status:    StatusInitialized,
		body:      desc,
		timeout:   DefaultTimeout,
		cluster:   cluster,
		clock:     clock.RealClock{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(j)
	}
	j.logger = j.logger.With("job", name, "namespace", namespace)
	j.metrics = newTelemetry(j.logger)

	return j
}

// Name returns the Job name.
func (j *Job) Name() string { return j.name }

// Namespace returns the Job namespace.
func (j *Job) Namespace() string { return j.namespace }

// Status returns the last status the handle observed.
func (j *Job) Status() Status { return j.status }

// Body returns the descriptor that is (or will be) submitted.
func (j *Job) Body() *batchv1.Job { return j.body }

// Submit creates the Job. If a Job with the same name already exists it is
// adopted by reading it back, so repeated submissions are harmless.
func (j *Job) Submit(ctx context.Context) error {
	j.logger.Debug("Creating job", "body", j.body)

	result, err := j.cluster.CreateJob(ctx, j.namespace, j.body)
	if err != nil {
		j.logger.Debug("Job creation failed", "error", err)
		return fmt.Errorf("failed to create job %s: %w", j.name, err)
	}

	switch result {
	case AlreadyExists:
		j.logger.Debug("Reading existing job")
		if _, err := j.cluster.ReadJob(ctx, j.name, j.namespace); err != nil {
			return fmt.Errorf("failed to read existing job %s: %w", j.name, err)
		}
	case Created:
		j.logger.Debug("Job created")
	}

	return nil
}

// Delete removes the Job from the cluster with background propagation to its
// pods. It returns as soon as the cluster accepts the request.
func (j *Job) Delete(ctx context.Context) error {
	j.logger.Info("Removing job")
	if err := j.cluster.DeleteJob(ctx, j.name, j.namespace, metav1.DeletePropagationBackground); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", j.name, err)
	}
	return nil
}
