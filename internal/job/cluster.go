package job

import (
	"context"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Cluster is the subset of the cluster API a Job handle needs.
// Every call is synchronous; transport and API failures come back as errors.
type Cluster interface {
	// CreateJob submits job into namespace. A name collision is reported as
	// AlreadyExists with a nil error; any other failure is a *StatusError.
	CreateJob(ctx context.Context, namespace string, job *batchv1.Job) (CreateResult, error)

	// ReadJob returns the current state of the named Job.
	ReadJob(ctx context.Context, name, namespace string) (*batchv1.Job, error)

	// ListPods returns the pods in namespace matching labelSelector.
	ListPods(ctx context.Context, namespace, labelSelector string) ([]corev1.Pod, error)

	// DeleteJob removes the named Job using the given propagation policy.
	// It does not wait for dependents to be removed.
	DeleteJob(ctx context.Context, name, namespace string, propagation metav1.DeletionPropagation) error
}

// CreateResult tells a successful creation apart from a name collision.
type CreateResult int

const (
	Created CreateResult = iota
	AlreadyExists
)

func (r CreateResult) String() string {
	switch r {
	case Created:
		return "Created"
	case AlreadyExists:
		return "AlreadyExists"
	default:
		return fmt.Sprintf("CreateResult(%d)", int(r))
	}
}

// StatusError is a fatal API failure with the status code and reason the
// cluster reported.
type StatusError struct {
	Code    int32
	Reason  string
	Message string
	Cause   error
}

// Error returns the human-readable error message.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cluster returned %d (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("cluster returned %d (%s): %s", e.Code, e.Reason, e.Message)
}

// Unwrap returns the underlying client error, if any.
func (e *StatusError) Unwrap() error {
	return e.Cause
}
