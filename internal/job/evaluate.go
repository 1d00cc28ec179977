package job

import (
	"context"
	"fmt"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
)

// ReasonImagePullBackOff is the container waiting reason for an image the
// cluster keeps failing to pull.
const ReasonImagePullBackOff = "ImagePullBackOff"

// transitional conditions do not end a run by themselves. FailureTarget and
// SuccessCriteriaMet precede Complete or Failed on recent clusters. Suspended
// Jobs wait for a queue admitter (e.g. Kueue) to resume them.
var transitional = map[batchv1.JobConditionType]bool{
	batchv1.JobFailureTarget:      true,
	batchv1.JobSuccessCriteriaMet: true,
	batchv1.JobSuspended:          true,
}

// EvaluateStatus reads the Job once and classifies it.
//
// allPodsRunning is the hint returned by the previous call: once every pod has
// left Pending the pod scan is skipped on later polls. The updated hint is
// returned alongside the status. Read and list failures are returned as
// errors; nothing is retried here.
//
// Two paths never reach a terminal status on their own: once the hint is true
// a pod that fails after running is not re-checked, and a suspended Job has no
// active pods, so its active duration stays zero until it is resumed. Callers
// rely on the cancellation predicate for both.
func (j *Job) EvaluateStatus(ctx context.Context, allPodsRunning bool) (Status, bool, error) {
	if j.status.Terminal() {
		return j.status, allPodsRunning, nil
	}

	j.metrics.poll(ctx, j.namespace)

	current, err := j.cluster.ReadJob(ctx, j.name, j.namespace)
	if err != nil {
		return j.status, allPodsRunning, fmt.Errorf("failed to read job %s: %w", j.name, err)
	}

	if status, ok := classifyConditions(current.Status.Conditions); ok {
		j.status = status
		return j.status, allPodsRunning, nil
	}

	j.status = StatusRunning

	var active time.Duration
	if current.Status.Active > 0 && current.Status.StartTime != nil {
		active = j.clock.Since(current.Status.StartTime.Time)
	}
	if active <= j.timeout || allPodsRunning {
		return j.status, allPodsRunning, nil
	}

	pods, err := j.cluster.ListPods(ctx, j.namespace, "job-name="+j.name)
	if err != nil {
		return j.status, allPodsRunning, fmt.Errorf("failed to list pods for job %s: %w", j.name, err)
	}

	allPodsRunning = true
	for i := range pods {
		pod := &pods[i]
		if pod.Status.Phase != corev1.PodPending || pod.Status.StartTime == nil {
			continue
		}
		allPodsRunning = false

		pending := j.clock.Since(pod.Status.StartTime.Time)
		if pending <= j.timeout {
			continue
		}
		if waiting := firstContainerWaiting(pod); waiting != nil && waiting.Reason == ReasonImagePullBackOff {
			j.logger.Info("Pod stuck pulling image",
				"pod", pod.Name,
				"pending", pending.String(),
				"reason", waiting.Reason,
				"message", waiting.Message,
			)
			j.status = StatusError
			return j.status, allPodsRunning, nil
		}
	}

	return j.status, allPodsRunning, nil
}

// classifyConditions maps the Job's conditions to a terminal status. ok is
// false while the Job has not reported anything conclusive.
func classifyConditions(conditions []batchv1.JobCondition) (Status, bool) {
	if len(conditions) == 0 {
		return "", false
	}
	for _, c := range conditions {
		if c.Type == batchv1.JobComplete && c.Status == corev1.ConditionTrue {
			return StatusComplete, true
		}
	}
	for _, c := range conditions {
		if c.Type == batchv1.JobFailed && c.Status == corev1.ConditionTrue {
			return StatusFailed, true
		}
	}
	for _, c := range conditions {
		if !transitional[c.Type] {
			return StatusError, true
		}
	}
	return "", false
}

func firstContainerWaiting(pod *corev1.Pod) *corev1.ContainerStateWaiting {
	if len(pod.Status.ContainerStatuses) == 0 {
		return nil
	}
	return pod.Status.ContainerStatuses[0].State.Waiting
}
