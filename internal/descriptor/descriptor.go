// Package descriptor loads the batch/v1 Job manifest a run submits.
package descriptor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
)

const decodeBufferSize = 4096

// Load decodes a YAML or JSON Job manifest from r.
func Load(r io.Reader) (*batchv1.Job, error) {
	var job batchv1.Job
	if err := utilyaml.NewYAMLOrJSONDecoder(r, decodeBufferSize).Decode(&job); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("job manifest is empty")
		}
		return nil, fmt.Errorf("failed to decode job manifest: %w", err)
	}
	if err := Validate(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

// LoadFile reads a manifest from path.
func LoadFile(path string) (*batchv1.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job manifest: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// LoadString decodes an inline manifest.
func LoadString(manifest string) (*batchv1.Job, error) {
	return Load(strings.NewReader(manifest))
}

// Validate rejects manifests that cannot describe a Job.
func Validate(job *batchv1.Job) error {
	if job.Kind != "" && job.Kind != "Job" {
		return fmt.Errorf("expected kind Job, got %q", job.Kind)
	}
	if len(job.Spec.Template.Spec.Containers) == 0 {
		return errors.New("job manifest has no containers")
	}
	return nil
}

// ApplyPullPolicy forces imagePullPolicy Always on every container when always is set.
func ApplyPullPolicy(job *batchv1.Job, always bool) {
	if !always {
		return
	}
	spec := &job.Spec.Template.Spec
	for i := range spec.InitContainers {
		spec.InitContainers[i].ImagePullPolicy = corev1.PullAlways
	}
	for i := range spec.Containers {
		spec.Containers[i].ImagePullPolicy = corev1.PullAlways
	}
}

// GenerateName returns prefix followed by eight random hex characters.
func GenerateName(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if prefix == "" {
		return suffix
	}
	return strings.TrimSuffix(prefix, "-") + "-" + suffix
}
