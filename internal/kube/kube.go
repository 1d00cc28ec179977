// Package kube binds job.Cluster to a Kubernetes clientset.
package kube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"taskmaster/internal/job"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Config selects how the clientset is built.
type Config struct {
	// LocalKubeConfig skips the in-cluster configuration and reads a kubeconfig file.
	LocalKubeConfig bool
	// KubeConfigPath overrides $HOME/.kube/config.
	KubeConfigPath string
}

// Client implements job.Cluster on top of client-go.
type Client struct {
	clientset kubernetes.Interface
}

var _ job.Cluster = (*Client)(nil)

// homeDir returns the user's home directory.
func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return os.Getenv("USERPROFILE") // Windows
}

// NewClientset builds a clientset. Unless cfg.LocalKubeConfig is set it tries
// the in-cluster configuration first and falls back to the kubeconfig file.
func NewClientset(cfg Config, logger *slog.Logger) (kubernetes.Interface, error) {
	kubeconfig := cfg.KubeConfigPath
	if kubeconfig == "" {
		kubeconfig = filepath.Join(homeDir(), ".kube", "config")
	}

	var restConfig *rest.Config
	var err error
	if !cfg.LocalKubeConfig {
		restConfig, err = rest.InClusterConfig()
		if err != nil {
			logger.Info("In-cluster config not available, trying kubeconfig", "error", err)
		}
	}
	if restConfig == nil {
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config: %w", err)
		}
		logger.Info("Using kubeconfig", "path", kubeconfig)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}
	return clientset, nil
}

// New wraps an existing clientset.
func New(clientset kubernetes.Interface) *Client {
	return &Client{clientset: clientset}
}

// CreateJob implements job.Cluster.
func (c *Client) CreateJob(ctx context.Context, namespace string, j *batchv1.Job) (job.CreateResult, error) {
	_, err := c.clientset.BatchV1().Jobs(namespace).Create(ctx, j, metav1.CreateOptions{})
	if err == nil {
		return job.Created, nil
	}
	if apierrors.IsAlreadyExists(err) {
		return job.AlreadyExists, nil
	}
	return job.Created, statusError(err)
}

// ReadJob implements job.Cluster.
func (c *Client) ReadJob(ctx context.Context, name, namespace string) (*batchv1.Job, error) {
	return c.clientset.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
}

// ListPods implements job.Cluster.
func (c *Client) ListPods(ctx context.Context, namespace, labelSelector string) ([]corev1.Pod, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labelSelector,
	})
	if err != nil {
		return nil, err
	}
	return pods.Items, nil
}

// DeleteJob implements job.Cluster.
func (c *Client) DeleteJob(ctx context.Context, name, namespace string, propagation metav1.DeletionPropagation) error {
	return c.clientset.BatchV1().Jobs(namespace).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
}

// statusError keeps the HTTP code and reason of an API failure. Errors that
// never reached the API server have code 0.
func statusError(err error) *job.StatusError {
	var apiStatus apierrors.APIStatus
	if errors.As(err, &apiStatus) {
		s := apiStatus.Status()
		return &job.StatusError{
			Code:    s.Code,
			Reason:  string(s.Reason),
			Message: s.Message,
			Cause:   err,
		}
	}
	return &job.StatusError{
		Reason:  string(metav1.StatusReasonUnknown),
		Message: err.Error(),
		Cause:   err,
	}
}
