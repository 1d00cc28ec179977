// Package cancel builds the cancellation predicates a run polls between
// status evaluations.
package cancel

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/time/rate"
	batchv1 "k8s.io/api/batch/v1"
)

// Func reports whether the run should be cancelled. It must not block for long.
type Func func() bool

// JobReader reads a Job. kube.Client satisfies it.
type JobReader interface {
	ReadJob(ctx context.Context, name, namespace string) (*batchv1.Job, error)
}

// Never never cancels.
func Never() bool { return false }

// Signal is true once ctx is done, e.g. a signal.NotifyContext on SIGTERM.
func Signal(ctx context.Context) Func {
	return func() bool {
		return ctx.Err() != nil
	}
}

// Any is true as soon as one of fns is true, and stays true afterwards.
// Nil entries are skipped.
func Any(fns ...Func) Func {
	var fired atomic.Bool
	return func() bool {
		if fired.Load() {
			return true
		}
		for _, fn := range fns {
			if fn != nil && fn() {
				fired.Store(true)
				return true
			}
		}
		return false
	}
}

// LabelFile checks a downward API labels file (one key="value" per line) for
// key set to value. A missing file means not cancelled.
func LabelFile(path, key, value string, logger *slog.Logger) Func {
	return func() bool {
		labels, err := readLabelsFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("Failed to read labels file", "path", path, "error", err)
			}
			return false
		}
		return labels[key] == value
	}
}

func readLabelsFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	labels := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if unquoted, err := strconv.Unquote(v); err == nil {
			v = unquoted
		}
		labels[k] = v
	}
	return labels, scanner.Err()
}

// JobLabel reads the labels of the named Job through the cluster and reports
// whether key is set to value. Reads are throttled by limiter; a throttled
// call or a failed read returns the last observed answer.
func JobLabel(ctx context.Context, reader JobReader, name, namespace, key, value string, limiter *rate.Limiter, logger *slog.Logger) Func {
	var last bool
	return func() bool {
		if limiter != nil && !limiter.Allow() {
			return last
		}
		j, err := reader.ReadJob(ctx, name, namespace)
		if err != nil {
			logger.Warn("Failed to read cancellation label", "job", name, "namespace", namespace, "error", err)
			return last
		}
		last = j.Labels[key] == value
		return last
	}
}
