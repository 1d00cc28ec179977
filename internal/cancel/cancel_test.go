package cancel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/time/rate"
	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeReader struct {
	labels map[string]string
	err    error
	reads  int
}

func (f *fakeReader) ReadJob(ctx context.Context, name, namespace string) (*batchv1.Job, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	return &batchv1.Job{ObjectMeta: metav1.ObjectMeta{Name: name, Labels: f.labels}}, nil
}

func TestSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fn := Signal(ctx)

	if fn() {
		t.Error("expected false before cancellation")
	}
	cancel()
	if !fn() {
		t.Error("expected true after cancellation")
	}
}

func TestAny(t *testing.T) {
	calls := 0
	flip := func() bool {
		calls++
		return calls == 2
	}

	fn := Any(nil, Never, flip)

	if fn() {
		t.Error("expected false on first check")
	}
	if !fn() {
		t.Error("expected true once a predicate fires")
	}
	if !fn() {
		t.Error("expected cancellation to be sticky")
	}
	if calls != 2 {
		t.Errorf("expected predicates not to be re-evaluated after firing, got %d calls", calls)
	}
}

func TestAny_Empty(t *testing.T) {
	if Any()() {
		t.Error("expected empty Any to never cancel")
	}
}

func TestLabelFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labels")

	fn := LabelFile(path, "task-status", "Cancelled", discard)

	if fn() {
		t.Error("expected false for a missing file")
	}

	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write labels: %v", err)
		}
	}

	write("controller-uid=\"abc\"\ntask-status=\"Running\"\n")
	if fn() {
		t.Error("expected false while status is Running")
	}

	write("controller-uid=\"abc\"\ntask-status=\"Cancelled\"\n")
	if !fn() {
		t.Error("expected true once status is Cancelled")
	}

	write("task-status=Cancelled\n")
	if !fn() {
		t.Error("expected unquoted values to match too")
	}
}

func TestJobLabel(t *testing.T) {
	reader := &fakeReader{labels: map[string]string{"task-status": "Running"}}
	fn := JobLabel(context.Background(), reader, "taskmaster", "default", "task-status", "Cancelled", nil, discard)

	if fn() {
		t.Error("expected false while status is Running")
	}

	reader.labels = map[string]string{"task-status": "Cancelled"}
	if !fn() {
		t.Error("expected true once labelled Cancelled")
	}
}

func TestJobLabel_ReadErrorKeepsLastAnswer(t *testing.T) {
	reader := &fakeReader{labels: map[string]string{"task-status": "Cancelled"}}
	fn := JobLabel(context.Background(), reader, "taskmaster", "default", "task-status", "Cancelled", nil, discard)

	if !fn() {
		t.Fatal("expected true")
	}
	reader.err = errors.New("connection refused")
	if !fn() {
		t.Error("expected last answer on read failure")
	}
}

func TestJobLabel_Throttled(t *testing.T) {
	reader := &fakeReader{labels: map[string]string{"task-status": "Cancelled"}}
	limiter := rate.NewLimiter(rate.Limit(0), 1)
	fn := JobLabel(context.Background(), reader, "taskmaster", "default", "task-status", "Cancelled", limiter, discard)

	if !fn() {
		t.Fatal("expected first call to use the burst token")
	}
	reader.labels = nil
	for i := 0; i < 3; i++ {
		if !fn() {
			t.Error("expected cached answer while throttled")
		}
	}
	if reader.reads != 1 {
		t.Errorf("expected a single cluster read, got %d", reader.reads)
	}
}
