package cmd

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"taskmaster/internal/config"
	"taskmaster/internal/store"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/utils/clock"
	testingclock "k8s.io/utils/clock/testing"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeHistory is an in-memory runHistory.
type fakeHistory struct {
	mu       sync.Mutex
	runs     map[uuid.UUID]*store.RunRecord
	listed   []store.RunRecord
	filters  []store.RunFilter
	listErr  error
	closed   bool
	finished []string
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{runs: make(map[uuid.UUID]*store.RunRecord)}
}

func (h *fakeHistory) CreateRun(ctx context.Context, run *store.RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := *run
	h.runs[run.ID] = &r
	return nil
}

func (h *fakeHistory) FinishRun(ctx context.Context, id uuid.UUID, status string, errMsg *string, finishedAt time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.runs[id]
	if !ok {
		return store.ErrRunNotFound
	}
	r.Status = status
	r.ErrorMessage = errMsg
	r.FinishedAt = &finishedAt
	h.finished = append(h.finished, status)
	return nil
}

func (h *fakeHistory) GetRun(ctx context.Context, id uuid.UUID) (*store.RunRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.runs[id]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	return r, nil
}

func (h *fakeHistory) ListRuns(ctx context.Context, filter store.RunFilter) ([]store.RunRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.filters = append(h.filters, filter)
	return h.listed, h.listErr
}

func (h *fakeHistory) Close() error {
	h.closed = true
	return nil
}

type testEnv struct {
	clientset  *fake.Clientset
	history    *fakeHistory
	historyErr error
	clock      *testingclock.FakeClock
	migrated   []string
	migrateErr error
}

// resetViper clears viper config and flag values between tests for isolation
func resetViper() {
	viper.Reset()
	cfgFile = ""
	resetFlags(rootCmd)
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func setupTest(t *testing.T, objects ...runtime.Object) *testEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	resetViper()

	env := &testEnv{
		clientset: fake.NewClientset(objects...),
		history:   newFakeHistory(),
		clock:     testingclock.NewFakeClock(epoch),
	}

	origClientset, origHistory, origMigrations, origClock := newClientset, openRunHistory, runMigrations, newClock
	newClientset = func(*config.Config, *slog.Logger) (kubernetes.Interface, error) {
		return env.clientset, nil
	}
	openRunHistory = func(context.Context, string) (runHistory, error) {
		if env.historyErr != nil {
			return nil, env.historyErr
		}
		return env.history, nil
	}
	runMigrations = func(ctx context.Context, databaseURL string) error {
		env.migrated = append(env.migrated, databaseURL)
		return env.migrateErr
	}
	newClock = func() clock.Clock { return env.clock }

	t.Cleanup(func() {
		newClientset, openRunHistory, runMigrations, newClock = origClientset, origHistory, origMigrations, origClock
		rootCmd.SetIn(nil)
		resetViper()
	})
	return env
}

// execute runs the root command and returns stdout and stderr separately.
func execute(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	want := map[string]bool{"run": false, "status": false, "delete": false, "history": false, "inspect": false, "migrate": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %q subcommand to be registered with root command", name)
		}
	}
}

func TestRootCommand_ExecuteReturnsNoError(t *testing.T) {
	setupTest(t)

	if _, _, err := execute("--help"); err != nil {
		t.Errorf("root command should execute without error: %v", err)
	}
}

func TestExecute_ReturnsError(t *testing.T) {
	setupTest(t)

	rootCmd.SetArgs([]string{"unknown-command-xyz"})
	if err := Execute(); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestRootCommand_EnvVarBinding(t *testing.T) {
	env := setupTest(t)
	t.Setenv("TASKMASTER_NAMESPACE", "from-env")
	t.Setenv("TASKMASTER_DATABASE_URL", "postgres://env/db")

	if _, _, err := execute("migrate"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(env.migrated) != 1 || env.migrated[0] != "postgres://env/db" {
		t.Errorf("expected database url from env var, got: %v", env.migrated)
	}
	if ns := viper.GetString(config.KeyNamespace); ns != "from-env" {
		t.Errorf("expected namespace from env var, got: %s", ns)
	}
}

func TestRootCommand_FlagOverridesEnv(t *testing.T) {
	env := setupTest(t)
	t.Setenv("TASKMASTER_DATABASE_URL", "postgres://env/db")

	if _, _, err := execute("migrate", "--database-url", "postgres://flag/db"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(env.migrated) != 1 || env.migrated[0] != "postgres://flag/db" {
		t.Errorf("expected database url from flag, got: %v", env.migrated)
	}
}

func TestRootCommand_CustomConfigFile(t *testing.T) {
	setupTest(t)

	tmpFile, err := os.CreateTemp(t.TempDir(), "taskmaster-test-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.WriteString("namespace: from-file\npoll-interval: 30s\n")
	tmpFile.Close()

	cfgFile = tmpFile.Name()
	initConfig()

	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Namespace != "from-file" {
		t.Errorf("expected namespace from config file, got: %s", cfg.Namespace)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("expected poll interval from config file, got: %v", cfg.PollInterval)
	}
}

func TestRootCommand_InvalidLogLevel(t *testing.T) {
	setupTest(t)

	_, _, err := execute("status", "some-job", "--log-level", "loud")
	if err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestCheckOutput_RejectsUnknownFormat(t *testing.T) {
	setupTest(t)

	_, _, err := execute("status", "some-job", "--output", "xml")
	if err == nil || !strings.Contains(err.Error(), "unsupported output") {
		t.Errorf("expected unsupported output error, got: %v", err)
	}
}

func TestMigrateCommand_RequiresDatabaseURL(t *testing.T) {
	env := setupTest(t)

	_, _, err := execute("migrate")
	if err == nil || !strings.Contains(err.Error(), "--database-url") {
		t.Errorf("expected database url error, got: %v", err)
	}
	if len(env.migrated) != 0 {
		t.Error("expected no migration attempt")
	}
}

func TestMigrateCommand_Failure(t *testing.T) {
	env := setupTest(t)
	env.migrateErr = errors.New("connection refused")

	_, _, err := execute("migrate", "--database-url", "postgres://test/db")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected wrapped migration error, got: %v", err)
	}
}

func TestMigrateCommand_Success(t *testing.T) {
	setupTest(t)

	stdout, _, err := execute("migrate", "--database-url", "postgres://test/db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "up to date") {
		t.Errorf("expected confirmation, got: %s", stdout)
	}
}
