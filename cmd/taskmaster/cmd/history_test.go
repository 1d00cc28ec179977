package cmd

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"taskmaster/internal/store"
	"taskmaster/pkg/api"

	"github.com/google/uuid"
)

func sampleRuns() []store.RunRecord {
	finished := epoch.Add(90 * time.Second)
	longErr := strings.Repeat("x", 80)
	return []store.RunRecord{
		{
			ID:         uuid.MustParse("11111111-1111-1111-1111-111111111111"),
			JobName:    "report",
			Namespace:  "default",
			Status:     "Complete",
			StartedAt:  epoch,
			FinishedAt: &finished,
		},
		{
			ID:           uuid.MustParse("22222222-2222-2222-2222-222222222222"),
			JobName:      "report",
			Namespace:    "default",
			Status:       "Error",
			ErrorMessage: &longErr,
			StartedAt:    epoch.Add(-time.Hour),
		},
	}
}

func TestHistoryCommand_Table(t *testing.T) {
	env := setupTest(t)
	env.history.listed = sampleRuns()

	stdout, _, err := execute("history", "--database-url", "postgres://test/db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout, "RUN ID") {
		t.Errorf("expected table header, got: %s", stdout)
	}
	if !strings.Contains(stdout, "11111111-1111-1111-1111-111111111111") {
		t.Errorf("expected first run id, got: %s", stdout)
	}
	if !strings.Contains(stdout, "1m 30s") {
		t.Errorf("expected duration of the finished run, got: %s", stdout)
	}
	if !strings.Contains(stdout, strings.Repeat("x", 47)+"...") {
		t.Errorf("expected truncated error message, got: %s", stdout)
	}
	if !env.history.closed {
		t.Error("expected run history to be closed")
	}
}

func TestHistoryCommand_Filters(t *testing.T) {
	env := setupTest(t)

	_, _, err := execute("history", "report", "--database-url", "postgres://test/db",
		"--namespace", "batch", "--status", "Failed, Error", "--limit", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := store.RunFilter{
		JobName:   "report",
		Namespace: "batch",
		Statuses:  []string{"Failed", "Error"},
		Limit:     5,
	}
	if len(env.history.filters) != 1 || !reflect.DeepEqual(env.history.filters[0], want) {
		t.Errorf("expected filter %+v, got %+v", want, env.history.filters)
	}
}

func TestHistoryCommand_DefaultNamespaceIsNotAFilter(t *testing.T) {
	env := setupTest(t)

	if _, _, err := execute("history", "--database-url", "postgres://test/db"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(env.history.filters) != 1 || env.history.filters[0].Namespace != "" {
		t.Errorf("expected no namespace filter, got %+v", env.history.filters)
	}
}

func TestHistoryCommand_Empty(t *testing.T) {
	setupTest(t)

	stdout, _, err := execute("history", "--database-url", "postgres://test/db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "No runs recorded") {
		t.Errorf("expected empty message, got: %s", stdout)
	}
}

func TestHistoryCommand_JSON(t *testing.T) {
	env := setupTest(t)
	env.history.listed = sampleRuns()

	stdout, _, err := execute("history", "--database-url", "postgres://test/db", "-o", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp api.ListRunsResponse
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("failed to parse output %q: %v", stdout, err)
	}
	if len(resp.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(resp.Runs))
	}
	if resp.Runs[0].Status != "Complete" || resp.Runs[0].FinishedAt == nil {
		t.Errorf("unexpected first run: %+v", resp.Runs[0])
	}
	if resp.Runs[1].Error == nil || resp.Runs[1].FinishedAt != nil {
		t.Errorf("unexpected second run: %+v", resp.Runs[1])
	}
}

func TestHistoryCommand_RequiresDatabaseURL(t *testing.T) {
	setupTest(t)

	_, _, err := execute("history")
	if err == nil || !strings.Contains(err.Error(), "--database-url") {
		t.Errorf("expected database url error, got: %v", err)
	}
}

func TestHistoryCommand_ListError(t *testing.T) {
	env := setupTest(t)
	env.history.listErr = errors.New("relation \"runs\" does not exist")

	_, _, err := execute("history", "--database-url", "postgres://test/db")
	if err == nil || !strings.Contains(err.Error(), "failed to list runs") {
		t.Errorf("expected list error, got: %v", err)
	}
}

func TestInspectCommand_Success(t *testing.T) {
	env := setupTest(t)
	for _, r := range sampleRuns() {
		r := r
		env.history.runs[r.ID] = &r
	}

	stdout, _, err := execute("inspect", "11111111-1111-1111-1111-111111111111", "--database-url", "postgres://test/db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "report") || !strings.Contains(stdout, "Complete") {
		t.Errorf("expected job name and status, got: %s", stdout)
	}
	if !strings.Contains(stdout, "1m 30s") {
		t.Errorf("expected run duration, got: %s", stdout)
	}
}

func TestInspectCommand_JSON(t *testing.T) {
	env := setupTest(t)
	for _, r := range sampleRuns() {
		r := r
		env.history.runs[r.ID] = &r
	}

	stdout, _, err := execute("inspect", "22222222-2222-2222-2222-222222222222",
		"--database-url", "postgres://test/db", "--output", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp api.RunRecordResponse
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("failed to parse output %q: %v", stdout, err)
	}
	if resp.Status != "Error" || resp.Error == nil {
		t.Errorf("unexpected run: %+v", resp)
	}
}

func TestInspectCommand_NotFound(t *testing.T) {
	setupTest(t)

	_, _, err := execute("inspect", uuid.NewString(), "--database-url", "postgres://test/db")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got: %v", err)
	}
}

func TestInspectCommand_InvalidID(t *testing.T) {
	setupTest(t)

	_, _, err := execute("inspect", "not-a-uuid", "--database-url", "postgres://test/db")
	if err == nil || !strings.Contains(err.Error(), "invalid run id") {
		t.Errorf("expected invalid id error, got: %v", err)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"short", "short"},
		{strings.Repeat("x", 50), strings.Repeat("x", 50)},
		{strings.Repeat("x", 51), strings.Repeat("x", 47) + "..."},
		{strings.Repeat("é", 60), strings.Repeat("é", 47) + "..."},
		{strings.Repeat("拉", 60), strings.Repeat("拉", 47) + "..."},
	}

	for _, tt := range tests {
		result := truncate(tt.in, 50)
		if result != tt.expected {
			t.Errorf("truncate(%q) = %q, want %q", tt.in, result, tt.expected)
		}
		if !utf8.ValidString(result) {
			t.Errorf("truncate(%q) produced invalid UTF-8: %q", tt.in, result)
		}
	}
}

func TestHistoryCommand_TruncatesMultiByteErrors(t *testing.T) {
	env := setupTest(t)
	msg := "image pull failed: " + strings.Repeat("é", 60)
	env.history.listed = []store.RunRecord{{
		ID:           uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		JobName:      "report",
		Namespace:    "default",
		Status:       "Error",
		ErrorMessage: &msg,
		StartedAt:    epoch,
	}}

	stdout, _, err := execute("history", "--database-url", "postgres://test/db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !utf8.ValidString(stdout) {
		t.Errorf("expected valid UTF-8 output, got: %q", stdout)
	}
	if !strings.Contains(stdout, truncate(msg, 50)) {
		t.Errorf("expected truncated error message, got: %s", stdout)
	}
}
