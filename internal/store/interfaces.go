package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	JobName   string
	Namespace string
	Statuses  []string
	Limit     int
}

// RunStore persists the history of reconciliation runs.
type RunStore interface {
	// CreateRun inserts the initial state of a run.
	CreateRun(ctx context.Context, run *RunRecord) error

	// FinishRun records the terminal status of a run. errMsg may be nil.
	FinishRun(ctx context.Context, id uuid.UUID, status string, errMsg *string, finishedAt time.Time) error

	// GetRun returns a run by its ID, or ErrRunNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (*RunRecord, error)

	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error)
}
