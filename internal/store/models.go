// Package store contains the run history layer for taskmaster.
package store

import (
	"time"

	"github.com/google/uuid"
)

// RunRecord is one reconciliation run of a named Job.
type RunRecord struct {
	ID           uuid.UUID
	JobName      string
	Namespace    string
	Status       string
	ErrorMessage *string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// Finished reports whether the run recorded a terminal outcome.
func (r *RunRecord) Finished() bool {
	return r.FinishedAt != nil
}
