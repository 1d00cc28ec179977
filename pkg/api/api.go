// Package api contains the JSON output structs printed by the taskmaster CLI.
package api

import "time"

// RunSummary is printed by `taskmaster run --output json` once a Job settles.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	JobName    string    `json:"job_name"`
	Namespace  string    `json:"namespace"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// DurationSeconds is wall-clock time from submission to the final status.
	DurationSeconds float64 `json:"duration_seconds"`
	Error           *string `json:"error,omitempty"`
}

// JobStatusResponse is printed by `taskmaster status --output json`.
type JobStatusResponse struct {
	JobName   string `json:"job_name"`
	Namespace string `json:"namespace"`
	Status    string `json:"status"`
}

// RunRecordResponse represents one stored run in `taskmaster history --output json`.
type RunRecordResponse struct {
	ID         string     `json:"id"`
	JobName    string     `json:"job_name"`
	Namespace  string     `json:"namespace"`
	Status     string     `json:"status"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ListRunsResponse wraps a page of run records.
type ListRunsResponse struct {
	Runs []RunRecordResponse `json:"runs"`
}
