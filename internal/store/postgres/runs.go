package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskmaster/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const defaultListLimit = 50

func (s *Store) CreateRun(ctx context.Context, run *store.RunRecord) error {
	query := `
		INSERT INTO runs (id, job_name, namespace, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query, run.ID, run.JobName, run.Namespace, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, id uuid.UUID, status string, errMsg *string, finishedAt time.Time) error {
	query := `UPDATE runs SET status = $2, error_message = $3, finished_at = $4 WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, id, status, errMsg, finishedAt)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrRunNotFound
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*store.RunRecord, error) {
	query := `
		SELECT id, job_name, namespace, status, error_message, started_at, finished_at
		FROM runs WHERE id = $1
	`

	var run store.RunRecord
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.JobName, &run.Namespace, &run.Status,
		&run.ErrorMessage, &run.StartedAt, &run.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	return &run, nil
}

func (s *Store) ListRuns(ctx context.Context, filter store.RunFilter) ([]store.RunRecord, error) {
	var conditions []string
	var args []interface{}

	if filter.JobName != "" {
		args = append(args, filter.JobName)
		conditions = append(conditions, fmt.Sprintf("job_name = $%d", len(args)))
	}
	if filter.Namespace != "" {
		args = append(args, filter.Namespace)
		conditions = append(conditions, fmt.Sprintf("namespace = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, pq.Array(filter.Statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	query := "SELECT id, job_name, namespace, status, error_message, started_at, finished_at FROM runs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []store.RunRecord
	for rows.Next() {
		var run store.RunRecord
		if err := rows.Scan(
			&run.ID, &run.JobName, &run.Namespace, &run.Status,
			&run.ErrorMessage, &run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
