package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"olympics-etl/internal/metrics"
)

// RunStatus is the state of a pipeline run
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// AttemptStatus is the outcome of a single task attempt
type AttemptStatus string

const (
	AttemptSuccess        AttemptStatus = "success"
	AttemptFailed         AttemptStatus = "failed"
	AttemptUpstreamFailed AttemptStatus = "upstream_failed"
)

// Run is one execution of a pipeline
type Run struct {
	ID           string        `json:"id"`
	PipelineID   string        `json:"pipeline_id"`
	ScheduledFor time.Time     `json:"scheduled_for"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
	Status       RunStatus     `json:"status"`
	Error        string        `json:"error,omitempty"`
	Attempts     []TaskAttempt `json:"attempts,omitempty"`
}

// TaskAttempt is one try at running a task within a run
type TaskAttempt struct {
	RunID      string        `json:"run_id"`
	TaskID     string        `json:"task_id"`
	Attempt    int           `json:"attempt"`
	Seq        int           `json:"seq"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Status     AttemptStatus `json:"status"`
	Error      string        `json:"error,omitempty"`
	Note       string        `json:"note,omitempty"`
}

type runRow struct {
	ID           string         `db:"id"`
	PipelineID   string         `db:"pipeline_id"`
	ScheduledFor int64          `db:"scheduled_for"`
	StartedAt    int64          `db:"started_at"`
	FinishedAt   sql.NullInt64  `db:"finished_at"`
	Status       string         `db:"status"`
	Error        sql.NullString `db:"error_message"`
}

func (r runRow) toRun() Run {
	run := Run{
		ID:           r.ID,
		PipelineID:   r.PipelineID,
		ScheduledFor: time.Unix(r.ScheduledFor, 0).UTC(),
		StartedAt:    time.Unix(r.StartedAt, 0).UTC(),
		Status:       RunStatus(r.Status),
		Error:        r.Error.String,
	}
	if r.FinishedAt.Valid {
		t := time.Unix(r.FinishedAt.Int64, 0).UTC()
		run.FinishedAt = &t
	}
	return run
}

type attemptRow struct {
	RunID      string         `db:"run_id"`
	TaskID     string         `db:"task_id"`
	Attempt    int            `db:"attempt"`
	Seq        int            `db:"seq"`
	StartedAt  int64          `db:"started_at"`
	FinishedAt int64          `db:"finished_at"`
	Status     string         `db:"status"`
	Error      sql.NullString `db:"error_message"`
	Note       sql.NullString `db:"note"`
}

func (r attemptRow) toAttempt() TaskAttempt {
	return TaskAttempt{
		RunID:      r.RunID,
		TaskID:     r.TaskID,
		Attempt:    r.Attempt,
		Seq:        r.Seq,
		StartedAt:  time.Unix(r.StartedAt, 0).UTC(),
		FinishedAt: time.Unix(r.FinishedAt, 0).UTC(),
		Status:     AttemptStatus(r.Status),
		Error:      r.Error.String,
		Note:       r.Note.String,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateRun records the start of a run
func (d *DB) CreateRun(ctx context.Context, run *Run) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpCreateRun))
	defer timer.ObserveDuration()

	query := d.db.Rebind(`
		INSERT INTO pipeline_runs (id, pipeline_id, scheduled_for, started_at, status)
		VALUES (?, ?, ?, ?, ?)
	`)

	_, err := d.db.ExecContext(ctx, query,
		run.ID, run.PipelineID, run.ScheduledFor.Unix(), run.StartedAt.Unix(), string(run.Status))
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCreateRun).Inc()
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// FinishRun stores the final status of a run
func (d *DB) FinishRun(ctx context.Context, id string, status RunStatus, errMsg string, finishedAt time.Time) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpFinishRun))
	defer timer.ObserveDuration()

	query := d.db.Rebind(`
		UPDATE pipeline_runs
		SET status = ?, error_message = ?, finished_at = ?
		WHERE id = ?
	`)

	result, err := d.db.ExecContext(ctx, query, string(status), nullString(errMsg), finishedAt.Unix(), id)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpFinishRun).Inc()
		return fmt.Errorf("failed to finish run: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpFinishRun).Inc()
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}

	return nil
}

// RecordAttempt stores the outcome of one task attempt. Seq orders the
// attempts of a run.
func (d *DB) RecordAttempt(ctx context.Context, a *TaskAttempt) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpRecordAttempt))
	defer timer.ObserveDuration()

	query := d.db.Rebind(`
		INSERT INTO task_attempts (run_id, task_id, attempt, seq, started_at, finished_at, status, error_message, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := d.db.ExecContext(ctx, query,
		a.RunID, a.TaskID, a.Attempt, a.Seq, a.StartedAt.Unix(), a.FinishedAt.Unix(),
		string(a.Status), nullString(a.Error), nullString(a.Note))
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpRecordAttempt).Inc()
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	return nil
}

// ListRuns returns the most recent runs, newest first, without attempts
func (d *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpListRuns))
	defer timer.ObserveDuration()

	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, pipeline_id, scheduled_for, started_at, finished_at, status, error_message
		FROM pipeline_runs
		ORDER BY started_at DESC, id DESC
		` + d.dialect.Limit(limit)

	var rows []runRow
	if err := d.db.SelectContext(ctx, &rows, query); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpListRuns).Inc()
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]Run, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, r.toRun())
	}
	return runs, nil
}

// GetRun returns a run with its attempts, or nil if it does not exist
func (d *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetRun))
	defer timer.ObserveDuration()

	query := d.db.Rebind(`
		SELECT id, pipeline_id, scheduled_for, started_at, finished_at, status, error_message
		FROM pipeline_runs
		WHERE id = ?
	`)

	var row runRow
	if err := d.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetRun).Inc()
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run := row.toRun()
	attempts, err := d.ListAttempts(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Attempts = attempts

	return &run, nil
}

// ListAttempts returns the attempts of a run in execution order
func (d *DB) ListAttempts(ctx context.Context, runID string) ([]TaskAttempt, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpListAttempts))
	defer timer.ObserveDuration()

	query := d.db.Rebind(`
		SELECT run_id, task_id, attempt, seq, started_at, finished_at, status, error_message, note
		FROM task_attempts
		WHERE run_id = ?
		ORDER BY seq
	`)

	var rows []attemptRow
	if err := d.db.SelectContext(ctx, &rows, query, runID); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpListAttempts).Inc()
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	attempts := make([]TaskAttempt, 0, len(rows))
	for _, r := range rows {
		attempts = append(attempts, r.toAttempt())
	}
	return attempts, nil
}
