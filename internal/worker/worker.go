package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"olympics-etl/internal/database"
	"olympics-etl/internal/metrics"
	"olympics-etl/internal/pipeline"
)

// Recorder persists the history of runs and task attempts
type Recorder interface {
	CreateRun(ctx context.Context, run *database.Run) error
	FinishRun(ctx context.Context, id string, status database.RunStatus, errMsg string, finishedAt time.Time) error
	RecordAttempt(ctx context.Context, attempt *database.TaskAttempt) error
}

// TaskError reports the task that halted a run
type TaskError struct {
	TaskID   string
	Attempts int
	Err      error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed after %d attempt(s): %v", e.TaskID, e.Attempts, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Worker executes pipeline runs
type Worker struct {
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewWorker creates a worker that records runs through recorder
func NewWorker(recorder Recorder) *Worker {
	return &Worker{
		recorder: recorder,
		logger:   slog.Default(),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RunDAG executes every task of dag once, in dependency order. A failing
// task is retried dag.Retries times with dag.RetryDelay between attempts.
// When a task exhausts its attempts the run stops, the remaining tasks are
// recorded as upstream_failed and a *TaskError is returned.
func (w *Worker) RunDAG(ctx context.Context, dag *pipeline.DAG, scheduledFor time.Time) error {
	if err := dag.Validate(); err != nil {
		return fmt.Errorf("invalid dag: %w", err)
	}
	order, err := dag.TopologicalOrder()
	if err != nil {
		return err
	}

	run := &database.Run{
		ID:           uuid.NewString(),
		PipelineID:   dag.ID,
		ScheduledFor: scheduledFor,
		StartedAt:    w.now(),
		Status:       database.RunRunning,
	}
	if err := w.recorder.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}

	logger := w.logger.With("dag", dag.ID, "run_id", run.ID)
	logger.Info("Starting run", "scheduled_for", scheduledFor, "tasks", len(order))

	seq := 0
	var runErr error

	for i, task := range order {
		attempts, err := w.runTask(ctx, logger, dag, run.ID, task, &seq)
		if err == nil {
			continue
		}

		runErr = &TaskError{TaskID: task.ID, Attempts: attempts, Err: err}
		for _, skipped := range order[i+1:] {
			seq++
			now := w.now()
			w.recordAttempt(ctx, logger, &database.TaskAttempt{
				RunID:      run.ID,
				TaskID:     skipped.ID,
				Seq:        seq,
				StartedAt:  now,
				FinishedAt: now,
				Status:     database.AttemptUpstreamFailed,
				Error:      fmt.Sprintf("upstream task %s failed", task.ID),
			})
			metrics.TaskAttemptsTotal.WithLabelValues(dag.ID, skipped.ID, metrics.ResultUpstreamFailed).Inc()
			logger.Warn("Task not run", "task", skipped.ID, "upstream", task.ID)
		}
		break
	}

	finishedAt := w.now()
	status, result, errMsg := database.RunSuccess, metrics.ResultSuccess, ""
	if runErr != nil {
		status, result, errMsg = database.RunFailed, metrics.ResultFailure, runErr.Error()
	}

	// the run is finished even when the caller gave up on it
	if err := w.recorder.FinishRun(context.WithoutCancel(ctx), run.ID, status, errMsg, finishedAt); err != nil {
		logger.Error("Failed to record run end", "error", err)
	}

	duration := finishedAt.Sub(run.StartedAt)
	metrics.RunsTotal.WithLabelValues(dag.ID, result).Inc()
	metrics.RunDuration.WithLabelValues(dag.ID, result).Observe(duration.Seconds())

	if runErr != nil {
		logger.Error("Run failed", "error", runErr, "duration", duration)
		return runErr
	}

	metrics.LastSuccessfulRun.WithLabelValues(dag.ID).Set(float64(finishedAt.Unix()))
	logger.Info("Run succeeded", "duration", duration)
	return nil
}

// runTask makes up to 1+dag.Retries attempts at task. It returns the number
// of attempts made and the last error.
func (w *Worker) runTask(ctx context.Context, logger *slog.Logger, dag *pipeline.DAG, runID string, task *pipeline.Task, seq *int) (int, error) {
	maxAttempts := 1 + dag.Retries
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.TaskRetryTotal.WithLabelValues(dag.ID, task.ID).Inc()
			logger.Warn("Retrying task",
				"task", task.ID,
				"attempt", attempt,
				"delay", dag.RetryDelay,
				"error", lastErr)

			if err := w.sleep(ctx, dag.RetryDelay); err != nil {
				return attempt - 1, errors.Join(lastErr, err)
			}
		}

		*seq++
		start := w.now()
		note, err := task.Run(ctx)
		finished := w.now()

		a := &database.TaskAttempt{
			RunID:      runID,
			TaskID:     task.ID,
			Attempt:    attempt,
			Seq:        *seq,
			StartedAt:  start,
			FinishedAt: finished,
			Status:     database.AttemptSuccess,
			Note:       note,
		}
		result := metrics.ResultSuccess
		if err != nil {
			a.Status = database.AttemptFailed
			a.Error = err.Error()
			result = metrics.ResultFailure
		}
		w.recordAttempt(ctx, logger, a)

		metrics.TaskAttemptsTotal.WithLabelValues(dag.ID, task.ID, result).Inc()
		metrics.TaskDuration.WithLabelValues(dag.ID, task.ID, result).Observe(finished.Sub(start).Seconds())

		if err == nil {
			logger.Info("Task succeeded", "task", task.ID, "attempt", attempt, "note", note)
			return attempt, nil
		}

		logger.Error("Task attempt failed", "task", task.ID, "attempt", attempt, "error", err)
		lastErr = err
	}

	return maxAttempts, lastErr
}

func (w *Worker) recordAttempt(ctx context.Context, logger *slog.Logger, a *database.TaskAttempt) {
	if err := w.recorder.RecordAttempt(context.WithoutCancel(ctx), a); err != nil {
		logger.Error("Failed to record attempt", "task", a.TaskID, "attempt", a.Attempt, "error", err)
	}
}

// RunTask runs a single task of dag once, without retries or run history
func (w *Worker) RunTask(ctx context.Context, dag *pipeline.DAG, taskID string) (string, error) {
	task := dag.Task(taskID)
	if task == nil {
		return "", fmt.Errorf("dag %s has no task %q", dag.ID, taskID)
	}

	start := w.now()
	note, err := task.Run(ctx)
	finished := w.now()

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFailure
	}
	metrics.TaskAttemptsTotal.WithLabelValues(dag.ID, task.ID, result).Inc()
	metrics.TaskDuration.WithLabelValues(dag.ID, task.ID, result).Observe(finished.Sub(start).Seconds())

	if err != nil {
		return "", &TaskError{TaskID: task.ID, Attempts: 1, Err: err}
	}
	return note, nil
}
