package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"olympics-etl/internal/metrics"
	"olympics-etl/internal/pipeline"
)

// NextOccurrence returns the first start+k*interval (k >= 0) that is not
// before now
func NextOccurrence(start time.Time, interval time.Duration, now time.Time) time.Time {
	if !now.After(start) {
		return start
	}
	elapsed := now.Sub(start)
	k := elapsed / interval
	if elapsed%interval != 0 {
		k++
	}
	return start.Add(k * interval)
}

// ScheduledFor returns the occurrence a run started at fired belongs to:
// the latest start+k*interval that is not after fired
func ScheduledFor(start time.Time, interval time.Duration, fired time.Time) time.Time {
	if !fired.After(start) {
		return start
	}
	return start.Add(fired.Sub(start) / interval * interval)
}

// Scheduler triggers a DAG at its interval, anchored to its start date.
// Missed occurrences are not backfilled.
type Scheduler struct {
	worker *Worker
	dag    *pipeline.DAG
	logger *slog.Logger
	now    func() time.Time
}

// NewScheduler creates a scheduler running dag through w
func NewScheduler(w *Worker, dag *pipeline.DAG) *Scheduler {
	return &Scheduler{
		worker: w,
		dag:    dag,
		logger: slog.Default().With("dag", dag.ID),
		now:    time.Now,
	}
}

// Start registers the DAG and blocks until ctx is done. Runs never overlap:
// an occurrence that fires while the previous run is still going is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.dag.Validate(); err != nil {
		return fmt.Errorf("invalid dag: %w", err)
	}

	next := NextOccurrence(s.dag.StartDate, s.dag.Interval, s.now())

	scheduler := gocron.NewScheduler(time.UTC)
	_, err := scheduler.Every(s.dag.Interval).
		StartAt(next).
		SingletonMode().
		Do(s.runOnce, ctx)
	if err != nil {
		return fmt.Errorf("failed to schedule dag: %w", err)
	}

	s.logger.Info("Starting scheduler", "interval", s.dag.Interval, "next_run", next)
	scheduler.StartAsync()
	metrics.SchedulerActive.Set(1)
	defer metrics.SchedulerActive.Set(0)

	<-ctx.Done()

	scheduler.Stop()
	s.logger.Info("Scheduler stopped")
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	scheduledFor := ScheduledFor(s.dag.StartDate, s.dag.Interval, s.now())
	s.logger.Info("Scheduled run triggered", "scheduled_for", scheduledFor)

	if err := s.worker.RunDAG(ctx, s.dag, scheduledFor); err != nil {
		s.logger.Error("Scheduled run failed", "error", err)
	}
}
