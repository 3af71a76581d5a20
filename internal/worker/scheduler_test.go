package worker

import (
	"context"
	"testing"
	"time"
)

func TestNextOccurrence(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	t.Run("before start", func(t *testing.T) {
		now := start.Add(-72 * time.Hour)
		if got := NextOccurrence(start, day, now); !got.Equal(start) {
			t.Errorf("Expected %v, got %v", start, got)
		}
	})

	t.Run("exactly on an occurrence", func(t *testing.T) {
		now := start.Add(10 * day)
		if got := NextOccurrence(start, day, now); !got.Equal(now) {
			t.Errorf("Expected %v, got %v", now, got)
		}
	})

	t.Run("between occurrences", func(t *testing.T) {
		now := start.Add(10*day + time.Hour)
		want := start.Add(11 * day)
		if got := NextOccurrence(start, day, now); !got.Equal(want) {
			t.Errorf("Expected %v, got %v", want, got)
		}
	})
}

func TestScheduledFor(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	fired := start.Add(3*day + 2*time.Second)
	if got := ScheduledFor(start, day, fired); !got.Equal(start.Add(3 * day)) {
		t.Errorf("Expected %v, got %v", start.Add(3*day), got)
	}

	if got := ScheduledFor(start, day, start.Add(-time.Hour)); !got.Equal(start) {
		t.Errorf("Expected start for early fire, got %v", got)
	}
}

func TestSchedulerStart_Cancellation(t *testing.T) {
	recorder := newMemoryRecorder()
	w := NewWorker(recorder)

	dag := testDAG(&countingTask{})
	// far future so nothing fires during the test
	dag.StartDate = time.Now().Add(365 * 24 * time.Hour)

	s := NewScheduler(w, dag)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Scheduler did not stop after context cancellation")
	}

	if len(recorder.runs) != 0 {
		t.Errorf("Expected no runs, got %d", len(recorder.runs))
	}
}

func TestSchedulerRunOnce(t *testing.T) {
	recorder := newMemoryRecorder()
	w := NewWorker(recorder)

	task := &countingTask{}
	dag := testDAG(task)
	s := NewScheduler(w, dag)
	s.now = func() time.Time { return dag.StartDate.Add(48*time.Hour + time.Minute) }

	s.runOnce(context.Background())

	if task.calls != 1 {
		t.Fatalf("Expected task to run once, got %d", task.calls)
	}
	run := recorder.onlyRun(t)
	if want := dag.StartDate.Add(48 * time.Hour); !run.ScheduledFor.Equal(want) {
		t.Errorf("Expected scheduled_for %v, got %v", want, run.ScheduledFor)
	}
}

func TestSchedulerInvalidDAG(t *testing.T) {
	dag := testDAG(&countingTask{})
	dag.Interval = 0

	if err := NewScheduler(NewWorker(newMemoryRecorder()), dag).Start(context.Background()); err == nil {
		t.Error("Expected error for invalid dag")
	}
}
