// Package pipeline declares pipelines as directed acyclic graphs of tasks
// together with their schedule and retry policy.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TaskFunc runs one task. The returned note is a short summary stored with
// the attempt.
type TaskFunc func(ctx context.Context) (note string, err error)

// Task is a unit of work in a DAG
type Task struct {
	ID        string
	DependsOn []string
	Run       TaskFunc
}

// DAG is a pipeline declaration
type DAG struct {
	ID          string
	Description string
	Interval    time.Duration
	StartDate   time.Time
	Retries     int
	RetryDelay  time.Duration
	Tasks       []*Task
}

var (
	ErrEmptyDAG          = errors.New("dag has no tasks")
	ErrDuplicateTask     = errors.New("duplicate task id")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrCycle             = errors.New("dependency cycle")
)

// Chain makes each task depend on the one before it, so they run in the
// order given
func Chain(tasks ...*Task) []*Task {
	for i := 1; i < len(tasks); i++ {
		tasks[i].DependsOn = append(tasks[i].DependsOn, tasks[i-1].ID)
	}
	return tasks
}

// Task returns the task with the given id, or nil
func (d *DAG) Task(id string) *Task {
	for _, t := range d.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Validate checks the declaration is runnable
func (d *DAG) Validate() error {
	if d.ID == "" {
		return errors.New("dag id is empty")
	}
	if len(d.Tasks) == 0 {
		return ErrEmptyDAG
	}
	if d.Interval <= 0 {
		return fmt.Errorf("dag %s: schedule interval must be positive", d.ID)
	}
	if d.Retries < 0 {
		return fmt.Errorf("dag %s: retries must not be negative", d.ID)
	}
	if d.RetryDelay < 0 {
		return fmt.Errorf("dag %s: retry delay must not be negative", d.ID)
	}

	seen := make(map[string]bool, len(d.Tasks))
	for _, t := range d.Tasks {
		if t.ID == "" {
			return fmt.Errorf("dag %s: task id is empty", d.ID)
		}
		if t.Run == nil {
			return fmt.Errorf("dag %s: task %s has no function", d.ID, t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
		}
		seen[t.ID] = true
	}

	for _, t := range d.Tasks {
		for _, dep := range t.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, t.ID, dep)
			}
		}
	}

	_, err := d.TopologicalOrder()
	return err
}

// TopologicalOrder returns the tasks ordered so that every task comes after
// its dependencies. Among tasks that are ready at the same time the
// declaration order is kept.
func (d *DAG) TopologicalOrder() ([]*Task, error) {
	indegree := make(map[string]int, len(d.Tasks))
	dependents := make(map[string][]string, len(d.Tasks))
	for _, t := range d.Tasks {
		indegree[t.ID] += 0
		for _, dep := range t.DependsOn {
			indegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	order := make([]*Task, 0, len(d.Tasks))
	done := make(map[string]bool, len(d.Tasks))

	for len(order) < len(d.Tasks) {
		progressed := false
		for _, t := range d.Tasks {
			if done[t.ID] || indegree[t.ID] > 0 {
				continue
			}
			done[t.ID] = true
			order = append(order, t)
			for _, next := range dependents[t.ID] {
				indegree[next]--
			}
			progressed = true
			// restart so earlier-declared tasks unblocked by t go first
			break
		}
		if !progressed {
			return nil, fmt.Errorf("%w in dag %s", ErrCycle, d.ID)
		}
	}

	return order, nil
}
