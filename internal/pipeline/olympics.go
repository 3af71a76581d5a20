package pipeline

import (
	"context"

	"olympics-etl/internal/config"
	"olympics-etl/internal/extract"
	"olympics-etl/internal/load"
	"olympics-etl/internal/transform"
)

// Task ids of the Olympics pipeline
const (
	TaskExtract   = "extract_data"
	TaskTransform = "transform_data"
	TaskLoad      = "load_data"
)

// NewOlympicsDAG declares extract_data >> transform_data >> load_data with
// the schedule and retry policy from cfg
func NewOlympicsDAG(cfg *config.Config, e *extract.Extractor, t *transform.Transformer, l *load.Loader) *DAG {
	extractTask := &Task{
		ID: TaskExtract,
		Run: func(ctx context.Context) (string, error) {
			res, err := e.Extract(ctx)
			if err != nil {
				return "", err
			}
			return res.Note(), nil
		},
	}

	transformTask := &Task{
		ID: TaskTransform,
		Run: func(ctx context.Context) (string, error) {
			res, err := t.Transform(ctx)
			if err != nil {
				return "", err
			}
			return res.Note(), nil
		},
	}

	loadTask := &Task{
		ID: TaskLoad,
		Run: func(ctx context.Context) (string, error) {
			res, err := l.Load(ctx)
			if err != nil {
				return "", err
			}
			return res.Note(), nil
		},
	}

	return &DAG{
		ID:          cfg.PipelineID,
		Description: "ETL pipeline for Olympic data",
		Interval:    cfg.ScheduleInterval,
		StartDate:   cfg.StartDate,
		Retries:     cfg.Retries,
		RetryDelay:  cfg.RetryDelay,
		Tasks:       Chain(extractTask, transformTask, loadTask),
	}
}
