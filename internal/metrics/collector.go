package metrics

import (
	"context"
	"log/slog"
	"time"
)

// DB interface for table size queries
type DB interface {
	CountMedalCounts(ctx context.Context) (int, error)
	CountCountryCounts(ctx context.Context) (int, error)
}

// StartTableSizeCollector starts a background loop that periodically
// refreshes the aggregate table row gauges. It returns when ctx is done.
func StartTableSizeCollector(ctx context.Context, db DB, interval time.Duration) {
	logger := slog.Default()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect once immediately
	CollectTableSizes(ctx, db, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Table size collector stopping")
			return
		case <-ticker.C:
			CollectTableSizes(ctx, db, logger)
		}
	}
}

// CollectTableSizes sets AggregateRows from the current table contents
func CollectTableSizes(ctx context.Context, db DB, logger *slog.Logger) {
	if n, err := db.CountMedalCounts(ctx); err != nil {
		logger.Error("Failed to count medal counts", "error", err)
	} else {
		AggregateRows.WithLabelValues(TableMedalCounts).Set(float64(n))
	}

	if n, err := db.CountCountryCounts(ctx); err != nil {
		logger.Error("Failed to count country counts", "error", err)
	} else {
		AggregateRows.WithLabelValues(TableCountryCounts).Set(float64(n))
	}
}
