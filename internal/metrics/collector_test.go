package metrics

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeDB struct {
	medals    int
	countries int
	err       error
}

func (f *fakeDB) CountMedalCounts(ctx context.Context) (int, error) {
	return f.medals, f.err
}

func (f *fakeDB) CountCountryCounts(ctx context.Context) (int, error) {
	return f.countries, f.err
}

func TestCollectTableSizes(t *testing.T) {
	CollectTableSizes(context.Background(), &fakeDB{medals: 42, countries: 7}, slog.Default())

	if got := testutil.ToFloat64(AggregateRows.WithLabelValues(TableMedalCounts)); got != 42 {
		t.Errorf("Expected 42 medal count rows, got %v", got)
	}
	if got := testutil.ToFloat64(AggregateRows.WithLabelValues(TableCountryCounts)); got != 7 {
		t.Errorf("Expected 7 country count rows, got %v", got)
	}

	// a failing query leaves the previous value in place
	CollectTableSizes(context.Background(), &fakeDB{err: errors.New("db closed")}, slog.Default())

	if got := testutil.ToFloat64(AggregateRows.WithLabelValues(TableMedalCounts)); got != 42 {
		t.Errorf("Expected gauge to keep 42 after error, got %v", got)
	}
}

func TestStartTableSizeCollectorStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		StartTableSizeCollector(ctx, &fakeDB{medals: 1, countries: 1}, 1<<30)
		close(done)
	}()
	<-done
}
