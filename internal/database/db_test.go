package database

import (
	"context"
	"testing"
	"time"

	"olympics-etl/internal/olympics"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := t.TempDir() + "/test.db"

	db, err := Open(context.Background(), "sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}
	return db
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "oracle", "whatever"); err == nil {
		t.Fatal("Expected error for unknown driver")
	}
}

func TestInitIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("Failed to initialize schema twice: %v", err)
	}
}

func TestDialects(t *testing.T) {
	for _, name := range []string{"sqlite", "mysql", "sqlserver", "postgres"} {
		t.Run(name, func(t *testing.T) {
			d, err := LookupDialect(name)
			if err != nil {
				t.Fatalf("Failed to look up dialect: %v", err)
			}
			if len(d.Schema) != 4 {
				t.Errorf("Expected 4 schema statements, got %d", len(d.Schema))
			}
			if d.Limit(5) == "" {
				t.Error("Expected a limit clause")
			}
		})
	}

	d, _ := LookupDialect("sqlserver")
	if got := d.Limit(5); got != "OFFSET 0 ROWS FETCH NEXT 5 ROWS ONLY" {
		t.Errorf("Unexpected sqlserver limit clause: %s", got)
	}
}

func TestReplaceAggregates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	medals := []olympics.MedalCount{
		{Year: 2012, Season: "Summer", NOC: "GBR", Count: 3},
		{Year: 2012, Season: "Summer", NOC: "USA", Count: 2},
	}
	countries := []olympics.CountryCount{
		{Year: 2012, Season: "Summer", Countries: 2},
	}

	t.Run("InitialLoad", func(t *testing.T) {
		if err := db.ReplaceAggregates(ctx, medals, countries); err != nil {
			t.Fatalf("Failed to replace aggregates: %v", err)
		}

		got, err := db.GetMedalCounts(ctx, AggregateFilter{})
		if err != nil {
			t.Fatalf("Failed to get medal counts: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 medal counts, got %d", len(got))
		}
		if got[1] != medals[1] {
			t.Errorf("Expected %+v, got %+v", medals[1], got[1])
		}

		gotCountries, err := db.GetCountryCounts(ctx, AggregateFilter{})
		if err != nil {
			t.Fatalf("Failed to get country counts: %v", err)
		}
		if len(gotCountries) != 1 || gotCountries[0] != countries[0] {
			t.Errorf("Expected %+v, got %+v", countries, gotCountries)
		}
	})

	t.Run("SecondLoadReplaces", func(t *testing.T) {
		next := []olympics.MedalCount{{Year: 2016, Season: "Summer", NOC: "USA", Count: 1}}
		nextCountries := []olympics.CountryCount{{Year: 2016, Season: "Summer", Countries: 1}}

		if err := db.ReplaceAggregates(ctx, next, nextCountries); err != nil {
			t.Fatalf("Failed to replace aggregates: %v", err)
		}

		n, err := db.CountMedalCounts(ctx)
		if err != nil {
			t.Fatalf("Failed to count medal counts: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected 1 medal count after replace, got %d", n)
		}
	})

	t.Run("FailureLeavesPreviousContents", func(t *testing.T) {
		// duplicate primary key fails inside the transaction
		dup := []olympics.MedalCount{
			{Year: 2020, Season: "Summer", NOC: "JPN", Count: 1},
			{Year: 2020, Season: "Summer", NOC: "JPN", Count: 2},
		}

		if err := db.ReplaceAggregates(ctx, dup, nil); err == nil {
			t.Fatal("Expected error for duplicate key")
		}

		got, err := db.GetMedalCounts(ctx, AggregateFilter{})
		if err != nil {
			t.Fatalf("Failed to get medal counts: %v", err)
		}
		if len(got) != 1 || got[0].Year != 2016 {
			t.Errorf("Expected previous contents to survive, got %+v", got)
		}

		c, err := db.CountCountryCounts(ctx)
		if err != nil {
			t.Fatalf("Failed to count country counts: %v", err)
		}
		if c != 1 {
			t.Errorf("Expected 1 country count to survive, got %d", c)
		}
	})

	t.Run("EmptyAggregates", func(t *testing.T) {
		if err := db.ReplaceAggregates(ctx, nil, nil); err != nil {
			t.Fatalf("Failed to replace with empty aggregates: %v", err)
		}

		got, err := db.GetMedalCounts(ctx, AggregateFilter{})
		if err != nil {
			t.Fatalf("Failed to get medal counts: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("Expected empty non-nil slice, got %+v", got)
		}
	})
}

func TestReplaceAggregatesCreatesTables(t *testing.T) {
	// no Init: the load must create what it needs
	db, err := Open(context.Background(), "sqlite", t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	medals := []olympics.MedalCount{{Year: 2012, Season: "Summer", NOC: "USA", Count: 2}}
	countries := []olympics.CountryCount{{Year: 2012, Season: "Summer", Countries: 1}}

	if err := db.ReplaceAggregates(context.Background(), medals, countries); err != nil {
		t.Fatalf("Failed to replace aggregates: %v", err)
	}

	n, err := db.CountCountryCounts(context.Background())
	if err != nil {
		t.Fatalf("Failed to count country counts: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 country count, got %d", n)
	}
}

func TestAggregateFilter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	medals := []olympics.MedalCount{
		{Year: 2014, Season: "Winter", NOC: "NOR", Count: 2},
		{Year: 2016, Season: "Summer", NOC: "USA", Count: 1},
		{Year: 2016, Season: "Summer", NOC: "GBR", Count: 1},
	}
	countries := []olympics.CountryCount{
		{Year: 2014, Season: "Winter", Countries: 1},
		{Year: 2016, Season: "Summer", Countries: 2},
	}
	if err := db.ReplaceAggregates(ctx, medals, countries); err != nil {
		t.Fatalf("Failed to replace aggregates: %v", err)
	}

	got, err := db.GetMedalCounts(ctx, AggregateFilter{Year: 2016})
	if err != nil {
		t.Fatalf("Failed to get medal counts: %v", err)
	}
	if len(got) != 2 || got[0].NOC != "GBR" {
		t.Errorf("Expected GBR then USA for 2016, got %+v", got)
	}

	gotCountries, err := db.GetCountryCounts(ctx, AggregateFilter{Season: "Winter"})
	if err != nil {
		t.Fatalf("Failed to get country counts: %v", err)
	}
	if len(gotCountries) != 1 || gotCountries[0].Year != 2014 {
		t.Errorf("Expected only the 2014 Winter row, got %+v", gotCountries)
	}
}

func TestRunLog(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("CreateAndFinishRun", func(t *testing.T) {
		run := &Run{
			ID:           "run-1",
			PipelineID:   "olympics_etl",
			ScheduledFor: base,
			StartedAt:    base.Add(time.Minute),
			Status:       RunRunning,
		}
		if err := db.CreateRun(ctx, run); err != nil {
			t.Fatalf("Failed to create run: %v", err)
		}

		attempts := []TaskAttempt{
			{RunID: "run-1", TaskID: "extract_data", Attempt: 1, Seq: 1, Status: AttemptSuccess, Note: "records=3"},
			{RunID: "run-1", TaskID: "transform_data", Attempt: 1, Seq: 2, Status: AttemptFailed, Error: "missing field"},
			{RunID: "run-1", TaskID: "transform_data", Attempt: 2, Seq: 3, Status: AttemptFailed, Error: "missing field"},
			{RunID: "run-1", TaskID: "load_data", Attempt: 0, Seq: 4, Status: AttemptUpstreamFailed},
		}
		for i := range attempts {
			attempts[i].StartedAt = base.Add(time.Minute)
			attempts[i].FinishedAt = base.Add(time.Minute)
			if err := db.RecordAttempt(ctx, &attempts[i]); err != nil {
				t.Fatalf("Failed to record attempt: %v", err)
			}
		}

		if err := db.FinishRun(ctx, "run-1", RunFailed, "transform_data failed", base.Add(2*time.Minute)); err != nil {
			t.Fatalf("Failed to finish run: %v", err)
		}

		got, err := db.GetRun(ctx, "run-1")
		if err != nil {
			t.Fatalf("Failed to get run: %v", err)
		}
		if got == nil {
			t.Fatal("Expected run to be found")
		}
		if got.Status != RunFailed {
			t.Errorf("Expected status failed, got %s", got.Status)
		}
		if got.FinishedAt == nil || !got.FinishedAt.Equal(base.Add(2*time.Minute)) {
			t.Errorf("Unexpected finished_at: %v", got.FinishedAt)
		}
		if !got.ScheduledFor.Equal(base) {
			t.Errorf("Expected scheduled_for %v, got %v", base, got.ScheduledFor)
		}
		if len(got.Attempts) != 4 {
			t.Fatalf("Expected 4 attempts, got %d", len(got.Attempts))
		}
		if got.Attempts[0].Note != "records=3" {
			t.Errorf("Expected note to round-trip, got %q", got.Attempts[0].Note)
		}
		if got.Attempts[3].Status != AttemptUpstreamFailed {
			t.Errorf("Expected last attempt upstream_failed, got %s", got.Attempts[3].Status)
		}
	})

	t.Run("ListRunsNewestFirst", func(t *testing.T) {
		run := &Run{
			ID:           "run-2",
			PipelineID:   "olympics_etl",
			ScheduledFor: base.Add(24 * time.Hour),
			StartedAt:    base.Add(24 * time.Hour),
			Status:       RunRunning,
		}
		if err := db.CreateRun(ctx, run); err != nil {
			t.Fatalf("Failed to create run: %v", err)
		}

		runs, err := db.ListRuns(ctx, 10)
		if err != nil {
			t.Fatalf("Failed to list runs: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("Expected 2 runs, got %d", len(runs))
		}
		if runs[0].ID != "run-2" {
			t.Errorf("Expected newest run first, got %s", runs[0].ID)
		}
		if runs[0].FinishedAt != nil {
			t.Error("Expected running run to have no finished_at")
		}

		limited, err := db.ListRuns(ctx, 1)
		if err != nil {
			t.Fatalf("Failed to list runs: %v", err)
		}
		if len(limited) != 1 {
			t.Errorf("Expected 1 run with limit, got %d", len(limited))
		}
	})

	t.Run("MissingRun", func(t *testing.T) {
		got, err := db.GetRun(ctx, "nope")
		if err != nil {
			t.Fatalf("Failed to get run: %v", err)
		}
		if got != nil {
			t.Errorf("Expected nil for missing run, got %+v", got)
		}

		if err := db.FinishRun(ctx, "nope", RunSuccess, "", time.Now()); err == nil {
			t.Error("Expected error finishing a missing run")
		}
	})
}
