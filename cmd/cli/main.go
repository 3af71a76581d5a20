package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"olympics-etl/internal/config"
	"olympics-etl/internal/database"
)

func main() {
	// Disable structured logging for CLI
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors
	})))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	if command == "help" {
		printUsage()
		return
	}

	godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.OpenConfig(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case "medals":
		err = handleMedals(ctx, db)
	case "countries":
		err = handleCountries(ctx, db)
	case "runs":
		err = handleRuns(ctx, db)
	case "attempts":
		err = handleAttempts(ctx, db)
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown command '%s'\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`olympics-etl CLI - Inspect loaded aggregates and run history

Usage:
  cli <command> [options]

Commands:
  medals [year]       Show medal counts per country, optionally for one year
  countries [year]    Show the number of medal-winning countries per Games
  runs [limit]        List recent pipeline runs (default: 10)
  attempts <run-id>   Show the task attempts of a run
  help                Show this help message

Examples:
  cli medals 2012
  cli countries
  cli runs 5
  cli attempts 3f6c2a1e-...

Environment Variables:
  DATABASE_DRIVER        - sqlite, mysql, sqlserver or postgres (default: sqlite)
  DATABASE_PATH          - SQLite file (default: ./olympics.db)
  DATABASE_DSN           - Connection string for the other drivers`)
}

// yearArg parses the optional year argument; 0 means all years
func yearArg() (int, error) {
	if len(os.Args) < 3 {
		return 0, nil
	}
	year, err := strconv.Atoi(os.Args[2])
	if err != nil {
		return 0, fmt.Errorf("invalid year: %s", os.Args[2])
	}
	return year, nil
}

func handleMedals(ctx context.Context, db *database.DB) error {
	year, err := yearArg()
	if err != nil {
		return err
	}

	rows, err := db.GetMedalCounts(ctx, database.AggregateFilter{Year: year})
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		fmt.Println("No medal counts found.")
		fmt.Println("\nTo populate the tables, run: olympics-etl run")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "YEAR\tSEASON\tNOC\tMEDALS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", r.Year, r.Season, r.NOC, r.Count)
	}
	return tw.Flush()
}

func handleCountries(ctx context.Context, db *database.DB) error {
	year, err := yearArg()
	if err != nil {
		return err
	}

	rows, err := db.GetCountryCounts(ctx, database.AggregateFilter{Year: year})
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		fmt.Println("No country counts found.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "YEAR\tSEASON\tCOUNTRIES")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", r.Year, r.Season, r.Countries)
	}
	return tw.Flush()
}

func handleRuns(ctx context.Context, db *database.DB) error {
	limit := 10
	if len(os.Args) >= 3 {
		var err error
		limit, err = strconv.Atoi(os.Args[2])
		if err != nil || limit < 1 {
			return fmt.Errorf("invalid limit: %s", os.Args[2])
		}
	}

	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Printf("Found %d run(s):\n\n", len(runs))
	for _, run := range runs {
		fmt.Printf("ID: %s\n", run.ID)
		fmt.Printf("  Pipeline: %s\n", run.PipelineID)
		fmt.Printf("  Scheduled for: %s\n", run.ScheduledFor.Format(time.RFC3339))
		fmt.Printf("  Started: %s\n", run.StartedAt.Format(time.RFC3339))
		if run.FinishedAt != nil {
			fmt.Printf("  Finished: %s (%s)\n", run.FinishedAt.Format(time.RFC3339), run.FinishedAt.Sub(run.StartedAt))
		}
		fmt.Printf("  Status: %s\n", run.Status)
		if run.Error != "" {
			fmt.Printf("  Error: %s\n", run.Error)
		}
		fmt.Println()
	}
	return nil
}

func handleAttempts(ctx context.Context, db *database.DB) error {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: cli attempts <run-id>")
		return fmt.Errorf("run id required")
	}

	run, err := db.GetRun(ctx, os.Args[2])
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", os.Args[2])
	}

	fmt.Printf("Run %s (%s)\n\n", run.ID, run.Status)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tATTEMPT\tSTATUS\tDURATION\tDETAIL")
	for _, a := range run.Attempts {
		detail := a.Note
		if a.Error != "" {
			detail = a.Error
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", a.TaskID, a.Attempt, a.Status, a.FinishedAt.Sub(a.StartedAt), detail)
	}
	return tw.Flush()
}
