package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Dialect holds the statements that differ between the supported databases
type Dialect struct {
	// Name is the DATABASE_DRIVER value
	Name string
	// DriverName is the name registered with database/sql
	DriverName string

	Schema  []string
	Indexes []string

	// limit renders the row limit appended after ORDER BY
	limit func(n int) string
}

// Limit returns the clause restricting a query to n rows
func (d Dialect) Limit(n int) string {
	return d.limit(n)
}

const (
	createMedalCounts = `CREATE TABLE %sMedalCounts (
    year INT NOT NULL,
    season VARCHAR(20) NOT NULL,
    noc VARCHAR(3) NOT NULL,
    Medal_Count INT NOT NULL,
    PRIMARY KEY (year, season, noc)
)`

	createCountryCounts = `CREATE TABLE %sCountryCounts (
    year INT NOT NULL,
    season VARCHAR(20) NOT NULL,
    Countries_with_Medals INT NOT NULL,
    PRIMARY KEY (year, season)
)`

	// Timestamps are unix seconds
	createPipelineRuns = `CREATE TABLE %spipeline_runs (
    id VARCHAR(36) NOT NULL PRIMARY KEY,
    pipeline_id VARCHAR(100) NOT NULL,
    scheduled_for BIGINT NOT NULL,
    started_at BIGINT NOT NULL,
    finished_at BIGINT,
    status VARCHAR(20) NOT NULL,
    error_message %s
)`

	createTaskAttempts = `CREATE TABLE %stask_attempts (
    run_id VARCHAR(36) NOT NULL,
    task_id VARCHAR(100) NOT NULL,
    attempt INT NOT NULL,
    seq INT NOT NULL,
    started_at BIGINT NOT NULL,
    finished_at BIGINT NOT NULL,
    status VARCHAR(20) NOT NULL,
    error_message %s,
    note VARCHAR(1000),
    PRIMARY KEY (run_id, task_id, attempt)
)`
)

func limitClause(n int) string {
	return fmt.Sprintf("LIMIT %d", n)
}

// ifNotExists builds the schema for databases that support CREATE TABLE IF NOT EXISTS
func ifNotExists(textType string) []string {
	return []string{
		fmt.Sprintf(createMedalCounts, "IF NOT EXISTS "),
		fmt.Sprintf(createCountryCounts, "IF NOT EXISTS "),
		fmt.Sprintf(createPipelineRuns, "IF NOT EXISTS ", textType),
		fmt.Sprintf(createTaskAttempts, "IF NOT EXISTS ", textType),
	}
}

// objectIDGuard wraps a CREATE TABLE so SQL Server skips it when the table exists
func objectIDGuard(table, stmt string) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL %s", table, stmt)
}

var dialects = map[string]Dialect{
	"sqlite": {
		Name:       "sqlite",
		DriverName: "sqlite",
		Schema:     ifNotExists("TEXT"),
		Indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at DESC)`,
		},
		limit: limitClause,
	},
	"mysql": {
		Name:       "mysql",
		DriverName: "mysql",
		Schema:     ifNotExists("TEXT"),
		limit:      limitClause,
	},
	"postgres": {
		Name:       "postgres",
		DriverName: "pgx",
		Schema:     ifNotExists("TEXT"),
		Indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at DESC)`,
		},
		limit: limitClause,
	},
	"sqlserver": {
		Name:       "sqlserver",
		DriverName: "sqlserver",
		Schema: []string{
			objectIDGuard("MedalCounts", fmt.Sprintf(createMedalCounts, "")),
			objectIDGuard("CountryCounts", fmt.Sprintf(createCountryCounts, "")),
			objectIDGuard("pipeline_runs", fmt.Sprintf(createPipelineRuns, "", "NVARCHAR(MAX)")),
			objectIDGuard("task_attempts", fmt.Sprintf(createTaskAttempts, "", "NVARCHAR(MAX)")),
		},
		limit: func(n int) string {
			return fmt.Sprintf("OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", n)
		},
	},
}

func init() {
	// sqlx only knows the cgo driver name
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// LookupDialect returns the dialect registered under name
func LookupDialect(name string) (Dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported database driver %q", name)
	}
	return d, nil
}

// aggregateSchema returns the CREATE statements for the two aggregate tables
func (d Dialect) aggregateSchema() []string {
	return d.Schema[:2]
}
