package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"  // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib"  // PostgreSQL driver, registered as "pgx"
	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	_ "modernc.org/sqlite"              // Pure Go SQLite driver

	"olympics-etl/internal/config"
)

// sqlitePragmas are appended to SQLite paths that carry no query string
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// DB wraps the database connection together with its dialect
type DB struct {
	db      *sqlx.DB
	dialect Dialect
}

// OpenConfig opens the database described by cfg
func OpenConfig(ctx context.Context, cfg *config.Config) (*DB, error) {
	return Open(ctx, cfg.DatabaseDriver, cfg.DSN())
}

// Open opens a connection using the named driver (sqlite, mysql, sqlserver
// or postgres) and checks that it is reachable
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	dialect, err := LookupDialect(driver)
	if err != nil {
		return nil, err
	}

	if dialect.Name == "sqlite" && !strings.Contains(dsn, "?") {
		dsn = dsn + "?" + sqlitePragmas
	}

	conn, err := sqlx.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if dialect.Name == "sqlite" {
		conn.SetMaxOpenConns(1) // SQLite works best with a single writer
		conn.SetMaxIdleConns(1)
	}
	conn.SetConnMaxLifetime(time.Hour)

	// Test the connection
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db: conn, dialect: dialect}, nil
}

// Init creates every table and index if they do not exist yet
func (d *DB) Init(ctx context.Context) error {
	for _, stmt := range append(d.dialect.Schema, d.dialect.Indexes...) {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Dialect returns the dialect the connection was opened with
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Health checks if the database connection is healthy
func (d *DB) Health(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
