package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"olympics-etl/internal/metrics"
	"olympics-etl/internal/olympics"
)

// AggregateFilter narrows aggregate queries. Zero values match everything.
type AggregateFilter struct {
	Year   int
	Season string
}

func (f AggregateFilter) where() (string, []any) {
	var clauses []string
	var args []any
	if f.Year != 0 {
		clauses = append(clauses, "year = ?")
		args = append(args, f.Year)
	}
	if f.Season != "" {
		clauses = append(clauses, "season = ?")
		args = append(args, f.Season)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ReplaceAggregates overwrites both aggregate tables in a single
// transaction. The tables are created if absent, emptied, and refilled.
// On any error the transaction is rolled back and the previous contents
// remain.
func (d *DB) ReplaceAggregates(ctx context.Context, medals []olympics.MedalCount, countries []olympics.CountryCount) (err error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpReplaceAggregates))
	defer timer.ObserveDuration()
	defer func() {
		if err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpReplaceAggregates).Inc()
		}
	}()

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range d.dialect.aggregateSchema() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create aggregate table: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM MedalCounts`); err != nil {
		return fmt.Errorf("failed to clear MedalCounts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM CountryCounts`); err != nil {
		return fmt.Errorf("failed to clear CountryCounts: %w", err)
	}

	insertMedal, err := tx.PreparexContext(ctx, tx.Rebind(
		`INSERT INTO MedalCounts (year, season, noc, Medal_Count) VALUES (?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare medal insert: %w", err)
	}
	defer insertMedal.Close()

	for _, m := range medals {
		if _, err := insertMedal.ExecContext(ctx, m.Year, m.Season, m.NOC, m.Count); err != nil {
			return fmt.Errorf("failed to insert medal count %d %s %s: %w", m.Year, m.Season, m.NOC, err)
		}
	}

	insertCountry, err := tx.PreparexContext(ctx, tx.Rebind(
		`INSERT INTO CountryCounts (year, season, Countries_with_Medals) VALUES (?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare country insert: %w", err)
	}
	defer insertCountry.Close()

	for _, c := range countries {
		if _, err := insertCountry.ExecContext(ctx, c.Year, c.Season, c.Countries); err != nil {
			return fmt.Errorf("failed to insert country count %d %s: %w", c.Year, c.Season, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetMedalCounts returns the stored medal counts ordered by key
func (d *DB) GetMedalCounts(ctx context.Context, filter AggregateFilter) ([]olympics.MedalCount, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetMedalCounts))
	defer timer.ObserveDuration()

	where, args := filter.where()
	query := `SELECT year, season, noc, Medal_Count AS medal_count FROM MedalCounts` +
		where + ` ORDER BY year, season, noc`

	rows := []olympics.MedalCount{}
	if err := d.db.SelectContext(ctx, &rows, d.db.Rebind(query), args...); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetMedalCounts).Inc()
		return nil, fmt.Errorf("failed to query medal counts: %w", err)
	}

	return rows, nil
}

// GetCountryCounts returns the stored country counts ordered by key
func (d *DB) GetCountryCounts(ctx context.Context, filter AggregateFilter) ([]olympics.CountryCount, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetCountryCounts))
	defer timer.ObserveDuration()

	where, args := filter.where()
	query := `SELECT year, season, Countries_with_Medals AS countries_with_medals FROM CountryCounts` +
		where + ` ORDER BY year, season`

	rows := []olympics.CountryCount{}
	if err := d.db.SelectContext(ctx, &rows, d.db.Rebind(query), args...); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetCountryCounts).Inc()
		return nil, fmt.Errorf("failed to query country counts: %w", err)
	}

	return rows, nil
}

// CountMedalCounts returns the number of rows in MedalCounts
func (d *DB) CountMedalCounts(ctx context.Context) (int, error) {
	return d.countRows(ctx, "MedalCounts")
}

// CountCountryCounts returns the number of rows in CountryCounts
func (d *DB) CountCountryCounts(ctx context.Context) (int, error) {
	return d.countRows(ctx, "CountryCounts")
}

func (d *DB) countRows(ctx context.Context, table string) (int, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpCountRows))
	defer timer.ObserveDuration()

	var count int
	// table is one of the two constants above
	if err := d.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM `+table); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCountRows).Inc()
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}

	return count, nil
}
