// Package load persists the aggregate artifacts into the relational store.
package load

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jszwec/csvutil"

	"olympics-etl/internal/config"
	"olympics-etl/internal/metrics"
	"olympics-etl/internal/olympics"
)

// Store is the destination of a load. ReplaceAggregates must be atomic:
// either both tables hold the new rows or neither changed.
type Store interface {
	ReplaceAggregates(ctx context.Context, medals []olympics.MedalCount, countries []olympics.CountryCount) error
	Close() error
}

// OpenFunc acquires a fresh store connection for one load
type OpenFunc func(ctx context.Context) (Store, error)

// Result describes a completed load
type Result struct {
	MedalRows   int
	CountryRows int
	Duration    time.Duration
}

// Note is the one-line summary stored with the task attempt
func (r *Result) Note() string {
	return fmt.Sprintf("medal_counts=%d country_counts=%d", r.MedalRows, r.CountryRows)
}

// Loader writes the two aggregate artifacts into the store
type Loader struct {
	config *config.Config
	open   OpenFunc
	logger *slog.Logger
}

// NewLoader creates a loader that opens its own connection per call
func NewLoader(cfg *config.Config, open OpenFunc) *Loader {
	return &Loader{
		config: cfg,
		open:   open,
		logger: slog.Default().With("stage", "load"),
	}
}

// Load reads both artifacts and replaces the table contents with them. The
// connection is closed before returning, whatever the outcome.
func (l *Loader) Load(ctx context.Context) (result *Result, err error) {
	start := time.Now()

	medals, err := ReadCSV[olympics.MedalCount](l.config.MedalCountsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read medal counts: %w", err)
	}
	countries, err := ReadCSV[olympics.CountryCount](l.config.CountryCountsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read country counts: %w", err)
	}

	store, err := l.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			l.logger.Error("Failed to close store", "error", cerr)
			if err == nil {
				err = fmt.Errorf("failed to close store: %w", cerr)
				result = nil
			}
		}
	}()

	if err := store.ReplaceAggregates(ctx, medals, countries); err != nil {
		return nil, err
	}

	metrics.AggregateRows.WithLabelValues(metrics.TableMedalCounts).Set(float64(len(medals)))
	metrics.AggregateRows.WithLabelValues(metrics.TableCountryCounts).Set(float64(len(countries)))

	result = &Result{
		MedalRows:   len(medals),
		CountryRows: len(countries),
		Duration:    time.Since(start),
	}

	l.logger.Info("Load complete",
		"medal_counts", result.MedalRows,
		"country_counts", result.CountryRows,
		"duration", result.Duration)

	return result, nil
}

// ReadCSV decodes a header-first artifact into rows of T. An artifact
// holding only a header yields an empty slice.
func ReadCSV[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []T{}, nil
		}
		return nil, err
	}

	rows := []T{}
	for {
		var v T
		if err := dec.Decode(&v); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		rows = append(rows, v)
	}

	return rows, nil
}
