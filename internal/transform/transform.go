// Package transform turns the extracted table into the medal-count and
// country-count artifacts.
package transform

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"

	"olympics-etl/internal/artifact"
	"olympics-etl/internal/config"
	"olympics-etl/internal/metrics"
	"olympics-etl/internal/olympics"
)

var (
	// ErrMissingField is returned when the extracted table lacks a column
	// the aggregates are computed from
	ErrMissingField = errors.New("missing field")

	// ErrMalformedField is returned when a cell cannot be parsed
	ErrMalformedField = errors.New("malformed field")
)

// RequiredColumns are the columns projected out of the extracted table
var RequiredColumns = []string{"year", "season", "noc", "medal"}

// row is the projection of one extracted record. Every cell is decoded as
// text so the absent-medal markers can be recognised before parsing.
type row struct {
	Year   string `csv:"year"`
	Season string `csv:"season"`
	NOC    string `csv:"noc"`
	Medal  string `csv:"medal"`
}

// Result describes a completed transformation
type Result struct {
	Summary     olympics.Summary
	MedalRows   int
	CountryRows int
	Duration    time.Duration
}

// Note is the one-line summary stored with the task attempt
func (r *Result) Note() string {
	return fmt.Sprintf("records=%d medal_records=%d skipped=%d medal_counts=%d country_counts=%d",
		r.Summary.Records, r.Summary.MedalRecords, r.Summary.Skipped, r.MedalRows, r.CountryRows)
}

// Transformer reads cfg.ExtractedPath and writes cfg.MedalCountsPath and
// cfg.CountryCountsPath
type Transformer struct {
	config *config.Config
	logger *slog.Logger
}

// NewTransformer creates a new transformer
func NewTransformer(cfg *config.Config) *Transformer {
	return &Transformer{
		config: cfg,
		logger: slog.Default().With("stage", "transform"),
	}
}

// Transform computes both aggregates from the extracted artifact
func (t *Transformer) Transform(ctx context.Context) (*Result, error) {
	start := time.Now()
	t.logger.Info("Reading extracted data", "path", t.config.ExtractedPath)

	f, err := os.Open(t.config.ExtractedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open extracted data: %w", err)
	}
	defer f.Close()

	records, skipped, err := ReadParticipations(ctx, f)
	if err != nil {
		return nil, err
	}

	medals, countries, summary := olympics.Aggregate(records)
	summary.Records += skipped
	summary.Skipped += skipped

	if err := artifact.WriteFile(t.config.MedalCountsPath, func(w io.Writer) error {
		return WriteCSV(w, olympics.MedalCount{}, medals)
	}); err != nil {
		return nil, fmt.Errorf("failed to write medal counts: %w", err)
	}

	if err := artifact.WriteFile(t.config.CountryCountsPath, func(w io.Writer) error {
		return WriteCSV(w, olympics.CountryCount{}, countries)
	}); err != nil {
		return nil, fmt.Errorf("failed to write country counts: %w", err)
	}

	result := &Result{
		Summary:     summary,
		MedalRows:   len(medals),
		CountryRows: len(countries),
		Duration:    time.Since(start),
	}

	metrics.RecordsTotal.WithLabelValues(metrics.RecordKindTransformed).Add(float64(summary.Records))
	metrics.RecordsTotal.WithLabelValues(metrics.RecordKindMedal).Add(float64(summary.MedalRecords))
	metrics.RecordsTotal.WithLabelValues(metrics.RecordKindSkipped).Add(float64(summary.Skipped))

	t.logger.Info("Transformation complete",
		"records", summary.Records,
		"medal_records", summary.MedalRecords,
		"skipped", summary.Skipped,
		"medal_counts", result.MedalRows,
		"country_counts", result.CountryRows,
		"duration", result.Duration)

	return result, nil
}

// ReadParticipations decodes the extracted table into participation
// records. Medal-bearing rows with an empty year cannot be grouped and are
// only counted. An input without a header row holds no records.
func ReadParticipations(ctx context.Context, r io.Reader) ([]olympics.Participation, int, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}

	header = normalizeHeader(header)
	if err := checkColumns(header); err != nil {
		return nil, 0, err
	}

	dec, err := csvutil.NewDecoder(cr, header...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create decoder: %w", err)
	}

	var records []olympics.Participation
	skipped := 0

	for line := 2; ; line++ {
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
		}

		var rec row
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", line, err)
		}

		medal := normalizeMedal(rec.Medal)
		yearStr := strings.TrimSpace(rec.Year)
		if yearStr == "" {
			if medal != "" {
				skipped++
			}
			continue
		}

		year, err := parseYear(yearStr)
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w: year %q", line, ErrMalformedField, rec.Year)
		}

		records = append(records, olympics.Participation{
			Year:   year,
			Season: strings.TrimSpace(rec.Season),
			NOC:    strings.TrimSpace(rec.NOC),
			Medal:  medal,
		})
	}

	return records, skipped, nil
}

// WriteCSV writes the header of T followed by rows. The header is written
// even when there are no rows.
func WriteCSV[T any](w io.Writer, header T, rows []T) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	if err := enc.EncodeHeader(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if seen[name] {
			// first occurrence wins
			name = fmt.Sprintf("_duplicate_%d", i)
		}
		seen[name] = true
		out[i] = name
	}
	return out
}

func checkColumns(header []string) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}

	var missing []string
	for _, c := range RequiredColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

// normalizeMedal maps the markers used for "no medal" to the empty string
func normalizeMedal(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan", "null", "none":
		return ""
	}
	return s
}

func parseYear(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not an integer: %s", s)
	}
	return int(f), nil
}
