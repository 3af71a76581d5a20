// Package extract reads the newline-delimited JSON source file into a table
// and writes it unchanged to the extracted_data artifact.
package extract

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/zeebo/xxh3"

	"olympics-etl/internal/artifact"
	"olympics-etl/internal/config"
	"olympics-etl/internal/metrics"
)

// ErrMalformedRecord is returned when a source line is not a JSON object
var ErrMalformedRecord = errors.New("malformed record")

const maxLineSize = 16 << 20

// Table is the in-memory form of the source file. Columns is the union of
// all keys in the order they were first seen.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// Result describes a completed extraction
type Result struct {
	Records     int
	Columns     int
	Fingerprint uint64
	Duration    time.Duration
}

// Note is the one-line summary stored with the task attempt
func (r *Result) Note() string {
	return fmt.Sprintf("records=%d columns=%d xxh3=%016x", r.Records, r.Columns, r.Fingerprint)
}

// Extractor copies the source file into the extracted artifact
type Extractor struct {
	config *config.Config
	logger *slog.Logger
}

// NewExtractor creates an extractor reading cfg.SourcePath and writing
// cfg.ExtractedPath
func NewExtractor(cfg *config.Config) *Extractor {
	return &Extractor{
		config: cfg,
		logger: slog.Default().With("stage", "extract"),
	}
}

// Extract reads every record of the source file and writes them to the
// extracted artifact. It performs no filtering or validation beyond
// requiring each line to be a JSON object.
func (e *Extractor) Extract(ctx context.Context) (*Result, error) {
	start := time.Now()
	e.logger.Info("Reading source file", "path", e.config.SourcePath)

	data, err := os.ReadFile(e.config.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file: %w", err)
	}

	table, err := ReadRecords(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	if err := artifact.WriteFile(e.config.ExtractedPath, table.WriteCSV); err != nil {
		return nil, fmt.Errorf("failed to write extracted data: %w", err)
	}

	result := &Result{
		Records:     len(table.Rows),
		Columns:     len(table.Columns),
		Fingerprint: xxh3.Hash(data),
		Duration:    time.Since(start),
	}
	metrics.RecordsTotal.WithLabelValues(metrics.RecordKindExtracted).Add(float64(result.Records))

	e.logger.Info("Extraction complete",
		"records", result.Records,
		"columns", result.Columns,
		"fingerprint", fmt.Sprintf("%016x", result.Fingerprint),
		"output", e.config.ExtractedPath,
		"duration", result.Duration)

	return result, nil
}

// ReadRecords parses one JSON object per line. Blank lines are ignored.
func ReadRecords(ctx context.Context, r io.Reader) (*Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	table := &Table{}
	seen := make(map[string]bool)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		if lineNo%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		keys, row, err := parseObject(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %v", lineNo, ErrMalformedRecord, err)
		}

		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				table.Columns = append(table.Columns, k)
			}
		}
		table.Rows = append(table.Rows, row)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan source file: %w", err)
	}

	return table, nil
}

// WriteCSV writes the header row followed by one row per record. Cells for
// keys a record does not have are left empty.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if len(t.Columns) > 0 {
		if err := cw.Write(t.Columns); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	cells := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			cells[i] = row[col]
		}
		if err := cw.Write(cells); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// parseObject decodes a single JSON object keeping its key order
func parseObject(line []byte) ([]string, map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}

	var keys []string
	row := make(map[string]string)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected token %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("value of %q: %w", key, err)
		}

		cell, err := renderValue(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("value of %q: %w", key, err)
		}

		if _, dup := row[key]; !dup {
			keys = append(keys, key)
		}
		row[key] = cell
	}

	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, nil, errors.New("trailing data after object")
	}

	return keys, row, nil
}

// renderValue turns a JSON value into a CSV cell
func renderValue(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", nil
	}

	switch raw[0] {
	case 'n':
		return "", nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		// numbers and booleans keep their literal text
		return string(raw), nil
	}
}
