package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"olympics-etl/internal/config"
)

func newTestExtractor(t *testing.T, source string) (*Extractor, *config.Config) {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.SourcePath = filepath.Join(dir, "athlete_events.jsonl")
	cfg.ExtractedPath = filepath.Join(dir, "out", "extracted_data.csv")

	require.NoError(t, os.WriteFile(cfg.SourcePath, []byte(source), 0o644))
	return NewExtractor(cfg), cfg
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestExtractWritesEveryRecord(t *testing.T) {
	source := `{"ID":1,"Name":"A, Jr.","year":2012,"season":"Summer","noc":"USA","medal":"Gold"}
{"ID":2,"Name":"B","year":2012,"season":"Summer","noc":"USA","medal":"Silver"}

{"ID":3,"Name":"C","year":2012,"season":"Summer","noc":"GBR","medal":null,"Height":180.5}
`
	e, cfg := newTestExtractor(t, source)

	result, err := e.Extract(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, result.Records)
	require.Equal(t, 7, result.Columns)
	require.NotZero(t, result.Fingerprint)
	require.Contains(t, result.Note(), "records=3")

	rows := readCSV(t, cfg.ExtractedPath)
	require.Equal(t, []string{"ID", "Name", "year", "season", "noc", "medal", "Height"}, rows[0])
	require.Len(t, rows, 4)
	require.Equal(t, []string{"1", "A, Jr.", "2012", "Summer", "USA", "Gold", ""}, rows[1])
	require.Equal(t, []string{"3", "C", "2012", "Summer", "GBR", "", "180.5"}, rows[3])
}

func TestExtractFingerprintIsStable(t *testing.T) {
	source := `{"year":2000,"season":"Summer","noc":"AUS","medal":"Gold"}` + "\n"

	first, _ := newTestExtractor(t, source)
	second, _ := newTestExtractor(t, source)

	a, err := first.Extract(context.Background())
	require.NoError(t, err)
	b, err := second.Extract(context.Background())
	require.NoError(t, err)
	require.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestExtractMissingFile(t *testing.T) {
	cfg := config.Default()
	cfg.SourcePath = filepath.Join(t.TempDir(), "missing.jsonl")
	cfg.ExtractedPath = filepath.Join(t.TempDir(), "extracted_data.csv")

	_, err := NewExtractor(cfg).Extract(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist), "expected ErrNotExist, got %v", err)

	_, statErr := os.Stat(cfg.ExtractedPath)
	require.True(t, os.IsNotExist(statErr), "no artifact should be written")
}

func TestExtractMalformedRecord(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		e, cfg := newTestExtractor(t, "{\"year\":2012}\n{\"year\":\n")

		_, err := e.Extract(context.Background())
		require.ErrorIs(t, err, ErrMalformedRecord)
		require.Contains(t, err.Error(), "line 2")

		_, statErr := os.Stat(cfg.ExtractedPath)
		require.True(t, os.IsNotExist(statErr))
	})

	t.Run("not an object", func(t *testing.T) {
		e, _ := newTestExtractor(t, "[1,2,3]\n")

		_, err := e.Extract(context.Background())
		require.ErrorIs(t, err, ErrMalformedRecord)
	})

	t.Run("trailing data", func(t *testing.T) {
		e, _ := newTestExtractor(t, `{"a":1} {"b":2}`+"\n")

		_, err := e.Extract(context.Background())
		require.ErrorIs(t, err, ErrMalformedRecord)
	})
}

func TestExtractEmptySource(t *testing.T) {
	e, cfg := newTestExtractor(t, "\n\n")

	result, err := e.Extract(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Records)

	data, err := os.ReadFile(cfg.ExtractedPath)
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestReadRecordsRendersValues(t *testing.T) {
	line := `{"s":"x","n":1.50,"b":true,"z":null,"arr":[1, 2],"obj":{"k": "v"}}`

	table, err := ReadRecords(context.Background(), strings.NewReader(line))
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	row := table.Rows[0]
	require.Equal(t, "x", row["s"])
	require.Equal(t, "1.50", row["n"])
	require.Equal(t, "true", row["b"])
	require.Equal(t, "", row["z"])
	require.Equal(t, "[1,2]", row["arr"])
	require.Equal(t, `{"k":"v"}`, row["obj"])
	require.Equal(t, []string{"s", "n", "b", "z", "arr", "obj"}, table.Columns)
}
