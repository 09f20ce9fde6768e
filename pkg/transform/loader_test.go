package transform

import (
	"context"
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/civicworks/lake311/pkg/duck"
	"github.com/civicworks/lake311/pkg/requests"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func openTestDB(t *testing.T) duck.DB {
	t.Helper()
	db, err := duck.NewDB(context.Background(), testLogger(), "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// writeRawPage writes one page artifact the way the ingester does, from rows
// keyed by raw column name.
func writeRawPage(t *testing.T, db duck.DB, path string, rows []map[string]string) {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()

	err = duck.WriteParquetPage(ctx, testLogger(), conn, duck.PageWriteConfig{
		Columns:          requests.SelectColumns,
		TimestampColumns: requests.TimestampColumns,
		NumericColumns:   requests.NumericColumns,
		Path:             path,
	}, len(rows), func(w *csv.Writer, i int) error {
		values := make([]string, len(requests.SelectColumns))
		for c, col := range requests.SelectColumns {
			values[c] = rows[i][col]
		}
		return w.Write(values)
	})
	require.NoError(t, err)
}

func TestLoadRaw(t *testing.T) {
	t.Parallel()

	t.Run("missing archive is a distinct error", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		_, err := LoadRaw(context.Background(), db, t.TempDir(), requests.PagePrefix)
		require.ErrorIs(t, err, ErrNoRawFiles)
	})

	t.Run("concatenates pages with type normalization", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		rawDir := t.TempDir()

		writeRawPage(t, db, filepath.Join(rawDir, "nyc311_2023-05-01_00001.parquet"), []map[string]string{
			{
				"unique_key":     "1",
				"created_date":   "2023-05-01T08:00:00.000",
				"closed_date":    "2023-05-01T12:30:00.000",
				"borough":        "BROOKLYN",
				"complaint_type": "Noise - Residential",
				"latitude":       "40.678",
				"longitude":      "-73.944",
			},
			{
				"unique_key":   "2",
				"created_date": "2023-05-02T09:00:00.000",
				"borough":      "QUEENS",
				// latitude missing: stages as '' and becomes NULL
			},
		})
		writeRawPage(t, db, filepath.Join(rawDir, "nyc311_2023-05-01_00002.parquet"), []map[string]string{
			{
				"unique_key":   "3",
				"created_date": "not a timestamp",
				"borough":      "BRONX",
			},
		})

		records, err := LoadRaw(context.Background(), db, rawDir, requests.PagePrefix)
		require.NoError(t, err)
		require.Len(t, records, 3)

		byKey := make(map[string]requests.RawRecord, len(records))
		for _, r := range records {
			byKey[r.UniqueKey] = r
		}

		first := byKey["1"]
		require.NotNil(t, first.CreatedDate)
		require.Equal(t, 2023, first.CreatedDate.Year())
		require.NotNil(t, first.ClosedDate)
		require.NotNil(t, first.Latitude)
		require.InDelta(t, 40.678, *first.Latitude, 0.001)
		require.Equal(t, "BROOKLYN", first.Borough)

		second := byKey["2"]
		require.Nil(t, second.ClosedDate)
		require.Nil(t, second.Latitude)

		// Unparseable timestamps were normalized to NULL at page-write time.
		third := byKey["3"]
		require.Nil(t, third.CreatedDate)
	})

	t.Run("ignores files outside the page naming scheme", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		rawDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(rawDir, "notes.txt"), []byte("x"), 0644))

		_, err := LoadRaw(context.Background(), db, rawDir, requests.PagePrefix)
		require.ErrorIs(t, err, ErrNoRawFiles)
	})
}
