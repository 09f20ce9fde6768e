package transform

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicworks/lake311/pkg/duck"
	"github.com/civicworks/lake311/pkg/requests"
)

func sampleClean(t *testing.T) []requests.CleanRecord {
	t.Helper()
	raw := []requests.RawRecord{
		{
			UniqueKey:     "1",
			CreatedDate:   tsPtr(time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)),
			ClosedDate:    tsPtr(time.Date(2023, 5, 1, 16, 0, 0, 0, time.UTC)),
			Borough:       "BROOKLYN",
			ComplaintType: "Noise - Residential",
		},
		{
			UniqueKey:     "2",
			CreatedDate:   tsPtr(time.Date(2023, 6, 2, 12, 0, 0, 0, time.UTC)),
			Borough:       "QUEENS",
			ComplaintType: "Illegal Parking",
		},
		{
			UniqueKey:     "3",
			CreatedDate:   tsPtr(time.Date(2023, 6, 3, 12, 0, 0, 0, time.UTC)),
			ClosedDate:    tsPtr(time.Date(2023, 6, 5, 12, 0, 0, 0, time.UTC)),
			Borough:       "QUEENS",
			ComplaintType: "Illegal Parking",
		},
	}
	return Transform(raw, baseConfig(t))
}

func TestPublish(t *testing.T) {
	t.Parallel()

	t.Run("writes consolidated and partitioned datasets", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := openTestDB(t)
		outDir := t.TempDir()
		singlePath := filepath.Join(outDir, "clean.parquet")
		partitionRoot := filepath.Join(outDir, "part")

		clean := sampleClean(t)
		require.NoError(t, Validate(clean))
		require.NoError(t, Publish(ctx, testLogger(), db, clean, PublishConfig{
			SinglePath:    singlePath,
			PartitionRoot: partitionRoot,
		}))

		conn, err := db.Conn(ctx)
		require.NoError(t, err)
		defer conn.Close()

		var count int
		require.NoError(t, conn.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT count(*) FROM read_parquet('%s')", duck.QuotePath(singlePath))).Scan(&count))
		require.Equal(t, 3, count)

		// Open tickets publish NULL for both SLA columns.
		var hours sql.NullFloat64
		var within sql.NullBool
		require.NoError(t, conn.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT response_hours, within_sla FROM read_parquet('%s') WHERE unique_key = '2'",
			duck.QuotePath(singlePath))).Scan(&hours, &within))
		require.False(t, hours.Valid)
		require.False(t, within.Valid)

		require.NoError(t, conn.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT response_hours, within_sla FROM read_parquet('%s') WHERE unique_key = '1'",
			duck.QuotePath(singlePath))).Scan(&hours, &within))
		require.True(t, hours.Valid)
		require.InDelta(t, 4.0, hours.Float64, 1e-9)
		require.True(t, within.Valid)
		require.True(t, within.Bool)

		// The partitioned layout carries the same rows, keyed by local month.
		// The data files land under year=*/month=* directories, so the glob
		// itself must match them; the month partition key must not get
		// renamed by a collision with the calendar month column.
		glob := duck.PartitionGlob(partitionRoot)
		files, err := filepath.Glob(glob)
		require.NoError(t, err)
		require.NotEmpty(t, files)

		var partCount int
		require.NoError(t, conn.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT count(*) FROM parquet_scan('%s')", duck.QuotePath(glob))).Scan(&partCount))
		require.Equal(t, count, partCount)

		var months int
		require.NoError(t, conn.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT count(DISTINCT month) FROM parquet_scan('%s', hive_partitioning=true)",
			duck.QuotePath(glob))).Scan(&months))
		require.Equal(t, 2, months)

		// Hive reads recover the calendar month from the partition path.
		var mayCount int
		require.NoError(t, conn.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT count(*) FROM parquet_scan('%s', hive_partitioning=true) WHERE month = 5",
			duck.QuotePath(glob))).Scan(&mayCount))
		require.Equal(t, 1, mayCount)
	})

	t.Run("partitioned write is best-effort", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := openTestDB(t)
		outDir := t.TempDir()
		singlePath := filepath.Join(outDir, "clean.parquet")

		// An unwritable partition root degrades to consolidated-only.
		require.NoError(t, Publish(ctx, testLogger(), db, sampleClean(t), PublishConfig{
			SinglePath:    singlePath,
			PartitionRoot: filepath.Join(singlePath, "not-a-dir"),
		}))
		require.FileExists(t, singlePath)
	})

	t.Run("requires a consolidated path", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		err := Publish(context.Background(), testLogger(), db, nil, PublishConfig{})
		require.ErrorContains(t, err, "single path is required")
	})
}
