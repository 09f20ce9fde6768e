package summary

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicworks/lake311/pkg/duck"
	"github.com/civicworks/lake311/pkg/requests"
	"github.com/civicworks/lake311/pkg/transform"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func tsPtr(v time.Time) *time.Time { return &v }

// publishFixture builds a small partitioned clean dataset: four Brooklyn
// noise tickets (two within a 24h SLA, one breached, one still open) and one
// Queens parking ticket.
func publishFixture(t *testing.T, db duck.DB, partitionRoot string) {
	t.Helper()

	loc, err := time.LoadLocation(requests.CivicTimezone)
	require.NoError(t, err)

	created := func(day, hour int) *time.Time {
		return tsPtr(time.Date(2023, 5, day, hour, 0, 0, 0, time.UTC))
	}
	raw := []requests.RawRecord{
		{UniqueKey: "1", CreatedDate: created(1, 12), ClosedDate: tsPtr(created(1, 12).Add(2 * time.Hour)),
			Borough: "BROOKLYN", ComplaintType: "Noise - Residential"},
		{UniqueKey: "2", CreatedDate: created(1, 13), ClosedDate: tsPtr(created(1, 13).Add(20 * time.Hour)),
			Borough: "BROOKLYN", ComplaintType: "Noise - Residential"},
		{UniqueKey: "3", CreatedDate: created(2, 12), ClosedDate: tsPtr(created(2, 12).Add(50 * time.Hour)),
			Borough: "BROOKLYN", ComplaintType: "Noise - Residential"},
		{UniqueKey: "4", CreatedDate: created(2, 13),
			Borough: "BROOKLYN", ComplaintType: "Noise - Residential"},
		{UniqueKey: "5", CreatedDate: created(3, 12), ClosedDate: tsPtr(created(3, 12).Add(1 * time.Hour)),
			Borough: "QUEENS", ComplaintType: "Illegal Parking"},
	}
	clean := transform.Transform(raw, transform.Config{SLAHours: 24, Location: loc})
	require.NoError(t, transform.Validate(clean))

	singlePath := filepath.Join(t.TempDir(), "clean.parquet")
	require.NoError(t, transform.Publish(context.Background(), testLogger(), db, clean, transform.PublishConfig{
		SinglePath:    singlePath,
		PartitionRoot: partitionRoot,
	}))
}

func TestAggregatorRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := duck.NewDB(ctx, testLogger(), "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	partitionRoot := t.TempDir()
	outDir := t.TempDir()
	publishFixture(t, db, partitionRoot)

	agg, err := New(Config{
		Logger:        testLogger(),
		DB:            db,
		PartitionGlob: duck.PartitionGlob(partitionRoot),
		SLAHours:      24,
		OutDir:        outDir,
	})
	require.NoError(t, err)
	require.NoError(t, agg.Run(ctx))

	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()

	readPath := func(name string) string {
		p := filepath.Join(outDir, name+".parquet")
		require.FileExists(t, p)
		return duck.QuotePath(p)
	}

	t.Run("daily summary groups by date, borough and type", func(t *testing.T) {
		var rows int
		require.NoError(t, conn.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT count(*) FROM read_parquet('%s')", readPath("daily_summary"))).Scan(&rows))
		// Brooklyn noise spans two local dates, plus one Queens parking day.
		require.Equal(t, 3, rows)

		var tickets int
		var pctWithin float64
		require.NoError(t, conn.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT tickets, pct_within FROM read_parquet('%s') WHERE date = DATE '2023-05-01'",
			readPath("daily_summary"))).Scan(&tickets, &pctWithin))
		require.Equal(t, 2, tickets)
		require.InDelta(t, 1.0, pctWithin, 1e-9)
	})

	t.Run("breach rate excludes open tickets from the denominator", func(t *testing.T) {
		var tickets int
		var breachRate float64
		require.NoError(t, conn.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT tickets, breach_rate FROM read_parquet('%s') WHERE complaint_type = 'Noise - Residential'",
			readPath("complaint_type_summary"))).Scan(&tickets, &breachRate))
		require.Equal(t, 4, tickets)
		// Three closed tickets, one breached: 1/3, not 2/4.
		require.InDelta(t, 1.0/3.0, breachRate, 1e-9)
	})

	t.Run("dow-hour summary covers every ticket", func(t *testing.T) {
		var total int
		require.NoError(t, conn.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT CAST(sum(tickets) AS BIGINT) FROM read_parquet('%s')", readPath("dow_hour_summary"))).Scan(&total))
		require.Equal(t, 5, total)
	})
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := duck.NewDB(ctx, testLogger(), "")
	require.NoError(t, err)
	defer db.Close()

	valid := Config{
		Logger:        testLogger(),
		DB:            db,
		PartitionGlob: "data/part/year=*/month=*/*.parquet",
		SLAHours:      24,
		OutDir:        "data/summaries",
	}
	require.NoError(t, valid.Validate())

	noGlob := valid
	noGlob.PartitionGlob = ""
	require.Error(t, noGlob.Validate())

	badSLA := valid
	badSLA.SLAHours = 0
	require.Error(t, badSLA.Validate())

	noOut := valid
	noOut.OutDir = ""
	require.Error(t, noOut.Validate())
}
