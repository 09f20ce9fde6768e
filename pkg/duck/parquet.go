package duck

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// CopyToParquet writes the result of selectSQL to a single Parquet file,
// creating the parent directory if needed.
func CopyToParquet(ctx context.Context, conn Connection, selectSQL, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for parquet file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create parquet directory: %w", err)
	}

	copySQL := fmt.Sprintf("COPY (%s) TO '%s' (FORMAT PARQUET)", selectSQL, QuotePath(abs))
	if _, err := conn.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("failed to COPY TO parquet: %w", err)
	}
	return nil
}

// CopyPartitionedByMonth writes the result of selectSQL to a hive-partitioned
// Parquet layout under root, keyed by (year, month) derived from timeColumn.
// OVERWRITE_OR_IGNORE makes re-runs idempotent: partitions present in the new
// data are rewritten, untouched partitions are left alone.
//
// The select must not already contain year/month columns: DuckDB would rename
// the appended partition key (month_1) and partition by the renamed column,
// breaking the year=*/month=* layout PartitionGlob expects.
func CopyPartitionedByMonth(ctx context.Context, log *slog.Logger, conn Connection, selectSQL, timeColumn, root string) error {
	if err := checkNoPartitionKeyCollision(ctx, conn, selectSQL); err != nil {
		return err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for partition root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return fmt.Errorf("failed to create partition root: %w", err)
	}

	copySQL := fmt.Sprintf(
		"COPY (SELECT *, year(%s) AS year, month(%s) AS month FROM (%s)) TO '%s' (FORMAT PARQUET, PARTITION_BY (year, month), OVERWRITE_OR_IGNORE)",
		timeColumn, timeColumn, selectSQL, QuotePath(abs))
	if _, err := conn.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("failed to COPY TO partitioned parquet: %w", err)
	}

	log.Debug("wrote partitioned parquet", "root", abs, "time_column", timeColumn)
	return nil
}

// checkNoPartitionKeyCollision rejects selects whose projection already
// carries a column named year or month.
func checkNoPartitionKeyCollision(ctx context.Context, conn Connection, selectSQL string) error {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("SELECT * FROM (%s) LIMIT 0", selectSQL))
	if err != nil {
		return fmt.Errorf("failed to inspect partition select: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to get partition select columns: %w", err)
	}
	for _, c := range cols {
		if c == "year" || c == "month" {
			return fmt.Errorf("partition select already contains a %q column; exclude it before partitioning", c)
		}
	}
	return rows.Err()
}

// PartitionGlob returns the glob matching all data files under a
// CopyPartitionedByMonth layout.
func PartitionGlob(root string) string {
	return filepath.Join(root, "year=*", "month=*", "*.parquet")
}
