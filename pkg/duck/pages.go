package duck

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// PageWriteConfig describes one raw page artifact.
type PageWriteConfig struct {
	// Columns are the staged column names, in CSV order.
	Columns []string
	// TimestampColumns are normalized to TIMESTAMP at write time; values that
	// fail to parse become NULL rather than a fatal error.
	TimestampColumns []string
	// NumericColumns are normalized to DOUBLE at write time, same NULL
	// semantics.
	NumericColumns []string
	// Path is the Parquet file to write.
	Path string
}

// WriteParquetPage stages CSV rows into a temp table and writes them to a
// single Parquet file with type normalization applied. Pages are immutable
// once flushed; the caller guarantees a fresh path per page.
func WriteParquetPage(
	ctx context.Context,
	log *slog.Logger,
	conn Connection,
	cfg PageWriteConfig,
	count int,
	writeCSVFn func(*csv.Writer, int) error,
) error {
	start := time.Now()
	defer func() {
		log.Debug("page write completed",
			"path", cfg.Path,
			"rows", count,
			"duration", time.Since(start).String())
	}()

	if len(cfg.Columns) == 0 {
		return fmt.Errorf("columns cannot be empty")
	}
	if cfg.Path == "" {
		return fmt.Errorf("path is required")
	}

	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for page: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create page directory: %w", err)
	}

	tmpFile, err := os.CreateTemp("", "page_stage_*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	csvWriter := csv.NewWriter(tmpFile)
	for i := range count {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during CSV writing: %w", ctx.Err())
		default:
		}
		if err := writeCSVFn(csvWriter, i); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Error("failed to rollback page stage transaction", "error", err)
		}
	}()

	stageCols := make([]string, 0, len(cfg.Columns))
	for _, col := range cfg.Columns {
		stageCols = append(stageCols, col+":VARCHAR")
	}
	const stageTableName = "raw_page_stage"
	if err := createVarcharStageTable(ctx, tx, stageCols, stageTableName); err != nil {
		return err
	}

	copyInSQL := fmt.Sprintf("COPY %s FROM '%s' (FORMAT CSV, HEADER false)", stageTableName, QuotePath(tmpFile.Name()))
	if _, err := tx.ExecContext(ctx, copyInSQL); err != nil {
		return fmt.Errorf("failed to COPY FROM CSV: %w", err)
	}

	exprs := make([]string, 0, len(cfg.Columns))
	for _, col := range cfg.Columns {
		switch {
		case slices.Contains(cfg.TimestampColumns, col):
			exprs = append(exprs, fmt.Sprintf("TRY_CAST(NULLIF(%s, '') AS TIMESTAMP) AS %s", col, col))
		case slices.Contains(cfg.NumericColumns, col):
			exprs = append(exprs, fmt.Sprintf("TRY_CAST(NULLIF(%s, '') AS DOUBLE) AS %s", col, col))
		default:
			exprs = append(exprs, col)
		}
	}

	copyOutSQL := fmt.Sprintf("COPY (SELECT %s FROM %s) TO '%s' (FORMAT PARQUET)",
		strings.Join(exprs, ", "), stageTableName, QuotePath(abs))
	if _, err := tx.ExecContext(ctx, copyOutSQL); err != nil {
		return fmt.Errorf("failed to COPY TO parquet: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+stageTableName); err != nil {
		log.Error("failed to drop page stage table", "error", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit page write: %w", err)
	}
	return nil
}
