package duck

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ReplaceTableConfig holds configuration for full-recompute table replacement.
type ReplaceTableConfig struct {
	// TableName is the name of the target table.
	TableName string
	// Columns defines all columns in the target table (in order).
	// Each column is a name:type pair, e.g., "created_dt:TIMESTAMP", "borough:VARCHAR"
	Columns []string
}

func (cfg ReplaceTableConfig) columnNames() ([]string, error) {
	names := make([]string, 0, len(cfg.Columns))
	for _, col := range cfg.Columns {
		parts := strings.SplitN(col, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid column definition %q: expected format 'name:type'", col)
		}
		names = append(names, strings.TrimSpace(parts[0]))
	}
	return names, nil
}

// ReplaceTableViaCSV rebuilds a table wholesale from CSV rows:
// - Stages data into a temp VARCHAR table via COPY FROM
// - Drops and recreates the typed target table
// - Inserts from stage with TRY_CAST per column (unparseable values become NULL)
//
// The table is replaced in a single transaction, so a failed run leaves any
// previous contents untouched. Re-running with the same input is idempotent.
func ReplaceTableViaCSV(
	ctx context.Context,
	log *slog.Logger,
	conn Connection,
	cfg ReplaceTableConfig,
	count int,
	writeCSVFn func(*csv.Writer, int) error,
) error {
	start := time.Now()
	defer func() {
		log.Debug("table replacement completed",
			"table", cfg.TableName,
			"rows", count,
			"duration", time.Since(start).String())
	}()

	if len(cfg.Columns) == 0 {
		return fmt.Errorf("columns cannot be empty")
	}

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("%s_replace_*.csv", cfg.TableName))
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

	return retryWithBackoff(ctx, log, fmt.Sprintf("replace table %s", cfg.TableName), func() error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", cfg.TableName, err)
		}
		defer func() {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Error("failed to rollback transaction", "table", cfg.TableName, "error", err)
			}
		}()

		stageTableName := cfg.TableName + "_stage"
		if err := createVarcharStageTable(ctx, tx, cfg.Columns, stageTableName); err != nil {
			return fmt.Errorf("failed to create stage table: %w", err)
		}

		copySQL := fmt.Sprintf("COPY %s FROM '%s' (FORMAT CSV, HEADER false)", stageTableName, QuotePath(tmpFile.Name()))
		if _, err := tx.ExecContext(ctx, copySQL); err != nil {
			return fmt.Errorf("failed to COPY FROM CSV: %w", err)
		}

		colDefs := make([]string, 0, len(cfg.Columns))
		castExprs := make([]string, 0, len(cfg.Columns))
		for _, col := range cfg.Columns {
			parts := strings.SplitN(col, ":", 2)
			if len(parts) != 2 {
				return fmt.Errorf("invalid column definition %q: expected format 'name:type'", col)
			}
			name := strings.TrimSpace(parts[0])
			typ := strings.TrimSpace(parts[1])
			colDefs = append(colDefs, fmt.Sprintf("%s %s", name, typ))
			if strings.EqualFold(typ, "VARCHAR") {
				castExprs = append(castExprs, name)
			} else {
				// Empty CSV fields stage as '', which TRY_CAST maps to NULL.
				castExprs = append(castExprs, fmt.Sprintf("TRY_CAST(NULLIF(%s, '') AS %s) AS %s", name, typ, name))
			}
		}

		db := conn.DB()
		qualified := fmt.Sprintf("%s.%s.%s", db.Catalog(), db.Schema(), cfg.TableName)

		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", qualified)); err != nil {
			return fmt.Errorf("failed to drop existing table: %w", err)
		}
		createSQL := fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", qualified, strings.Join(colDefs, ",\n\t"))
		if _, err := tx.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}

		insertSQL := fmt.Sprintf("INSERT INTO %s SELECT %s FROM %s",
			qualified, strings.Join(castExprs, ", "), stageTableName)
		if _, err := tx.ExecContext(ctx, insertSQL); err != nil {
			return fmt.Errorf("failed to insert into table: %w", err)
		}

		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", stageTableName)); err != nil {
			log.Error("failed to drop stage table", "error", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// createVarcharStageTable creates a temporary staging table with every column
// typed VARCHAR to simplify CSV loading. Type conversion happens on INSERT.
func createVarcharStageTable(ctx context.Context, tx *sql.Tx, columns []string, stageTableName string) error {
	colDefs := make([]string, 0, len(columns))
	for _, col := range columns {
		parts := strings.SplitN(col, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid column definition %q: expected format 'name:type'", col)
		}
		colDefs = append(colDefs, fmt.Sprintf("%s VARCHAR", strings.TrimSpace(parts[0])))
	}

	createSQL := fmt.Sprintf("CREATE OR REPLACE TEMP TABLE %s (\n\t%s\n)",
		stageTableName, strings.Join(colDefs, ",\n\t"))
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create stage table: %w", err)
	}
	return nil
}
