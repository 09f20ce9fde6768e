// Package ingest drives the paginated fetch of service requests into
// immutable per-page Parquet artifacts.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/civicworks/lake311/pkg/duck"
	"github.com/civicworks/lake311/pkg/requests"
	"github.com/civicworks/lake311/pkg/soda"
)

// Config holds configuration for an ingestion run.
type Config struct {
	Logger  *slog.Logger
	Clock   clockwork.Clock
	DB      duck.DB
	Fetcher Fetcher

	// Since and Until bound the fetch window (inclusive dates).
	Since time.Time
	Until time.Time

	// PageSize is the number of rows requested per API call.
	PageSize int
	// MaxRows caps the total rows fetched; 0 means no cap. When set, the
	// preflight count query is skipped entirely.
	MaxRows int

	// OutDir receives page artifacts. Pages from different since-windows can
	// share a directory; the since tag in the filename keeps them apart.
	OutDir string
	// FilePrefix defaults to the dataset page prefix.
	FilePrefix string

	// DryRun performs the full fetch/pagination/logging path without writing
	// or archiving anything.
	DryRun bool

	// Archiver receives each flushed page artifact. Optional; archive
	// failures are warnings, never fatal.
	Archiver Archiver
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	if cfg.Fetcher == nil {
		return errors.New("fetcher is required")
	}
	if cfg.Since.IsZero() || cfg.Until.IsZero() {
		return errors.New("since and until are required")
	}
	if cfg.Since.After(cfg.Until) {
		return fmt.Errorf("since (%s) is after until (%s)", cfg.Since.Format(dateLayout), cfg.Until.Format(dateLayout))
	}
	if cfg.PageSize <= 0 {
		return errors.New("page size must be positive")
	}
	if cfg.MaxRows < 0 {
		return errors.New("max rows cannot be negative")
	}
	if cfg.OutDir == "" {
		return errors.New("output directory is required")
	}
	return nil
}

// Ingester pages through the fetch window and writes one Parquet artifact per
// page. Single process, strictly sequential: pages already flushed when a run
// is interrupted remain valid, and a later run can resume the archive.
type Ingester struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Ingester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = requests.PagePrefix
	}
	if cfg.Archiver == nil {
		cfg.Archiver = NopArchiver{}
	}
	return &Ingester{log: cfg.Logger, cfg: cfg}, nil
}

// Run executes the ingestion loop and returns the total rows written.
func (i *Ingester) Run(ctx context.Context) (int, error) {
	cfg := i.cfg
	where := BuildWhere(cfg.Since, cfg.Until)
	i.log.Info("ingesting service requests", "where", where, "page_size", cfg.PageSize, "out_dir", cfg.OutDir, "dry_run", cfg.DryRun)

	// A user-supplied row cap makes the expensive count(1) round trip
	// unnecessary: the page plan follows directly from the cap.
	var totalToFetch int
	if cfg.MaxRows > 0 {
		totalToFetch = cfg.MaxRows
	} else {
		i.log.Info("counting total rows for query to page through results")
		count, err := cfg.Fetcher.Count(ctx, where)
		if err != nil {
			return 0, fmt.Errorf("failed to count rows: %w", err)
		}
		totalToFetch = count
	}
	pages := 0
	if totalToFetch > 0 {
		pages = int(math.Ceil(float64(totalToFetch) / float64(cfg.PageSize)))
	}
	i.log.Info("fetch plan", "rows", totalToFetch, "pages", pages, "page_size", cfg.PageSize)

	if !cfg.DryRun {
		if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
			return 0, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	conn, err := cfg.DB.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	sinceTag := cfg.Since.Format(dateLayout)
	offset := 0
	pageIdx := 0
	written := 0

	for {
		thisLimit := cfg.PageSize
		if cfg.MaxRows > 0 {
			remaining := cfg.MaxRows - written
			if remaining <= 0 {
				break
			}
			thisLimit = min(cfg.PageSize, remaining)
		}

		rows, err := cfg.Fetcher.Fetch(ctx, soda.Query{
			Where:  where,
			Order:  requests.CreatedColumn + " ASC",
			Select: strings.Join(requests.SelectColumns, ","),
			Limit:  thisLimit,
			Offset: offset,
		})
		if err != nil {
			return written, fmt.Errorf("failed to fetch page at offset %d: %w", offset, err)
		}
		if len(rows) == 0 {
			break
		}

		pageIdx++
		written += len(rows)
		// The since tag keeps repeated per-window ingests into a shared
		// out-dir from overwriting each other's pages; within a run the
		// strictly increasing index makes collisions impossible.
		path := filepath.Join(cfg.OutDir, fmt.Sprintf("%s_%s_%05d.parquet", cfg.FilePrefix, sinceTag, pageIdx))

		if cfg.DryRun {
			i.log.Info("dry-run: would write page", "rows", len(rows), "path", path)
		} else {
			if err := i.writePage(ctx, conn, rows, path); err != nil {
				return written, fmt.Errorf("failed to write page %d: %w", pageIdx, err)
			}
			i.log.Info("wrote page", "rows", len(rows), "path", path)
			if err := cfg.Archiver.Archive(ctx, path); err != nil {
				i.log.Warn("failed to archive page, continuing", "path", path, "error", err)
			}
		}

		// A short page means the window is exhausted.
		if len(rows) < thisLimit {
			break
		}
		if cfg.MaxRows > 0 && written >= cfg.MaxRows {
			break
		}

		// Advance by the amount actually requested, which may be less than
		// the page size on the final quota-limited page.
		offset += thisLimit
	}

	i.log.Info("ingestion done", "total_rows_written", written, "pages", pageIdx)
	return written, nil
}

func (i *Ingester) writePage(ctx context.Context, conn duck.Connection, rows []soda.Record, path string) error {
	return duck.WriteParquetPage(ctx, i.log, conn, duck.PageWriteConfig{
		Columns:          requests.SelectColumns,
		TimestampColumns: requests.TimestampColumns,
		NumericColumns:   requests.NumericColumns,
		Path:             path,
	}, len(rows), func(w *csv.Writer, idx int) error {
		rec := rows[idx]
		values := make([]string, len(requests.SelectColumns))
		for c, col := range requests.SelectColumns {
			values[c] = rec[col]
		}
		return w.Write(values)
	})
}
