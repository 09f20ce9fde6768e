// Package summary regenerates the precomputed aggregate tables consumed by
// the dashboard fast path. The summaries are disposable caches: rebuilt
// wholesale from the partitioned dataset on every run, never patched
// incrementally and never hand-edited.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/civicworks/lake311/pkg/duck"
)

// Config holds configuration for the aggregator.
type Config struct {
	Logger *slog.Logger
	DB     duck.DB

	// PartitionGlob matches the data files of the partitioned clean dataset.
	PartitionGlob string
	// SLAHours is the threshold for within/breach rates. Within uses
	// response_hours <= SLAHours; breach is its exact complement.
	SLAHours float64
	// OutDir receives the summary Parquet files.
	OutDir string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	if cfg.PartitionGlob == "" {
		return errors.New("partition glob is required")
	}
	if cfg.SLAHours <= 0 {
		return errors.New("SLA hours must be positive")
	}
	if cfg.OutDir == "" {
		return errors.New("output directory is required")
	}
	return nil
}

// Aggregator derives the three summary tables, each in a single pass over
// the partitioned dataset.
type Aggregator struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{log: cfg.Logger, cfg: cfg}, nil
}

// Run rebuilds all three summaries, overwriting prior versions.
func (a *Aggregator) Run(ctx context.Context) error {
	conn, err := a.cfg.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	for _, s := range []struct {
		name string
		sql  string
	}{
		{"daily_summary", a.dailySQL()},
		{"complaint_type_summary", a.complaintTypeSQL()},
		{"dow_hour_summary", a.dowHourSQL()},
	} {
		path := filepath.Join(a.cfg.OutDir, s.name+".parquet")
		if err := duck.CopyToParquet(ctx, conn, s.sql, path); err != nil {
			return fmt.Errorf("failed to compute %s: %w", s.name, err)
		}
		a.log.Info("wrote summary", "name", s.name, "path", path)
	}
	return nil
}

func (a *Aggregator) scan() string {
	return fmt.Sprintf("parquet_scan('%s')", duck.QuotePath(a.cfg.PartitionGlob))
}

// slaCase buckets a row as within (1) or breached (0), leaving rows with no
// response time NULL so avg() excludes them from the denominator instead of
// counting them as failures.
func (a *Aggregator) slaCase(within bool) string {
	cmp := fmt.Sprintf("response_hours <= %g", a.cfg.SLAHours)
	if !within {
		cmp = fmt.Sprintf("response_hours > %g", a.cfg.SLAHours)
	}
	return fmt.Sprintf("CASE WHEN response_hours IS NULL THEN NULL WHEN %s THEN 1 ELSE 0 END", cmp)
}

func (a *Aggregator) dailySQL() string {
	return fmt.Sprintf(`SELECT
	CAST(created_dt AS DATE) AS date,
	borough,
	complaint_type,
	count(*) AS tickets,
	median(response_hours) AS median_response,
	avg(%s) AS pct_within
FROM %s
WHERE created_dt IS NOT NULL
GROUP BY 1, 2, 3
ORDER BY 1 DESC`, a.slaCase(true), a.scan())
}

func (a *Aggregator) complaintTypeSQL() string {
	return fmt.Sprintf(`SELECT
	complaint_type,
	borough,
	count(*) AS tickets,
	coalesce(avg(%s), 0.0) AS breach_rate
FROM %s
WHERE created_dt IS NOT NULL
GROUP BY 1, 2
ORDER BY 1, 2`, a.slaCase(false), a.scan())
}

func (a *Aggregator) dowHourSQL() string {
	return fmt.Sprintf(`SELECT
	dow_name,
	hour,
	borough,
	complaint_type,
	count(*) AS tickets,
	coalesce(avg(%s), 0.0) AS breach_rate,
	median(response_hours) AS median_response
FROM %s
WHERE created_dt IS NOT NULL
GROUP BY 1, 2, 3, 4
ORDER BY 1, 2`, a.slaCase(false), a.scan())
}
