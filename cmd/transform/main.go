// Command transform recomputes the clean analytical dataset from the full
// raw page archive and publishes it as a consolidated Parquet file plus a
// (year, month)-partitioned layout.
//
// It takes no flags: inputs and outputs are fixed paths, and the SLA
// threshold comes from the SLA_HOURS environment variable (default 24).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/civicworks/lake311/pkg/duck"
	"github.com/civicworks/lake311/pkg/logger"
	"github.com/civicworks/lake311/pkg/requests"
	"github.com/civicworks/lake311/pkg/transform"
)

const (
	rawDir        = "data/raw"
	cleanPath     = "data/processed/nyc311_clean.parquet"
	partitionRoot = "data/processed_part"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	log := logger.New(os.Getenv("VERBOSE") != "")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slaHours := transform.DefaultSLAHours
	if v := os.Getenv("SLA_HOURS"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid SLA_HOURS %q: %w", v, err)
		}
		slaHours = parsed
	}

	loc, err := time.LoadLocation(requests.CivicTimezone)
	if err != nil {
		return fmt.Errorf("failed to load civic timezone: %w", err)
	}

	// Holiday detection is an optional capability; disabling it degrades the
	// is_holiday column to all-false rather than failing the run.
	var holidays transform.HolidayCalendar = transform.NewUSHolidayCalendar()
	if os.Getenv("DISABLE_HOLIDAYS") != "" {
		log.Warn("holiday detection disabled; is_holiday will be all false")
		holidays = transform.NoHolidayCalendar{}
	}

	db, err := duck.NewDB(ctx, log, "")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database", "error", err)
		}
	}()

	raw, err := transform.LoadRaw(ctx, db, rawDir, requests.PagePrefix)
	if err != nil {
		return err
	}
	log.Info("loaded raw archive", "rows", len(raw))

	clean := transform.Transform(raw, transform.Config{
		SLAHours: slaHours,
		Location: loc,
		Holidays: holidays,
	})
	log.Info("engineered features", "rows", len(clean), "dropped", len(raw)-len(clean), "sla_hours", slaHours)

	// Validation failures abort before any write; a previously published
	// dataset stays intact.
	if err := transform.Validate(clean); err != nil {
		return err
	}

	return transform.Publish(ctx, log, db, clean, transform.PublishConfig{
		SinglePath:    cleanPath,
		PartitionRoot: partitionRoot,
	})
}
