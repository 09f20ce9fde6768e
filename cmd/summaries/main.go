// Command summaries regenerates the precomputed aggregate tables for the
// dashboard fast path from the partitioned clean dataset.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/civicworks/lake311/pkg/duck"
	"github.com/civicworks/lake311/pkg/logger"
	"github.com/civicworks/lake311/pkg/summary"
	"github.com/civicworks/lake311/pkg/transform"
)

const (
	defaultPartitionRoot = "data/processed_part"
	defaultOutDir        = "data/summaries"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	slaFlag := flag.Float64("sla", getenvFloat("SLA_HOURS", transform.DefaultSLAHours), "SLA hours threshold for within/breach rates (or set SLA_HOURS env var)")
	partitionRootFlag := flag.String("partition-root", defaultPartitionRoot, "root of the partitioned clean dataset")
	outDirFlag := flag.String("out-dir", defaultOutDir, "output directory for summaries")
	flag.Parse()

	log := logger.New(*verboseFlag)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := duck.NewDB(ctx, log, "")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database", "error", err)
		}
	}()

	agg, err := summary.New(summary.Config{
		Logger:        log,
		DB:            db,
		PartitionGlob: duck.PartitionGlob(*partitionRootFlag),
		SLAHours:      *slaFlag,
		OutDir:        *outDirFlag,
	})
	if err != nil {
		return err
	}
	return agg.Run(ctx)
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
