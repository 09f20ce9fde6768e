// Command ingest pulls NYC 311 service requests from the Socrata API into
// immutable per-page Parquet artifacts under the raw data directory.
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
	"github.com/jonboulle/clockwork"
	flag "github.com/spf13/pflag"

	"github.com/civicworks/lake311/pkg/duck"
	"github.com/civicworks/lake311/pkg/ingest"
	"github.com/civicworks/lake311/pkg/logger"
	"github.com/civicworks/lake311/pkg/requests"
	"github.com/civicworks/lake311/pkg/soda"
)

const (
	defaultYearsBack  = 5
	defaultPageSize   = 50000
	defaultOutDir     = "data/raw"
	defaultMaxRetries = 5
	defaultTimeout    = 120 * time.Second
	defaultTokenEnv   = "SOCRATA_APP_TOKEN"
	tokenEnvFallback  = "SOCRATA_TOKEN"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env early so env-derived flag defaults see it.
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	yearsFlag := flag.Int("years", getenvInt("YEARS_BACK", defaultYearsBack), "how many years back to fetch (or set YEARS_BACK env var)")
	pageSizeFlag := flag.Int("page-size", getenvInt("PAGE_SIZE", defaultPageSize), "rows per page/request (or set PAGE_SIZE env var)")
	limitFlag := flag.Int("limit", 0, "optional max number of rows to fetch (useful for testing, 0 = no cap)")
	outDirFlag := flag.String("out-dir", getenvDefault("OUT_DIR", defaultOutDir), "output directory for page artifacts (or set OUT_DIR env var)")
	maxRetriesFlag := flag.Uint("max-retries", defaultMaxRetries, "max attempts for transient network errors")
	timeoutFlag := flag.Duration("timeout", defaultTimeout, "request timeout")
	dryRunFlag := flag.Bool("dry-run", false, "don't write page artifacts, just show counts/pages")
	tokenEnvFlag := flag.String("token-env", defaultTokenEnv, "env var name that stores the Socrata app token")
	sinceFlag := flag.String("since", "", "inclusive start date YYYY-MM-DD (or set SINCE_DATE env var)")
	untilFlag := flag.String("until", "", "inclusive end date YYYY-MM-DD (or set UNTIL_DATE env var)")
	flag.Parse()

	log := logger.New(*verboseFlag)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Read the token from the configured env var, falling back to a common
	// alias. A missing token means throttling, not failure.
	appToken := os.Getenv(*tokenEnvFlag)
	if appToken == "" {
		appToken = os.Getenv(tokenEnvFallback)
	}
	if appToken == "" {
		log.Warn("no app token found in environment; requests will be throttled", "env_var", *tokenEnvFlag)
	}

	clock := clockwork.NewRealClock()
	since, until, err := ingest.ResolveDateRange(clock, *sinceFlag, *untilFlag,
		os.Getenv("SINCE_DATE"), os.Getenv("UNTIL_DATE"), *yearsFlag)
	if err != nil {
		return err
	}

	client, err := soda.New(soda.Config{
		Domain:    requests.Domain,
		DatasetID: requests.DatasetID,
		AppToken:  appToken,
		Timeout:   *timeoutFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create SODA client: %w", err)
	}

	// Page writes only pass through the engine on their way to Parquet, so
	// an in-memory database is all the ingester needs.
	db, err := duck.NewDB(ctx, log, "")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database", "error", err)
		}
	}()

	var archiver ingest.Archiver = ingest.NopArchiver{}
	if acfg := ingest.LoadS3ArchiverConfigFromEnv(); acfg != nil {
		s3Archiver, err := ingest.NewS3Archiver(ctx, *acfg)
		if err != nil {
			return fmt.Errorf("failed to create S3 archiver: %w", err)
		}
		archiver = s3Archiver
		log.Info("archiving pages to S3", "bucket", acfg.Bucket, "prefix", acfg.Prefix)
	}

	ingester, err := ingest.New(ingest.Config{
		Logger:   log,
		Clock:    clock,
		DB:       db,
		Fetcher:  ingest.NewFetcher(log, client, soda.RetryConfig{MaxAttempts: *maxRetriesFlag}),
		Since:    since,
		Until:    until,
		PageSize: *pageSizeFlag,
		MaxRows:  *limitFlag,
		OutDir:   *outDirFlag,
		DryRun:   *dryRunFlag,
		Archiver: archiver,
	})
	if err != nil {
		return err
	}

	written, err := ingester.Run(ctx)
	if err != nil {
		return err
	}
	log.Info("done", "total_rows_written", written)
	return nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
