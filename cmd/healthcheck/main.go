// Command healthcheck runs a small sanity scan against the partitioned clean
// dataset. Exits non-zero when the dataset is missing or suspiciously small.
package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/olekukonko/tablewriter"

	"github.com/civicworks/lake311/pkg/duck"
	"github.com/civicworks/lake311/pkg/logger"
)

const (
	defaultPartitionRoot = "data/processed_part"
	defaultMinRows       = 1000
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	partitionRootFlag := flag.String("partition-root", defaultPartitionRoot, "root of the partitioned clean dataset")
	minRowsFlag := flag.Int("min-rows", defaultMinRows, "minimum row count considered healthy")
	flag.Parse()

	log := logger.New(*verboseFlag)
	ctx := context.Background()

	db, err := duck.NewDB(ctx, log, "")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	glob := duck.PartitionGlob(*partitionRootFlag)
	scan := fmt.Sprintf("parquet_scan('%s')", duck.QuotePath(glob))

	var total int
	if err := conn.QueryRowContext(ctx, "SELECT count(*) FROM "+scan).Scan(&total); err != nil {
		return fmt.Errorf("failed to scan partitioned dataset (did transform run?): %w", err)
	}
	log.Info("partitioned dataset scanned", "glob", glob, "rows", total)

	rows, err := conn.QueryContext(ctx, "SELECT borough, count(*) AS tickets FROM "+scan+" GROUP BY 1 ORDER BY 2 DESC")
	if err != nil {
		return fmt.Errorf("failed to query borough breakdown: %w", err)
	}
	defer rows.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Borough", "Tickets"})
	for rows.Next() {
		var borough string
		var tickets int
		if err := rows.Scan(&borough, &tickets); err != nil {
			return fmt.Errorf("failed to scan borough row: %w", err)
		}
		table.Append([]string{borough, fmt.Sprintf("%d", tickets)})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating borough rows: %w", err)
	}
	table.Render()

	if total < *minRowsFlag {
		return fmt.Errorf("row count suspiciously low: %d < %d", total, *minRowsFlag)
	}
	fmt.Println("Health check OK")
	return nil
}
