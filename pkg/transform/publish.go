package transform

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/civicworks/lake311/pkg/duck"
	"github.com/civicworks/lake311/pkg/requests"
)

// CleanTableName is the staged clean table in the working database.
const CleanTableName = "requests_clean"

// cleanColumns is the published column set, in staging order.
var cleanColumns = []string{
	"unique_key:VARCHAR",
	"created_dt:TIMESTAMP",
	"date:DATE",
	"hour:INTEGER",
	"day_of_week:INTEGER",
	"dow_name:VARCHAR",
	"month:INTEGER",
	"month_name:VARCHAR",
	"is_holiday:BOOLEAN",
	"borough:VARCHAR",
	"complaint_type:VARCHAR",
	"descriptor:VARCHAR",
	"agency:VARCHAR",
	"status:VARCHAR",
	"open_data_channel_type:VARCHAR",
	"city:VARCHAR",
	"incident_zip:VARCHAR",
	"response_hours:DOUBLE",
	"within_sla:BOOLEAN",
	"latitude:DOUBLE",
	"longitude:DOUBLE",
}

// PublishConfig holds the output paths for the published dataset.
type PublishConfig struct {
	// SinglePath is the consolidated Parquet artifact.
	SinglePath string
	// PartitionRoot is the (year, month)-partitioned layout. The partitioned
	// write is best-effort: failure degrades to "consolidated only" with a
	// warning. Empty disables it.
	PartitionRoot string
}

// Publish writes the full clean dataset: a staged table replace, the
// consolidated Parquet file, and the partitioned layout. Callers must run
// Validate first; Publish re-checks only the required-column contract.
func Publish(ctx context.Context, log *slog.Logger, db duck.DB, records []requests.CleanRecord, cfg PublishConfig) error {
	if cfg.SinglePath == "" {
		return fmt.Errorf("single path is required")
	}
	if err := checkRequiredColumns(); err != nil {
		return err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = duck.ReplaceTableViaCSV(ctx, log, conn, duck.ReplaceTableConfig{
		TableName: CleanTableName,
		Columns:   cleanColumns,
	}, len(records), func(w *csv.Writer, i int) error {
		return w.Write(cleanCSVRow(records[i]))
	})
	if err != nil {
		return fmt.Errorf("failed to stage clean table: %w", err)
	}

	if err := duck.CopyToParquet(ctx, conn, "SELECT * FROM "+CleanTableName, cfg.SinglePath); err != nil {
		return fmt.Errorf("failed to write consolidated dataset: %w", err)
	}
	log.Info("saved clean dataset", "path", cfg.SinglePath, "rows", len(records))

	if cfg.PartitionRoot != "" {
		// The calendar month column would collide with the month partition
		// key, so it is carried by the hive path instead of the data files.
		// Readers scanning with hive_partitioning=true get it back.
		partitionSelect := "SELECT * EXCLUDE (month) FROM " + CleanTableName
		if err := duck.CopyPartitionedByMonth(ctx, log, conn, partitionSelect, "created_dt", cfg.PartitionRoot); err != nil {
			log.Warn("skipping partitioned write", "root", cfg.PartitionRoot, "error", err)
		} else {
			log.Info("wrote partitioned dataset", "root", cfg.PartitionRoot)
		}
	}
	return nil
}

// checkRequiredColumns guards the publish projection against ever dropping a
// column the downstream consumers rely on.
func checkRequiredColumns() error {
	present := make(map[string]bool, len(cleanColumns))
	for _, col := range cleanColumns {
		name, _, _ := strings.Cut(col, ":")
		present[name] = true
	}
	var missing []string
	for _, col := range requests.RequiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Detail: fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", "))}
	}
	return nil
}

func cleanCSVRow(r requests.CleanRecord) []string {
	return []string{
		r.UniqueKey,
		r.CreatedLocal.Format("2006-01-02 15:04:05"),
		r.Date.Format("2006-01-02"),
		strconv.Itoa(r.Hour),
		strconv.Itoa(r.DayOfWeek),
		r.DowName,
		strconv.Itoa(r.Month),
		r.MonthName,
		strconv.FormatBool(r.IsHoliday),
		r.Borough,
		r.ComplaintType,
		r.Descriptor,
		r.Agency,
		r.Status,
		r.Channel,
		r.City,
		r.IncidentZip,
		formatNullFloat(r.ResponseHours),
		formatNullBool(r.WithinSLA),
		formatNullFloat(r.Latitude),
		formatNullFloat(r.Longitude),
	}
}

func formatNullFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatNullBool(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}
