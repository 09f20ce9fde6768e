// Package transform turns the raw page archive into the published analytical
// dataset: load, feature engineering, schema validation, publication.
package transform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/civicworks/lake311/pkg/duck"
	"github.com/civicworks/lake311/pkg/requests"
)

// ErrNoRawFiles indicates the raw directory holds no page artifacts. This is
// a configuration error: it distinguishes "ingestion never ran" from
// "ingestion ran and found zero rows" (which yields pages with zero rows or a
// single short page).
var ErrNoRawFiles = errors.New("no raw page artifacts found")

// LoadRaw concatenates every page artifact under rawDir into memory. Row
// order is preserved within a page only; nothing downstream depends on
// cross-page order.
func LoadRaw(ctx context.Context, db duck.DB, rawDir, prefix string) ([]requests.RawRecord, error) {
	pattern := filepath.Join(rawDir, prefix+"_*.parquet")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob raw pages: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w matching %s (run ingest first)", ErrNoRawFiles, pattern)
	}
	sort.Strings(matches)

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	quoted := make([]string, 0, len(matches))
	for _, m := range matches {
		quoted = append(quoted, "'"+duck.QuotePath(m)+"'")
	}
	query := fmt.Sprintf("SELECT %s FROM read_parquet([%s], union_by_name=true)",
		strings.Join(requests.SelectColumns, ", "), strings.Join(quoted, ", "))

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw pages: %w", err)
	}
	defer rows.Close()

	var records []requests.RawRecord
	for rows.Next() {
		var (
			r                        requests.RawRecord
			created, closed, updated sql.NullTime
			agency, complaintType    sql.NullString
			descriptor, status       sql.NullString
			borough, zip, city       sql.NullString
			channel                  sql.NullString
			lat, lon                 sql.NullFloat64
		)
		if err := rows.Scan(&r.UniqueKey, &created, &closed, &updated,
			&agency, &complaintType, &descriptor, &status, &borough, &zip,
			&city, &channel, &lat, &lon); err != nil {
			return nil, fmt.Errorf("failed to scan raw record: %w", err)
		}
		if created.Valid {
			t := created.Time
			r.CreatedDate = &t
		}
		if closed.Valid {
			t := closed.Time
			r.ClosedDate = &t
		}
		if updated.Valid {
			t := updated.Time
			r.ResolutionUpdate = &t
		}
		r.Agency = agency.String
		r.ComplaintType = complaintType.String
		r.Descriptor = descriptor.String
		r.Status = status.String
		r.Borough = borough.String
		r.IncidentZip = zip.String
		r.City = city.String
		r.Channel = channel.String
		if lat.Valid {
			v := lat.Float64
			r.Latitude = &v
		}
		if lon.Valid {
			v := lon.Float64
			r.Longitude = &v
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating raw records: %w", err)
	}
	return records, nil
}
