package ingest

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

const dateLayout = "2006-01-02"

// ResolveDateRange resolves the inclusive ingestion window. Precedence per
// bound: explicit CLI value, then environment value, then the rolling default
// (yearsBack years before now for since, today for until). Returns a
// configuration error when the resolved range is inverted, before any network
// call is made.
func ResolveDateRange(clock clockwork.Clock, cliSince, cliUntil, envSince, envUntil string, yearsBack int) (time.Time, time.Time, error) {
	now := clock.Now()

	since, err := resolveBound(cliSince, envSince, truncateToDate(now.AddDate(0, 0, -365*yearsBack)))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid since date: %w", err)
	}
	until, err := resolveBound(cliUntil, envUntil, truncateToDate(now))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid until date: %w", err)
	}

	if since.After(until) {
		return time.Time{}, time.Time{}, fmt.Errorf("since (%s) is after until (%s)",
			since.Format(dateLayout), until.Format(dateLayout))
	}
	return since, until, nil
}

func resolveBound(cli, env string, fallback time.Time) (time.Time, error) {
	value := cli
	if value == "" {
		value = env
	}
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", value)
	}
	return parsed, nil
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// BuildWhere returns the SoQL filter covering the inclusive date range.
func BuildWhere(since, until time.Time) string {
	return fmt.Sprintf("created_date between '%sT00:00:00' and '%sT23:59:59'",
		since.Format(dateLayout), until.Format(dateLayout))
}
