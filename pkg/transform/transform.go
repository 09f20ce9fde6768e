package transform

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/civicworks/lake311/pkg/requests"
)

// DefaultSLAHours is the response-time threshold when none is configured.
const DefaultSLAHours = 24.0

// Config holds the feature-engineering parameters. Transform is deterministic
// given the same raw input and the same Config.
type Config struct {
	// SLAHours is the within-SLA threshold in hours (inclusive).
	SLAHours float64
	// Location is the fixed civic timezone calendar fields are derived in.
	Location *time.Location
	// Holidays supplies the regional public-holiday calendar. Defaults to
	// NoHolidayCalendar.
	Holidays HolidayCalendar
}

func (cfg *Config) Validate() error {
	if cfg.SLAHours <= 0 {
		return errors.New("SLA hours must be positive")
	}
	if cfg.Location == nil {
		return errors.New("location is required")
	}
	return nil
}

type dateKey struct{ year, month, day int }

// Transform derives the clean analytical rows from raw records. Rows without
// a creation timestamp are dropped; everything else maps 1:1.
func Transform(records []requests.RawRecord, cfg Config) []requests.CleanRecord {
	holidays := cfg.Holidays
	if holidays == nil {
		holidays = NoHolidayCalendar{}
	}
	titleCaser := cases.Title(language.AmericanEnglish)

	// One holiday set per distinct year in the data.
	holidaySets := make(map[int]map[dateKey]bool)
	holidaySet := func(year int) map[dateKey]bool {
		if set, ok := holidaySets[year]; ok {
			return set
		}
		set := make(map[dateKey]bool)
		for _, d := range holidays.Holidays(year) {
			set[dateKey{d.Year(), int(d.Month()), d.Day()}] = true
		}
		holidaySets[year] = set
		return set
	}

	clean := make([]requests.CleanRecord, 0, len(records))
	for _, r := range records {
		if r.CreatedDate == nil {
			continue
		}
		created := *r.CreatedDate

		// Response end prefers the closure timestamp, falling back to the
		// last resolution update. Some tickets never close.
		responseEnd := r.ClosedDate
		if responseEnd == nil {
			responseEnd = r.ResolutionUpdate
		}

		var responseHours *float64
		var withinSLA *bool
		if responseEnd != nil {
			hours := responseEnd.Sub(created).Hours()
			responseHours = &hours
			// Negative values are not clamped here; validation rejects them
			// so upstream data-quality problems surface instead of hiding.
			within := hours <= cfg.SLAHours
			withinSLA = &within
		}

		// Source timestamps are timezone-naive and carried as UTC; convert
		// to the civic timezone. Already-aware values convert directly. Do
		// not localize to civic time first: that would shift every derived
		// calendar field by the UTC offset.
		local := created.In(cfg.Location)
		date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, cfg.Location)

		c := requests.CleanRecord{
			UniqueKey:    strings.TrimSpace(r.UniqueKey),
			CreatedLocal: local,
			Date:         date,
			Hour:         local.Hour(),
			DayOfWeek:    (int(local.Weekday()) + 6) % 7, // 0=Monday
			DowName:      local.Weekday().String(),
			Month:        int(local.Month()),
			MonthName:    local.Month().String(),
			IsHoliday:    holidaySet(local.Year())[dateKey{local.Year(), int(local.Month()), local.Day()}],

			Borough:       strings.TrimSpace(r.Borough),
			ComplaintType: strings.TrimSpace(r.ComplaintType),
			Descriptor:    strings.TrimSpace(r.Descriptor),
			Agency:        strings.TrimSpace(r.Agency),
			Status:        strings.TrimSpace(r.Status),
			Channel:       strings.TrimSpace(r.Channel),
			IncidentZip:   strings.TrimSpace(r.IncidentZip),

			ResponseHours: responseHours,
			WithinSLA:     withinSLA,
			Latitude:      r.Latitude,
			Longitude:     r.Longitude,
		}

		// City: backfill from borough when missing, normalize casing, then
		// default to the Unknown sentinel.
		city := strings.TrimSpace(r.City)
		if city == "" {
			city = c.Borough
		}
		city = strings.TrimSpace(titleCaser.String(city))
		if city == "" {
			city = "Unknown"
		}
		c.City = city

		clean = append(clean, c)
	}
	return clean
}
