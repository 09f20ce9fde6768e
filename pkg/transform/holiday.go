package transform

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
)

// HolidayCalendar yields the public holidays of the civic region for a given
// year. The transform builds one holiday set per distinct year in the data,
// not per row.
type HolidayCalendar interface {
	Holidays(year int) []time.Time
}

// NoHolidayCalendar is the degraded implementation: every day is a working
// day. Selected when holiday detection is disabled.
type NoHolidayCalendar struct{}

func (NoHolidayCalendar) Holidays(int) []time.Time { return nil }

// nyHolidays are New York observed days missing from the federal set.
var nyHolidays = []*cal.Holiday{
	{
		Name:  "Lincoln's Birthday",
		Type:  cal.ObservancePublic,
		Month: time.February,
		Day:   12,
		Func:  cal.CalcDayOfMonth,
	},
	{
		// The Tuesday after the first Monday of November.
		Name:    "Election Day",
		Type:    cal.ObservancePublic,
		Month:   time.November,
		Day:     2,
		Weekday: time.Tuesday,
		Func:    cal.CalcWeekdayFrom,
	},
}

// USHolidayCalendar reports the public holidays observed in New York: the US
// federal set plus the state-observed days.
type USHolidayCalendar struct {
	holidays []*cal.Holiday
}

func NewUSHolidayCalendar() *USHolidayCalendar {
	holidays := make([]*cal.Holiday, 0, len(us.Holidays)+len(nyHolidays))
	holidays = append(holidays, us.Holidays...)
	holidays = append(holidays, nyHolidays...)
	return &USHolidayCalendar{holidays: holidays}
}

func (c *USHolidayCalendar) Holidays(year int) []time.Time {
	dates := make([]time.Time, 0, len(c.holidays))
	for _, h := range c.holidays {
		actual, _ := h.Calc(year)
		if !actual.IsZero() {
			dates = append(dates, actual)
		}
	}
	return dates
}
