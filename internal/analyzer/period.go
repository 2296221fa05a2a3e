package analyzer

import (
	"strings"
	"time"

	"github.com/aaronromeo/mailpulse/internal/analytics"
	"github.com/pkg/errors"
)

// Period is the half-open interval [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// Validate rejects periods that end before they start.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return errors.New("period start and end are required")
	}
	if p.End.Before(p.Start) {
		return errors.Errorf("period end %s is before start %s", p.End.Format(time.DateOnly), p.Start.Format(time.DateOnly))
	}
	return nil
}

// DayPeriod covers the calendar day of t in loc.
func DayPeriod(t time.Time, loc *time.Location) Period {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return Period{Start: start, End: start.AddDate(0, 0, 1)}
}

// MonthPeriod covers the calendar month of t in loc.
func MonthPeriod(t time.Time, loc *time.Location) Period {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

// YearPeriod covers the calendar year of t in loc.
func YearPeriod(t time.Time, loc *time.Location) Period {
	start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, loc)
	return Period{Start: start, End: start.AddDate(1, 0, 0)}
}

// PeriodFor returns the period a time grid of granularity g spans around t:
// a day for hourly, a month for daily, a year for monthly buckets.
func PeriodFor(g analytics.Granularity, t time.Time, loc *time.Location) Period {
	switch g {
	case analytics.Hourly:
		return DayPeriod(t, loc)
	case analytics.Monthly:
		return YearPeriod(t, loc)
	}
	return MonthPeriod(t, loc)
}

var dateLayouts = []string{time.DateOnly, "2006-01", "2006"}

// ParseDate reads a date as YYYY-MM-DD, YYYY-MM or YYYY in loc. Empty
// means now.
func ParseDate(value string, now time.Time, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return now.In(loc), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("invalid date %q: want YYYY-MM-DD, YYYY-MM or YYYY", value)
}

// ParseRange builds a period from inclusive YYYY-MM-DD bounds. Without
// bounds it is the current month; without an end it runs through today.
func ParseRange(from, to string, now time.Time, loc *time.Location) (Period, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" {
		if to != "" {
			return Period{}, errors.New("a range end requires a range start")
		}
		return MonthPeriod(now.In(loc), loc), nil
	}

	start, err := time.ParseInLocation(time.DateOnly, from, loc)
	if err != nil {
		return Period{}, errors.Wrapf(err, "invalid start date %q", from)
	}
	end := DayPeriod(now.In(loc), loc).End
	if to != "" {
		last, err := time.ParseInLocation(time.DateOnly, to, loc)
		if err != nil {
			return Period{}, errors.Wrapf(err, "invalid end date %q", to)
		}
		end = last.AddDate(0, 0, 1)
	}

	period := Period{Start: start, End: end}
	if err := period.Validate(); err != nil {
		return Period{}, err
	}
	return period, nil
}

// String formats the period as its inclusive date range.
func (p Period) String() string {
	last := p.End.AddDate(0, 0, -1)
	if !last.After(p.Start) {
		return p.Start.Format(time.DateOnly)
	}
	return p.Start.Format(time.DateOnly) + ".." + last.Format(time.DateOnly)
}
