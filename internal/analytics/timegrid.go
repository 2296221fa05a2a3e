package analytics

import (
	"fmt"
	"strings"
	"time"
)

// Granularity is the width of a time bucket.
type Granularity int

const (
	Hourly Granularity = iota
	Daily
	Monthly
)

// ParseGranularity accepts hourly, daily or monthly.
func ParseGranularity(value string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "hourly", "hour":
		return Hourly, nil
	case "daily", "day":
		return Daily, nil
	case "monthly", "month":
		return Monthly, nil
	}
	return 0, fmt.Errorf("unknown granularity %q", value)
}

func (g Granularity) String() string {
	switch g {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	case Monthly:
		return "monthly"
	}
	return fmt.Sprintf("Granularity(%d)", int(g))
}

// Layout is the time layout of bucket labels.
func (g Granularity) Layout() string {
	switch g {
	case Hourly:
		return "2006-01-02 15:00"
	case Daily:
		return "2006-01-02"
	default:
		return "2006-01"
	}
}

// Label renders the bucket label t falls into.
func (g Granularity) Label(t time.Time) string {
	return t.Format(g.Layout())
}

// Next advances t by one unit of the granularity. Monthly steps land on
// the first of the next month so that no month is skipped.
func (g Granularity) Next(t time.Time) time.Time {
	switch g {
	case Hourly:
		return t.Add(time.Hour)
	case Daily:
		return t.AddDate(0, 0, 1)
	default:
		return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	}
}

// BuildTimeGrid returns one zero bucket per unit from start until the
// cursor reaches end. Labels are in chronological order; a repeated wall
// clock label (DST fall back) is kept once.
func BuildTimeGrid(start, end time.Time, g Granularity) Series[int] {
	return timeGrid(start, end, g).series()
}

func timeGrid(start, end time.Time, g Granularity) *tally {
	grid := newTally()
	for cursor := start; cursor.Before(end); cursor = g.Next(cursor) {
		grid.seed(g.Label(cursor))
	}
	return grid
}
