package granularity

import (
	"fmt"
	"time"
)

// Granularity is the time-bucket width used to truncate event timestamps
// for aggregation. All truncation is in UTC.
type Granularity string

const (
	Minute Granularity = "minute"
	Hour   Granularity = "hour"
	Day    Granularity = "day"
	Week   Granularity = "week"
	Month  Granularity = "month"
)

// All lists every supported granularity, coarsest last.
var All = []Granularity{Minute, Hour, Day, Week, Month}

// Parse validates a granularity label.
func Parse(s string) (Granularity, error) {
	switch Granularity(s) {
	case Minute, Hour, Day, Week, Month:
		return Granularity(s), nil
	}
	return "", fmt.Errorf("unsupported granularity %q", s)
}

// Valid reports whether g is a supported granularity.
func (g Granularity) Valid() bool {
	_, err := Parse(string(g))
	return err == nil
}

// Truncate maps a timestamp to its bucket start for the given granularity.
// This is the atomic unit of aggregation storage: producer and consumer of
// a bucket must compute the same start for the same instant.
//
// Week buckets start on Monday 00:00:00 UTC of the ISO week.
// Truncation is idempotent: Truncate(Truncate(t, g), g) == Truncate(t, g).
func Truncate(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	switch g {
	case Minute:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	case Hour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case Week:
		// time.Weekday counts Sunday as 0; shift so Monday is 0.
		daysSinceMonday := (int(t.Weekday()) + 6) % 7
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return day.AddDate(0, 0, -daysSinceMonday)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	// Unknown granularity: fall back to the finest bucket rather than
	// corrupting the key space with raw timestamps.
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
}

// Next returns the start of the bucket following the one containing t,
// which is also the exclusive end of that bucket. Calendar-aware for weeks
// and months, so DST-free UTC arithmetic stays exact.
func Next(t time.Time, g Granularity) time.Time {
	start := Truncate(t, g)
	switch g {
	case Minute:
		return start.Add(time.Minute)
	case Hour:
		return start.Add(time.Hour)
	case Day:
		return start.AddDate(0, 0, 1)
	case Week:
		return start.AddDate(0, 0, 7)
	case Month:
		return start.AddDate(0, 1, 0)
	}
	return start.Add(time.Minute)
}
