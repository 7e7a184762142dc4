// Package dates canonicalizes the many date shapes the sources produce into
// a single YYYY-MM-DD calendar-day key.
package dates

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the canonical calendar-day key format.
const Layout = "2006-01-02"

// Layouts accepted by Parse, most common first.
var layouts = []string{
	Layout,
	"20060102",          // iCal basic date
	"20060102T150405Z",  // iCal UTC datetime
	"20060102T150405",   // iCal local datetime
	time.RFC3339,        // 2006-01-02T15:04:05Z07:00
	"2006-01-02T15:04:05",
	"01/02/2006", // vendor markup
}

// Day reduces a time to its calendar-day key.
func Day(t time.Time) string {
	return t.Format(Layout)
}

// Parse accepts any supported date shape and returns the time value.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}

// Normalize round-trips any accepted shape to the canonical day key,
// rejecting anything that is not a real calendar day.
func Normalize(s string) (string, error) {
	t, err := Parse(s)
	if err != nil {
		return "", err
	}
	return Day(t), nil
}

// DaysBetween yields every day key in [start, end), end exclusive.
func DaysBetween(start, end time.Time) []string {
	start = Truncate(start)
	end = Truncate(end)

	var out []string
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		out = append(out, Day(d))
	}
	return out
}

// Truncate drops the clock time, pinning the day at UTC midnight.
func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
