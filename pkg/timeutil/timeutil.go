// Package timeutil provides helpers for calendar math in the application timezone.
// Daily notifications and activity windows are computed in the configured
// APP_TIMEZONE rather than UTC.
package timeutil

import (
	"fmt"
	"time"
)

// FormatDate is the YYYY-MM-DD day layout.
const FormatDate = "2006-01-02"

// LoadLocation resolves an IANA zone name. An empty name means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// MustLocation is LoadLocation that falls back to UTC on error.
func MustLocation(name string) *time.Location {
	loc, err := LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func in(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc)
}

// StartOfDay returns local midnight of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	l := in(t, loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, l.Location())
}

// DaysAgo returns the start of the day n calendar days before t, in loc.
// Used for "active in the last N days" windows.
func DaysAgo(t time.Time, n int, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, -n)
}

// FormatDay returns the YYYY-MM-DD representation of t in loc.
func FormatDay(t time.Time, loc *time.Location) string {
	return in(t, loc).Format(FormatDate)
}
