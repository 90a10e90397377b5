package timeutil

import (
	"fmt"
	"strings"
	"time"
)

const dateKeyLayout = "2006-01-02"

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = in(t, loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable millisecond of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	t = in(t, loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	a, b = in(a, loc), in(b, loc)
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateKey buckets t into a YYYY-MM-DD key in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return in(t, loc).Format(dateKeyLayout)
}

// ParseDate parses a YYYY-MM-DD key as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(dateKeyLayout, strings.TrimSpace(s), loc)
}

// ParseClock parses an HH:MM string into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// AtClock returns day's calendar date at the given offset from midnight.
// The wall clock is rebuilt from fields so DST shifts do not skew the result.
func AtClock(day time.Time, offset time.Duration, loc *time.Location) time.Time {
	base := StartOfDay(day, loc)
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	y, mo, d := base.Date()
	return time.Date(y, mo, d, h, m, 0, 0, base.Location())
}

// FormatDate renders "14 October 2026".
func FormatDate(t time.Time) string {
	return t.Format("2 January 2006")
}

// FormatTime renders "3:04 PM".
func FormatTime(t time.Time) string {
	return t.Format("3:04 PM")
}

// FormatDateTime renders "14 October 2026 3:04 PM".
func FormatDateTime(t time.Time) string {
	return FormatDate(t) + " " + FormatTime(t)
}

func in(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t
	}
	return t.In(loc)
}
