package utils

import "time"

// Now returns the current time in UTC timezone
func Now() time.Time {
	return time.Now().UTC()
}

// NowPtr returns a pointer to the current UTC time
func NowPtr() *time.Time {
	t := Now()
	return &t
}

// TimePtr returns a pointer to t, or nil when t is the zero time
func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

// FormatISO8601 formats a time.Time to ISO8601 format in UTC
func FormatISO8601(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// DaysSince returns the whole number of days elapsed between t and now,
// never negative.
func DaysSince(t time.Time, now time.Time) int {
	if t.After(now) {
		return 0
	}
	return int(now.Sub(t).Hours() / 24)
}
