package model

import (
	"fmt"
	"time"
)

// All wall-clock values in the scheduling domain are UTC. Business operating
// hours and employee schedules are day-local "HH:MM" strings interpreted on a
// concrete calendar day with At.

const (
	clockLayout = "15:04"
	dateLayout  = "2006-01-02"
)

// ParseClock converts an "HH:MM" string into minutes since midnight.
func ParseClock(v string) (int, error) {
	t, err := time.Parse(clockLayout, v)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ParseDate parses a calendar date into midnight UTC of that day.
func ParseDate(v string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", v, err)
	}
	return d, nil
}

// At places a minutes-since-midnight offset on the given day.
func At(day time.Time, minuteOfDay int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC).
		Add(time.Duration(minuteOfDay) * time.Minute)
}

// DayOf truncates an instant to midnight UTC of its calendar day.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a day in the canonical wire format.
func FormatDate(day time.Time) string {
	return day.UTC().Format(dateLayout)
}
