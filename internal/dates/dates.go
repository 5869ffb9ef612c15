// Package dates works with calendar days. Every value handed out is a
// time.Time pinned to UTC midnight; the wire format is YYYY-MM-DD.
package dates

import (
	"fmt"
	"time"
)

const DayFormat = "2006-01-02"

// Parse reads a YYYY-MM-DD value into a UTC calendar day.
func Parse(value string) (time.Time, error) {
	day, err := time.Parse(DayFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", value)
	}
	return day, nil
}

// Format renders a calendar day in the wire format.
func Format(day time.Time) string {
	return day.Format(DayFormat)
}

// Midnight drops the time-of-day component, keeping the calendar date
// as observed in the value's own location, then pins it to UTC.
func Midnight(t time.Time) time.Time {
	year, month, dayOfMonth := t.Date()
	return time.Date(year, month, dayOfMonth, 0, 0, 0, 0, time.UTC)
}

// AddDays shifts a calendar day by n days.
func AddDays(day time.Time, n int) time.Time {
	return day.AddDate(0, 0, n)
}

// WeekStart returns the Sunday on or before the given day.
func WeekStart(day time.Time) time.Time {
	d := Midnight(day)
	return AddDays(d, -int(d.Weekday()))
}
