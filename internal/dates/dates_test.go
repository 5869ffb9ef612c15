package dates

import (
	"testing"
	"time"
)

func TestParseAndFormatRoundTrip(t *testing.T) {
	day, err := Parse("2024-01-01")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := Format(day); got != "2024-01-01" {
		t.Errorf("expected 2024-01-01, got %s", got)
	}
	if day.Hour() != 0 || day.Location() != time.UTC {
		t.Errorf("expected UTC midnight, got %v", day)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, value := range []string{"", "01-01-2024", "2024-1-1", "2024-13-01", "yesterday"} {
		if _, err := Parse(value); err == nil {
			t.Errorf("expected error for %q", value)
		}
	}
}

func TestMidnightKeepsLocalCalendarDate(t *testing.T) {
	loc := time.FixedZone("UTC+13", 13*3600)
	late := time.Date(2024, 3, 15, 23, 45, 0, 0, loc)
	if got := Format(Midnight(late)); got != "2024-03-15" {
		t.Errorf("expected 2024-03-15, got %s", got)
	}
}

func TestWeekStartIsSunday(t *testing.T) {
	cases := map[string]string{
		"2024-01-01": "2023-12-31", // Monday
		"2024-01-06": "2023-12-31", // Saturday
		"2024-01-07": "2024-01-07", // Sunday maps to itself
	}
	for in, want := range cases {
		day, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%s): %v", in, err)
		}
		if got := Format(WeekStart(day)); got != want {
			t.Errorf("WeekStart(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestAddDays(t *testing.T) {
	day, _ := Parse("2024-02-27")
	if got := Format(AddDays(day, 3)); got != "2024-03-01" {
		t.Errorf("expected leap-year rollover to 2024-03-01, got %s", got)
	}
}
