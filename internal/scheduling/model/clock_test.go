package model

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	mins, err := ParseClock("09:30")
	if err != nil {
		t.Fatalf("ParseClock: %v", err)
	}
	if mins != 9*60+30 {
		t.Fatalf("expected 570 minutes, got %d", mins)
	}
	if _, err := ParseClock("25:00"); err == nil {
		t.Fatal("expected error for invalid hour")
	}
	if _, err := ParseClock("9h30"); err == nil {
		t.Fatal("expected error for wrong layout")
	}
}

func TestParseDateAndAt(t *testing.T) {
	day, err := ParseDate("2024-06-03")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if day.Hour() != 0 || day.Location() != time.UTC {
		t.Fatalf("expected midnight UTC, got %s", day)
	}
	at := At(day, 14*60+15)
	want := time.Date(2024, 6, 3, 14, 15, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Fatalf("At = %s, want %s", at, want)
	}
}

func TestDayOf(t *testing.T) {
	instant := time.Date(2024, 6, 3, 23, 59, 59, 0, time.UTC)
	if got := DayOf(instant); !got.Equal(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("DayOf = %s", got)
	}
	if FormatDate(instant) != "2024-06-03" {
		t.Fatalf("FormatDate = %s", FormatDate(instant))
	}
}
