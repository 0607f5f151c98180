package recurrence

import (
	"testing"
	"time"

	"github.com/agendly/agendly/internal/scheduling/model"
)

func weekdayPtr(d time.Weekday) *time.Weekday { return &d }

func firstAppointment(start time.Time) model.Appointment {
	return model.Appointment{
		ID:         "first",
		BusinessID: "biz-1",
		EmployeeID: "emp-1",
		Client:     model.Client{Name: "Ana", Email: "ana@example.com"},
		Services: []model.ServiceRef{
			{ID: "svc-1", Name: "Cut", DurationMins: 30},
		},
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Status:    model.StatusPending,
		CreatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPolicyValidate(t *testing.T) {
	valid := Policy{TotalCount: 5, Cadence: CadenceBiweekly}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if err := (Policy{TotalCount: 4, Cadence: CadenceWeekly}).Validate(); err == nil {
		t.Fatal("count 4 must be rejected")
	}
	if err := (Policy{TotalCount: 3, Cadence: "daily"}).Validate(); err == nil {
		t.Fatal("unknown cadence must be rejected")
	}
	if err := (Policy{TotalCount: 3, Cadence: CadenceMonthly, Weekday: weekdayPtr(time.Monday)}).Validate(); err == nil {
		t.Fatal("weekday pin is weekly-only")
	}
}

func TestDates_WeeklyPinnedWeekday(t *testing.T) {
	// Monday 2024-06-03 at 10:00, weekly on Mondays, three occurrences:
	// siblings fall on 06-10 and 06-17 at the same clock time.
	first := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	dates, err := Dates(first, Policy{TotalCount: 3, Cadence: CadenceWeekly, Weekday: weekdayPtr(time.Monday)})
	if err != nil {
		t.Fatalf("Dates: %v", err)
	}
	if len(dates) != 2 {
		t.Fatalf("expected 2 sibling dates, got %d", len(dates))
	}
	if !dates[0].Equal(time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("first sibling %s", dates[0])
	}
	if !dates[1].Equal(time.Date(2024, 6, 17, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("second sibling %s", dates[1])
	}
}

func TestDates_WeeklyPinnedOffWeekdayFirst(t *testing.T) {
	// First occurrence on a Tuesday with Mondays pinned: the remaining
	// occurrences land on the next Mondays.
	first := time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC) // Tuesday
	dates, err := Dates(first, Policy{TotalCount: 3, Cadence: CadenceWeekly, Weekday: weekdayPtr(time.Monday)})
	if err != nil {
		t.Fatalf("Dates: %v", err)
	}
	if len(dates) != 2 {
		t.Fatalf("expected 2 sibling dates, got %d", len(dates))
	}
	for i, d := range dates {
		if d.Weekday() != time.Monday {
			t.Fatalf("sibling %d on %s, want Monday", i, d.Weekday())
		}
	}
	if !dates[0].Equal(time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("first sibling %s", dates[0])
	}
}

func TestDates_BiweeklyIsFifteenDays(t *testing.T) {
	first := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	dates, err := Dates(first, Policy{TotalCount: 3, Cadence: CadenceBiweekly})
	if err != nil {
		t.Fatalf("Dates: %v", err)
	}
	if !dates[0].Equal(first.AddDate(0, 0, 15)) {
		t.Fatalf("first sibling %s, want +15 days", dates[0])
	}
	if !dates[1].Equal(first.AddDate(0, 0, 30)) {
		t.Fatalf("second sibling %s, want +30 days", dates[1])
	}
}

func TestDates_MonthlyCalendarStep(t *testing.T) {
	first := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	dates, err := Dates(first, Policy{TotalCount: 3, Cadence: CadenceMonthly})
	if err != nil {
		t.Fatalf("Dates: %v", err)
	}
	// AddDate normalization: Jan 31 + 1 month = Mar 2 in a leap year.
	if !dates[0].Equal(first.AddDate(0, 1, 0)) {
		t.Fatalf("first sibling %s", dates[0])
	}
	if !dates[1].Equal(first.AddDate(0, 2, 0)) {
		t.Fatalf("second sibling %s", dates[1])
	}
}

func TestSiblings(t *testing.T) {
	start := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	first := firstAppointment(start)
	policy := Policy{TotalCount: 3, Cadence: CadenceWeekly, Weekday: weekdayPtr(time.Monday)}

	siblings, err := Siblings(first, policy)
	if err != nil {
		t.Fatalf("Siblings: %v", err)
	}
	if len(siblings) != 2 {
		t.Fatalf("expected 2 siblings, got %d", len(siblings))
	}

	seriesID := SeriesID(first)
	for i, s := range siblings {
		if s.ID == first.ID || s.ID == "" {
			t.Fatalf("sibling %d must get a fresh id", i)
		}
		if s.SeriesID != seriesID {
			t.Fatalf("sibling %d series id %q, want %q", i, s.SeriesID, seriesID)
		}
		if s.SeriesPosition != i+2 {
			t.Fatalf("sibling %d position %d, want %d", i, s.SeriesPosition, i+2)
		}
		if s.SeriesTotal != 3 {
			t.Fatalf("sibling %d total %d", i, s.SeriesTotal)
		}
		if s.Status != model.StatusPending {
			t.Fatalf("sibling %d status %s, want pending", i, s.Status)
		}
		if s.EndTime.Sub(s.StartTime) != 30*time.Minute {
			t.Fatalf("sibling %d duration %s", i, s.EndTime.Sub(s.StartTime))
		}
		if s.Client != first.Client {
			t.Fatalf("sibling %d client %+v", i, s.Client)
		}
	}
	if !siblings[0].StartTime.Equal(start.AddDate(0, 0, 7)) {
		t.Fatalf("sibling 1 starts %s", siblings[0].StartTime)
	}
	if !siblings[1].StartTime.Equal(start.AddDate(0, 0, 14)) {
		t.Fatalf("sibling 2 starts %s", siblings[1].StartTime)
	}
}
