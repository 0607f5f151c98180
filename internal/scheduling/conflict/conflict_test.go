package conflict

import (
	"testing"
	"time"

	"github.com/agendly/agendly/internal/scheduling/model"
)

var monday = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func testBusiness() model.Business {
	return model.Business{
		ID:        "biz-1",
		Name:      "Studio",
		OpenTime:  "09:00",
		CloseTime: "18:00",
		WorkingDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
		DefaultDurationMins: 30,
	}
}

func testEmployee(breaks ...model.BreakInterval) model.Employee {
	return model.Employee{
		ID:         "emp-1",
		BusinessID: "biz-1",
		Name:       "Dana",
		Breaks:     breaks,
		Active:     true,
	}
}

func at(hhmm string) time.Time {
	mins, err := model.ParseClock(hhmm)
	if err != nil {
		panic(err)
	}
	return model.At(monday, mins)
}

func appt(id, start, end string, status model.Status) model.Appointment {
	return model.Appointment{
		ID:         id,
		BusinessID: "biz-1",
		EmployeeID: "emp-1",
		StartTime:  at(start),
		EndTime:    at(end),
		Status:     status,
	}
}

func TestCheck_Available(t *testing.T) {
	res, err := Check(testBusiness(), testEmployee(), at("10:00"), at("10:30"), nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Available {
		t.Fatalf("expected available, got reason %q", res.Reason)
	}
}

func TestCheck_ClosedWeekday(t *testing.T) {
	sunday := monday.AddDate(0, 0, -1)
	res, err := Check(testBusiness(), testEmployee(), sunday.Add(10*time.Hour), sunday.Add(10*time.Hour+30*time.Minute), nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Available || res.Reason != ReasonClosedWeekday {
		t.Fatalf("expected %q, got %+v", ReasonClosedWeekday, res)
	}
}

func TestCheck_OutsideHours(t *testing.T) {
	res, err := Check(testBusiness(), testEmployee(), at("08:30"), at("09:00"), nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Available || res.Reason != ReasonOutsideHours {
		t.Fatalf("expected %q, got %+v", ReasonOutsideHours, res)
	}

	// Running past closing is also out of hours.
	res, err = Check(testBusiness(), testEmployee(), at("17:45"), at("18:15"), nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Available || res.Reason != ReasonOutsideHours {
		t.Fatalf("expected %q, got %+v", ReasonOutsideHours, res)
	}
}

func TestCheck_EmployeeHoursOverride(t *testing.T) {
	e := testEmployee()
	e.WorkStart = "12:00"
	e.WorkEnd = "16:00"

	res, err := Check(testBusiness(), e, at("10:00"), at("10:30"), nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Available {
		t.Fatal("10:00 is inside business hours but outside the employee's")
	}

	res, err = Check(testBusiness(), e, at("12:00"), at("12:30"), nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Available {
		t.Fatalf("expected available, got reason %q", res.Reason)
	}
}

func TestCheck_BreakOverlap(t *testing.T) {
	// Lunch 12:00-13:00; a 12:15-12:45 candidate lands inside it.
	e := testEmployee(model.BreakInterval{Start: "12:00", End: "13:00"})
	res, err := Check(testBusiness(), e, at("12:15"), at("12:45"), nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Available || res.Reason != ReasonBreak {
		t.Fatalf("expected %q, got %+v", ReasonBreak, res)
	}

	// Ending exactly when the break starts is fine.
	res, err = Check(testBusiness(), e, at("11:30"), at("12:00"), nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Available {
		t.Fatalf("expected back-to-back with break to be available, got %q", res.Reason)
	}
}

func TestCheck_BookedOverlap(t *testing.T) {
	existing := []model.Appointment{appt("a1", "10:00", "10:30", model.StatusScheduled)}

	res, err := Check(testBusiness(), testEmployee(), at("10:15"), at("10:45"), existing)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Available || res.Reason != ReasonBooked {
		t.Fatalf("expected %q, got %+v", ReasonBooked, res)
	}
}

func TestCheck_BackToBackAllowed(t *testing.T) {
	existing := []model.Appointment{appt("a1", "10:00", "10:30", model.StatusScheduled)}

	res, err := Check(testBusiness(), testEmployee(), at("10:30"), at("11:00"), existing)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Available {
		t.Fatalf("back-to-back must be allowed, got reason %q", res.Reason)
	}
}

func TestCheck_CancelledDoesNotBlock(t *testing.T) {
	existing := []model.Appointment{appt("a1", "10:00", "10:30", model.StatusCancelled)}

	res, err := Check(testBusiness(), testEmployee(), at("10:00"), at("10:30"), existing)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Available {
		t.Fatalf("cancelled appointment must not block, got reason %q", res.Reason)
	}
}

func TestCheck_PendingBlocks(t *testing.T) {
	existing := []model.Appointment{appt("a1", "10:00", "10:30", model.StatusPending)}

	res, err := Check(testBusiness(), testEmployee(), at("10:00"), at("10:30"), existing)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Available {
		t.Fatal("pending appointment must hold its slot")
	}
}

func TestDedupeByID(t *testing.T) {
	in := []model.Appointment{
		appt("a1", "10:00", "10:30", model.StatusScheduled),
		appt("a1", "10:00", "10:30", model.StatusScheduled),
		appt("a2", "11:00", "11:30", model.StatusScheduled),
	}
	out := DedupeByID(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 unique appointments, got %d", len(out))
	}
	if out[0].ID != "a1" || out[1].ID != "a2" {
		t.Fatalf("order not preserved: %s, %s", out[0].ID, out[1].ID)
	}
}

func TestOverlaps(t *testing.T) {
	a, b := at("10:00"), at("11:00")
	if Overlaps(a, b, b, at("12:00")) {
		t.Fatal("touching intervals must not overlap")
	}
	if !Overlaps(a, b, at("10:59"), at("12:00")) {
		t.Fatal("one-minute intersection must overlap")
	}
}
