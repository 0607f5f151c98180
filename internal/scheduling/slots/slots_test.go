package slots

import (
	"testing"
	"time"

	"github.com/agendly/agendly/internal/scheduling/model"
)

func weekdays(days ...time.Weekday) []time.Weekday { return days }

func testBusiness() model.Business {
	return model.Business{
		ID:        "biz-1",
		Name:      "Corner Barbershop",
		OpenTime:  "08:00",
		CloseTime: "12:00",
		WorkingDays: weekdays(
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		),
		DefaultDurationMins: 30,
	}
}

func TestGenerate_FullMorning(t *testing.T) {
	// 08:00 to 12:00 with 30-minute visits and no spacing: eight slots,
	// the last one starting 11:30.
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC) // Monday
	slots, err := Generate(testBusiness(), day)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(slots) != 8 {
		t.Fatalf("expected 8 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(day.Add(8 * time.Hour)) {
		t.Fatalf("first slot starts %s", slots[0].Start)
	}
	last := slots[len(slots)-1]
	if !last.Start.Equal(day.Add(11*time.Hour + 30*time.Minute)) {
		t.Fatalf("last slot starts %s", last.Start)
	}
	if !last.End.Equal(day.Add(12 * time.Hour)) {
		t.Fatalf("last slot ends %s", last.End)
	}
}

func TestGenerate_Spacing(t *testing.T) {
	b := testBusiness()
	b.SlotSpacingMins = 10
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	slots, err := Generate(b, day)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// 08:00, 08:40, 09:20, 10:00, 10:40, 11:20 — 12:00 step would end 12:30.
	if len(slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(slots))
	}
	if !slots[1].Start.Equal(day.Add(8*time.Hour + 40*time.Minute)) {
		t.Fatalf("second slot starts %s", slots[1].Start)
	}
}

func TestGenerate_NonWorkingDay(t *testing.T) {
	day := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC) // Sunday
	slots, err := Generate(testBusiness(), day)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots on a non-working day, got %d", len(slots))
	}
}

func TestGenerate_SlotMustFitBeforeClose(t *testing.T) {
	b := testBusiness()
	b.CloseTime = "11:45"
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	slots, err := Generate(b, day)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// 11:30 start would end 12:00, past close; last full slot is 11:00.
	last := slots[len(slots)-1]
	if !last.Start.Equal(day.Add(11 * time.Hour)) {
		t.Fatalf("last slot starts %s", last.Start)
	}
}

func TestGenerate_InvalidBusiness(t *testing.T) {
	b := testBusiness()
	b.OpenTime = "13:00" // after close
	if _, err := Generate(b, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Fatal("expected validation error")
	}
}
