// Package conflict decides whether a candidate interval can be booked for an
// employee, checking the business calendar, effective working hours, break
// intervals, and overlap with existing appointments.
package conflict

import (
	"fmt"
	"time"

	"github.com/agendly/agendly/internal/scheduling/model"
)

// Result reports availability; Reason is set only when unavailable.
type Result struct {
	Available bool
	Reason    string
}

const (
	ReasonClosedWeekday = "business closed this weekday"
	ReasonOutsideHours  = "outside working hours"
	ReasonBreak         = "overlaps a break interval"
	ReasonBooked        = "overlaps an existing appointment"
)

func unavailable(reason string) Result { return Result{Reason: reason} }

// Check runs the availability checks for [start, end) on the employee's day.
// It is pure: existing appointments are passed in by the caller, already
// scoped to the same (business, employee, day). Appointments may arrive from
// more than one storage view; they are de-duplicated by id and cancelled
// records never block. The overlap test is strict, so a slot starting exactly
// when another ends is not a conflict.
func Check(b model.Business, e model.Employee, start, end time.Time, existing []model.Appointment) (Result, error) {
	start, end = start.UTC(), end.UTC()
	if !end.After(start) {
		return Result{}, fmt.Errorf("interval end %s must be after start %s", end, start)
	}

	if !b.IsWorkingDay(start.Weekday()) {
		return unavailable(ReasonClosedWeekday), nil
	}

	hoursStart, hoursEnd, err := e.EffectiveHours(b)
	if err != nil {
		return Result{}, err
	}
	day := model.DayOf(start)
	if start.Before(model.At(day, hoursStart)) || end.After(model.At(day, hoursEnd)) {
		return unavailable(ReasonOutsideHours), nil
	}

	for _, br := range e.Breaks {
		bs, err := model.ParseClock(br.Start)
		if err != nil {
			return Result{}, err
		}
		be, err := model.ParseClock(br.End)
		if err != nil {
			return Result{}, err
		}
		if Overlaps(start, end, model.At(day, bs), model.At(day, be)) {
			return unavailable(ReasonBreak), nil
		}
	}

	for _, appt := range DedupeByID(existing) {
		if !appt.Status.Occupies() {
			continue
		}
		if Overlaps(start, end, appt.StartTime, appt.EndTime) {
			return unavailable(ReasonBooked), nil
		}
	}

	return Result{Available: true}, nil
}

// Overlaps is the half-open interval overlap test: [aStart,aEnd) intersects
// [bStart,bEnd) iff aStart < bEnd && bStart < aEnd.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// DedupeByID collapses appointments that appear under multiple storage views
// into one record per id, keeping first occurrence order.
func DedupeByID(appts []model.Appointment) []model.Appointment {
	seen := make(map[string]struct{}, len(appts))
	out := make([]model.Appointment, 0, len(appts))
	for _, a := range appts {
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}
