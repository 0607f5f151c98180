// Package slots generates the candidate appointment slots a business offers
// on a given day. Generation is pure: callers filter against live bookings
// with the conflict package.
package slots

import (
	"time"

	"github.com/agendly/agendly/internal/scheduling/model"
)

// Slot is a half-open bookable interval [Start, End).
type Slot struct {
	Start time.Time
	End   time.Time
}

// Generate returns the ordered candidate slots for the business on the given
// calendar day (midnight UTC). Starting at opening time it steps forward by
// duration+spacing, emitting slots of the default duration until a slot would
// run past closing time. Days outside the business's working-day set yield
// nothing.
func Generate(b model.Business, day time.Time) ([]Slot, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	day = model.DayOf(day)
	if !b.IsWorkingDay(day.Weekday()) {
		return nil, nil
	}

	open, err := model.ParseClock(b.OpenTime)
	if err != nil {
		return nil, err
	}
	close, err := model.ParseClock(b.CloseTime)
	if err != nil {
		return nil, err
	}

	duration := b.DefaultDurationMins
	step := duration + b.SlotSpacingMins

	var out []Slot
	for start := open; start+duration <= close; start += step {
		out = append(out, Slot{
			Start: model.At(day, start),
			End:   model.At(day, start+duration),
		})
	}
	return out, nil
}
