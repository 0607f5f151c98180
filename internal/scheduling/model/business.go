package model

import (
	"errors"
	"fmt"
	"time"
)

// Business is a tenant: a company whose employees take appointments.
type Business struct {
	ID                  string
	Name                string
	OpenTime            string // "HH:MM", inclusive start of the working day
	CloseTime           string
	WorkingDays         []time.Weekday
	DefaultDurationMins int
	SlotSpacingMins     int
	CreatedAt           time.Time
}

func (b Business) Validate() error {
	open, err := ParseClock(b.OpenTime)
	if err != nil {
		return err
	}
	close, err := ParseClock(b.CloseTime)
	if err != nil {
		return err
	}
	if open >= close {
		return errors.New("opening time must be before closing time")
	}
	if b.DefaultDurationMins <= 0 {
		return errors.New("default appointment duration must be positive")
	}
	if b.SlotSpacingMins < 0 {
		return errors.New("slot spacing must not be negative")
	}
	seen := map[time.Weekday]bool{}
	for _, d := range b.WorkingDays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid weekday %d", d)
		}
		if seen[d] {
			return fmt.Errorf("duplicate weekday %s", d)
		}
		seen[d] = true
	}
	if len(b.WorkingDays) == 0 {
		return errors.New("at least one working day is required")
	}
	return nil
}

func (b Business) IsWorkingDay(d time.Weekday) bool {
	for _, wd := range b.WorkingDays {
		if wd == d {
			return true
		}
	}
	return false
}

// BreakInterval is a pause inside an employee's working hours, "HH:MM" bounds,
// half-open.
type BreakInterval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Employee belongs to exactly one business. WorkStart/WorkEnd override the
// business operating hours when both are set; empty values mean "follow the
// business".
type Employee struct {
	ID         string
	BusinessID string
	Name       string
	WorkStart  string
	WorkEnd    string
	Breaks     []BreakInterval
	Active     bool
	CreatedAt  time.Time
}

// EffectiveHours resolves the employee's working window against the business
// defaults, in minutes since midnight.
func (e Employee) EffectiveHours(b Business) (start, end int, err error) {
	startStr, endStr := b.OpenTime, b.CloseTime
	if e.WorkStart != "" && e.WorkEnd != "" {
		startStr, endStr = e.WorkStart, e.WorkEnd
	}
	if start, err = ParseClock(startStr); err != nil {
		return 0, 0, err
	}
	if end, err = ParseClock(endStr); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// ValidateSchedule checks the employee's hour override and break intervals:
// every break must sit fully inside the effective hours and breaks must not
// overlap one another.
func (e Employee) ValidateSchedule(b Business) error {
	start, end, err := e.EffectiveHours(b)
	if err != nil {
		return err
	}
	if start >= end {
		return errors.New("work start must be before work end")
	}

	type span struct{ start, end int }
	spans := make([]span, 0, len(e.Breaks))
	for _, br := range e.Breaks {
		bs, err := ParseClock(br.Start)
		if err != nil {
			return err
		}
		be, err := ParseClock(br.End)
		if err != nil {
			return err
		}
		if bs >= be {
			return fmt.Errorf("break %s-%s has non-positive length", br.Start, br.End)
		}
		if bs < start || be > end {
			return fmt.Errorf("break %s-%s is outside working hours", br.Start, br.End)
		}
		spans = append(spans, span{bs, be})
	}
	for i := range spans {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].start < spans[j].end && spans[j].start < spans[i].end {
				return errors.New("break intervals must not overlap")
			}
		}
	}
	return nil
}
