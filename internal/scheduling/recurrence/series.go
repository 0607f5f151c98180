// Package recurrence computes recurring appointment series: given the first
// appointment and a policy, it produces the sibling appointments for the
// remaining occurrences.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agendly/agendly/internal/scheduling/model"
)

type Cadence string

const (
	CadenceWeekly   Cadence = "weekly"
	CadenceBiweekly Cadence = "biweekly" // fixed 15-day step
	CadenceMonthly  Cadence = "monthly"
)

// weekdayScanCap bounds the day-by-day walk for weekday-pinned weekly series.
const weekdayScanCap = 100

// Policy configures a recurring series. The first appointment counts as
// occurrence 1. Weekday applies to weekly cadence only and is restricted to a
// single weekday; multi-weekday selections are intentionally unsupported.
type Policy struct {
	TotalCount int
	Cadence    Cadence
	Weekday    *time.Weekday
}

func (p Policy) Validate() error {
	switch p.TotalCount {
	case 3, 5, 7:
	default:
		return fmt.Errorf("series total count must be 3, 5 or 7 (got %d)", p.TotalCount)
	}
	switch p.Cadence {
	case CadenceWeekly, CadenceBiweekly, CadenceMonthly:
	default:
		return fmt.Errorf("unknown cadence %q", p.Cadence)
	}
	if p.Weekday != nil {
		if p.Cadence != CadenceWeekly {
			return errors.New("weekday selection is only valid for weekly cadence")
		}
		if *p.Weekday < time.Sunday || *p.Weekday > time.Saturday {
			return fmt.Errorf("invalid weekday %d", *p.Weekday)
		}
	}
	return nil
}

// Dates returns the start instants of occurrences 2..TotalCount. For weekly
// cadence with a pinned weekday it walks forward day by day collecting dates
// on that weekday (the first appointment's date counts when it matches),
// bounded by weekdayScanCap. Other cadences use fixed steps: 7 days, 15 days,
// or one calendar month.
func Dates(first time.Time, p Policy) ([]time.Time, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	first = first.UTC()

	if p.Cadence == CadenceWeekly && p.Weekday != nil {
		found := 0
		if first.Weekday() == *p.Weekday {
			found = 1
		}
		var out []time.Time
		cur := first
		for scanned := 0; scanned < weekdayScanCap && found+len(out) < p.TotalCount; scanned++ {
			cur = cur.AddDate(0, 0, 1)
			if cur.Weekday() == *p.Weekday {
				out = append(out, cur)
			}
		}
		if found+len(out) < p.TotalCount {
			return nil, fmt.Errorf("could not find %d occurrences within %d days", p.TotalCount, weekdayScanCap)
		}
		// When the first date itself is off-weekday, the walk found TotalCount
		// matches; siblings are occurrences 2..TotalCount.
		if found == 0 {
			out = out[:p.TotalCount-1]
		}
		return out, nil
	}

	out := make([]time.Time, 0, p.TotalCount-1)
	for i := 1; i < p.TotalCount; i++ {
		switch p.Cadence {
		case CadenceWeekly:
			out = append(out, first.AddDate(0, 0, 7*i))
		case CadenceBiweekly:
			out = append(out, first.AddDate(0, 0, 15*i))
		case CadenceMonthly:
			out = append(out, first.AddDate(0, i, 0))
		}
	}
	return out, nil
}

// SeriesID derives the shared series identifier from the first appointment's
// creation instant.
func SeriesID(first model.Appointment) string {
	return fmt.Sprintf("series-%d", first.CreatedAt.UTC().UnixNano())
}

// Siblings builds the appointment records for occurrences 2..TotalCount.
// Each sibling copies the client, employee, services, and time of day from
// the first appointment, starts out pending, and carries the shared series id
// and its 1-based position. The caller persists them together with the
// position-1 restamp of the first appointment.
func Siblings(first model.Appointment, p Policy) ([]model.Appointment, error) {
	dates, err := Dates(first.StartTime, p)
	if err != nil {
		return nil, err
	}

	seriesID := SeriesID(first)
	duration := first.Duration()

	out := make([]model.Appointment, 0, len(dates))
	for i, start := range dates {
		sibling := first
		sibling.ID = uuid.NewString()
		sibling.StartTime = start
		sibling.EndTime = start.Add(duration)
		sibling.Status = model.StatusPending
		sibling.SeriesID = seriesID
		sibling.SeriesPosition = i + 2
		sibling.SeriesTotal = p.TotalCount
		sibling.ConfirmedAt = nil
		sibling.CompletedAt = nil
		sibling.CancelledAt = nil
		sibling.CancelledBy = ""
		sibling.CancelReason = ""
		sibling.AutoCompleted = false
		out = append(out, sibling)
	}
	return out, nil
}
