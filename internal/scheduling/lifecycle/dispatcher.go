package lifecycle

import (
	"context"
	"time"

	"github.com/agendly/agendly/internal/scheduling/model"
)

// EventKind names a lifecycle notification event.
type EventKind string

const (
	EventPendingCreated  EventKind = "pending-created"
	EventConfirmed       EventKind = "confirmed"
	EventCancelled       EventKind = "cancelled"
	EventReminder        EventKind = "reminder-1h"
	EventSeriesCompleted EventKind = "series-completed"
)

// Recipient selects which party a notification targets.
type Recipient string

const (
	RecipientClient   Recipient = "client"
	RecipientEmployee Recipient = "employee"
	RecipientBoth     Recipient = "both"
)

// Dispatcher is the notification boundary the engine calls on transitions.
// Dispatch is best-effort: a failure is logged by the engine and never rolls
// back the state change that triggered it.
type Dispatcher interface {
	Notify(ctx context.Context, recipient Recipient, appt model.Appointment, kind EventKind, extra map[string]string) error
}

// ReminderScheduler manages the client reminder fired one hour before a
// confirmed appointment starts. Jobs are keyed by appointment id so a later
// cancellation can withdraw a pending reminder.
type ReminderScheduler interface {
	Schedule(ctx context.Context, appt model.Appointment, remindAt time.Time) error
	Cancel(ctx context.Context, appointmentID string) error
}

// Store is the persistence surface the engine drives. Appointments live in a
// single collection keyed by id; the per-business and per-employee-day reads
// are derived views of the same records, so callers never observe divergent
// state between them.
type Store interface {
	GetBusiness(ctx context.Context, id string) (model.Business, error)
	GetEmployee(ctx context.Context, businessID, employeeID string) (model.Employee, error)

	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	// ListEmployeeDay returns every appointment (any status) for the
	// employee on the given calendar day.
	ListEmployeeDay(ctx context.Context, businessID, employeeID string, day time.Time) ([]model.Appointment, error)
	// CreateAppointment atomically re-checks interval overlap against
	// non-cancelled appointments of the same employee and inserts, failing
	// with ErrSlotUnavailable when the slot was taken in the meantime.
	CreateAppointment(ctx context.Context, appt model.Appointment) error
	// CreateSeries atomically restamps the first appointment with its
	// series fields and inserts the sibling occurrences. A sibling landing
	// on an occupied interval fails the whole series with
	// ErrSlotUnavailable and persists nothing.
	CreateSeries(ctx context.Context, first model.Appointment, siblings []model.Appointment) error
	UpdateAppointment(ctx context.Context, appt model.Appointment) error

	ListSeries(ctx context.Context, seriesID string) ([]model.Appointment, error)
	// ListOverdueScheduled returns scheduled appointments whose start time
	// is strictly before the cutoff instant.
	ListOverdueScheduled(ctx context.Context, cutoff time.Time) ([]model.Appointment, error)
	// ClientRealizedStats reports how many realized appointments the client
	// has with the business and when the most recent one took place.
	ClientRealizedStats(ctx context.Context, businessID, clientEmail string) (int, time.Time, error)
}
