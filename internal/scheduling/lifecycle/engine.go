// Package lifecycle owns the appointment state machine: creation,
// confirmation, cancellation (with the 60-minute cutoff rule), completion,
// the auto-completion sweep, and recurring-series materialization. Valid
// transitions are pending -> {scheduled, cancelled} and scheduled ->
// {cancelled, realized}; realized and cancelled are terminal.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/agendly/agendly/internal/scheduling/conflict"
	"github.com/agendly/agendly/internal/scheduling/model"
	"github.com/agendly/agendly/internal/scheduling/recurrence"
	"github.com/agendly/agendly/internal/scheduling/slots"
)

type Engine struct {
	store      Store
	dispatcher Dispatcher
	reminders  ReminderScheduler
	logger     *slog.Logger

	now             func() time.Time
	reminderLead    time.Duration
	cancelCutoff    time.Duration
	completionGrace time.Duration
	loyaltyVisits   int
	loyaltyAbsence  time.Duration
}

// Config carries the engine's tunables; zero values take the defaults below.
type Config struct {
	Now             func() time.Time
	ReminderLead    time.Duration // client reminder before start, default 1h
	CancelCutoff    time.Duration // scheduled cancellation cutoff, default 60m
	CompletionGrace time.Duration // auto-complete grace after start, default 30m
}

func NewEngine(store Store, dispatcher Dispatcher, reminders ReminderScheduler, logger *slog.Logger, cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.ReminderLead <= 0 {
		cfg.ReminderLead = time.Hour
	}
	if cfg.CancelCutoff <= 0 {
		cfg.CancelCutoff = 60 * time.Minute
	}
	if cfg.CompletionGrace <= 0 {
		cfg.CompletionGrace = 30 * time.Minute
	}
	return &Engine{
		store:           store,
		dispatcher:      dispatcher,
		reminders:       reminders,
		logger:          logger,
		now:             cfg.Now,
		reminderLead:    cfg.ReminderLead,
		cancelCutoff:    cfg.CancelCutoff,
		completionGrace: cfg.CompletionGrace,
		loyaltyVisits:   5,
		loyaltyAbsence:  7 * 24 * time.Hour,
	}
}

// CreateRequest describes a booking attempt for a concrete slot.
type CreateRequest struct {
	BusinessID string
	EmployeeID string
	Client     model.Client
	Services   []model.ServiceRef
	Start      time.Time
}

// CreateResult carries the created appointment plus the loyalty nudge hint:
// true when the client already has several realized visits and has been away
// long enough that the UI may suggest a return offer. The hint is advisory
// and never persisted.
type CreateResult struct {
	Appointment  model.Appointment
	LoyaltyNudge bool
}

// Create books a new pending appointment. Availability is checked up front
// for a precise rejection reason, then re-validated atomically inside the
// store insert so concurrent bookings of overlapping intervals cannot both
// succeed.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	if err := validateCreate(req); err != nil {
		return CreateResult{}, err
	}

	business, err := e.store.GetBusiness(ctx, req.BusinessID)
	if err != nil {
		return CreateResult{}, err
	}
	employee, err := e.store.GetEmployee(ctx, req.BusinessID, req.EmployeeID)
	if err != nil {
		return CreateResult{}, err
	}

	duration, total := model.SumServices(req.Services)
	start := req.Start.UTC()
	end := start.Add(duration)

	existing, err := e.store.ListEmployeeDay(ctx, req.BusinessID, req.EmployeeID, model.DayOf(start))
	if err != nil {
		return CreateResult{}, err
	}
	res, err := conflict.Check(business, employee, start, end, existing)
	if err != nil {
		return CreateResult{}, err
	}
	if !res.Available {
		return CreateResult{}, fmt.Errorf("%w: %s", ErrSlotUnavailable, res.Reason)
	}

	now := e.now()
	appt := model.Appointment{
		ID:         uuid.NewString(),
		BusinessID: req.BusinessID,
		EmployeeID: req.EmployeeID,
		Client:     req.Client,
		Services:   req.Services,
		StartTime:  start,
		EndTime:    end,
		TotalPrice: total,
		Status:     model.StatusPending,
		CreatedAt:  now,
	}
	if err := e.store.CreateAppointment(ctx, appt); err != nil {
		return CreateResult{}, err
	}

	e.notify(ctx, RecipientEmployee, appt, EventPendingCreated, nil)

	nudge := false
	if appt.Client.Email != "" {
		count, last, err := e.store.ClientRealizedStats(ctx, req.BusinessID, appt.Client.Email)
		if err != nil {
			e.logger.Warn("loyalty stats lookup failed", "err", err, "appointment_id", appt.ID)
		} else if count >= e.loyaltyVisits && now.Sub(last) > e.loyaltyAbsence {
			nudge = true
		}
	}

	return CreateResult{Appointment: appt, LoyaltyNudge: nudge}, nil
}

// Confirm moves a pending appointment to scheduled and arranges the client
// reminder: one hour before start when that instant is still ahead, otherwise
// the reminder fires immediately.
func (e *Engine) Confirm(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := e.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !appt.Status.AwaitingConfirmation() {
		return model.Appointment{}, fmt.Errorf("%w: cannot confirm %s appointment", ErrInvalidTransition, appt.Status)
	}

	now := e.now()
	appt.Status = model.StatusScheduled
	appt.ConfirmedAt = &now
	if err := e.store.UpdateAppointment(ctx, appt); err != nil {
		return model.Appointment{}, err
	}

	e.notify(ctx, RecipientBoth, appt, EventConfirmed, nil)

	remindAt := appt.StartTime.Add(-e.reminderLead)
	if remindAt.After(now) {
		if err := e.reminders.Schedule(ctx, appt, remindAt); err != nil {
			e.logger.Error("reminder scheduling failed", "err", err, "appointment_id", appt.ID)
		}
	} else {
		e.notify(ctx, RecipientClient, appt, EventReminder, nil)
	}

	return appt, nil
}

// Cancel applies the cancellation rules: finalized appointments are
// untouchable, pending ones are always cancellable, and scheduled ones only
// while more than the cutoff (60 minutes) remains before start. The party
// that did not cancel is notified, with the justification when given.
func (e *Engine) Cancel(ctx context.Context, id string, actor model.Actor, justification string) (model.Appointment, error) {
	appt, err := e.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Status.Terminal() {
		return model.Appointment{}, fmt.Errorf("%w: already finalized (%s)", ErrInvalidTransition, appt.Status)
	}

	now := e.now()
	if appt.Status == model.StatusScheduled {
		remaining := appt.StartTime.Sub(now)
		if remaining <= e.cancelCutoff {
			mins := int(remaining.Minutes())
			if mins < 0 {
				mins = 0
			}
			return model.Appointment{}, &CutoffError{RemainingMinutes: mins}
		}
	}

	appt.Status = model.StatusCancelled
	appt.CancelledBy = actor
	appt.CancelReason = justification
	appt.CancelledAt = &now
	if err := e.store.UpdateAppointment(ctx, appt); err != nil {
		return model.Appointment{}, err
	}

	recipient := RecipientClient
	if actor == model.ActorClient {
		recipient = RecipientEmployee
	}
	var extra map[string]string
	if justification != "" {
		extra = map[string]string{"justification": justification}
	}
	e.notify(ctx, recipient, appt, EventCancelled, extra)

	if err := e.reminders.Cancel(ctx, appt.ID); err != nil {
		e.logger.Warn("reminder cancellation failed", "err", err, "appointment_id", appt.ID)
	}

	return appt, nil
}

// Complete marks a scheduled appointment realized by explicit employee action.
func (e *Engine) Complete(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := e.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Status != model.StatusScheduled {
		return model.Appointment{}, fmt.Errorf("%w: cannot complete %s appointment", ErrInvalidTransition, appt.Status)
	}

	now := e.now()
	appt.Status = model.StatusRealized
	appt.CompletedAt = &now
	appt.AutoCompleted = false
	if err := e.store.UpdateAppointment(ctx, appt); err != nil {
		return model.Appointment{}, err
	}

	e.checkSeriesCompleted(ctx, appt)
	return appt, nil
}

// AutoCompleteSweep realizes every scheduled appointment whose start lies
// more than the completion grace (30 minutes) in the past, stamping the
// auto-completed marker. The sweep is idempotent: a second run over the same
// state transitions nothing and emits no duplicate notifications.
func (e *Engine) AutoCompleteSweep(ctx context.Context, now time.Time) ([]model.Appointment, error) {
	now = now.UTC()
	overdue, err := e.store.ListOverdueScheduled(ctx, now.Add(-e.completionGrace))
	if err != nil {
		return nil, err
	}

	var done []model.Appointment
	for _, appt := range overdue {
		if appt.Status != model.StatusScheduled {
			continue
		}
		completedAt := now
		appt.Status = model.StatusRealized
		appt.CompletedAt = &completedAt
		appt.AutoCompleted = true
		if err := e.store.UpdateAppointment(ctx, appt); err != nil {
			return done, err
		}
		done = append(done, appt)
		e.checkSeriesCompleted(ctx, appt)
	}
	return done, nil
}

// MaterializeSeries expands a recurring request: occurrences 2..TotalCount are
// created as pending siblings of the given first appointment, and the first
// appointment is restamped as position 1 of the series. The siblings and the
// restamp persist in one atomic store write; a future occurrence landing on an
// occupied interval fails the whole series with ErrSlotUnavailable and leaves
// nothing behind.
func (e *Engine) MaterializeSeries(ctx context.Context, firstID string, policy recurrence.Policy) ([]model.Appointment, error) {
	first, err := e.store.GetAppointment(ctx, firstID)
	if err != nil {
		return nil, err
	}
	if first.SeriesID != "" {
		return nil, invalidField("appointment", "already part of a recurring series")
	}

	siblings, err := recurrence.Siblings(first, policy)
	if err != nil {
		return nil, err
	}

	first.SeriesID = recurrence.SeriesID(first)
	first.SeriesPosition = 1
	first.SeriesTotal = policy.TotalCount
	if err := e.store.CreateSeries(ctx, first, siblings); err != nil {
		return nil, err
	}

	return siblings, nil
}

// FreeSlots lists the business's candidate slots for a day; with an employee
// given, slots that fail any availability check are filtered out.
func (e *Engine) FreeSlots(ctx context.Context, businessID, employeeID string, day time.Time) ([]slots.Slot, error) {
	business, err := e.store.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	candidates, err := slots.Generate(business, day)
	if err != nil {
		return nil, err
	}
	if employeeID == "" || len(candidates) == 0 {
		return candidates, nil
	}

	employee, err := e.store.GetEmployee(ctx, businessID, employeeID)
	if err != nil {
		return nil, err
	}
	existing, err := e.store.ListEmployeeDay(ctx, businessID, employeeID, model.DayOf(day))
	if err != nil {
		return nil, err
	}

	var free []slots.Slot
	for _, s := range candidates {
		res, err := conflict.Check(business, employee, s.Start, s.End, existing)
		if err != nil {
			return nil, err
		}
		if res.Available {
			free = append(free, s)
		}
	}
	return free, nil
}

// CheckAvailability answers whether [start, end) can be booked right now.
func (e *Engine) CheckAvailability(ctx context.Context, businessID, employeeID string, start, end time.Time) (conflict.Result, error) {
	business, err := e.store.GetBusiness(ctx, businessID)
	if err != nil {
		return conflict.Result{}, err
	}
	employee, err := e.store.GetEmployee(ctx, businessID, employeeID)
	if err != nil {
		return conflict.Result{}, err
	}
	existing, err := e.store.ListEmployeeDay(ctx, businessID, employeeID, model.DayOf(start))
	if err != nil {
		return conflict.Result{}, err
	}
	return conflict.Check(business, employee, start, end, existing)
}

// Now reports the engine's clock, so callers sweeping or filtering by time
// stay consistent with the transitions the engine records.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Schedule returns the employee's appointments for a day, running an
// opportunistic auto-complete sweep first so the listing reflects overdue
// transitions.
func (e *Engine) Schedule(ctx context.Context, businessID, employeeID string, day time.Time) ([]model.Appointment, error) {
	if _, err := e.AutoCompleteSweep(ctx, e.now()); err != nil {
		e.logger.Warn("opportunistic sweep failed", "err", err)
	}
	return e.store.ListEmployeeDay(ctx, businessID, employeeID, model.DayOf(day))
}

func (e *Engine) checkSeriesCompleted(ctx context.Context, appt model.Appointment) {
	if appt.SeriesID == "" {
		return
	}
	series, err := e.store.ListSeries(ctx, appt.SeriesID)
	if err != nil {
		e.logger.Warn("series lookup failed", "err", err, "series_id", appt.SeriesID)
		return
	}
	for _, sibling := range series {
		if sibling.Status != model.StatusRealized && sibling.Status != model.StatusCancelled {
			return
		}
	}
	e.notify(ctx, RecipientBoth, appt, EventSeriesCompleted, map[string]string{
		"series_total": strconv.Itoa(appt.SeriesTotal),
	})
}

func (e *Engine) notify(ctx context.Context, recipient Recipient, appt model.Appointment, kind EventKind, extra map[string]string) {
	if err := e.dispatcher.Notify(ctx, recipient, appt, kind, extra); err != nil {
		e.logger.Error("notification dispatch failed", "err", err,
			"event", string(kind), "appointment_id", appt.ID)
	}
}

func validateCreate(req CreateRequest) error {
	if req.BusinessID == "" {
		return invalidField("business_id", "required")
	}
	if req.EmployeeID == "" {
		return invalidField("employee_id", "required")
	}
	if req.Client.Name == "" {
		return invalidField("client", "name is required")
	}
	if req.Client.Email == "" && req.Client.Phone == "" {
		return invalidField("client", "email or phone is required")
	}
	if req.Start.IsZero() {
		return invalidField("start", "required")
	}
	if len(req.Services) == 0 {
		return invalidField("services", "at least one service is required")
	}
	for _, s := range req.Services {
		if s.ID == "" {
			return invalidField("services", "service reference without id")
		}
		if s.DurationMins <= 0 {
			return invalidField("services", "service duration must be positive")
		}
	}
	return nil
}
