// Package dispatch bridges the lifecycle engine's notification boundary to
// the transactional outbox: every transition event becomes an outbox row that
// the background publisher ships to Kafka, where the notification and
// scheduler services pick it up.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agendly/agendly/internal/scheduling/lifecycle"
	"github.com/agendly/agendly/internal/scheduling/model"
	"github.com/agendly/agendly/libs/db"
	"github.com/agendly/agendly/libs/outbox"
)

// Topic names; the outbox publisher uses the event type as the Kafka topic.
const (
	TopicAppointmentPending   = "scheduling.appointment.pending.v1"
	TopicAppointmentConfirmed = "scheduling.appointment.confirmed.v1"
	TopicAppointmentCancelled = "scheduling.appointment.cancelled.v1"
	TopicReminderRequested    = "scheduling.reminder.requested.v1"
	TopicReminderCancelled    = "scheduling.reminder.cancelled.v1"
	TopicReminderDue          = "scheduling.reminder.due.v1"
	TopicSeriesCompleted      = "scheduling.series.completed.v1"
)

var kindTopics = map[lifecycle.EventKind]string{
	lifecycle.EventPendingCreated:  TopicAppointmentPending,
	lifecycle.EventConfirmed:       TopicAppointmentConfirmed,
	lifecycle.EventCancelled:       TopicAppointmentCancelled,
	lifecycle.EventReminder:        TopicReminderDue,
	lifecycle.EventSeriesCompleted: TopicSeriesCompleted,
}

// AppointmentEvent is the wire payload shared by every appointment topic.
type AppointmentEvent struct {
	AppointmentID  string             `json:"appointment_id"`
	BusinessID     string             `json:"business_id"`
	EmployeeID     string             `json:"employee_id"`
	Recipient      string             `json:"recipient,omitempty"`
	Client         model.Client       `json:"client"`
	Services       []model.ServiceRef `json:"services"`
	StartTime      time.Time          `json:"start_time"`
	EndTime        time.Time          `json:"end_time"`
	Status         string             `json:"status"`
	SeriesID       string             `json:"series_id,omitempty"`
	SeriesPosition int                `json:"series_position,omitempty"`
	SeriesTotal    int                `json:"series_total,omitempty"`
	Extra          map[string]string  `json:"extra,omitempty"`
}

// ReminderEvent is the payload for the reminder request/cancel topics.
type ReminderEvent struct {
	AppointmentID string       `json:"appointment_id"`
	BusinessID    string       `json:"business_id"`
	Client        model.Client `json:"client"`
	StartTime     time.Time    `json:"start_time"`
	RemindAt      time.Time    `json:"remind_at,omitempty"`
}

// OutboxDispatcher implements both lifecycle.Dispatcher and
// lifecycle.ReminderScheduler. Each call writes one outbox row in its own
// short transaction; delivery is the publisher's job.
type OutboxDispatcher struct {
	pool *db.Pool
	repo *outbox.Repository
}

func NewOutboxDispatcher(pool *db.Pool, repo *outbox.Repository) *OutboxDispatcher {
	return &OutboxDispatcher{pool: pool, repo: repo}
}

func (d *OutboxDispatcher) Notify(ctx context.Context, recipient lifecycle.Recipient, appt model.Appointment, kind lifecycle.EventKind, extra map[string]string) error {
	topic, ok := kindTopics[kind]
	if !ok {
		return fmt.Errorf("no topic for event kind %q", kind)
	}
	payload, err := json.Marshal(AppointmentEvent{
		AppointmentID:  appt.ID,
		BusinessID:     appt.BusinessID,
		EmployeeID:     appt.EmployeeID,
		Recipient:      string(recipient),
		Client:         appt.Client,
		Services:       appt.Services,
		StartTime:      appt.StartTime,
		EndTime:        appt.EndTime,
		Status:         string(appt.Status),
		SeriesID:       appt.SeriesID,
		SeriesPosition: appt.SeriesPosition,
		SeriesTotal:    appt.SeriesTotal,
		Extra:          extra,
	})
	if err != nil {
		return err
	}
	return d.insert(ctx, appt.ID, topic, payload)
}

func (d *OutboxDispatcher) Schedule(ctx context.Context, appt model.Appointment, remindAt time.Time) error {
	payload, err := json.Marshal(ReminderEvent{
		AppointmentID: appt.ID,
		BusinessID:    appt.BusinessID,
		Client:        appt.Client,
		StartTime:     appt.StartTime,
		RemindAt:      remindAt,
	})
	if err != nil {
		return err
	}
	return d.insert(ctx, appt.ID, TopicReminderRequested, payload)
}

func (d *OutboxDispatcher) Cancel(ctx context.Context, appointmentID string) error {
	payload, err := json.Marshal(ReminderEvent{AppointmentID: appointmentID})
	if err != nil {
		return err
	}
	return d.insert(ctx, appointmentID, TopicReminderCancelled, payload)
}

func (d *OutboxDispatcher) insert(ctx context.Context, aggregateID, eventType string, payload []byte) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := d.repo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
