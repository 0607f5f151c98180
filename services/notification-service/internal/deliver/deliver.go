// Package deliver turns scheduling events into outbound notifications: it
// renders a subject and body per event topic, picks channels from the
// client's contact details, and records every attempt.
package deliver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agendly/agendly/internal/scheduling/dispatch"
	"github.com/agendly/agendly/internal/scheduling/model"
	"github.com/agendly/agendly/services/notification-service/internal/email"
	"github.com/agendly/agendly/services/notification-service/internal/sms"
	"github.com/agendly/agendly/services/notification-service/internal/storage"
)

type Recorder interface {
	Insert(ctx context.Context, n storage.Notification) error
}

type Deliverer struct {
	email  email.Sender
	sms    sms.Sender
	repo   Recorder
	logger *slog.Logger
}

func New(emailSender email.Sender, smsSender sms.Sender, repo Recorder, logger *slog.Logger) *Deliverer {
	return &Deliverer{email: emailSender, sms: smsSender, repo: repo, logger: logger}
}

// Message is a rendered notification before channel selection.
type Message struct {
	Subject string
	Body    string
}

// Handle processes one event. Malformed payloads are logged and dropped;
// delivery failures are recorded but do not fail the event, so consumption
// keeps moving.
func (d *Deliverer) Handle(ctx context.Context, eventID, topic string, payload []byte) error {
	var evt dispatch.AppointmentEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		d.logger.Error("invalid event payload", "err", err, "topic", topic)
		return nil
	}

	msg, ok := Render(topic, evt)
	if !ok {
		d.logger.Warn("no template for topic", "topic", topic)
		return nil
	}

	recipient := evt.Recipient
	if recipient == "" {
		recipient = "both"
	}
	if recipient == "client" || recipient == "both" {
		d.sendToClient(ctx, eventID, topic, evt.AppointmentID, evt.Client, msg)
	}
	if recipient == "employee" || recipient == "both" {
		// Employees have no contact details on file; the notification is
		// recorded for the tenant dashboard to surface.
		d.record(ctx, storage.Notification{
			EventID:   eventID,
			EventType: topic,
			Channel:   "inapp",
			Recipient: "employee:" + evt.EmployeeID,
			Subject:   msg.Subject,
			Body:      msg.Body,
			Status:    "recorded",
		})
	}
	return nil
}

func (d *Deliverer) sendToClient(ctx context.Context, eventID, topic, apptID string, client model.Client, msg Message) {
	if client.Email != "" {
		n := storage.Notification{
			EventID:   eventID,
			EventType: topic,
			Channel:   "email",
			Recipient: client.Email,
			Subject:   msg.Subject,
			Body:      msg.Body,
			Status:    "sent",
		}
		if err := d.email.Send(client.Email, msg.Subject, msg.Body); err != nil {
			d.logger.Error("email delivery failed", "err", err, "to", client.Email)
			n.Status = "failed"
			n.Error = err.Error()
		}
		d.record(ctx, n)
	}
	if client.Phone != "" {
		n := storage.Notification{
			EventID:   eventID,
			EventType: topic,
			Channel:   "sms",
			Recipient: client.Phone,
			Subject:   msg.Subject,
			Body:      msg.Body,
			Status:    "sent",
		}
		if err := d.sms.Send(ctx, sms.Message{
			To:            client.Phone,
			Body:          msg.Body,
			AppointmentID: apptID,
			EventType:     topic,
		}); err != nil {
			d.logger.Error("sms delivery failed", "err", err, "to", client.Phone)
			n.Status = "failed"
			n.Error = err.Error()
		}
		d.record(ctx, n)
	}
}

func (d *Deliverer) record(ctx context.Context, n storage.Notification) {
	if err := d.repo.Insert(ctx, n); err != nil {
		d.logger.Error("notification record failed", "err", err, "event_id", n.EventID)
	}
}

// Render builds the message for a topic. The bool is false for topics this
// service does not notify on.
func Render(topic string, evt dispatch.AppointmentEvent) (Message, bool) {
	when := evt.StartTime.UTC().Format("Monday, 2 January 2006 at 15:04")
	services := serviceNames(evt.Services)

	switch topic {
	case dispatch.TopicAppointmentPending:
		return Message{
			Subject: "New booking request",
			Body: fmt.Sprintf("%s requested %s on %s. The appointment is awaiting confirmation.",
				evt.Client.Name, services, when),
		}, true
	case dispatch.TopicAppointmentConfirmed:
		return Message{
			Subject: "Appointment confirmed",
			Body: fmt.Sprintf("The appointment for %s (%s) on %s is confirmed.",
				evt.Client.Name, services, when),
		}, true
	case dispatch.TopicAppointmentCancelled:
		body := fmt.Sprintf("The appointment for %s on %s was cancelled", evt.Client.Name, when)
		if by := evt.Extra["justification"]; by != "" {
			body += ": " + by
		} else {
			body += "."
		}
		return Message{Subject: "Appointment cancelled", Body: body}, true
	case dispatch.TopicReminderDue:
		return Message{
			Subject: "Upcoming appointment",
			Body: fmt.Sprintf("Reminder: %s, your appointment (%s) starts on %s.",
				evt.Client.Name, services, when),
		}, true
	case dispatch.TopicSeriesCompleted:
		total := evt.Extra["series_total"]
		if total == "" {
			total = "all"
		}
		return Message{
			Subject: "Recurring series completed",
			Body: fmt.Sprintf("All %s appointments of the recurring series for %s are done. The last one took place on %s.",
				total, evt.Client.Name, when),
		}, true
	}
	return Message{}, false
}

func serviceNames(services []model.ServiceRef) string {
	if len(services) == 0 {
		return "an appointment"
	}
	names := make([]string, 0, len(services))
	for _, s := range services {
		if s.Name != "" {
			names = append(names, s.Name)
		} else {
			names = append(names, s.ID)
		}
	}
	return strings.Join(names, ", ")
}
