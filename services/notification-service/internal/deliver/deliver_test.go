package deliver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/agendly/agendly/internal/scheduling/dispatch"
	"github.com/agendly/agendly/internal/scheduling/model"
	"github.com/agendly/agendly/services/notification-service/internal/sms"
	"github.com/agendly/agendly/services/notification-service/internal/storage"
)

type fakeEmail struct {
	sent []string
	err  error
}

func (f *fakeEmail) Send(to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeSMS struct {
	sent []sms.Message
}

func (f *fakeSMS) Send(_ context.Context, msg sms.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSMS) ProviderID() string { return "fake" }

type fakeRecorder struct {
	rows []storage.Notification
}

func (f *fakeRecorder) Insert(_ context.Context, n storage.Notification) error {
	f.rows = append(f.rows, n)
	return nil
}

var eventStart = time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC)

func sampleEvent(recipient string) dispatch.AppointmentEvent {
	return dispatch.AppointmentEvent{
		AppointmentID: "appt-1",
		BusinessID:    "biz-1",
		EmployeeID:    "emp-1",
		Recipient:     recipient,
		Client:        model.Client{Name: "Ana", Email: "ana@example.com", Phone: "+351111"},
		Services:      []model.ServiceRef{{ID: "svc-1", Name: "Cut", DurationMins: 30}},
		StartTime:     eventStart,
		EndTime:       eventStart.Add(30 * time.Minute),
		Status:        "scheduled",
	}
}

func marshal(t *testing.T, evt dispatch.AppointmentEvent) []byte {
	t.Helper()
	payload, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func newDeliverer() (*Deliverer, *fakeEmail, *fakeSMS, *fakeRecorder) {
	em := &fakeEmail{}
	sm := &fakeSMS{}
	rec := &fakeRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(em, sm, rec, logger), em, sm, rec
}

func TestHandle_ClientBothChannels(t *testing.T) {
	d, em, sm, rec := newDeliverer()

	err := d.Handle(context.Background(), "evt-1", dispatch.TopicReminderDue, marshal(t, sampleEvent("client")))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(em.sent) != 1 || em.sent[0] != "ana@example.com" {
		t.Fatalf("email sent to %v", em.sent)
	}
	if len(sm.sent) != 1 || sm.sent[0].To != "+351111" {
		t.Fatalf("sms sent to %v", sm.sent)
	}
	if sm.sent[0].AppointmentID != "appt-1" || sm.sent[0].EventType != dispatch.TopicReminderDue {
		t.Fatalf("sms missing appointment context: %+v", sm.sent[0])
	}
	if len(rec.rows) != 2 {
		t.Fatalf("expected 2 records, got %d", len(rec.rows))
	}
	for _, row := range rec.rows {
		if row.Status != "sent" || row.EventID != "evt-1" {
			t.Fatalf("unexpected record %+v", row)
		}
	}
}

func TestHandle_EmployeeRecordedInApp(t *testing.T) {
	d, em, sm, rec := newDeliverer()

	err := d.Handle(context.Background(), "evt-2", dispatch.TopicAppointmentPending, marshal(t, sampleEvent("employee")))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(em.sent) != 0 || len(sm.sent) != 0 {
		t.Fatal("employee notifications must not reach client channels")
	}
	if len(rec.rows) != 1 {
		t.Fatalf("expected 1 record, got %d", len(rec.rows))
	}
	row := rec.rows[0]
	if row.Channel != "inapp" || row.Recipient != "employee:emp-1" || row.Status != "recorded" {
		t.Fatalf("unexpected record %+v", row)
	}
}

func TestHandle_EmailFailureRecorded(t *testing.T) {
	d, em, _, rec := newDeliverer()
	em.err = errors.New("smtp down")

	evt := sampleEvent("client")
	evt.Client.Phone = ""
	if err := d.Handle(context.Background(), "evt-3", dispatch.TopicAppointmentConfirmed, marshal(t, evt)); err != nil {
		t.Fatalf("Handle must not propagate delivery failures: %v", err)
	}
	if len(rec.rows) != 1 {
		t.Fatalf("expected 1 record, got %d", len(rec.rows))
	}
	if rec.rows[0].Status != "failed" || rec.rows[0].Error != "smtp down" {
		t.Fatalf("unexpected record %+v", rec.rows[0])
	}
}

func TestHandle_MalformedPayloadDropped(t *testing.T) {
	d, _, _, rec := newDeliverer()
	if err := d.Handle(context.Background(), "evt-4", dispatch.TopicReminderDue, []byte("not json")); err != nil {
		t.Fatalf("malformed payload must be dropped, got %v", err)
	}
	if len(rec.rows) != 0 {
		t.Fatalf("no records expected, got %d", len(rec.rows))
	}
}

func TestRender(t *testing.T) {
	evt := sampleEvent("client")

	msg, ok := Render(dispatch.TopicAppointmentPending, evt)
	if !ok || msg.Subject != "New booking request" {
		t.Fatalf("pending render: %+v ok=%v", msg, ok)
	}
	if !strings.Contains(msg.Body, "Ana") || !strings.Contains(msg.Body, "Cut") {
		t.Fatalf("pending body %q", msg.Body)
	}

	evt.Extra = map[string]string{"justification": "double booked"}
	msg, ok = Render(dispatch.TopicAppointmentCancelled, evt)
	if !ok || !strings.Contains(msg.Body, "double booked") {
		t.Fatalf("cancelled body %q", msg.Body)
	}

	evt.Extra = map[string]string{"series_total": "5"}
	msg, ok = Render(dispatch.TopicSeriesCompleted, evt)
	if !ok || !strings.Contains(msg.Body, "All 5 appointments") {
		t.Fatalf("series body %q", msg.Body)
	}

	if _, ok := Render("scheduling.unknown.v1", evt); ok {
		t.Fatal("unknown topic must not render")
	}
}
