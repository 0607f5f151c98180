package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agendly/agendly/internal/scheduling/lifecycle"
	"github.com/agendly/agendly/internal/scheduling/model"
	"github.com/agendly/agendly/internal/scheduling/storage"
)

// monday 2024-06-03, inside the test business's working week.
var handlerNow = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

type noopDispatcher struct{}

func (noopDispatcher) Notify(context.Context, lifecycle.Recipient, model.Appointment, lifecycle.EventKind, map[string]string) error {
	return nil
}
func (noopDispatcher) Schedule(context.Context, model.Appointment, time.Time) error { return nil }
func (noopDispatcher) Cancel(context.Context, string) error                         { return nil }

func newHandler(t *testing.T) (*BookingHandler, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	ctx := context.Background()

	err := store.CreateBusiness(ctx, model.Business{
		ID:        "biz-1",
		Name:      "Studio",
		OpenTime:  "09:00",
		CloseTime: "18:00",
		WorkingDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
		DefaultDurationMins: 30,
		CreatedAt:           handlerNow,
	})
	if err != nil {
		t.Fatalf("seed business: %v", err)
	}
	err = store.CreateEmployee(ctx, model.Employee{
		ID: "emp-1", BusinessID: "biz-1", Name: "Dana", Active: true, CreatedAt: handlerNow,
	})
	if err != nil {
		t.Fatalf("seed employee: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := lifecycle.NewEngine(store, noopDispatcher{}, noopDispatcher{}, logger, lifecycle.Config{
		Now: func() time.Time { return handlerNow },
	})
	return NewBookingHandler(engine, store, nil, logger), store
}

func postJSON(t *testing.T, fn http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	fn(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v\n%s", err, rr.Body.String())
	}
}

func bookBody(start time.Time, extra string) string {
	b := `{"business_id":"biz-1","employee_id":"emp-1",` +
		`"client":{"name":"Ana","email":"ana@example.com"},` +
		`"services":[{"id":"svc-1","name":"Cut","duration_minutes":30,"price":"40.00"}],` +
		`"start_time":"` + start.Format(time.RFC3339) + `"`
	if extra != "" {
		b += "," + extra
	}
	return b + "}"
}

func TestBook_Created(t *testing.T) {
	h, _ := newHandler(t)
	rr := postJSON(t, h.Book, bookBody(handlerNow.Add(2*time.Hour), ""))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status %d, want 201: %s", rr.Code, rr.Body.String())
	}

	var resp bookResponse
	decodeBody(t, rr, &resp)
	if resp.Appointment.Status != "pending" {
		t.Fatalf("status %q, want pending", resp.Appointment.Status)
	}
	if resp.Appointment.TotalPrice != "40.00" {
		t.Fatalf("total_price %q, want 40.00", resp.Appointment.TotalPrice)
	}
	if resp.Appointment.EndTime != handlerNow.Add(2*time.Hour+30*time.Minute).Format(time.RFC3339) {
		t.Fatalf("end_time %q", resp.Appointment.EndTime)
	}
}

func TestBook_OverlapConflict(t *testing.T) {
	h, _ := newHandler(t)
	if rr := postJSON(t, h.Book, bookBody(handlerNow.Add(2*time.Hour), "")); rr.Code != http.StatusCreated {
		t.Fatalf("first booking: %d", rr.Code)
	}

	rr := postJSON(t, h.Book, bookBody(handlerNow.Add(2*time.Hour+15*time.Minute), ""))
	if rr.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409: %s", rr.Code, rr.Body.String())
	}
}

func TestBook_ValidationFailure(t *testing.T) {
	h, _ := newHandler(t)
	body := `{"business_id":"biz-1","employee_id":"emp-1",` +
		`"client":{"name":"Ana"},` + // no contact
		`"services":[{"id":"svc-1","duration_minutes":30}],` +
		`"start_time":"` + handlerNow.Add(2*time.Hour).Format(time.RFC3339) + `"}`
	rr := postJSON(t, h.Book, body)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422: %s", rr.Code, rr.Body.String())
	}
}

func TestBook_QuickBooking(t *testing.T) {
	h, _ := newHandler(t)
	body := `{"business_id":"biz-1","employee_id":"emp-1",` +
		`"client":{"name":"Ana","phone":"+111"},` +
		`"start_time":"` + handlerNow.Add(2*time.Hour).Format(time.RFC3339) + `"}`
	rr := postJSON(t, h.Book, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status %d, want 201: %s", rr.Code, rr.Body.String())
	}

	var resp bookResponse
	decodeBody(t, rr, &resp)
	if len(resp.Appointment.Services) != 1 || resp.Appointment.Services[0].ID != "quick-booking" {
		t.Fatalf("unexpected services %+v", resp.Appointment.Services)
	}
	// Default business duration.
	if resp.Appointment.EndTime != handlerNow.Add(2*time.Hour+30*time.Minute).Format(time.RFC3339) {
		t.Fatalf("end_time %q", resp.Appointment.EndTime)
	}
}

func TestBook_Recurring(t *testing.T) {
	h, _ := newHandler(t)
	rr := postJSON(t, h.Book, bookBody(handlerNow.Add(2*time.Hour),
		`"recurrence":{"total_count":3,"cadence":"weekly","weekday":"monday"}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status %d, want 201: %s", rr.Code, rr.Body.String())
	}

	var resp bookResponse
	decodeBody(t, rr, &resp)
	if resp.Appointment.SeriesPosition != 1 || resp.Appointment.SeriesTotal != 3 {
		t.Fatalf("first occurrence not stamped: %+v", resp.Appointment)
	}
	if len(resp.Series) != 2 {
		t.Fatalf("expected 2 siblings, got %d", len(resp.Series))
	}
	if resp.Series[0].StartTime != handlerNow.AddDate(0, 0, 7).Add(2*time.Hour).Format(time.RFC3339) {
		t.Fatalf("second occurrence at %q", resp.Series[0].StartTime)
	}
}

func TestBook_InvalidRecurrence(t *testing.T) {
	h, _ := newHandler(t)
	rr := postJSON(t, h.Book, bookBody(handlerNow.Add(2*time.Hour),
		`"recurrence":{"total_count":4,"cadence":"weekly"}`))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422: %s", rr.Code, rr.Body.String())
	}
}

func TestSlots(t *testing.T) {
	h, _ := newHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/?business_id=biz-1&employee_id=emp-1&date=2024-06-03", nil)
	rr := httptest.NewRecorder()
	h.Slots(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var items []slotItem
	decodeBody(t, rr, &items)
	// 09:00-18:00 at 30-minute spacing.
	if len(items) != 18 {
		t.Fatalf("expected 18 slots, got %d", len(items))
	}
	if items[0].StartTime != "2024-06-03T09:00:00Z" {
		t.Fatalf("first slot %q", items[0].StartTime)
	}

	req = httptest.NewRequest(http.MethodGet, "/?business_id=biz-1", nil)
	rr = httptest.NewRecorder()
	h.Slots(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing date: status %d, want 400", rr.Code)
	}
}

func TestAvailability(t *testing.T) {
	h, _ := newHandler(t)
	base := "/?business_id=biz-1&employee_id=emp-1&start_time="

	req := httptest.NewRequest(http.MethodGet, base+"2024-06-03T11:00:00Z", nil)
	rr := httptest.NewRecorder()
	h.Availability(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var out struct {
		Available bool   `json:"available"`
		Reason    string `json:"reason"`
	}
	decodeBody(t, rr, &out)
	if !out.Available {
		t.Fatalf("expected available, reason %q", out.Reason)
	}

	// Sunday: closed.
	req = httptest.NewRequest(http.MethodGet, base+"2024-06-02T11:00:00Z", nil)
	rr = httptest.NewRecorder()
	h.Availability(rr, req)
	decodeBody(t, rr, &out)
	if out.Available {
		t.Fatal("expected unavailable on a closed day")
	}
}

func TestCancel_InsideCutoff(t *testing.T) {
	h, _ := newHandler(t)

	rr := postJSON(t, h.Book, bookBody(handlerNow.Add(30*time.Minute), ""))
	if rr.Code != http.StatusCreated {
		t.Fatalf("booking: %d", rr.Code)
	}
	var resp bookResponse
	decodeBody(t, rr, &resp)
	id := resp.Appointment.AppointmentID

	if rr := postJSON(t, h.Confirm, `{"appointment_id":"`+id+`"}`); rr.Code != http.StatusOK {
		t.Fatalf("confirm: %d: %s", rr.Code, rr.Body.String())
	}

	rr = postJSON(t, h.Cancel, `{"appointment_id":"`+id+`","cancelled_by":"client"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409: %s", rr.Code, rr.Body.String())
	}
	var conflictBody struct {
		RemainingMinutes int `json:"remaining_minutes"`
	}
	decodeBody(t, rr, &conflictBody)
	if conflictBody.RemainingMinutes != 30 {
		t.Fatalf("remaining_minutes %d, want 30", conflictBody.RemainingMinutes)
	}
}

func TestCancel_BadActor(t *testing.T) {
	h, _ := newHandler(t)
	rr := postJSON(t, h.Cancel, `{"appointment_id":"x","cancelled_by":"intruder"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422: %s", rr.Code, rr.Body.String())
	}
}

func TestCancel_NotFound(t *testing.T) {
	h, _ := newHandler(t)
	rr := postJSON(t, h.Cancel, `{"appointment_id":"missing","cancelled_by":"employee"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404: %s", rr.Code, rr.Body.String())
	}
}

func TestList_EmployeeDay(t *testing.T) {
	h, _ := newHandler(t)
	if rr := postJSON(t, h.Book, bookBody(handlerNow.Add(2*time.Hour), "")); rr.Code != http.StatusCreated {
		t.Fatalf("booking: %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/?employee_id=emp-1&date=2024-06-03", nil)
	req.Header.Set("X-Business-Id", "biz-1")
	rr := httptest.NewRecorder()
	h.List(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var items []appointmentItem
	decodeBody(t, rr, &items)
	if len(items) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(items))
	}

	req = httptest.NewRequest(http.MethodGet, "/?employee_id=emp-1&date=2024-06-03", nil)
	rr = httptest.NewRecorder()
	h.List(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing tenant: status %d, want 400", rr.Code)
	}
}

func TestList_RangeUsesEngineClock(t *testing.T) {
	h, _ := newHandler(t)
	if rr := postJSON(t, h.Book, bookBody(handlerNow.Add(2*time.Hour), "")); rr.Code != http.StatusCreated {
		t.Fatalf("booking: %d", rr.Code)
	}

	// Without explicit bounds the range view starts at the engine's
	// clock, so the booking on that day is included.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Business-Id", "biz-1")
	rr := httptest.NewRecorder()
	h.List(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var items []appointmentItem
	decodeBody(t, rr, &items)
	if len(items) != 1 {
		t.Fatalf("expected 1 appointment in default range, got %d", len(items))
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", strings.NewReader("{}"))
	rr := httptest.NewRecorder()
	h.Book(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d, want 405", rr.Code)
	}
}
