package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agendly/agendly/internal/scheduling/lifecycle"
	"github.com/agendly/agendly/internal/scheduling/model"
	"github.com/agendly/agendly/internal/scheduling/recurrence"
	"github.com/agendly/agendly/services/booking-service/internal/storage"
)

// Store is the persistence surface the handlers need: the lifecycle store
// plus the directory and tenant-listing extensions.
type Store interface {
	lifecycle.Store
	ListBusinessRange(ctx context.Context, businessID string, from, to time.Time, limit int) ([]model.Appointment, error)
	CreateBusiness(ctx context.Context, b model.Business) error
	UpdateBusiness(ctx context.Context, b model.Business) error
	CreateEmployee(ctx context.Context, e model.Employee) error
	UpdateEmployeeSchedule(ctx context.Context, e model.Employee) error
	ListEmployees(ctx context.Context, businessID string) ([]model.Employee, error)
}

type BookingHandler struct {
	engine *lifecycle.Engine
	store  Store
	idem   *storage.IdempotencyRepository // nil disables replay
	logger *slog.Logger
}

func NewBookingHandler(engine *lifecycle.Engine, store Store, idem *storage.IdempotencyRepository, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: engine, store: store, idem: idem, logger: logger}
}

type bookRequest struct {
	BusinessID string             `json:"business_id"`
	EmployeeID string             `json:"employee_id"`
	Client     model.Client       `json:"client"`
	Services   []model.ServiceRef `json:"services"`
	StartTime  string             `json:"start_time"`
	Recurrence *recurrenceRequest `json:"recurrence,omitempty"`
}

type recurrenceRequest struct {
	TotalCount int    `json:"total_count"`
	Cadence    string `json:"cadence"`
	Weekday    string `json:"weekday,omitempty"`
}

type appointmentItem struct {
	AppointmentID  string             `json:"appointment_id"`
	BusinessID     string             `json:"business_id"`
	EmployeeID     string             `json:"employee_id"`
	Client         model.Client       `json:"client"`
	Services       []model.ServiceRef `json:"services"`
	StartTime      string             `json:"start_time"`
	EndTime        string             `json:"end_time"`
	TotalPrice     string             `json:"total_price"`
	Status         string             `json:"status"`
	SeriesID       string             `json:"series_id,omitempty"`
	SeriesPosition int                `json:"series_position,omitempty"`
	SeriesTotal    int                `json:"series_total,omitempty"`
	CancelledBy    string             `json:"cancelled_by,omitempty"`
	CancelReason   string             `json:"cancel_reason,omitempty"`
	CancelledAt    string             `json:"cancelled_at,omitempty"`
	ConfirmedAt    string             `json:"confirmed_at,omitempty"`
	CompletedAt    string             `json:"completed_at,omitempty"`
	AutoCompleted  bool               `json:"auto_completed,omitempty"`
	CreatedAt      string             `json:"created_at"`
}

type bookResponse struct {
	Appointment  appointmentItem   `json:"appointment"`
	LoyaltyNudge bool              `json:"loyalty_nudge,omitempty"`
	Series       []appointmentItem `json:"series,omitempty"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	req.Client.Name = strings.TrimSpace(req.Client.Name)
	req.Client.Email = strings.TrimSpace(req.Client.Email)
	req.Client.Phone = strings.TrimSpace(req.Client.Phone)

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time")
		return
	}

	ctx := r.Context()

	// Quick booking: no explicit services means one generic appointment of
	// the business's default duration.
	if len(req.Services) == 0 && req.BusinessID != "" {
		business, err := h.store.GetBusiness(ctx, req.BusinessID)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		req.Services = []model.ServiceRef{{
			ID:           "quick-booking",
			Name:         "Appointment",
			DurationMins: business.DefaultDurationMins,
		}}
	}

	var policy recurrence.Policy
	if req.Recurrence != nil {
		policy, err = parseRecurrence(*req.Recurrence)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	var tx pgx.Tx
	if h.idem != nil && idempotencyKey != "" {
		tx, err = h.idem.Begin(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db error")
			return
		}
		defer func() { _ = tx.Rollback(ctx) }()

		rec, exists, err := h.idem.Lock(ctx, tx, req.BusinessID, idempotencyKey)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to lock idempotency key")
			return
		}
		if exists && rec.Replayable() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.ResponsePayload)
			return
		}
	}

	res, err := h.engine.Create(ctx, lifecycle.CreateRequest{
		BusinessID: req.BusinessID,
		EmployeeID: req.EmployeeID,
		Client:     req.Client,
		Services:   req.Services,
		Start:      start,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	appt := res.Appointment
	var series []model.Appointment
	if req.Recurrence != nil {
		series, err = h.engine.MaterializeSeries(ctx, appt.ID, policy)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		if appt, err = h.store.GetAppointment(ctx, appt.ID); err != nil {
			h.writeDomainError(w, err)
			return
		}
	}

	resp := bookResponse{
		Appointment:  toAppointmentItem(appt),
		LoyaltyNudge: res.LoyaltyNudge,
	}
	for _, sibling := range series {
		resp.Series = append(resp.Series, toAppointmentItem(sibling))
	}
	body, err := json.Marshal(resp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build response")
		return
	}

	if tx != nil {
		if err := h.idem.Finalize(ctx, tx, req.BusinessID, idempotencyKey, appt.ID, http.StatusCreated, body); err != nil {
			h.logger.Error("idempotency finalize failed", "err", err, "appointment_id", appt.ID)
		} else if err := tx.Commit(ctx); err != nil {
			h.logger.Error("idempotency commit failed", "err", err, "appointment_id", appt.ID)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	employeeID := strings.TrimSpace(r.URL.Query().Get("employee_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if businessID == "" || dateStr == "" {
		writeError(w, http.StatusBadRequest, "business_id and date are required")
		return
	}
	day, err := model.ParseDate(dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}

	free, err := h.engine.FreeSlots(r.Context(), businessID, employeeID, day)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]slotItem, 0, len(free))
	for _, s := range free {
		items = append(items, slotItem{
			StartTime: s.Start.Format(time.RFC3339),
			EndTime:   s.End.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	businessID := strings.TrimSpace(q.Get("business_id"))
	employeeID := strings.TrimSpace(q.Get("employee_id"))
	if businessID == "" || employeeID == "" {
		writeError(w, http.StatusBadRequest, "business_id and employee_id are required")
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(q.Get("start_time")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time")
		return
	}

	var end time.Time
	if raw := strings.TrimSpace(q.Get("end_time")); raw != "" {
		if end, err = time.Parse(time.RFC3339, raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_time")
			return
		}
	} else {
		business, err := h.store.GetBusiness(r.Context(), businessID)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		end = start.Add(time.Duration(business.DefaultDurationMins) * time.Minute)
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "end_time must be after start_time")
		return
	}

	res, err := h.engine.CheckAvailability(r.Context(), businessID, employeeID, start.UTC(), end.UTC())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"available": res.Available,
		"reason":    res.Reason,
	})
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	businessID := strings.TrimSpace(r.Header.Get("X-Business-Id"))
	if businessID == "" {
		businessID = strings.TrimSpace(q.Get("business_id"))
	}
	if businessID == "" {
		writeError(w, http.StatusBadRequest, "business_id required")
		return
	}

	// Employee day view: runs the overdue sweep before listing so the
	// schedule reflects auto-completed appointments.
	employeeID := strings.TrimSpace(q.Get("employee_id"))
	if dateStr := strings.TrimSpace(q.Get("date")); dateStr != "" && employeeID != "" {
		day, err := model.ParseDate(dateStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
			return
		}
		appts, err := h.engine.Schedule(r.Context(), businessID, employeeID, day)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentItems(appts))
		return
	}

	now := h.engine.Now().UTC()
	from := model.DayOf(now)
	to := from.AddDate(0, 0, 7)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		parsed, err := model.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from, want YYYY-MM-DD")
			return
		}
		from = parsed
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		parsed, err := model.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to, want YYYY-MM-DD")
			return
		}
		to = parsed.AddDate(0, 0, 1)
	}

	limit := 100
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	if _, err := h.engine.AutoCompleteSweep(r.Context(), now); err != nil {
		h.logger.Warn("opportunistic sweep failed", "err", err)
	}

	appts, err := h.store.ListBusinessRange(r.Context(), businessID, from, to, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItems(appts))
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	CancelledBy   string `json:"cancelled_by,omitempty"`
	Justification string `json:"justification,omitempty"`
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, req transitionRequest) (model.Appointment, error) {
		return h.engine.Confirm(ctx, req.AppointmentID)
	})
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, req transitionRequest) (model.Appointment, error) {
		actor := model.Actor(strings.TrimSpace(req.CancelledBy))
		if actor != model.ActorClient && actor != model.ActorEmployee {
			return model.Appointment{}, &lifecycle.ValidationError{Field: "cancelled_by", Msg: "must be client or employee"}
		}
		return h.engine.Cancel(ctx, req.AppointmentID, actor, strings.TrimSpace(req.Justification))
	})
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, req transitionRequest) (model.Appointment, error) {
		return h.engine.Complete(ctx, req.AppointmentID)
	})
}

func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, transitionRequest) (model.Appointment, error)) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		writeError(w, http.StatusBadRequest, "appointment_id required")
		return
	}
	appt, err := fn(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

func (h *BookingHandler) writeDomainError(w http.ResponseWriter, err error) {
	var cutoff *lifecycle.CutoffError
	var validation *lifecycle.ValidationError
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &cutoff):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":             cutoff.Error(),
			"remaining_minutes": cutoff.RemainingMinutes,
		})
	case errors.Is(err, lifecycle.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &validation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseRecurrence(req recurrenceRequest) (recurrence.Policy, error) {
	p := recurrence.Policy{
		TotalCount: req.TotalCount,
		Cadence:    recurrence.Cadence(strings.TrimSpace(req.Cadence)),
	}
	if raw := strings.TrimSpace(strings.ToLower(req.Weekday)); raw != "" {
		day, ok := weekdayNames[raw]
		if !ok {
			return recurrence.Policy{}, errors.New("invalid weekday")
		}
		p.Weekday = &day
	}
	if err := p.Validate(); err != nil {
		return recurrence.Policy{}, err
	}
	return p, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func toAppointmentItems(appts []model.Appointment) []appointmentItem {
	items := make([]appointmentItem, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toAppointmentItem(appt))
	}
	return items
}

func toAppointmentItem(appt model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID:  appt.ID,
		BusinessID:     appt.BusinessID,
		EmployeeID:     appt.EmployeeID,
		Client:         appt.Client,
		Services:       appt.Services,
		StartTime:      appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:        appt.EndTime.UTC().Format(time.RFC3339),
		TotalPrice:     appt.TotalPrice.StringFixed(2),
		Status:         string(appt.Status),
		SeriesID:       appt.SeriesID,
		SeriesPosition: appt.SeriesPosition,
		SeriesTotal:    appt.SeriesTotal,
		CancelledBy:    string(appt.CancelledBy),
		CancelReason:   appt.CancelReason,
		AutoCompleted:  appt.AutoCompleted,
		CreatedAt:      appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	if appt.CancelledAt != nil {
		item.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	if appt.ConfirmedAt != nil {
		item.ConfirmedAt = appt.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	if appt.CompletedAt != nil {
		item.CompletedAt = appt.CompletedAt.UTC().Format(time.RFC3339)
	}
	return item
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
