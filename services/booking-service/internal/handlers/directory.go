package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agendly/agendly/internal/scheduling/model"
)

// DirectoryHandler manages the tenant directory: businesses and employees.

type DirectoryHandler struct {
	store Store
}

func NewDirectoryHandler(store Store) *DirectoryHandler {
	return &DirectoryHandler{store: store}
}

type createBusinessRequest struct {
	Name                string   `json:"name"`
	OpenTime            string   `json:"open_time"`
	CloseTime           string   `json:"close_time"`
	WorkingDays         []string `json:"working_days"`
	DefaultDurationMins int      `json:"default_duration_minutes"`
	SlotSpacingMins     int      `json:"slot_spacing_minutes"`
}

type businessItem struct {
	BusinessID          string   `json:"business_id"`
	Name                string   `json:"name"`
	OpenTime            string   `json:"open_time"`
	CloseTime           string   `json:"close_time"`
	WorkingDays         []string `json:"working_days"`
	DefaultDurationMins int      `json:"default_duration_minutes"`
	SlotSpacingMins     int      `json:"slot_spacing_minutes"`
}

func (h *DirectoryHandler) Businesses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getBusiness(w, r)
	case http.MethodPost:
		h.createBusiness(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *DirectoryHandler) getBusiness(w http.ResponseWriter, r *http.Request) {
	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		writeError(w, http.StatusBadRequest, "business_id required")
		return
	}
	b, err := h.store.GetBusiness(r.Context(), businessID)
	if err != nil {
		writeError(w, http.StatusNotFound, "business not found")
		return
	}
	writeJSON(w, http.StatusOK, toBusinessItem(b))
}

func (h *DirectoryHandler) createBusiness(w http.ResponseWriter, r *http.Request) {
	var req createBusinessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}

	b := model.Business{
		ID:                  uuid.NewString(),
		Name:                req.Name,
		OpenTime:            strings.TrimSpace(req.OpenTime),
		CloseTime:           strings.TrimSpace(req.CloseTime),
		DefaultDurationMins: req.DefaultDurationMins,
		SlotSpacingMins:     req.SlotSpacingMins,
		CreatedAt:           time.Now().UTC(),
	}
	// Sensible defaults: Monday to Friday, nine to five, 30-minute visits.
	if b.OpenTime == "" {
		b.OpenTime = "09:00"
	}
	if b.CloseTime == "" {
		b.CloseTime = "17:00"
	}
	if b.DefaultDurationMins == 0 {
		b.DefaultDurationMins = 30
	}
	if len(req.WorkingDays) == 0 {
		b.WorkingDays = []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		}
	} else {
		for _, name := range req.WorkingDays {
			day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				writeError(w, http.StatusUnprocessableEntity, "invalid weekday "+name)
				return
			}
			b.WorkingDays = append(b.WorkingDays, day)
		}
	}
	if err := b.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.store.CreateBusiness(r.Context(), b); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create business")
		return
	}
	writeJSON(w, http.StatusCreated, toBusinessItem(b))
}

type updateHoursRequest struct {
	BusinessID          string   `json:"business_id"`
	OpenTime            string   `json:"open_time,omitempty"`
	CloseTime           string   `json:"close_time,omitempty"`
	WorkingDays         []string `json:"working_days,omitempty"`
	DefaultDurationMins int      `json:"default_duration_minutes,omitempty"`
	SlotSpacingMins     *int     `json:"slot_spacing_minutes,omitempty"`
}

// UpdateHours changes a business's operating window, working days and slot
// sizing. Omitted fields keep their current value.
func (h *DirectoryHandler) UpdateHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req updateHoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	if req.BusinessID == "" {
		writeError(w, http.StatusBadRequest, "business_id required")
		return
	}

	b, err := h.store.GetBusiness(r.Context(), req.BusinessID)
	if err != nil {
		writeError(w, http.StatusNotFound, "business not found")
		return
	}
	if raw := strings.TrimSpace(req.OpenTime); raw != "" {
		b.OpenTime = raw
	}
	if raw := strings.TrimSpace(req.CloseTime); raw != "" {
		b.CloseTime = raw
	}
	if len(req.WorkingDays) > 0 {
		days := make([]time.Weekday, 0, len(req.WorkingDays))
		for _, name := range req.WorkingDays {
			day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				writeError(w, http.StatusUnprocessableEntity, "invalid weekday "+name)
				return
			}
			days = append(days, day)
		}
		b.WorkingDays = days
	}
	if req.DefaultDurationMins > 0 {
		b.DefaultDurationMins = req.DefaultDurationMins
	}
	if req.SlotSpacingMins != nil {
		b.SlotSpacingMins = *req.SlotSpacingMins
	}
	if err := b.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.store.UpdateBusiness(r.Context(), b); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update business")
		return
	}
	writeJSON(w, http.StatusOK, toBusinessItem(b))
}

type employeeRequest struct {
	EmployeeID string                `json:"employee_id,omitempty"`
	BusinessID string                `json:"business_id"`
	Name       string                `json:"name"`
	WorkStart  string                `json:"work_start,omitempty"`
	WorkEnd    string                `json:"work_end,omitempty"`
	Breaks     []model.BreakInterval `json:"breaks,omitempty"`
	Active     *bool                 `json:"active,omitempty"`
}

type employeeItem struct {
	EmployeeID string                `json:"employee_id"`
	BusinessID string                `json:"business_id"`
	Name       string                `json:"name"`
	WorkStart  string                `json:"work_start,omitempty"`
	WorkEnd    string                `json:"work_end,omitempty"`
	Breaks     []model.BreakInterval `json:"breaks,omitempty"`
	Active     bool                  `json:"active"`
}

func (h *DirectoryHandler) Employees(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listEmployees(w, r)
	case http.MethodPost:
		h.createEmployee(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *DirectoryHandler) listEmployees(w http.ResponseWriter, r *http.Request) {
	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		writeError(w, http.StatusBadRequest, "business_id required")
		return
	}
	employees, err := h.store.ListEmployees(r.Context(), businessID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list employees")
		return
	}
	items := make([]employeeItem, 0, len(employees))
	for _, e := range employees {
		items = append(items, toEmployeeItem(e))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *DirectoryHandler) createEmployee(w http.ResponseWriter, r *http.Request) {
	var req employeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.Name = strings.TrimSpace(req.Name)
	if req.BusinessID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "business_id and name required")
		return
	}

	business, err := h.store.GetBusiness(r.Context(), req.BusinessID)
	if err != nil {
		writeError(w, http.StatusNotFound, "business not found")
		return
	}

	e := model.Employee{
		ID:         uuid.NewString(),
		BusinessID: req.BusinessID,
		Name:       req.Name,
		WorkStart:  strings.TrimSpace(req.WorkStart),
		WorkEnd:    strings.TrimSpace(req.WorkEnd),
		Breaks:     req.Breaks,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.ValidateSchedule(business); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.store.CreateEmployee(r.Context(), e); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create employee")
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeItem(e))
}

// UpdateSchedule replaces an employee's working-hours override and breaks.
func (h *DirectoryHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req employeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	if req.BusinessID == "" || req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "business_id and employee_id required")
		return
	}

	business, err := h.store.GetBusiness(r.Context(), req.BusinessID)
	if err != nil {
		writeError(w, http.StatusNotFound, "business not found")
		return
	}
	e, err := h.store.GetEmployee(r.Context(), req.BusinessID, req.EmployeeID)
	if err != nil {
		writeError(w, http.StatusNotFound, "employee not found")
		return
	}

	e.WorkStart = strings.TrimSpace(req.WorkStart)
	e.WorkEnd = strings.TrimSpace(req.WorkEnd)
	e.Breaks = req.Breaks
	if req.Active != nil {
		e.Active = *req.Active
	}
	if err := e.ValidateSchedule(business); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.store.UpdateEmployeeSchedule(r.Context(), e); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update schedule")
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeItem(e))
}

func toBusinessItem(b model.Business) businessItem {
	days := make([]string, 0, len(b.WorkingDays))
	for _, d := range b.WorkingDays {
		days = append(days, strings.ToLower(d.String()))
	}
	return businessItem{
		BusinessID:          b.ID,
		Name:                b.Name,
		OpenTime:            b.OpenTime,
		CloseTime:           b.CloseTime,
		WorkingDays:         days,
		DefaultDurationMins: b.DefaultDurationMins,
		SlotSpacingMins:     b.SlotSpacingMins,
	}
}

func toEmployeeItem(e model.Employee) employeeItem {
	return employeeItem{
		EmployeeID: e.ID,
		BusinessID: e.BusinessID,
		Name:       e.Name,
		WorkStart:  e.WorkStart,
		WorkEnd:    e.WorkEnd,
		Breaks:     e.Breaks,
		Active:     e.Active,
	}
}
