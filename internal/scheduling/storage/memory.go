package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agendly/agendly/internal/scheduling/conflict"
	"github.com/agendly/agendly/internal/scheduling/lifecycle"
	"github.com/agendly/agendly/internal/scheduling/model"
)

// MemoryStore is an in-process lifecycle.Store used by tests. It applies the
// same overlap rule as the Postgres store under a single mutex, so the atomic
// check-and-insert semantics hold.
type MemoryStore struct {
	mu           sync.Mutex
	businesses   map[string]model.Business
	employees    map[string]model.Employee
	appointments map[string]model.Appointment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses:   make(map[string]model.Business),
		employees:    make(map[string]model.Employee),
		appointments: make(map[string]model.Appointment),
	}
}

func (s *MemoryStore) GetBusiness(_ context.Context, id string) (model.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return model.Business{}, lifecycle.ErrNotFound
	}
	return b, nil
}

func (s *MemoryStore) CreateBusiness(_ context.Context, b model.Business) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[b.ID] = b
	return nil
}

func (s *MemoryStore) UpdateBusiness(_ context.Context, b model.Business) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.businesses[b.ID]; !ok {
		return lifecycle.ErrNotFound
	}
	s.businesses[b.ID] = b
	return nil
}

func (s *MemoryStore) GetEmployee(_ context.Context, businessID, employeeID string) (model.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.employees[employeeID]
	if !ok || e.BusinessID != businessID {
		return model.Employee{}, lifecycle.ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) CreateEmployee(_ context.Context, e model.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.ID] = e
	return nil
}

func (s *MemoryStore) UpdateEmployeeSchedule(_ context.Context, e model.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.employees[e.ID]
	if !ok || cur.BusinessID != e.BusinessID {
		return lifecycle.ErrNotFound
	}
	s.employees[e.ID] = e
	return nil
}

func (s *MemoryStore) ListEmployees(_ context.Context, businessID string) ([]model.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Employee
	for _, e := range s.employees {
		if e.BusinessID == businessID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[id]
	if !ok {
		return model.Appointment{}, lifecycle.ErrNotFound
	}
	return appt, nil
}

func (s *MemoryStore) ListEmployeeDay(_ context.Context, businessID, employeeID string, day time.Time) ([]model.Appointment, error) {
	day = model.DayOf(day)
	next := day.AddDate(0, 0, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, appt := range s.appointments {
		if appt.BusinessID == businessID && appt.EmployeeID == employeeID &&
			!appt.StartTime.Before(day) && appt.StartTime.Before(next) {
			out = append(out, appt)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *MemoryStore) CreateAppointment(_ context.Context, appt model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.appointments {
		if other.EmployeeID != appt.EmployeeID || !other.Status.Occupies() {
			continue
		}
		if conflict.Overlaps(appt.StartTime, appt.EndTime, other.StartTime, other.EndTime) {
			return lifecycle.ErrSlotUnavailable
		}
	}
	s.appointments[appt.ID] = appt
	return nil
}

func (s *MemoryStore) CreateSeries(_ context.Context, first model.Appointment, siblings []model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appointments[first.ID]; !ok {
		return lifecycle.ErrNotFound
	}
	// All occurrences are validated before anything is written, so a
	// conflicting future date leaves the store untouched.
	for _, sibling := range siblings {
		for _, other := range s.appointments {
			if other.EmployeeID != sibling.EmployeeID || !other.Status.Occupies() {
				continue
			}
			if conflict.Overlaps(sibling.StartTime, sibling.EndTime, other.StartTime, other.EndTime) {
				return fmt.Errorf("%w: occurrence %d", lifecycle.ErrSlotUnavailable, sibling.SeriesPosition)
			}
		}
	}
	s.appointments[first.ID] = first
	for _, sibling := range siblings {
		s.appointments[sibling.ID] = sibling
	}
	return nil
}

// Put stores an appointment unconditionally; test fixtures use it to seed
// historical rows without tripping the overlap check.
func (s *MemoryStore) Put(_ context.Context, appt model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments[appt.ID] = appt
	return nil
}

func (s *MemoryStore) UpdateAppointment(_ context.Context, appt model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appointments[appt.ID]; !ok {
		return lifecycle.ErrNotFound
	}
	s.appointments[appt.ID] = appt
	return nil
}

func (s *MemoryStore) ListSeries(_ context.Context, seriesID string) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, appt := range s.appointments {
		if appt.SeriesID == seriesID {
			out = append(out, appt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeriesPosition < out[j].SeriesPosition })
	return out, nil
}

func (s *MemoryStore) ListOverdueScheduled(_ context.Context, cutoff time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, appt := range s.appointments {
		if appt.Status == model.StatusScheduled && appt.StartTime.Before(cutoff) {
			out = append(out, appt)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *MemoryStore) ClientRealizedStats(_ context.Context, businessID, clientEmail string) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int
	var last time.Time
	for _, appt := range s.appointments {
		if appt.BusinessID == businessID && appt.Client.Email == clientEmail &&
			appt.Status == model.StatusRealized {
			count++
			if appt.StartTime.After(last) {
				last = appt.StartTime
			}
		}
	}
	return count, last, nil
}

func (s *MemoryStore) ListBusinessRange(_ context.Context, businessID string, from, to time.Time, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, appt := range s.appointments {
		if appt.BusinessID == businessID && !appt.StartTime.Before(from) && appt.StartTime.Before(to) {
			out = append(out, appt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortByStart(appts []model.Appointment) {
	sort.Slice(appts, func(i, j int) bool { return appts[i].StartTime.Before(appts[j].StartTime) })
}
