package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agendly/agendly/internal/scheduling/lifecycle"
	"github.com/agendly/agendly/internal/scheduling/model"
)

// Directory operations: businesses and their employees. These share the
// PostgresStore so the booking path and the admin surface read the same pool.

func (s *PostgresStore) GetBusiness(ctx context.Context, id string) (model.Business, error) {
	var b model.Business
	var workingDays []int32
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, name, open_time, close_time, working_days,
			default_duration_mins, slot_spacing_mins, created_at
		FROM businesses
		WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.OpenTime, &b.CloseTime, &workingDays,
		&b.DefaultDurationMins, &b.SlotSpacingMins, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Business{}, lifecycle.ErrNotFound
	}
	if err != nil {
		return model.Business{}, err
	}
	b.WorkingDays = make([]time.Weekday, len(workingDays))
	for i, d := range workingDays {
		b.WorkingDays[i] = time.Weekday(d)
	}
	return b, nil
}

func (s *PostgresStore) CreateBusiness(ctx context.Context, b model.Business) error {
	days := make([]int32, len(b.WorkingDays))
	for i, d := range b.WorkingDays {
		days[i] = int32(d)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO businesses
			(id, name, open_time, close_time, working_days,
			default_duration_mins, slot_spacing_mins, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, b.ID, b.Name, b.OpenTime, b.CloseTime, days,
		b.DefaultDurationMins, b.SlotSpacingMins, b.CreatedAt)
	return err
}

// UpdateBusiness replaces the operating window, working days and slot sizing.
func (s *PostgresStore) UpdateBusiness(ctx context.Context, b model.Business) error {
	days := make([]int32, len(b.WorkingDays))
	for i, d := range b.WorkingDays {
		days[i] = int32(d)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE businesses
		SET name = $2,
			open_time = $3,
			close_time = $4,
			working_days = $5,
			default_duration_mins = $6,
			slot_spacing_mins = $7
		WHERE id = $1
	`, b.ID, b.Name, b.OpenTime, b.CloseTime, days, b.DefaultDurationMins, b.SlotSpacingMins)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return lifecycle.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetEmployee(ctx context.Context, businessID, employeeID string) (model.Employee, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name,
			COALESCE(work_start, ''), COALESCE(work_end, ''), breaks, active, created_at
		FROM employees
		WHERE id = $1 AND business_id = $2
	`, employeeID, businessID)
	e, err := scanEmployee(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Employee{}, lifecycle.ErrNotFound
	}
	return e, err
}

func (s *PostgresStore) CreateEmployee(ctx context.Context, e model.Employee) error {
	breaks, err := json.Marshal(e.Breaks)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO employees
			(id, business_id, name, work_start, work_end, breaks, active, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)
	`, e.ID, e.BusinessID, e.Name, e.WorkStart, e.WorkEnd, breaks, e.Active, e.CreatedAt)
	return err
}

// UpdateEmployeeSchedule replaces the working-hours override and breaks.
func (s *PostgresStore) UpdateEmployeeSchedule(ctx context.Context, e model.Employee) error {
	breaks, err := json.Marshal(e.Breaks)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE employees
		SET work_start = NULLIF($3, ''),
			work_end = NULLIF($4, ''),
			breaks = $5,
			active = $6
		WHERE id = $1 AND business_id = $2
	`, e.ID, e.BusinessID, e.WorkStart, e.WorkEnd, breaks, e.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return lifecycle.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListEmployees(ctx context.Context, businessID string) ([]model.Employee, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, business_id::text, name,
			COALESCE(work_start, ''), COALESCE(work_end, ''), breaks, active, created_at
		FROM employees
		WHERE business_id = $1
		ORDER BY name ASC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []model.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return employees, nil
}

func scanEmployee(row pgx.Row) (model.Employee, error) {
	var e model.Employee
	var breaks []byte
	err := row.Scan(&e.ID, &e.BusinessID, &e.Name, &e.WorkStart, &e.WorkEnd,
		&breaks, &e.Active, &e.CreatedAt)
	if err != nil {
		return model.Employee{}, err
	}
	if len(breaks) > 0 {
		if err := json.Unmarshal(breaks, &e.Breaks); err != nil {
			return model.Employee{}, err
		}
	}
	return e, nil
}
