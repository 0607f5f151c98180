// Package storage persists the scheduling domain: Postgres-backed stores for
// production and an in-memory store for tests. Appointments live in a single
// table; legacy status spellings are normalized on read so the rest of the
// code only ever sees the closed status set.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/agendly/agendly/internal/scheduling/lifecycle"
	"github.com/agendly/agendly/internal/scheduling/model"
	"github.com/agendly/agendly/libs/db"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

// PostgresStore implements lifecycle.Store on top of pgx.
type PostgresStore struct {
	pool *db.Pool
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const appointmentColumns = `
	id::text, business_id::text, employee_id::text,
	client_name, client_email, client_phone,
	services, start_time, end_time, total_price::text, status,
	COALESCE(series_id, ''), COALESCE(series_position, 0), COALESCE(series_total, 0),
	COALESCE(cancelled_by, ''), COALESCE(cancel_reason, ''), cancelled_at,
	created_at, confirmed_at, completed_at, auto_completed`

func (s *PostgresStore) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, lifecycle.ErrNotFound
	}
	return appt, err
}

func (s *PostgresStore) ListEmployeeDay(ctx context.Context, businessID, employeeID string, day time.Time) ([]model.Appointment, error) {
	day = model.DayOf(day)
	return s.listAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
			AND employee_id = $2
			AND start_time >= $3
			AND start_time < $4
		ORDER BY start_time ASC
	`, businessID, employeeID, day, day.AddDate(0, 0, 1))
}

// CreateAppointment inserts after an atomic re-check of the employee's day.
// A per-(employee, day) advisory lock serializes concurrent bookings so the
// overlap query and the insert see the same state; the table's exclusion
// constraint backstops anything the lock misses (e.g. a row spanning
// midnight).
func (s *PostgresStore) CreateAppointment(ctx context.Context, appt model.Appointment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	lockKey := appt.EmployeeID + ":" + model.FormatDate(appt.StartTime)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return err
	}

	var taken bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE employee_id = $1
				AND status IN ('in_review', 'pending', 'scheduled')
				AND start_time < $3
				AND end_time > $2
		)
	`, appt.EmployeeID, appt.StartTime, appt.EndTime).Scan(&taken)
	if err != nil {
		return err
	}
	if taken {
		return lifecycle.ErrSlotUnavailable
	}

	if err := insertAppointment(ctx, tx, appt); err != nil {
		if isPgCode(err, pgExclusionViolation) || isPgCode(err, pgUniqueViolation) {
			return lifecycle.ErrSlotUnavailable
		}
		return err
	}
	return tx.Commit(ctx)
}

// CreateSeries restamps the first appointment with its series fields and
// inserts the sibling occurrences in one transaction. A sibling landing on an
// occupied interval trips the exclusion constraint and fails the whole series
// with ErrSlotUnavailable, leaving nothing persisted.
func (s *PostgresStore) CreateSeries(ctx context.Context, first model.Appointment, siblings []model.Appointment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET series_id = NULLIF($2, ''),
			series_position = NULLIF($3, 0),
			series_total = NULLIF($4, 0)
		WHERE id = $1
	`, first.ID, first.SeriesID, first.SeriesPosition, first.SeriesTotal)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return lifecycle.ErrNotFound
	}

	for _, sibling := range siblings {
		if err := insertAppointment(ctx, tx, sibling); err != nil {
			if isPgCode(err, pgExclusionViolation) || isPgCode(err, pgUniqueViolation) {
				return fmt.Errorf("%w: occurrence %d", lifecycle.ErrSlotUnavailable, sibling.SeriesPosition)
			}
			return err
		}
	}
	return tx.Commit(ctx)
}

func insertAppointment(ctx context.Context, tx pgx.Tx, appt model.Appointment) error {
	services, err := json.Marshal(appt.Services)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO appointments
			(id, business_id, employee_id,
			client_name, client_email, client_phone,
			services, start_time, end_time, total_price, status,
			series_id, series_position, series_total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			NULLIF($12, ''), NULLIF($13, 0), NULLIF($14, 0), $15)
	`, appt.ID, appt.BusinessID, appt.EmployeeID,
		appt.Client.Name, appt.Client.Email, appt.Client.Phone,
		services, appt.StartTime, appt.EndTime, appt.TotalPrice.String(), string(appt.Status),
		appt.SeriesID, appt.SeriesPosition, appt.SeriesTotal, appt.CreatedAt)
	return err
}

func (s *PostgresStore) UpdateAppointment(ctx context.Context, appt model.Appointment) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			series_id = NULLIF($3, ''),
			series_position = NULLIF($4, 0),
			series_total = NULLIF($5, 0),
			cancelled_by = NULLIF($6, ''),
			cancel_reason = NULLIF($7, ''),
			cancelled_at = $8,
			confirmed_at = $9,
			completed_at = $10,
			auto_completed = $11
		WHERE id = $1
	`, appt.ID, string(appt.Status),
		appt.SeriesID, appt.SeriesPosition, appt.SeriesTotal,
		string(appt.CancelledBy), appt.CancelReason, appt.CancelledAt,
		appt.ConfirmedAt, appt.CompletedAt, appt.AutoCompleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return lifecycle.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListSeries(ctx context.Context, seriesID string) ([]model.Appointment, error) {
	return s.listAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE series_id = $1
		ORDER BY series_position ASC
	`, seriesID)
}

func (s *PostgresStore) ListOverdueScheduled(ctx context.Context, cutoff time.Time) ([]model.Appointment, error) {
	return s.listAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
			AND start_time < $1
		ORDER BY start_time ASC
	`, cutoff)
}

func (s *PostgresStore) ClientRealizedStats(ctx context.Context, businessID, clientEmail string) (int, time.Time, error) {
	var count int
	var last *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), MAX(start_time)
		FROM appointments
		WHERE business_id = $1
			AND client_email = $2
			AND status = 'realized'
	`, businessID, clientEmail).Scan(&count, &last)
	if err != nil {
		return 0, time.Time{}, err
	}
	if last == nil {
		return count, time.Time{}, nil
	}
	return count, last.UTC(), nil
}

// ListBusinessRange is the tenant listing: every appointment of the business
// starting inside [from, to), newest first.
func (s *PostgresStore) ListBusinessRange(ctx context.Context, businessID string, from, to time.Time, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.listAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
			AND start_time >= $2
			AND start_time < $3
		ORDER BY start_time DESC
		LIMIT $4
	`, businessID, from, to, limit)
}

func (s *PostgresStore) listAppointments(ctx context.Context, query string, args ...any) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var services []byte
	var price, status, cancelledBy string
	err := row.Scan(
		&appt.ID,
		&appt.BusinessID,
		&appt.EmployeeID,
		&appt.Client.Name,
		&appt.Client.Email,
		&appt.Client.Phone,
		&services,
		&appt.StartTime,
		&appt.EndTime,
		&price,
		&status,
		&appt.SeriesID,
		&appt.SeriesPosition,
		&appt.SeriesTotal,
		&cancelledBy,
		&appt.CancelReason,
		&appt.CancelledAt,
		&appt.CreatedAt,
		&appt.ConfirmedAt,
		&appt.CompletedAt,
		&appt.AutoCompleted,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	if len(services) > 0 {
		if err := json.Unmarshal(services, &appt.Services); err != nil {
			return model.Appointment{}, fmt.Errorf("decode services: %w", err)
		}
	}
	appt.TotalPrice, err = decimal.NewFromString(price)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("decode total price: %w", err)
	}
	normalized, ok := model.NormalizeStatus(status)
	if !ok {
		return model.Appointment{}, fmt.Errorf("unknown appointment status %q", status)
	}
	appt.Status = normalized
	appt.CancelledBy = model.Actor(cancelledBy)
	appt.StartTime = appt.StartTime.UTC()
	appt.EndTime = appt.EndTime.UTC()
	return appt, nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
