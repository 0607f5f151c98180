// Package storage holds booking-service persistence that is not part of the
// shared scheduling store: the idempotency key table backing safe booking
// retries.
package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/agendly/agendly/libs/db"
)

type IdempotencyRecord struct {
	BusinessID      string
	IdempotencyKey  string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

// Replayable reports whether the record holds a finished response that can be
// served without re-executing the booking.
func (r IdempotencyRecord) Replayable() bool {
	return r.StatusCode > 0 && len(r.ResponsePayload) > 0
}

type IdempotencyRepository struct {
	pool *db.Pool
}

func NewIdempotencyRepository(pool *db.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

func (r *IdempotencyRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// Lock claims the (business, key) pair under FOR UPDATE so concurrent
// requests with the same key serialize on the row. The bool reports whether
// the key existed before this call.
func (r *IdempotencyRepository) Lock(ctx context.Context, tx pgx.Tx, businessID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectForUpdate(ctx, tx, businessID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (business_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (business_id, idempotency_key) DO NOTHING
	`, businessID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectForUpdate(ctx, tx, businessID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

// Finalize stores the response to replay on subsequent requests with the key.
func (r *IdempotencyRepository) Finalize(ctx context.Context, tx pgx.Tx, businessID, key, appointmentID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = NULLIF($3, '')::uuid,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE business_id = $1 AND idempotency_key = $2
	`, businessID, key, appointmentID, statusCode, response)
	return err
}

func (r *IdempotencyRepository) selectForUpdate(ctx context.Context, tx pgx.Tx, businessID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT business_id::text,
			idempotency_key,
			COALESCE(appointment_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE business_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, businessID, key).Scan(
		&rec.BusinessID,
		&rec.IdempotencyKey,
		&rec.AppointmentID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
