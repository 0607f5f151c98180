package storage

import (
	"context"

	"github.com/agendly/agendly/libs/db"
)

// Notification is one delivery attempt, kept for auditing and debugging.
type Notification struct {
	EventID   string
	EventType string
	Channel   string
	Recipient string
	Subject   string
	Body      string
	Status    string
	Error     string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (event_id, event_type, channel, recipient, subject, body, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
	`, n.EventID, n.EventType, n.Channel, n.Recipient, n.Subject, n.Body, n.Status, n.Error)
	return err
}
