package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Actor identifies who performed a lifecycle action.
type Actor string

const (
	ActorClient   Actor = "client"
	ActorEmployee Actor = "employee"
)

// Client is the booking party. Email doubles as the client identity for
// loyalty tracking; either contact field may be empty but not both.
type Client struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// ServiceRef is an ordered reference to a service included in an appointment.
// Duration and price are captured at booking time so later catalog edits do
// not rewrite history.
type ServiceRef struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	DurationMins int             `json:"duration_minutes"`
	Price        decimal.Decimal `json:"price"`
}

// Appointment occupies [StartTime, EndTime) for its (business, employee) pair
// unless cancelled. Both instants are UTC.
type Appointment struct {
	ID         string
	BusinessID string
	EmployeeID string
	Client     Client
	Services   []ServiceRef
	StartTime  time.Time
	EndTime    time.Time
	TotalPrice decimal.Decimal
	Status     Status

	// Recurrence linkage; zero values when the appointment is standalone.
	SeriesID       string
	SeriesPosition int
	SeriesTotal    int

	CancelledBy  Actor
	CancelReason string
	CancelledAt  *time.Time

	CreatedAt     time.Time
	ConfirmedAt   *time.Time
	CompletedAt   *time.Time
	AutoCompleted bool
}

func (a Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

// Day returns the appointment's calendar day (midnight UTC).
func (a Appointment) Day() time.Time {
	return DayOf(a.StartTime)
}

// SumServices computes the derived duration and total price of a service
// selection.
func SumServices(services []ServiceRef) (time.Duration, decimal.Decimal) {
	var mins int
	total := decimal.Zero
	for _, s := range services {
		mins += s.DurationMins
		total = total.Add(s.Price)
	}
	return time.Duration(mins) * time.Minute, total
}
