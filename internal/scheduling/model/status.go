package model

import "strings"

// Status is the closed set of appointment lifecycle states. The persisted
// value is always one of these constants; legacy spellings from imported
// data are folded in by NormalizeStatus at the loading boundary.
type Status string

const (
	// StatusInReview precedes pending in some intake flows. It behaves
	// exactly like pending for conflicts and transitions.
	StatusInReview  Status = "in_review"
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
	StatusRealized  Status = "realized"
)

func (s Status) Valid() bool {
	switch s {
	case StatusInReview, StatusPending, StatusScheduled, StatusCancelled, StatusRealized:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusRealized
}

// AwaitingConfirmation reports whether the appointment still needs the
// employee to confirm it.
func (s Status) AwaitingConfirmation() bool {
	return s == StatusPending || s == StatusInReview
}

// Occupies reports whether the appointment blocks its time interval for
// conflict purposes. Everything but a cancellation holds the slot.
func (s Status) Occupies() bool {
	return s != StatusCancelled
}

var legacyStatuses = map[string]Status{
	"em_analise": StatusInReview,
	"in-review":  StatusInReview,
	"pendente":   StatusPending,
	"agendado":   StatusScheduled,
	"confirmado": StatusScheduled,
	"confirmed":  StatusScheduled,
	"booked":     StatusScheduled,
	"cancelado":  StatusCancelled,
	"canceled":   StatusCancelled,
	"realizado":  StatusRealized,
	"completed":  StatusRealized,
}

// NormalizeStatus maps a raw persisted status string, including legacy
// synonyms, onto the closed Status set. It returns false for unknown values.
func NormalizeStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if s.Valid() {
		return s, true
	}
	if mapped, ok := legacyStatuses[string(s)]; ok {
		return mapped, true
	}
	return "", false
}
