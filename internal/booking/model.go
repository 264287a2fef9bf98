// Package booking owns session records and the race-safe slot reservation
// protocol. Therapy and assessment sessions live in two physical tables but
// form one logical conflict domain: no two active sessions of any kind may
// share a provider, date, and time.
package booking

import (
	"time"

	"github.com/google/uuid"
)

// Kind selects which session table a booking lives in.
type Kind string

const (
	KindTherapy    Kind = "therapy"
	KindAssessment Kind = "assessment"
)

// Valid reports whether the kind is one of the known session kinds.
func (k Kind) Valid() bool {
	return k == KindTherapy || k == KindAssessment
}

// table maps the kind to its physical table. Kinds are validated before this
// is ever interpolated into SQL.
func (k Kind) table() string {
	if k == KindAssessment {
		return "assessment_sessions"
	}
	return "therapy_sessions"
}

// Status of a session. Every status except cancelled keeps the slot occupied:
// completion and no-shows are bookkeeping, not capacity.
type Status string

const (
	StatusBooked      Status = "booked"
	StatusRescheduled Status = "rescheduled"
	StatusConfirmed   Status = "confirmed"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
)

// Session is one booked slot.
type Session struct {
	ID           uuid.UUID `json:"id"`
	ProviderID   string    `json:"provider_id"`
	ClientID     string    `json:"client_id"`
	Date         string    `json:"date"`
	StartTime    string    `json:"start_time"`
	Status       Status    `json:"status"`
	Kind         Kind      `json:"kind"`
	ReminderSent bool      `json:"reminder_sent"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
