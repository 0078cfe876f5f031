package bookings

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// SlotIndexName is the partial unique index guarding confirmed slots.
const SlotIndexName = "appointments_confirmed_slot_key"

// Appointment is a booked slot on the clinic calendar.
type Appointment struct {
	ID              uuid.UUID  `json:"id"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	Status          Status     `json:"status"`
	DurationMinutes int        `json:"duration_minutes"`
	Notes           string     `json:"notes,omitempty"`
	SessionID       string     `json:"session_id,omitempty"`
	PatientID       string     `json:"patient_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
}

// CommitRequest asks the service to confirm a single slot.
type CommitRequest struct {
	ScheduledAt     time.Time
	SessionID       string
	PatientID       string
	DurationMinutes int
	Notes           string
}
