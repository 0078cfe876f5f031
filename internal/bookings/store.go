package bookings

import "context"

// Store persists confirmed appointments. InsertConfirmed must be a single
// atomic write that returns ErrSlotTaken when the slot index rejects it.
type Store interface {
	InsertConfirmed(ctx context.Context, appt *Appointment) error
}
