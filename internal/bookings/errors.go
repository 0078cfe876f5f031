package bookings

import "errors"

var (
	// ErrInvalidSchedule is returned when a commit is requested for a zero or
	// non-future timestamp.
	ErrInvalidSchedule = errors.New("bookings: scheduled_at must be in the future")
	// ErrSlotTaken is returned when another confirmed appointment already
	// occupies the exact timestamp.
	ErrSlotTaken = errors.New("bookings: slot already confirmed")
)
