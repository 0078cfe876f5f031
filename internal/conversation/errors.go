package conversation

import (
	"errors"
	"time"

	"github.com/wolfman30/dentbot/internal/bookings"
)

var (
	ErrInvalidMessage  = errors.New("conversation: message must be non-empty text")
	ErrInvalidSession  = errors.New("conversation: invalid session id")
	ErrInvalidStrategy = errors.New("conversation: unknown extraction strategy")
	ErrInvalidTurn     = errors.New("conversation: invalid turn")
)

// ConflictError reports that the slot was confirmed by someone else first.
// The assistant turn carrying Reply has already been appended.
type ConflictError struct {
	ScheduledAt time.Time
	Reply       string
}

func (e *ConflictError) Error() string {
	return "conversation: slot " + e.ScheduledAt.Format(time.RFC3339) + " already confirmed"
}

func (e *ConflictError) Is(target error) bool {
	return target == bookings.ErrSlotTaken
}
