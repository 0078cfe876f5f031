package bookings

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps appointments in process memory. A mutex stands in for
// the partial unique index.
type MemoryStore struct {
	mu        sync.Mutex
	confirmed map[int64]Appointment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{confirmed: make(map[int64]Appointment)}
}

func (s *MemoryStore) InsertConfirmed(ctx context.Context, appt *Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := appt.ScheduledAt.UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.confirmed[key]; taken {
		return ErrSlotTaken
	}
	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	if appt.UpdatedAt.IsZero() {
		appt.UpdatedAt = now
	}
	s.confirmed[key] = *appt
	return nil
}

// ListConfirmed returns confirmed appointments ordered by slot.
func (s *MemoryStore) ListConfirmed(ctx context.Context) ([]Appointment, error) {
	s.mu.Lock()
	out := make([]Appointment, 0, len(s.confirmed))
	for _, appt := range s.confirmed {
		out = append(out, appt)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}
