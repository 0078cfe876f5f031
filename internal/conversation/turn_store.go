package conversation

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"
)

// TurnStore persists session transcripts. Append writes all given turns or
// none of them, in order.
type TurnStore interface {
	Append(ctx context.Context, sessionID string, turns ...Turn) error
	ReadRecent(ctx context.Context, sessionID string, n int) ([]Turn, error)
	ReadAll(ctx context.Context, sessionID string) ([]Turn, error)
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// ValidSessionID reports whether id is usable as a store key.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func prepareTurns(sessionID string, turns []Turn) ([]Turn, error) {
	if !ValidSessionID(sessionID) {
		return nil, ErrInvalidSession
	}
	out := make([]Turn, len(turns))
	now := time.Now().UTC()
	for i, turn := range turns {
		if !validRole(turn.Role) {
			return nil, fmt.Errorf("%w: role %q", ErrInvalidTurn, turn.Role)
		}
		if turn.Timestamp.IsZero() {
			turn.Timestamp = now
		}
		out[i] = turn
	}
	return out, nil
}

// MemoryTurnStore keeps transcripts in process memory.
type MemoryTurnStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
}

func NewMemoryTurnStore() *MemoryTurnStore {
	return &MemoryTurnStore{sessions: make(map[string][]Turn)}
}

func (s *MemoryTurnStore) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepared, err := prepareTurns(sessionID, turns)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[sessionID] = append(s.sessions[sessionID], prepared...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryTurnStore) ReadRecent(ctx context.Context, sessionID string, n int) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidSessionID(sessionID) {
		return nil, ErrInvalidSession
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	recent := lastTurns(s.sessions[sessionID], n)
	out := make([]Turn, len(recent))
	copy(out, recent)
	return out, nil
}

func (s *MemoryTurnStore) ReadAll(ctx context.Context, sessionID string) ([]Turn, error) {
	return s.ReadRecent(ctx, sessionID, 0)
}
