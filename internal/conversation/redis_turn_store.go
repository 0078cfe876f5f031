package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// RedisTurnStore keeps each transcript as a Redis list of JSON turns.
// Lists are never trimmed; ttl > 0 expires idle sessions.
type RedisTurnStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
}

func NewRedisTurnStore(client *redis.Client, ttl time.Duration) *RedisTurnStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisTurnStore{
		redis:  client,
		tracer: otel.Tracer("dentbot.internal.conversation.turns"),
		ttl:    ttl,
	}
}

func sessionTurnsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:turns", sessionID)
}

func (s *RedisTurnStore) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	prepared, err := prepareTurns(sessionID, turns)
	if err != nil {
		return err
	}
	if len(prepared) == 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "conversation.turns.append")
	defer span.End()

	values := make([]any, 0, len(prepared))
	for _, turn := range prepared {
		data, err := json.Marshal(turn)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("conversation: marshal turn: %w", err)
		}
		values = append(values, data)
	}

	key := sessionTurnsKey(sessionID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: append turns: %w", err)
	}
	return nil
}

func (s *RedisTurnStore) ReadRecent(ctx context.Context, sessionID string, n int) ([]Turn, error) {
	if !ValidSessionID(sessionID) {
		return nil, ErrInvalidSession
	}

	ctx, span := s.tracer.Start(ctx, "conversation.turns.read")
	defer span.End()

	start := int64(0)
	if n > 0 {
		start = -int64(n)
	}
	raw, err := s.redis.LRange(ctx, sessionTurnsKey(sessionID), start, -1).Result()
	if err != nil && err != redis.Nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: read turns: %w", err)
	}

	out := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var turn Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: decode turn: %w", err)
		}
		out = append(out, turn)
	}
	return out, nil
}

func (s *RedisTurnStore) ReadAll(ctx context.Context, sessionID string) ([]Turn, error) {
	return s.ReadRecent(ctx, sessionID, 0)
}
