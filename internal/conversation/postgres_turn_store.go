package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// PostgresTurnStore keeps transcripts in the session_turns table.
type PostgresTurnStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewPostgresTurnStore(db *sql.DB) *PostgresTurnStore {
	if db == nil {
		panic("conversation: sql db cannot be nil")
	}
	return &PostgresTurnStore{
		db:     db,
		tracer: otel.Tracer("dentbot.internal.conversation.turns"),
	}
}

func (s *PostgresTurnStore) Append(ctx context.Context, sessionID string, turns ...Turn) (err error) {
	prepared, err := prepareTurns(sessionID, turns)
	if err != nil {
		return err
	}
	if len(prepared) == 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "conversation.turns.append")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: begin append: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO session_turns (session_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, turn := range prepared {
		var metadata []byte
		if turn.Metadata != nil {
			metadata, err = json.Marshal(turn.Metadata)
			if err != nil {
				return fmt.Errorf("conversation: marshal turn metadata: %w", err)
			}
		}
		if _, err = tx.ExecContext(ctx, query, sessionID, turn.Role, turn.Content, metadata, turn.Timestamp); err != nil {
			span.RecordError(err)
			return fmt.Errorf("conversation: insert turn: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: commit append: %w", err)
	}
	return nil
}

func (s *PostgresTurnStore) ReadRecent(ctx context.Context, sessionID string, n int) ([]Turn, error) {
	if !ValidSessionID(sessionID) {
		return nil, ErrInvalidSession
	}

	ctx, span := s.tracer.Start(ctx, "conversation.turns.read")
	defer span.End()

	var (
		rows *sql.Rows
		err  error
	)
	if n > 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT role, content, metadata, created_at FROM (
				SELECT id, role, content, metadata, created_at
				FROM session_turns
				WHERE session_id = $1
				ORDER BY id DESC
				LIMIT $2
			) recent
			ORDER BY id ASC
		`, sessionID, n)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT role, content, metadata, created_at
			FROM session_turns
			WHERE session_id = $1
			ORDER BY id ASC
		`, sessionID)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: query turns: %w", err)
	}
	defer rows.Close()

	out := []Turn{}
	for rows.Next() {
		var turn Turn
		var metadata []byte
		if err := rows.Scan(&turn.Role, &turn.Content, &metadata, &turn.Timestamp); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: scan turn: %w", err)
		}
		if len(metadata) > 0 {
			var md TurnMetadata
			if err := json.Unmarshal(metadata, &md); err != nil {
				span.RecordError(err)
				return nil, fmt.Errorf("conversation: decode turn metadata: %w", err)
			}
			turn.Metadata = &md
		}
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: iterate turns: %w", err)
	}
	return out, nil
}

func (s *PostgresTurnStore) ReadAll(ctx context.Context, sessionID string) ([]Turn, error) {
	return s.ReadRecent(ctx, sessionID, 0)
}
