// Package compliance keeps an immutable audit trail of negotiation outcomes.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of negotiation event.
type AuditEventType string

const (
	// EventProposed is logged when the assistant asks the patient to confirm a slot.
	EventProposed AuditEventType = "negotiation.proposed"
	// EventConfirmed is logged when a slot is committed to the calendar.
	EventConfirmed AuditEventType = "negotiation.confirmed"
	// EventDeclined is logged when the patient rejects a pending proposal.
	EventDeclined AuditEventType = "negotiation.declined"
	// EventConflict is logged when a confirm loses the race for a slot.
	EventConflict AuditEventType = "negotiation.conflict"
	// EventFallback is logged when generative extraction degrades to the parser.
	EventFallback AuditEventType = "extraction.fallback"
)

// AuditEvent represents an immutable audit record.
type AuditEvent struct {
	ID             string          `json:"id"`
	EventType      AuditEventType  `json:"event_type"`
	SessionID      string          `json:"session_id"`
	PatientID      string          `json:"patient_id,omitempty"`
	UserMessage    string          `json:"user_message,omitempty"`
	AssistantReply string          `json:"assistant_reply,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AuditDetails contains event-specific details.
type AuditDetails struct {
	Candidate     string  `json:"candidate,omitempty"`
	AppointmentID string  `json:"appointment_id,omitempty"`
	Strategy      string  `json:"strategy,omitempty"`
	Confidence    float64 `json:"confidence,omitempty"`

	// For extraction fallback
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// AuditService handles negotiation audit logging.
type AuditService struct {
	db *sql.DB
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// LogEvent records an audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if s == nil || s.db == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO negotiation_audit_events (
			id, event_type, session_id, patient_id,
			user_message, assistant_reply, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.SessionID,
		nullString(event.PatientID),
		nullString(event.UserMessage),
		nullString(event.AssistantReply),
		nullDetails(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}

	return nil
}

// LogOutcome records a proposal, confirmation, decline or conflict.
func (s *AuditService) LogOutcome(ctx context.Context, eventType AuditEventType, sessionID, patientID, userMessage, reply string, details AuditDetails) error {
	detailsJSON, _ := json.Marshal(details)
	return s.LogEvent(ctx, AuditEvent{
		EventType:      eventType,
		SessionID:      sessionID,
		PatientID:      patientID,
		UserMessage:    userMessage,
		AssistantReply: reply,
		Details:        detailsJSON,
	})
}

// LogFallback records a generative extraction that fell back to the parser.
func (s *AuditService) LogFallback(ctx context.Context, sessionID, reason string) error {
	detailsJSON, _ := json.Marshal(AuditDetails{FallbackReason: reason, Strategy: "generative"})
	return s.LogEvent(ctx, AuditEvent{
		EventType: EventFallback,
		SessionID: sessionID,
		Details:   detailsJSON,
	})
}

// QueryEvents retrieves audit events with filters.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, session_id, patient_id,
			   user_message, assistant_reply, details, created_at
		FROM negotiation_audit_events
		WHERE session_id = $1
	`
	args := []interface{}{filter.SessionID}
	argIdx := 2

	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var patientID, userMsg, reply sql.NullString
		var details []byte
		err := rows.Scan(
			&e.ID, &e.EventType, &e.SessionID, &patientID,
			&userMsg, &reply, &details, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.PatientID = patientID.String
		e.UserMessage = userMsg.String
		e.AssistantReply = reply.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: failed to iterate audit events: %w", err)
	}

	return events, nil
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	SessionID string
	EventType AuditEventType
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDetails(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
