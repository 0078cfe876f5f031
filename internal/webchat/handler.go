package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/dentbot/internal/bookings"
	"github.com/wolfman30/dentbot/internal/conversation"
	"github.com/wolfman30/dentbot/internal/tenancy"
	"github.com/wolfman30/dentbot/pkg/logging"
)

const historyLimit = 50

// Handler serves the websocket chat transport. Each inbound message is
// processed synchronously and answered on the same connection.
type Handler struct {
	service conversation.Service
	logger  *logging.Logger
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type     string `json:"type"` // "message", "confirm", "ping"
	Text     string `json:"text,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	// Confirm messages carry the slot and the patient's answer.
	ScheduledAt string `json:"scheduled_at,omitempty"`
	Confirm     bool   `json:"confirm,omitempty"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type              string                     `json:"type"` // "session", "history", "typing", "message", "conflict", "error", "pong"
	Text              string                     `json:"text,omitempty"`
	Role              string                     `json:"role,omitempty"`
	SessionID         string                     `json:"session_id,omitempty"`
	Timestamp         string                     `json:"timestamp,omitempty"`
	Intent            conversation.Intent        `json:"intent,omitempty"`
	Candidate         *time.Time                 `json:"appointment_candidate,omitempty"`
	NeedsConfirmation bool                       `json:"needs_confirmation,omitempty"`
	Outcome           conversation.Outcome       `json:"outcome,omitempty"`
	AppointmentID     string                     `json:"appointment_id,omitempty"`
	Messages          []HistoryMessage           `json:"messages,omitempty"`
	State             *conversation.SessionState `json:"state,omitempty"`
}

// HistoryMessage is a simplified turn for history frames.
type HistoryMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// NewHandler creates a web chat handler.
func NewHandler(service conversation.Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("webchat: conversation service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// generateSessionID creates a random session identifier.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	ctx := r.Context()
	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		sessionID = generateSessionID()
	}
	if !conversation.ValidSessionID(sessionID) {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "invalid session parameter"})
		return
	}
	patientID, _ := tenancy.PatientIDFromContext(ctx)
	logger := h.logger.WithSession(sessionID)

	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", SessionID: sessionID})
	h.sendHistory(ctx, conn, sessionID)

	logger.Info("webchat: connection opened", "patient_id", patientID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			logger.Debug("webchat: connection closed", "error", err)
			return
		}

		switch msg.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
		case "message":
			if strings.TrimSpace(msg.Text) == "" {
				continue
			}
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "typing"})
			_ = websocket.JSON.Send(conn, h.processMessage(ctx, logger, sessionID, patientID, msg))
		case "confirm":
			_ = websocket.JSON.Send(conn, h.processConfirmation(ctx, logger, sessionID, patientID, msg))
		}
	}
}

func (h *Handler) sendHistory(ctx context.Context, conn *websocket.Conn, sessionID string) {
	turns, err := h.service.GetHistory(ctx, sessionID)
	if err != nil {
		h.logger.Warn("webchat: failed to load history", "session_id", sessionID, "error", err)
		return
	}
	if len(turns) == 0 {
		return
	}
	if len(turns) > historyLimit {
		turns = turns[len(turns)-historyLimit:]
	}
	history := make([]HistoryMessage, 0, len(turns))
	for _, turn := range turns {
		if turn.Role == conversation.ChatRoleSystem {
			continue
		}
		history = append(history, HistoryMessage{
			Role:      turn.Role,
			Text:      turn.Content,
			Timestamp: turn.Timestamp.Format(time.RFC3339),
		})
	}
	state := conversation.Reconstruct(turns)
	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Messages: history, State: &state})
}

func (h *Handler) processMessage(ctx context.Context, logger *logging.Logger, sessionID, patientID string, msg InboundMessage) OutboundMessage {
	strategy, ok := conversation.ParseStrategy(strings.ToLower(strings.TrimSpace(msg.Strategy)), "")
	if !ok {
		return OutboundMessage{Type: "error", Text: conversation.ErrInvalidStrategy.Error()}
	}
	resp, err := h.service.ProcessMessage(ctx, conversation.MessageRequest{
		SessionID: sessionID,
		PatientID: patientID,
		Message:   msg.Text,
		Strategy:  strategy,
	})
	if err != nil {
		return h.errorFrame(logger, err)
	}
	out := OutboundMessage{
		Type:              "message",
		Role:              conversation.ChatRoleAssistant,
		Text:              resp.Reply,
		SessionID:         sessionID,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		Intent:            resp.Intent,
		Candidate:         resp.Candidate,
		NeedsConfirmation: resp.NeedsConfirmation,
		Outcome:           resp.Outcome,
	}
	if resp.Appointment != nil {
		out.AppointmentID = resp.Appointment.ID.String()
	}
	return out
}

func (h *Handler) processConfirmation(ctx context.Context, logger *logging.Logger, sessionID, patientID string, msg InboundMessage) OutboundMessage {
	scheduledAt, err := conversation.ParseCandidate(strings.TrimSpace(msg.ScheduledAt))
	if err != nil {
		return OutboundMessage{Type: "error", Text: "scheduled_at must be RFC3339 with offset"}
	}
	resp, err := h.service.ProcessConfirmation(ctx, conversation.ConfirmationRequest{
		SessionID:   sessionID,
		PatientID:   patientID,
		ScheduledAt: scheduledAt,
		Confirm:     msg.Confirm,
	})
	if err != nil {
		return h.errorFrame(logger, err)
	}
	out := OutboundMessage{
		Type:      "message",
		Role:      conversation.ChatRoleAssistant,
		Text:      resp.Reply,
		SessionID: sessionID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Outcome:   resp.Status,
	}
	if resp.Appointment != nil {
		out.AppointmentID = resp.Appointment.ID.String()
	}
	return out
}

func (h *Handler) errorFrame(logger *logging.Logger, err error) OutboundMessage {
	var conflict *conversation.ConflictError
	switch {
	case errors.As(err, &conflict):
		return OutboundMessage{Type: "conflict", Role: conversation.ChatRoleAssistant, Text: conflict.Reply, Outcome: conversation.OutcomeConflict}
	case errors.Is(err, conversation.ErrInvalidMessage),
		errors.Is(err, conversation.ErrInvalidSession),
		errors.Is(err, bookings.ErrInvalidSchedule):
		return OutboundMessage{Type: "error", Text: err.Error()}
	default:
		logger.Error("webchat: failed to process message", "error", err)
		return OutboundMessage{Type: "error", Text: "Sorry, something went wrong. Please try again."}
	}
}
