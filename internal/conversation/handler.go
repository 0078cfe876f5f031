package conversation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/dentbot/internal/bookings"
	"github.com/wolfman30/dentbot/internal/tenancy"
	"github.com/wolfman30/dentbot/pkg/logging"
)

const maxRequestBody = 64 << 10

// Handler wires HTTP requests to the negotiation service.
type Handler struct {
	service Service
	logger  *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(service Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Routes mounts the session endpoints under /v1/sessions.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/v1/sessions/{sessionID}", func(r chi.Router) {
		r.Post("/messages", h.Message)
		r.Post("/confirmation", h.Confirmation)
		r.Get("/history", h.History)
		r.Get("/state", h.State)
	})
}

type messageBody struct {
	Message  string `json:"message"`
	Strategy string `json:"strategy,omitempty"`
}

type confirmationBody struct {
	ScheduledAt string `json:"scheduled_at"`
	Confirm     *bool  `json:"confirm"`
}

type errorBody struct {
	Error string `json:"error"`
}

type conflictBody struct {
	Status Outcome `json:"status"`
	Reply  string  `json:"reply"`
}

// Message handles POST /v1/sessions/{sessionID}/messages.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	var body messageBody
	if err := decodeBody(r, &body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	strategy, ok := ParseStrategy(strings.ToLower(strings.TrimSpace(body.Strategy)), "")
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: ErrInvalidStrategy.Error()})
		return
	}

	patientID, _ := tenancy.PatientIDFromContext(r.Context())
	resp, err := h.service.ProcessMessage(r.Context(), MessageRequest{
		SessionID: chi.URLParam(r, "sessionID"),
		PatientID: patientID,
		Message:   body.Message,
		Strategy:  strategy,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Confirmation handles POST /v1/sessions/{sessionID}/confirmation.
func (h *Handler) Confirmation(w http.ResponseWriter, r *http.Request) {
	var body confirmationBody
	if err := decodeBody(r, &body); err != nil || body.Confirm == nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	scheduledAt, err := ParseCandidate(strings.TrimSpace(body.ScheduledAt))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "scheduled_at must be RFC3339 with offset"})
		return
	}

	patientID, _ := tenancy.PatientIDFromContext(r.Context())
	resp, err := h.service.ProcessConfirmation(r.Context(), ConfirmationRequest{
		SessionID:   chi.URLParam(r, "sessionID"),
		PatientID:   patientID,
		ScheduledAt: scheduledAt,
		Confirm:     *body.Confirm,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// History handles GET /v1/sessions/{sessionID}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	turns, err := h.service.GetHistory(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	})
}

// State handles GET /v1/sessions/{sessionID}/state.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.GetState(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		h.writeJSON(w, http.StatusConflict, conflictBody{Status: OutcomeConflict, Reply: conflict.Reply})
	case errors.Is(err, bookings.ErrSlotTaken):
		h.writeJSON(w, http.StatusConflict, conflictBody{Status: OutcomeConflict})
	case errors.Is(err, ErrInvalidSession),
		errors.Is(err, ErrInvalidMessage),
		errors.Is(err, ErrInvalidStrategy),
		errors.Is(err, bookings.ErrInvalidSchedule):
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case r.Context().Err() != nil:
		// Client went away; nothing useful to send.
		h.logger.Info("request cancelled", "path", r.URL.Path)
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(dst)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
