package compliance

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/dentbot/pkg/logging"
)

const maxAuditPageSize = 500

// AuditHandler exposes the audit trail to operators.
type AuditHandler struct {
	service *AuditService
	logger  *logging.Logger
}

func NewAuditHandler(service *AuditService, logger *logging.Logger) *AuditHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AuditHandler{service: service, logger: logger}
}

// ListEvents handles GET /admin/audit?session_id=&event_type=&since=&until=&limit=.
func (h *AuditHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := AuditFilter{
		SessionID: strings.TrimSpace(q.Get("session_id")),
		EventType: AuditEventType(strings.TrimSpace(q.Get("event_type"))),
		Limit:     100,
	}
	if filter.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	var err error
	if filter.StartTime, err = parseOptionalTime(q.Get("since")); err != nil {
		http.Error(w, "since must be RFC3339", http.StatusBadRequest)
		return
	}
	if filter.EndTime, err = parseOptionalTime(q.Get("until")); err != nil {
		http.Error(w, "until must be RFC3339", http.StatusBadRequest)
		return
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = min(limit, maxAuditPageSize)
	}

	events, err := h.service.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query audit events", "session_id", filter.SessionID, "error", err)
		http.Error(w, "failed to load audit events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []AuditEvent{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"events": events})
}

func parseOptionalTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
