package compliance

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dentbot/pkg/logging"
)

func auditColumns() []string {
	return []string{"id", "event_type", "session_id", "patient_id", "user_message", "assistant_reply", "details", "created_at"}
}

func TestAuditHandler_ListEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 10, 19, 9, 5, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM negotiation_audit_events")).
		WithArgs("sess-1", string(EventConfirmed), created.Add(-time.Hour)).
		WillReturnRows(sqlmock.NewRows(auditColumns()).
			AddRow("evt-1", string(EventConfirmed), "sess-1", "patient-1", "yes", "Perfect!", []byte(`{"candidate":"2026-10-26T14:00:00Z"}`), created))

	h := NewAuditHandler(NewAuditService(db), logging.NewWithWriter("error", io.Discard))
	req := httptest.NewRequest(http.MethodGet, "/admin/audit?session_id=sess-1&event_type=negotiation.confirmed&since=2026-10-19T08:05:00Z&limit=10", nil)
	rec := httptest.NewRecorder()
	h.ListEvents(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Events []AuditEvent `json:"events"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, EventConfirmed, body.Events[0].EventType)
	assert.Equal(t, "patient-1", body.Events[0].PatientID)
	assert.JSONEq(t, `{"candidate":"2026-10-26T14:00:00Z"}`, string(body.Events[0].Details))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditHandler_ListEventsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT 100")).
		WithArgs("sess-2").
		WillReturnRows(sqlmock.NewRows(auditColumns()))

	h := NewAuditHandler(NewAuditService(db), logging.NewWithWriter("error", io.Discard))
	rec := httptest.NewRecorder()
	h.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/admin/audit?session_id=sess-2", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"events":[]}`, rec.Body.String())
}

func TestAuditHandler_ListEventsBadInput(t *testing.T) {
	h := NewAuditHandler(NewAuditService(nil), logging.NewWithWriter("error", io.Discard))
	for _, target := range []string{
		"/admin/audit",
		"/admin/audit?session_id=s&since=yesterday",
		"/admin/audit?session_id=s&until=2026-10-19",
		"/admin/audit?session_id=s&limit=-3",
	} {
		rec := httptest.NewRecorder()
		h.ListEvents(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestAuditHandler_ListEventsQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM negotiation_audit_events")).
		WillReturnError(errors.New("relation does not exist"))

	h := NewAuditHandler(NewAuditService(db), logging.NewWithWriter("error", io.Discard))
	rec := httptest.NewRecorder()
	h.ListEvents(rec, httptest.NewRequest(http.MethodGet, "/admin/audit?session_id=sess-3", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
