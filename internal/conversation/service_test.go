package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dentbot/internal/bookings"
	"github.com/wolfman30/dentbot/internal/compliance"
	"github.com/wolfman30/dentbot/pkg/logging"
)

var mondayTwoPM = time.Date(2026, 10, 26, 14, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type stubAuditLogger struct {
	mu        sync.Mutex
	events    []compliance.AuditEventType
	fallbacks []string
	err       error
}

func (s *stubAuditLogger) LogOutcome(ctx context.Context, eventType compliance.AuditEventType, sessionID, patientID, userMessage, reply string, details compliance.AuditDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, eventType)
	return s.err
}

func (s *stubAuditLogger) LogFallback(ctx context.Context, sessionID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallbacks = append(s.fallbacks, reason)
	return s.err
}

type failingTurnStore struct {
	*MemoryTurnStore
	appendErr error
}

func (s *failingTurnStore) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	return s.appendErr
}

type failingCommitter struct{ err error }

func (f failingCommitter) Commit(ctx context.Context, req bookings.CommitRequest) (*bookings.Appointment, error) {
	return nil, f.err
}

type harness struct {
	svc     *NegotiationService
	turns   *MemoryTurnStore
	booked  *bookings.MemoryStore
	audit   *stubAuditLogger
	clock   *testClock
	llm     *stubLLMClient
	quietLg *logging.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		turns:   NewMemoryTurnStore(),
		booked:  bookings.NewMemoryStore(),
		audit:   &stubAuditLogger{},
		clock:   &testClock{now: fixedNow},
		llm:     &stubLLMClient{err: errors.New("llm offline")},
		quietLg: logging.NewWithWriter("error", io.Discard),
	}
	extractor := NewExtractor(ExtractorConfig{
		LLM:     h.llm,
		Hours:   DefaultBusinessHours(),
		Timeout: 50 * time.Millisecond,
		Now:     h.clock.Now,
		Logger:  h.quietLg,
	})
	committer := bookings.NewService(h.booked, h.quietLg, bookings.WithClock(h.clock.Now))
	h.svc = NewNegotiationService(h.turns, extractor, committer, h.quietLg,
		WithAuditLogger(h.audit),
		WithServiceClock(h.clock.Now),
	)
	return h
}

func (h *harness) send(t *testing.T, sessionID, message string) *MessageResponse {
	t.Helper()
	resp, err := h.svc.ProcessMessage(context.Background(), MessageRequest{SessionID: sessionID, PatientID: "patient-" + sessionID, Message: message})
	require.NoError(t, err)
	return resp
}

func TestProcessMessageBooksCleaningAndReportsConflict(t *testing.T) {
	h := newHarness(t)

	resp := h.send(t, "alice", "I'd like a cleaning next Monday at 2pm")
	assert.Equal(t, IntentPropose, resp.Intent)
	assert.Equal(t, OutcomeProposed, resp.Outcome)
	assert.Equal(t, StateProposed, resp.State)
	assert.True(t, resp.NeedsConfirmation)
	require.NotNil(t, resp.Candidate)
	assert.True(t, mondayTwoPM.Equal(*resp.Candidate))

	resp = h.send(t, "alice", "yes")
	assert.Equal(t, OutcomeConfirmed, resp.Outcome)
	assert.Equal(t, StateIdle, resp.State)
	require.NotNil(t, resp.Appointment)
	assert.Equal(t, bookings.StatusConfirmed, resp.Appointment.Status)
	assert.Equal(t, "alice", resp.Appointment.SessionID)
	assert.Equal(t, ConfirmedReply(mondayTwoPM), resp.Reply)

	resp = h.send(t, "bob", "Monday at 2pm")
	assert.Equal(t, OutcomeProposed, resp.Outcome, "proposals do not check the calendar")

	resp = h.send(t, "bob", "yes please")
	assert.Equal(t, OutcomeConflict, resp.Outcome)
	assert.Equal(t, StateIdle, resp.State)
	assert.Nil(t, resp.Appointment)
	assert.Equal(t, ConflictReply(mondayTwoPM), resp.Reply)

	confirmed, err := h.booked.ListConfirmed(context.Background())
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "alice", confirmed[0].SessionID)

	history, err := h.svc.GetHistory(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, ChatRoleUser, history[2].Role)
	assert.Equal(t, OutcomeConfirmed, history[3].Metadata.Outcome)
	assert.Equal(t, resp.SessionID, "bob")

	assert.Equal(t, []compliance.AuditEventType{
		compliance.EventProposed, compliance.EventConfirmed, compliance.EventProposed, compliance.EventConflict,
	}, h.audit.events)
}

func TestProcessMessageConcurrentConfirmsBookOnce(t *testing.T) {
	h := newHarness(t)
	const sessions = 12

	for i := 0; i < sessions; i++ {
		h.send(t, fmt.Sprintf("s%d", i), "next Monday at 2pm")
	}

	var wg sync.WaitGroup
	outcomes := make([]Outcome, sessions)
	errs := make([]error, sessions)
	start := make(chan struct{})
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			resp, err := h.svc.ProcessMessage(context.Background(), MessageRequest{SessionID: fmt.Sprintf("s%d", i), Message: "yes"})
			errs[i] = err
			if resp != nil {
				outcomes[i] = resp.Outcome
			}
		}(i)
	}
	close(start)
	wg.Wait()

	var confirmed, conflicts int
	for i := range outcomes {
		require.NoError(t, errs[i])
		switch outcomes[i] {
		case OutcomeConfirmed:
			confirmed++
		case OutcomeConflict:
			conflicts++
		}
	}
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, sessions-1, conflicts)

	booked, err := h.booked.ListConfirmed(context.Background())
	require.NoError(t, err)
	assert.Len(t, booked, 1)
}

func TestProcessMessageDeclineResetsState(t *testing.T) {
	h := newHarness(t)

	h.send(t, "s1", "Tuesday at 10am")
	resp := h.send(t, "s1", "no thanks")
	assert.Equal(t, OutcomeDeclined, resp.Outcome)
	assert.Equal(t, StateIdle, resp.State)
	assert.Equal(t, declinedReply, resp.Reply)

	resp = h.send(t, "s1", "yes")
	assert.Equal(t, OutcomeChat, resp.Outcome, "nothing left to confirm")
	assert.Equal(t, askForTimeReply, resp.Reply)

	booked, _ := h.booked.ListConfirmed(context.Background())
	assert.Empty(t, booked)
}

func TestProcessMessageSupersedesAndKeepsPendingThroughChat(t *testing.T) {
	h := newHarness(t)

	h.send(t, "s1", "next Monday at 2pm")
	resp := h.send(t, "s1", "actually Tuesday at 10am")
	assert.Equal(t, OutcomeProposed, resp.Outcome)

	resp = h.send(t, "s1", "what are your hours")
	assert.Equal(t, OutcomeChat, resp.Outcome)
	assert.Equal(t, StateProposed, resp.State)

	state, err := h.svc.GetState(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, state.Pending)
	tuesday := time.Date(2026, 10, 20, 10, 0, 0, 0, time.UTC)
	assert.True(t, tuesday.Equal(*state.Pending))

	resp = h.send(t, "s1", "sounds good")
	assert.Equal(t, OutcomeConfirmed, resp.Outcome)
	require.NotNil(t, resp.Appointment)
	assert.True(t, tuesday.Equal(resp.Appointment.ScheduledAt))
}

func TestProcessMessageExpiredProposal(t *testing.T) {
	h := newHarness(t)

	h.send(t, "s1", "today at 5pm")
	h.clock.Set(time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC))

	resp := h.send(t, "s1", "yes")
	assert.Equal(t, OutcomeExpired, resp.Outcome)
	assert.Equal(t, StateIdle, resp.State)
	assert.Contains(t, resp.Reply, "already passed")

	state, err := h.svc.GetState(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, state.State)
}

func TestProcessMessageValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.ProcessMessage(ctx, MessageRequest{SessionID: "s1", Message: "   "})
	require.ErrorIs(t, err, ErrInvalidMessage)

	_, err = h.svc.ProcessMessage(ctx, MessageRequest{SessionID: "s1", Message: strings.Repeat("a", maxMessageLength+1)})
	require.ErrorIs(t, err, ErrInvalidMessage)

	_, err = h.svc.ProcessMessage(ctx, MessageRequest{SessionID: "not valid", Message: "hi"})
	require.ErrorIs(t, err, ErrInvalidSession)

	history, _ := h.turns.ReadAll(ctx, "s1")
	assert.Empty(t, history)
}

func TestProcessMessageCancelledAppendsNothing(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.ProcessMessage(ctx, MessageRequest{SessionID: "s1", Message: "next Monday at 2pm"})
	require.ErrorIs(t, err, context.Canceled)

	history, _ := h.turns.ReadAll(context.Background(), "s1")
	assert.Empty(t, history)
}

func TestProcessMessagePersistenceFailure(t *testing.T) {
	store := &failingTurnStore{MemoryTurnStore: NewMemoryTurnStore(), appendErr: errors.New("redis down")}
	lg := logging.NewWithWriter("error", io.Discard)
	extractor := NewExtractor(ExtractorConfig{Hours: DefaultBusinessHours(), Now: fixedClock, Logger: lg})
	svc := NewNegotiationService(store, extractor, bookings.NewService(bookings.NewMemoryStore(), lg), lg)

	_, err := svc.ProcessMessage(context.Background(), MessageRequest{SessionID: "s1", Message: "next Monday at 2pm"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")

	history, _ := store.ReadAll(context.Background(), "s1")
	assert.Empty(t, history)
}

func TestProcessMessageCommitFailureAppendsNothing(t *testing.T) {
	lg := logging.NewWithWriter("error", io.Discard)
	turns := NewMemoryTurnStore()
	extractor := NewExtractor(ExtractorConfig{Hours: DefaultBusinessHours(), Now: fixedClock, Logger: lg})
	svc := NewNegotiationService(turns, extractor, failingCommitter{err: errors.New("db unavailable")}, lg)
	ctx := context.Background()

	_, err := svc.ProcessMessage(ctx, MessageRequest{SessionID: "s1", Message: "next Monday at 2pm"})
	require.NoError(t, err)

	_, err = svc.ProcessMessage(ctx, MessageRequest{SessionID: "s1", Message: "yes"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db unavailable")

	history, _ := turns.ReadAll(ctx, "s1")
	assert.Len(t, history, 2, "only the proposal exchange is recorded")
	assert.Equal(t, StateProposed, Reconstruct(history).State)
}

func TestProcessMessageGenerativeFallbackIsAudited(t *testing.T) {
	h := newHarness(t)

	resp, err := h.svc.ProcessMessage(context.Background(), MessageRequest{
		SessionID: "s1",
		Message:   "next Monday at 2pm",
		Strategy:  StrategyGenerative,
	})
	require.NoError(t, err)
	assert.True(t, resp.FellBack)
	assert.Equal(t, FallbackTransport, resp.FallbackReason)
	assert.Equal(t, StrategyDeterministic, resp.Strategy)
	assert.Equal(t, OutcomeProposed, resp.Outcome)
	assert.Equal(t, []string{FallbackTransport}, h.audit.fallbacks)

	history, _ := h.turns.ReadAll(context.Background(), "s1")
	require.Len(t, history, 2)
	assert.True(t, history[1].Metadata.FellBack)
}

func TestProcessMessageAuditFailureIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.audit.err = errors.New("audit table missing")

	resp := h.send(t, "s1", "next Monday at 2pm")
	assert.Equal(t, OutcomeProposed, resp.Outcome)
}

func TestProcessConfirmation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.svc.ProcessConfirmation(ctx, ConfirmationRequest{SessionID: "alice", ScheduledAt: mondayTwoPM, Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, resp.Status)
	require.NotNil(t, resp.Appointment)

	_, err = h.svc.ProcessConfirmation(ctx, ConfirmationRequest{SessionID: "bob", ScheduledAt: mondayTwoPM.In(time.FixedZone("EST", -5*3600)), Confirm: true})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, bookings.ErrSlotTaken)
	assert.Equal(t, ConflictReply(mondayTwoPM.In(time.FixedZone("EST", -5*3600))), conflict.Reply)

	history, err := h.svc.GetHistory(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, OutcomeConflict, history[0].Metadata.Outcome)

	resp, err = h.svc.ProcessConfirmation(ctx, ConfirmationRequest{SessionID: "carol", ScheduledAt: mondayTwoPM, Confirm: false})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, resp.Status)
	assert.Nil(t, resp.Appointment)

	_, err = h.svc.ProcessConfirmation(ctx, ConfirmationRequest{SessionID: "dave", Confirm: true})
	require.ErrorIs(t, err, bookings.ErrInvalidSchedule)

	_, err = h.svc.ProcessConfirmation(ctx, ConfirmationRequest{SessionID: "erin", ScheduledAt: fixedNow.Add(-time.Hour), Confirm: true})
	require.ErrorIs(t, err, bookings.ErrInvalidSchedule)
}

func TestNewNegotiationServicePanicsOnMissingDependencies(t *testing.T) {
	lg := logging.NewWithWriter("error", io.Discard)
	extractor := NewExtractor(ExtractorConfig{Hours: DefaultBusinessHours()})
	committer := bookings.NewService(bookings.NewMemoryStore(), lg)

	assert.Panics(t, func() { NewNegotiationService(nil, extractor, committer, lg) })
	assert.Panics(t, func() { NewNegotiationService(NewMemoryTurnStore(), nil, committer, lg) })
	assert.Panics(t, func() { NewNegotiationService(NewMemoryTurnStore(), extractor, nil, lg) })
}

type cancellingCommitter struct {
	next   BookingCommitter
	cancel context.CancelFunc
}

func (c cancellingCommitter) Commit(ctx context.Context, req bookings.CommitRequest) (*bookings.Appointment, error) {
	appt, err := c.next.Commit(ctx, req)
	c.cancel()
	return appt, err
}

func TestProcessMessageRecordsBookingAfterCallerDisconnects(t *testing.T) {
	h := newHarness(t)
	h.send(t, "dropped", "next Monday at 2pm")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	extractor := NewExtractor(ExtractorConfig{Hours: DefaultBusinessHours(), Now: h.clock.Now, Logger: h.quietLg})
	committer := cancellingCommitter{
		next:   bookings.NewService(h.booked, h.quietLg, bookings.WithClock(h.clock.Now)),
		cancel: cancel,
	}
	svc := NewNegotiationService(h.turns, extractor, committer, h.quietLg, WithServiceClock(h.clock.Now))

	resp, err := svc.ProcessMessage(ctx, MessageRequest{SessionID: "dropped", Message: "yes"})
	require.NoError(t, err)
	require.NotNil(t, resp.Appointment)
	assert.Equal(t, OutcomeConfirmed, resp.Outcome)

	history, err := h.svc.GetHistory(context.Background(), "dropped")
	require.NoError(t, err)
	require.Len(t, history, 4)
	last := history[3]
	require.NotNil(t, last.Metadata)
	assert.Equal(t, OutcomeConfirmed, last.Metadata.Outcome)
	assert.Equal(t, resp.Appointment.ID.String(), last.Metadata.AppointmentID)

	state, err := h.svc.GetState(context.Background(), "dropped")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, state.State)
}

func TestProcessConfirmationRecordsBookingAfterCallerDisconnects(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	extractor := NewExtractor(ExtractorConfig{Hours: DefaultBusinessHours(), Now: h.clock.Now, Logger: h.quietLg})
	committer := cancellingCommitter{
		next:   bookings.NewService(h.booked, h.quietLg, bookings.WithClock(h.clock.Now)),
		cancel: cancel,
	}
	svc := NewNegotiationService(h.turns, extractor, committer, h.quietLg, WithServiceClock(h.clock.Now))

	resp, err := svc.ProcessConfirmation(ctx, ConfirmationRequest{SessionID: "dropped-2", ScheduledAt: mondayTwoPM, Confirm: true})
	require.NoError(t, err)
	require.NotNil(t, resp.Appointment)

	history, err := h.svc.GetHistory(context.Background(), "dropped-2")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, OutcomeConfirmed, history[0].Metadata.Outcome)
	assert.Equal(t, resp.Appointment.ID.String(), history[0].Metadata.AppointmentID)
}

func TestProcessConfirmationConcurrentConfirmsBookOnce(t *testing.T) {
	h := newHarness(t)
	const sessions = 12

	var wg sync.WaitGroup
	results := make([]*ConfirmationResponse, sessions)
	errs := make([]error, sessions)
	start := make(chan struct{})
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = h.svc.ProcessConfirmation(context.Background(), ConfirmationRequest{
				SessionID:   fmt.Sprintf("c%d", i),
				ScheduledAt: mondayTwoPM,
				Confirm:     true,
			})
		}(i)
	}
	close(start)
	wg.Wait()

	var confirmed, conflicts int
	for i := 0; i < sessions; i++ {
		history, err := h.svc.GetHistory(context.Background(), fmt.Sprintf("c%d", i))
		require.NoError(t, err)
		require.Len(t, history, 1)

		var conflict *ConflictError
		switch {
		case errs[i] == nil:
			require.NotNil(t, results[i])
			assert.Equal(t, OutcomeConfirmed, results[i].Status)
			assert.Equal(t, OutcomeConfirmed, history[0].Metadata.Outcome)
			confirmed++
		case errors.As(errs[i], &conflict):
			assert.True(t, mondayTwoPM.Equal(conflict.ScheduledAt))
			assert.Equal(t, OutcomeConflict, history[0].Metadata.Outcome)
			conflicts++
		default:
			t.Fatalf("session c%d: unexpected error %v", i, errs[i])
		}
	}
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, sessions-1, conflicts)

	booked, err := h.booked.ListConfirmed(context.Background())
	require.NoError(t, err)
	assert.Len(t, booked, 1)
}
