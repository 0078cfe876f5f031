package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/dentbot/internal/bookings"
	"github.com/wolfman30/dentbot/internal/compliance"
	"github.com/wolfman30/dentbot/internal/observability/metrics"
	"github.com/wolfman30/dentbot/pkg/logging"
)

var conversationTracer = otel.Tracer("dentbot.internal.conversation")

const maxMessageLength = 2000

// Service describes how the negotiation engine should behave.
type Service interface {
	ProcessMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
	ProcessConfirmation(ctx context.Context, req ConfirmationRequest) (*ConfirmationResponse, error)
	GetHistory(ctx context.Context, sessionID string) ([]Turn, error)
	GetState(ctx context.Context, sessionID string) (SessionState, error)
}

// BookingCommitter books a negotiated slot.
type BookingCommitter interface {
	Commit(ctx context.Context, req bookings.CommitRequest) (*bookings.Appointment, error)
}

// AuditLogger records negotiation outcomes. Failures are logged, not surfaced.
type AuditLogger interface {
	LogOutcome(ctx context.Context, eventType compliance.AuditEventType, sessionID, patientID, userMessage, reply string, details compliance.AuditDetails) error
	LogFallback(ctx context.Context, sessionID, reason string) error
}

// MessageRequest is one patient message.
type MessageRequest struct {
	SessionID string
	PatientID string
	Message   string
	// Strategy overrides the service default for this message.
	Strategy Strategy
}

// MessageResponse is what the transport returns for a processed message.
type MessageResponse struct {
	SessionID         string                `json:"session_id"`
	Reply             string                `json:"reply"`
	Intent            Intent                `json:"intent"`
	Candidate         *time.Time            `json:"appointment_candidate"`
	NeedsConfirmation bool                  `json:"needs_confirmation"`
	Confidence        float64               `json:"confidence"`
	Strategy          Strategy              `json:"strategy"`
	FellBack          bool                  `json:"fell_back"`
	FallbackReason    string                `json:"fallback_reason,omitempty"`
	Outcome           Outcome               `json:"outcome"`
	State             NegotiationState      `json:"state"`
	Appointment       *bookings.Appointment `json:"appointment,omitempty"`
}

// ConfirmationRequest is an explicit confirm or decline of a slot, outside
// free-form chat.
type ConfirmationRequest struct {
	SessionID   string
	PatientID   string
	ScheduledAt time.Time
	Confirm     bool
}

type ConfirmationResponse struct {
	Status      Outcome               `json:"status"`
	Reply       string                `json:"reply"`
	Appointment *bookings.Appointment `json:"appointment,omitempty"`
}

// NegotiationService ties the transcript, the extractor, the state machine
// and the booking service together.
type NegotiationService struct {
	turns           TurnStore
	extractor       *Extractor
	bookings        BookingCommitter
	audit           AuditLogger
	logger          *logging.Logger
	metrics         *metrics.NegotiationMetrics
	historyTurns    int
	defaultStrategy Strategy
	now             func() time.Time
}

type ServiceOption func(*NegotiationService)

func WithAuditLogger(audit AuditLogger) ServiceOption {
	return func(s *NegotiationService) { s.audit = audit }
}

func WithServiceMetrics(m *metrics.NegotiationMetrics) ServiceOption {
	return func(s *NegotiationService) { s.metrics = m }
}

// WithHistoryTurns sets how many recent turns the extractor sees.
func WithHistoryTurns(n int) ServiceOption {
	return func(s *NegotiationService) {
		if n > 0 {
			s.historyTurns = n
		}
	}
}

// WithDefaultStrategy picks the strategy used when a request names none.
func WithDefaultStrategy(strategy Strategy) ServiceOption {
	return func(s *NegotiationService) {
		if strategy != "" {
			s.defaultStrategy = strategy
		}
	}
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *NegotiationService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewNegotiationService(turns TurnStore, extractor *Extractor, committer BookingCommitter, logger *logging.Logger, opts ...ServiceOption) *NegotiationService {
	if turns == nil {
		panic("conversation: turn store required")
	}
	if extractor == nil {
		panic("conversation: extractor required")
	}
	if committer == nil {
		panic("conversation: booking committer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &NegotiationService{
		turns:           turns,
		extractor:       extractor,
		bookings:        committer,
		logger:          logger,
		historyTurns:    5,
		defaultStrategy: StrategyDeterministic,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessMessage interprets one patient message, commits a booking when the
// patient confirms a pending proposal, and appends the user and assistant
// turns together. Cancellation before a commit appends nothing; after a
// commit the outcome is always recorded.
func (s *NegotiationService) ProcessMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	if !ValidSessionID(req.SessionID) {
		return nil, ErrInvalidSession
	}
	message := strings.TrimSpace(req.Message)
	if message == "" || utf8.RuneCountInString(message) > maxMessageLength {
		return nil, ErrInvalidMessage
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = s.defaultStrategy
	}

	ctx, span := conversationTracer.Start(ctx, "conversation.process_message")
	defer span.End()
	span.SetAttributes(
		attribute.String("dentbot.session_id", req.SessionID),
		attribute.String("dentbot.strategy", string(strategy)),
	)
	logger := s.logger.WithSession(req.SessionID)

	history, err := s.turns.ReadAll(ctx, req.SessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: load session: %w", err)
	}
	state := Reconstruct(history)

	ex, err := s.extractor.Extract(ctx, ExtractRequest{
		Message:     message,
		RecentTurns: lastTurns(history, s.historyTurns),
		Strategy:    strategy,
		Pending:     state.Pending,
	})
	if err != nil {
		return nil, err
	}

	decision := Decide(state, ex)

	var appt *bookings.Appointment
	committed := decision.Commit
	if committed {
		appt, err = s.commit(ctx, req.SessionID, req.PatientID, *decision.Candidate)
		switch {
		case err == nil:
			decision = decision.Resolve(false)
		case errors.Is(err, bookings.ErrSlotTaken):
			decision = decision.Resolve(true)
		case errors.Is(err, bookings.ErrInvalidSchedule):
			// The pending slot went stale while the patient was thinking it over.
			decision = Decision{
				Next:    SessionState{State: StateIdle},
				Outcome: OutcomeExpired,
				Intent:  IntentChat,
				Reply:   "That time has already passed. What other day and time would work for you?",
			}
		default:
			span.RecordError(err)
			return nil, err
		}
	}

	if committed {
		// The commit is durable; record it even if the caller went away.
		ctx = context.WithoutCancel(ctx)
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	assistant := assistantTurn(decision, ex, appt, now)
	userTurn := Turn{Role: ChatRoleUser, Content: message, Timestamp: now}
	if err := s.turns.Append(ctx, req.SessionID, userTurn, assistant); err != nil {
		span.RecordError(err)
		logger.Error("failed to append turns", "error", err, "appointment_id", appointmentID(appt))
		return nil, fmt.Errorf("conversation: append turns: %w", err)
	}

	s.metrics.ObserveTransition(string(state.State), string(decision.Next.State), string(decision.Outcome))
	if ex.FellBack {
		s.auditFallback(ctx, logger, req.SessionID, ex.FallbackReason)
	}
	s.auditOutcome(ctx, logger, req.SessionID, req.PatientID, message, decision, ex, appt)
	logger.Info("message processed",
		"intent", decision.Intent,
		"outcome", decision.Outcome,
		"strategy", ex.Strategy,
		"fell_back", ex.FellBack,
	)

	return &MessageResponse{
		SessionID:         req.SessionID,
		Reply:             decision.Reply,
		Intent:            decision.Intent,
		Candidate:         decision.Candidate,
		NeedsConfirmation: decision.NeedsConfirmation,
		Confidence:        ex.Confidence,
		Strategy:          ex.Strategy,
		FellBack:          ex.FellBack,
		FallbackReason:    ex.FallbackReason,
		Outcome:           decision.Outcome,
		State:             decision.Next.State,
		Appointment:       appt,
	}, nil
}

// ProcessConfirmation handles an explicit confirm or decline of a slot. The
// slot does not have to match the pending proposal. A lost race returns a
// *ConflictError after the conflict turn has been appended.
func (s *NegotiationService) ProcessConfirmation(ctx context.Context, req ConfirmationRequest) (*ConfirmationResponse, error) {
	if !ValidSessionID(req.SessionID) {
		return nil, ErrInvalidSession
	}
	if req.ScheduledAt.IsZero() {
		return nil, bookings.ErrInvalidSchedule
	}

	ctx, span := conversationTracer.Start(ctx, "conversation.process_confirmation")
	defer span.End()
	span.SetAttributes(
		attribute.String("dentbot.session_id", req.SessionID),
		attribute.Bool("dentbot.confirm", req.Confirm),
	)
	logger := s.logger.WithSession(req.SessionID)

	history, err := s.turns.ReadAll(ctx, req.SessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: load session: %w", err)
	}
	before := Reconstruct(history)

	slot := req.ScheduledAt
	decision := Decision{
		Next:      SessionState{State: StateIdle},
		Outcome:   OutcomeDeclined,
		Intent:    IntentDecline,
		Reply:     declinedReply,
		Candidate: &slot,
	}

	var appt *bookings.Appointment
	if req.Confirm {
		decision.Intent = IntentConfirm
		decision.Commit = true
		appt, err = s.commit(ctx, req.SessionID, req.PatientID, slot)
		switch {
		case err == nil:
			decision = decision.Resolve(false)
		case errors.Is(err, bookings.ErrSlotTaken):
			decision = decision.Resolve(true)
		default:
			span.RecordError(err)
			return nil, err
		}
	}

	if req.Confirm {
		ctx = context.WithoutCancel(ctx)
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	turn := assistantTurn(decision, ExtractionResult{Confidence: 1}, appt, s.now().UTC())
	if err := s.turns.Append(ctx, req.SessionID, turn); err != nil {
		span.RecordError(err)
		logger.Error("failed to append confirmation turn", "error", err, "appointment_id", appointmentID(appt))
		return nil, fmt.Errorf("conversation: append turns: %w", err)
	}

	s.metrics.ObserveTransition(string(before.State), string(decision.Next.State), string(decision.Outcome))
	s.auditOutcome(ctx, logger, req.SessionID, req.PatientID, "", decision, ExtractionResult{}, appt)

	if decision.Outcome == OutcomeConflict {
		return nil, &ConflictError{ScheduledAt: slot, Reply: decision.Reply}
	}
	return &ConfirmationResponse{
		Status:      decision.Outcome,
		Reply:       decision.Reply,
		Appointment: appt,
	}, nil
}

func (s *NegotiationService) GetHistory(ctx context.Context, sessionID string) ([]Turn, error) {
	if !ValidSessionID(sessionID) {
		return nil, ErrInvalidSession
	}
	turns, err := s.turns.ReadAll(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load history: %w", err)
	}
	return turns, nil
}

func (s *NegotiationService) GetState(ctx context.Context, sessionID string) (SessionState, error) {
	turns, err := s.GetHistory(ctx, sessionID)
	if err != nil {
		return SessionState{}, err
	}
	return Reconstruct(turns), nil
}

func (s *NegotiationService) commit(ctx context.Context, sessionID, patientID string, at time.Time) (*bookings.Appointment, error) {
	appt, err := s.bookings.Commit(ctx, bookings.CommitRequest{
		ScheduledAt: at,
		SessionID:   sessionID,
		PatientID:   patientID,
	})
	if err != nil {
		if errors.Is(err, bookings.ErrSlotTaken) || errors.Is(err, bookings.ErrInvalidSchedule) {
			return nil, err
		}
		return nil, fmt.Errorf("conversation: commit booking: %w", err)
	}
	return appt, nil
}

func assistantTurn(d Decision, ex ExtractionResult, appt *bookings.Appointment, now time.Time) Turn {
	md := &TurnMetadata{
		Intent:            d.Intent,
		Candidate:         d.Candidate,
		Confidence:        ex.Confidence,
		NeedsConfirmation: d.NeedsConfirmation,
		Strategy:          ex.Strategy,
		FellBack:          ex.FellBack,
		FallbackReason:    ex.FallbackReason,
		Outcome:           d.Outcome,
	}
	if appt != nil {
		md.AppointmentID = appt.ID.String()
	}
	return Turn{Role: ChatRoleAssistant, Content: d.Reply, Metadata: md, Timestamp: now}
}

var auditEventByOutcome = map[Outcome]compliance.AuditEventType{
	OutcomeProposed:  compliance.EventProposed,
	OutcomeConfirmed: compliance.EventConfirmed,
	OutcomeDeclined:  compliance.EventDeclined,
	OutcomeConflict:  compliance.EventConflict,
}

func (s *NegotiationService) auditOutcome(ctx context.Context, logger *logging.Logger, sessionID, patientID, message string, d Decision, ex ExtractionResult, appt *bookings.Appointment) {
	if s.audit == nil {
		return
	}
	eventType, ok := auditEventByOutcome[d.Outcome]
	if !ok {
		return
	}
	details := compliance.AuditDetails{
		Strategy:   string(ex.Strategy),
		Confidence: ex.Confidence,
	}
	if d.Candidate != nil {
		details.Candidate = d.Candidate.Format(time.RFC3339)
	}
	if appt != nil {
		details.AppointmentID = appt.ID.String()
	}
	if err := s.audit.LogOutcome(ctx, eventType, sessionID, patientID, message, d.Reply, details); err != nil {
		logger.Warn("failed to write audit event", "event_type", eventType, "error", err)
	}
}

func (s *NegotiationService) auditFallback(ctx context.Context, logger *logging.Logger, sessionID, reason string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogFallback(ctx, sessionID, reason); err != nil {
		logger.Warn("failed to write audit event", "event_type", compliance.EventFallback, "error", err)
	}
}

func appointmentID(appt *bookings.Appointment) string {
	if appt == nil {
		return ""
	}
	return appt.ID.String()
}
