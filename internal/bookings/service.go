package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/dentbot/internal/observability/metrics"
	"github.com/wolfman30/dentbot/pkg/logging"
)

var bookingsTracer = otel.Tracer("dentbot.internal.bookings")

const defaultDurationMinutes = 30

// Service commits negotiated slots to the calendar.
type Service struct {
	store           Store
	logger          *logging.Logger
	metrics         *metrics.NegotiationMetrics
	defaultDuration int
	now             func() time.Time
}

type Option func(*Service)

// WithMetrics records commit outcomes.
func WithMetrics(m *metrics.NegotiationMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithDefaultDuration sets the duration used when a request omits one.
func WithDefaultDuration(minutes int) Option {
	return func(s *Service) {
		if minutes > 0 {
			s.defaultDuration = minutes
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a bookings service.
func NewService(store Store, logger *logging.Logger, opts ...Option) *Service {
	if store == nil {
		panic("bookings: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		store:           store,
		logger:          logger,
		defaultDuration: defaultDurationMinutes,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Commit inserts a confirmed appointment for req.ScheduledAt in a single
// write. A concurrent confirm for the same instant loses with ErrSlotTaken.
// Conflicts are never retried.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*Appointment, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("dentbot.session_id", req.SessionID),
		attribute.String("dentbot.scheduled_at", req.ScheduledAt.UTC().Format(time.RFC3339)),
	)

	now := s.now()
	if req.ScheduledAt.IsZero() || !req.ScheduledAt.After(now) {
		s.metrics.ObserveCommit("invalid")
		return nil, ErrInvalidSchedule
	}

	duration := req.DurationMinutes
	if duration <= 0 {
		duration = s.defaultDuration
	}
	appt := &Appointment{
		ID:              uuid.New(),
		ScheduledAt:     req.ScheduledAt.UTC(),
		Status:          StatusConfirmed,
		DurationMinutes: duration,
		Notes:           req.Notes,
		SessionID:       req.SessionID,
		PatientID:       req.PatientID,
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}

	if err := s.store.InsertConfirmed(ctx, appt); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			s.metrics.ObserveCommit("conflict")
			s.logger.Info("booking slot already taken", "session_id", req.SessionID, "scheduled_at", appt.ScheduledAt)
			return nil, ErrSlotTaken
		}
		span.RecordError(err)
		s.metrics.ObserveCommit("error")
		s.logger.Error("booking commit failed", "session_id", req.SessionID, "error", err)
		return nil, err
	}

	s.metrics.ObserveCommit("confirmed")
	s.logger.Info("booking confirmed", "session_id", req.SessionID, "appointment_id", appt.ID, "scheduled_at", appt.ScheduledAt)
	return appt, nil
}
