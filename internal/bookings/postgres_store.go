package bookings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
)

const uniqueViolation = "23505"

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore writes appointments through pgx.
type PostgresStore struct {
	db rowQuerier
}

// NewPostgresStore accepts a *pgxpool.Pool or anything with QueryRow.
func NewPostgresStore(db rowQuerier) *PostgresStore {
	if db == nil {
		panic("bookings: pgx pool required")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InsertConfirmed(ctx context.Context, appt *Appointment) error {
	ctx, span := bookingsTracer.Start(ctx, "bookings.postgres.insert")
	defer span.End()
	span.SetAttributes(attribute.String("dentbot.appointment_id", appt.ID.String()))

	query := `
		INSERT INTO appointments (
			id, scheduled_at, status, duration_minutes, notes, session_id, patient_id
		)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRow(ctx, query,
		appt.ID, appt.ScheduledAt, string(appt.Status), appt.DurationMinutes,
		appt.Notes, appt.SessionID, appt.PatientID,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		if isSlotViolation(err) {
			return ErrSlotTaken
		}
		span.RecordError(err)
		return fmt.Errorf("bookings: insert appointment: %w", err)
	}
	return nil
}

func isSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return pgErr.ConstraintName == SlotIndexName
}
