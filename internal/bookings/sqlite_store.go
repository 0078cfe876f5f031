package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sqliteDriver "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type appointmentRow struct {
	ID              string    `gorm:"primaryKey;size:36"`
	ScheduledAt     time.Time `gorm:"not null"`
	Status          string    `gorm:"size:32;not null;index"`
	DurationMinutes int       `gorm:"not null"`
	Notes           string    `gorm:"type:text"`
	SessionID       string    `gorm:"size:191;index"`
	PatientID       string    `gorm:"size:191"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
	CancelledAt     *time.Time
	CancelReason    string `gorm:"type:text"`
}

func (appointmentRow) TableName() string {
	return "appointments"
}

func (r appointmentRow) toAppointment() Appointment {
	id, _ := uuid.Parse(r.ID)
	return Appointment{
		ID:              id,
		ScheduledAt:     r.ScheduledAt,
		Status:          Status(r.Status),
		DurationMinutes: r.DurationMinutes,
		Notes:           r.Notes,
		SessionID:       r.SessionID,
		PatientID:       r.PatientID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		CancelledAt:     r.CancelledAt,
		CancelReason:    r.CancelReason,
	}
}

// SQLiteStore keeps appointments in an embedded SQLite database for
// single-node deployments. The partial unique index is created alongside the
// table so the same constraint arbitrates concurrent confirms.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLiteStore opens dsn and prepares the schema.
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "dentbot.db"
	}
	gormDB, err := gorm.Open(sqliteDriver.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("bookings: open sqlite: %w", err)
	}
	return NewSQLiteStore(gormDB)
}

// NewSQLiteStore wraps an already opened gorm handle.
func NewSQLiteStore(db *gorm.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("bookings: gorm db required")
	}
	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	if err := s.db.AutoMigrate(&appointmentRow{}); err != nil {
		return fmt.Errorf("bookings: migrate sqlite: %w", err)
	}
	stmt := "CREATE UNIQUE INDEX IF NOT EXISTS " + SlotIndexName +
		" ON appointments (scheduled_at) WHERE status = 'confirmed'"
	if err := s.db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("bookings: create slot index: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertConfirmed(ctx context.Context, appt *Appointment) error {
	ctx, span := bookingsTracer.Start(ctx, "bookings.sqlite.insert")
	defer span.End()

	row := appointmentRow{
		ID:              appt.ID.String(),
		ScheduledAt:     appt.ScheduledAt.UTC(),
		Status:          string(appt.Status),
		DurationMinutes: appt.DurationMinutes,
		Notes:           appt.Notes,
		SessionID:       appt.SessionID,
		PatientID:       appt.PatientID,
		CreatedAt:       appt.CreatedAt,
		UpdatedAt:       appt.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if s.isSlotViolation(ctx, err, row.ID) {
			return ErrSlotTaken
		}
		span.RecordError(err)
		return fmt.Errorf("bookings: insert appointment: %w", err)
	}
	return nil
}

// isSlotViolation separates the slot index from other uniqueness failures
// such as a primary key collision. SQLite names the indexed column in the
// error text; a handle opened with TranslateError hides it, so the id is
// looked up instead.
func (s *SQLiteStore) isSlotViolation(ctx context.Context, err error, id string) bool {
	if msg := err.Error(); strings.Contains(msg, "UNIQUE constraint failed") {
		return strings.Contains(msg, "appointments.scheduled_at")
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return false
	}
	var existing int64
	if lookupErr := s.db.WithContext(ctx).Model(&appointmentRow{}).Where("id = ?", id).Count(&existing).Error; lookupErr != nil {
		return false
	}
	return existing == 0
}

// ListConfirmed returns confirmed appointments ordered by slot.
func (s *SQLiteStore) ListConfirmed(ctx context.Context) ([]Appointment, error) {
	var rows []appointmentRow
	err := s.db.WithContext(ctx).
		Where("status = ?", string(StatusConfirmed)).
		Order("scheduled_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("bookings: list confirmed: %w", err)
	}
	out := make([]Appointment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toAppointment())
	}
	return out, nil
}
