package conversation

import (
	"fmt"
	"time"
)

// ClinicLocation returns the *time.Location for a clinic timezone string.
// Falls back to UTC if the timezone is invalid or empty.
func ClinicLocation(timezone string) *time.Location {
	if timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseCandidate accepts RFC3339 timestamps carrying an offset or Z. Naive
// datetimes are rejected because their instant is ambiguous.
func ParseCandidate(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("conversation: candidate %q is not RFC3339 with offset: %w", raw, err)
	}
	return t, nil
}

// FormatSlot renders t for patient-facing replies, e.g. "January 2 at 3:04 PM".
func FormatSlot(t time.Time) string {
	return t.Format("January 2 at 3:04 PM")
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Equal(*b)
}
