package conversation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday morning.
var fixedNow = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newTestDeterministic() *DeterministicExtractor {
	return NewDeterministicExtractor(DefaultBusinessHours(), time.UTC, fixedClock)
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestDeterministicExtractorProposals(t *testing.T) {
	tests := []struct {
		message string
		want    time.Time
	}{
		{"next Monday at 2pm", time.Date(2026, 10, 26, 14, 0, 0, 0, time.UTC)},
		{"Monday 10am", time.Date(2026, 10, 26, 10, 0, 0, 0, time.UTC)},
		{"tomorrow at 3", time.Date(2026, 10, 20, 15, 0, 0, 0, time.UTC)},
		{"Saturday at 2:30pm", time.Date(2026, 10, 24, 14, 30, 0, 0, time.UTC)},
		{"how about wed at noon?", time.Date(2026, 10, 21, 12, 0, 0, 0, time.UTC)},
		{"Thursday 17:45 please", time.Date(2026, 10, 22, 17, 45, 0, 0, time.UTC)},
		{"Friday", time.Date(2026, 10, 23, 10, 0, 0, 0, time.UTC)},
		{"sometime next week at 9am", time.Date(2026, 10, 26, 9, 0, 0, 0, time.UTC)},
		{"tomorrow at 11 a.m.", time.Date(2026, 10, 20, 11, 0, 0, 0, time.UTC)},
	}
	ex := newTestDeterministic()
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			res := ex.Extract(tt.message, nil)
			require.Equal(t, IntentPropose, res.Intent)
			require.NotNil(t, res.Candidate)
			assert.True(t, tt.want.Equal(*res.Candidate), "got %s want %s", res.Candidate, tt.want)
			assert.True(t, res.NeedsConfirmation)
			assert.Equal(t, StrategyDeterministic, res.Strategy)
			assert.InDelta(t, 0.6, res.Confidence, 1e-9)
			assert.Contains(t, res.Reply, FormatSlot(tt.want))
			assert.Contains(t, res.Reply, "Would you like me to confirm this appointment?")
		})
	}
}

func TestDeterministicExtractorRejectsPastAndClosed(t *testing.T) {
	ex := newTestDeterministic()

	res := ex.Extract("today at 8am", nil)
	assert.Equal(t, IntentChat, res.Intent)
	assert.Nil(t, res.Candidate)
	assert.Contains(t, res.Reply, "already passed")

	for _, msg := range []string{"Sunday at 11am", "Saturday at 3pm", "Tuesday at 6pm", "Tuesday at 7:30am"} {
		res := ex.Extract(msg, nil)
		assert.Equal(t, IntentChat, res.Intent, msg)
		assert.Nil(t, res.Candidate, msg)
		assert.True(t, strings.HasPrefix(res.Reply, "We're not open then."), msg)
		assert.Contains(t, res.Reply, "closed on Sundays", msg)
	}
}

func TestDeterministicExtractorConfirmAndDecline(t *testing.T) {
	ex := newTestDeterministic()
	pending := ptrTime(time.Date(2026, 10, 26, 14, 0, 0, 0, time.UTC))

	for _, msg := range []string{"yes", "Y", "sure!", "ok", "Sounds good", "yes please book it", "that works for me"} {
		res := ex.Extract(msg, pending)
		assert.Equal(t, IntentConfirm, res.Intent, msg)
		assert.Nil(t, res.Candidate, msg)
	}
	for _, msg := range []string{"no", "n", "nope", "cancel that", "I'd prefer a different time", "not now", "maybe later"} {
		res := ex.Extract(msg, pending)
		assert.Equal(t, IntentDecline, res.Intent, msg)
	}

	res := ex.Extract("no, that's not good", pending)
	assert.Equal(t, IntentDecline, res.Intent, "negative wins over affirmative")

	res = ex.Extract("don’t book it", pending)
	assert.Equal(t, IntentDecline, res.Intent, "curly apostrophe normalized")
}

func TestDeterministicExtractorConfirmRestatingPending(t *testing.T) {
	ex := newTestDeterministic()
	pending := ptrTime(time.Date(2026, 10, 26, 14, 0, 0, 0, time.UTC))

	res := ex.Extract("yes Monday at 2pm", pending)
	require.Equal(t, IntentConfirm, res.Intent)
	require.NotNil(t, res.Candidate)
	assert.True(t, pending.Equal(*res.Candidate))

	res = ex.Extract("yes, but Tuesday at 2pm instead", pending)
	require.Equal(t, IntentPropose, res.Intent)
	assert.Equal(t, time.Tuesday, res.Candidate.Weekday())
}

func TestDeterministicExtractorHelpReplies(t *testing.T) {
	ex := newTestDeterministic()

	res := ex.Extract("I need an appointment", nil)
	assert.Equal(t, IntentChat, res.Intent)
	assert.Contains(t, res.Reply, "next Monday at 2pm")

	res = ex.Extract("what are your hours", nil)
	assert.Equal(t, IntentChat, res.Intent)
	assert.Contains(t, res.Reply, DefaultBusinessHours().Describe())

	res = ex.Extract("hello there", nil)
	assert.Equal(t, IntentChat, res.Intent)
	assert.True(t, strings.HasPrefix(res.Reply, "Hello!"))
}

func TestDeterministicExtractorIgnoresEmbeddedDayNames(t *testing.T) {
	ex := newTestDeterministic()

	res := ex.Extract("I can come at 3 this month", nil)
	assert.Equal(t, IntentChat, res.Intent)
	assert.Nil(t, res.Candidate)

	res = ex.Extract("at 2pm", nil)
	assert.Equal(t, IntentChat, res.Intent, "a time without a day resolves nothing")
}

func TestDeterministicExtractorShortDayWordsNeedClockTime(t *testing.T) {
	ex := newTestDeterministic()
	tuesdayThreePM := time.Date(2026, 10, 20, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		message string
		want    time.Time
	}{
		{"I sat on hold forever, can I come tomorrow at 3pm", tuesdayThreePM},
		{"the sun is out, tomorrow at 3pm works", tuesdayThreePM},
		{"we wed last year, Tuesday at 3pm please", tuesdayThreePM},
		{"sat at 10", time.Date(2026, 10, 24, 10, 0, 0, 0, time.UTC)},
		{"mon 9:30", time.Date(2026, 10, 26, 9, 30, 0, 0, time.UTC)},
		{"next wed 4pm", time.Date(2026, 10, 21, 16, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			res := ex.Extract(tt.message, nil)
			require.Equal(t, IntentPropose, res.Intent)
			require.NotNil(t, res.Candidate)
			assert.True(t, tt.want.Equal(*res.Candidate), "got %s want %s", res.Candidate, tt.want)
		})
	}

	res := ex.Extract("I sat down and thought about it", nil)
	assert.Equal(t, IntentChat, res.Intent)
	assert.Nil(t, res.Candidate)
}

func TestDeterministicExtractorUsesClinicZone(t *testing.T) {
	loc := time.FixedZone("CDT", -5*60*60)
	ex := NewDeterministicExtractor(DefaultBusinessHours(), loc, fixedClock)

	res := ex.Extract("tomorrow at 5pm", nil)
	require.Equal(t, IntentPropose, res.Intent)
	assert.True(t, time.Date(2026, 10, 20, 22, 0, 0, 0, time.UTC).Equal(*res.Candidate))
}
