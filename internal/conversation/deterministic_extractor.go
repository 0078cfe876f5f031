package conversation

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	deterministicConfidence = 0.6
	defaultAppointmentHour  = 10
)

var (
	weekdayPattern = regexp.MustCompile(`\b(?:(next)\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday|tues|tue|thurs|thur|thu|fri)\b`)
	// "sat", "sun", "mon" and "wed" are ordinary words too; they only count
	// as days when a clock time follows.
	shortWeekdayPattern = regexp.MustCompile(`\b(?:(next)\s+)?(mon|wed|sat|sun)\.?\s+(?:at\s+(?:\d{1,2}(?::\d{2})?|noon|midday)|\d{1,2}(?::\d{2})?\s*(?:a\.m\.?|p\.m\.?|am|pm)|\d{1,2}:\d{2}|noon|midday)`)

	meridiemTimePattern = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(a\.m\.?|p\.m\.?|am|pm)(?:[^a-z]|$)`)
	clockTimePattern    = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	atHourPattern       = regexp.MustCompile(`\bat\s+(\d{1,2})\b`)
	noonPattern         = regexp.MustCompile(`\b(?:noon|midday)\b`)

	tomorrowPattern = regexp.MustCompile(`\btomorrow\b`)
	todayPattern    = regexp.MustCompile(`\btoday\b`)
	nextWeekPattern = regexp.MustCompile(`\bnext\s+week\b`)

	bookingHelpPattern = regexp.MustCompile(`\b(?:appointment|schedule|book|booking|available|availability)\b`)
	hoursHelpPattern   = regexp.MustCompile(`\b(?:hours|open|closed)\b`)
)

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tues": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thurs": time.Thursday, "thur": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var (
	affirmativePattern = vocabularyPattern(
		"yes", "yeah", "yep", "confirm", "sure", "ok", "okay",
		"please book", "book it", "sounds good", "that works",
		"perfect", "great", "good",
	)
	negativePattern = vocabularyPattern(
		"no", "nope", "cancel", "don't", "do not", "not now",
		"later", "different time", "another time", "not available",
	)
)

func vocabularyPattern(phrases ...string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(p), " ", `\s+`)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// DeterministicExtractor interprets messages with fixed patterns. It needs no
// network and always produces a result.
type DeterministicExtractor struct {
	hours BusinessHours
	loc   *time.Location
	now   func() time.Time
}

func NewDeterministicExtractor(hours BusinessHours, loc *time.Location, now func() time.Time) *DeterministicExtractor {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &DeterministicExtractor{hours: hours, loc: loc, now: now}
}

type candidateRejection int

const (
	candidateAccepted candidateRejection = iota
	candidateInPast
	candidateClosed
)

// Extract classifies message. pending is the proposal awaiting confirmation,
// if any.
func (d *DeterministicExtractor) Extract(message string, pending *time.Time) ExtractionResult {
	text := normalizeMessage(message)
	now := d.now().In(d.loc)

	affirmative := isAffirmative(text)
	negative := isNegative(text)

	if candidate, found := d.resolveCandidate(text, now); found {
		switch d.checkCandidate(candidate, now) {
		case candidateInPast:
			return d.result(IntentChat, nil, "That time has already passed. What other day and time would work for you?")
		case candidateClosed:
			return d.result(IntentChat, nil, "We're not open then. Our office hours are "+d.hours.Describe()+" What other time works for you?")
		}
		if affirmative && !negative && sameInstant(&candidate, pending) {
			return d.result(IntentConfirm, &candidate, "")
		}
		res := d.result(IntentPropose, &candidate, "Great! I can schedule you for "+FormatSlot(candidate)+". Would you like me to confirm this appointment?")
		res.NeedsConfirmation = true
		return res
	}

	// A negative word anywhere overrides affirmative ones ("no, that's not good").
	if negative {
		return d.result(IntentDecline, nil, "")
	}
	if affirmative {
		return d.result(IntentConfirm, nil, "")
	}
	return d.result(IntentChat, nil, d.helpReply(text))
}

func (d *DeterministicExtractor) result(intent Intent, candidate *time.Time, reply string) ExtractionResult {
	return ExtractionResult{
		Reply:      reply,
		Intent:     intent,
		Candidate:  candidate,
		Confidence: deterministicConfidence,
		Strategy:   StrategyDeterministic,
	}
}

func (d *DeterministicExtractor) helpReply(text string) string {
	switch {
	case bookingHelpPattern.MatchString(text):
		return "I'd be happy to help you schedule an appointment! Please let me know what day and time works best for you. For example, you could say 'next Monday at 2pm' or 'Friday at 10am'."
	case hoursHelpPattern.MatchString(text):
		return "Our office hours are " + d.hours.Describe() + " When would you like to schedule your appointment?"
	default:
		return "Hello! I'm here to help you schedule dental appointments. What day and time would work best for you?"
	}
}

func (d *DeterministicExtractor) checkCandidate(candidate, now time.Time) candidateRejection {
	if !candidate.After(now) {
		return candidateInPast
	}
	if !d.hours.Contains(candidate.In(d.loc)) {
		return candidateClosed
	}
	return candidateAccepted
}

// resolveCandidate finds a day reference and an optional clock time. Without
// a day reference nothing is resolved.
func (d *DeterministicExtractor) resolveCandidate(text string, now time.Time) (time.Time, bool) {
	day, ok := resolveDay(text, now)
	if !ok {
		return time.Time{}, false
	}
	hour, minute, ok := resolveClock(text)
	if !ok {
		hour, minute = defaultAppointmentHour, 0
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, d.loc), true
}

// resolveDay prefers "tomorrow" and "today" over weekday names, then falls
// back to "next week".
func resolveDay(text string, now time.Time) (time.Time, bool) {
	switch {
	case tomorrowPattern.MatchString(text):
		return now.AddDate(0, 0, 1), true
	case todayPattern.MatchString(text):
		return now, true
	}
	if target, ok := matchWeekday(text); ok {
		// Always the next occurrence after today: "Monday" said on a Monday
		// means the following week.
		ahead := (int(target) - int(now.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return now.AddDate(0, 0, ahead), true
	}
	if nextWeekPattern.MatchString(text) {
		return now.AddDate(0, 0, 7), true
	}
	return time.Time{}, false
}

// matchWeekday returns the earliest weekday reference in text.
func matchWeekday(text string) (time.Weekday, bool) {
	full := weekdayPattern.FindStringSubmatchIndex(text)
	short := shortWeekdayPattern.FindStringSubmatchIndex(text)
	switch {
	case full == nil && short == nil:
		return 0, false
	case short == nil || (full != nil && full[0] <= short[0]):
		return weekdayNames[text[full[4]:full[5]]], true
	default:
		return weekdayNames[text[short[4]:short[5]]], true
	}
}

func resolveClock(text string) (int, int, bool) {
	if m := meridiemTimePattern.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := atoiOrZero(m[2])
		if hour < 1 || hour > 12 || minute > 59 {
			return 0, 0, false
		}
		pm := strings.HasPrefix(m[3], "p")
		switch {
		case pm && hour != 12:
			hour += 12
		case !pm && hour == 12:
			hour = 0
		}
		return hour, minute, true
	}
	if m := clockTimePattern.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		return bareClock(hour, minute)
	}
	if m := atHourPattern.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		return bareClock(hour, 0)
	}
	if noonPattern.MatchString(text) {
		return 12, 0, true
	}
	return 0, 0, false
}

// bareClock applies the clinic convention for times without am/pm: hours
// 1 through 7 are afternoon.
func bareClock(hour, minute int) (int, int, bool) {
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	if hour >= 1 && hour < 8 {
		hour += 12
	}
	return hour, minute, true
}

func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}

func normalizeMessage(message string) string {
	text := strings.ToLower(strings.TrimSpace(message))
	return strings.NewReplacer("’", "'", "‘", "'").Replace(text)
}

func isAffirmative(text string) bool {
	return trimmedEquals(text, "y") || affirmativePattern.MatchString(text)
}

func isNegative(text string) bool {
	return trimmedEquals(text, "n") || negativePattern.MatchString(text)
}

func trimmedEquals(text, value string) bool {
	return strings.Trim(text, " .!?,") == value
}
