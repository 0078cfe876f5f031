package conversation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DayHours is an opening window in minutes after local midnight. Close is
// exclusive: an appointment may start at Open but not at Close.
type DayHours struct {
	Open  int
	Close int
}

// BusinessHours holds the opening window for each weekday. A nil entry means
// the clinic is closed that day.
type BusinessHours [7]*DayHours

// DefaultBusinessHours is Mon-Fri 08:00-18:00, Sat 09:00-15:00, Sun closed.
func DefaultBusinessHours() BusinessHours {
	var h BusinessHours
	for d := time.Monday; d <= time.Friday; d++ {
		h[d] = &DayHours{Open: 8 * 60, Close: 18 * 60}
	}
	h[time.Saturday] = &DayHours{Open: 9 * 60, Close: 15 * 60}
	return h
}

var weekdayAbbrev = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseBusinessHours reads a schedule like "mon-fri=08:00-18:00;sat=09:00-15:00".
// Days not listed are closed. An empty schedule yields DefaultBusinessHours.
func ParseBusinessHours(schedule string) (BusinessHours, error) {
	schedule = strings.TrimSpace(strings.ToLower(schedule))
	if schedule == "" {
		return DefaultBusinessHours(), nil
	}

	var h BusinessHours
	for _, entry := range strings.Split(schedule, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		days, window, ok := strings.Cut(entry, "=")
		if !ok {
			return h, fmt.Errorf("conversation: business hours entry %q missing '='", entry)
		}
		first, last, err := parseDayRange(strings.TrimSpace(days))
		if err != nil {
			return h, err
		}
		openRaw, closeRaw, ok := strings.Cut(strings.TrimSpace(window), "-")
		if !ok {
			return h, fmt.Errorf("conversation: business hours window %q missing '-'", window)
		}
		open, err := parseClock(openRaw)
		if err != nil {
			return h, err
		}
		closing, err := parseClock(closeRaw)
		if err != nil {
			return h, err
		}
		if closing <= open {
			return h, fmt.Errorf("conversation: business hours window %q closes before it opens", window)
		}
		for d := first; ; d = (d + 1) % 7 {
			h[d] = &DayHours{Open: open, Close: closing}
			if d == last {
				break
			}
		}
	}
	return h, nil
}

func parseDayRange(raw string) (time.Weekday, time.Weekday, error) {
	startRaw, endRaw, isRange := strings.Cut(raw, "-")
	start, ok := weekdayAbbrev[strings.TrimSpace(startRaw)]
	if !ok {
		return 0, 0, fmt.Errorf("conversation: unknown weekday %q", startRaw)
	}
	if !isRange {
		return start, start, nil
	}
	end, ok := weekdayAbbrev[strings.TrimSpace(endRaw)]
	if !ok {
		return 0, 0, fmt.Errorf("conversation: unknown weekday %q", endRaw)
	}
	return start, end, nil
}

func parseClock(raw string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, fmt.Errorf("conversation: clock %q must be HH:MM", raw)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("conversation: invalid hour in %q", raw)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("conversation: invalid minute in %q", raw)
	}
	return hour*60 + minute, nil
}

// Contains reports whether an appointment may start at t. t is read in its
// own location, so callers convert to the clinic zone first.
func (h BusinessHours) Contains(t time.Time) bool {
	day := h[t.Weekday()]
	if day == nil {
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	return minute >= day.Open && minute < day.Close
}

// Describe renders the schedule for patient-facing replies, e.g.
// "Monday through Friday 8 AM to 6 PM, and Saturday 9 AM to 3 PM. We're closed on Sundays."
func (h BusinessHours) Describe() string {
	order := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday}

	var groups []string
	var closed []string
	for i := 0; i < len(order); {
		day := h[order[i]]
		if day == nil {
			closed = append(closed, order[i].String()+"s")
			i++
			continue
		}
		j := i
		for j+1 < len(order) && h[order[j+1]] != nil && *h[order[j+1]] == *day {
			j++
		}
		span := order[i].String()
		if j > i {
			span += " through " + order[j].String()
		}
		groups = append(groups, fmt.Sprintf("%s %s to %s", span, formatMinutes(day.Open), formatMinutes(day.Close)))
		i = j + 1
	}

	var b strings.Builder
	switch len(groups) {
	case 0:
		b.WriteString("We're currently closed")
	case 1:
		b.WriteString(groups[0])
	default:
		b.WriteString(strings.Join(groups[:len(groups)-1], ", "))
		b.WriteString(", and ")
		b.WriteString(groups[len(groups)-1])
	}
	b.WriteString(".")
	if len(groups) > 0 && len(closed) > 0 {
		b.WriteString(" We're closed on ")
		b.WriteString(strings.Join(closed, " and "))
		b.WriteString(".")
	}
	return b.String()
}

func formatMinutes(m int) string {
	hour, minute := m/60, m%60
	suffix := "AM"
	if hour >= 12 && hour < 24 {
		suffix = "PM"
	}
	display := hour % 12
	if display == 0 {
		display = 12
	}
	if minute == 0 {
		return fmt.Sprintf("%d %s", display, suffix)
	}
	return fmt.Sprintf("%d:%02d %s", display, minute, suffix)
}
