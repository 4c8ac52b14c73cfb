// Package shiftcalc holds the calendar arithmetic shared by booking and
// accounting: time-of-day parsing, shift durations across midnight and
// inclusive date ranges.
package shiftcalc

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DateLayout is the wire and config format for calendar dates.
const DateLayout = "2006-01-02"

const minutesPerDay = 24 * 60

var (
	timeOfDayRe = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})(?::(\d{2}))?\s*$`)
	durationRe  = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)
)

// TimeOfDay is a wall-clock time within a day, in seconds since midnight.
type TimeOfDay int

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS". "24:00" is accepted as the
// end of the day.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	m := timeOfDayRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("invalid time of day %q", raw)
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec := 0
	if m[3] != "" {
		sec, _ = strconv.Atoi(m[3])
	}
	if mins > 59 || sec > 59 || h > 24 || (h == 24 && (mins > 0 || sec > 0)) {
		return 0, fmt.Errorf("time of day out of range: %q", raw)
	}
	return TimeOfDay(h*3600 + mins*60 + sec), nil
}

// Hours returns the time of day as fractional hours since midnight.
func (t TimeOfDay) Hours() float64 {
	return float64(t) / 3600
}

func (t TimeOfDay) String() string {
	s := int(t)
	if s%60 != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
	}
	return fmt.Sprintf("%02d:%02d", s/3600, (s/60)%60)
}

// DurationHours is the length of a shift running from start to end. An end
// earlier than the start wraps past midnight.
func DurationHours(start, end TimeOfDay) float64 {
	if end >= start {
		return end.Hours() - start.Hours()
	}
	return (24 - start.Hours()) + end.Hours()
}

// ShiftHours parses both bounds and returns DurationHours.
func ShiftHours(start, end string) (float64, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return 0, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return 0, err
	}
	return DurationHours(s, e), nil
}

// ParseDuration reads an "H:MM" hours:minutes duration into minutes.
func ParseDuration(raw string) (int, error) {
	m := durationRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q, expected H:MM", raw)
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	if mins > 59 {
		return 0, fmt.Errorf("invalid duration %q: minutes out of range", raw)
	}
	total := h*60 + mins
	if total <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", raw)
	}
	if total > minutesPerDay {
		return 0, fmt.Errorf("duration %q exceeds one day", raw)
	}
	return total, nil
}

// DateOf truncates t to midnight UTC of its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", raw, err)
	}
	return t, nil
}

// DaysInclusive counts calendar days from start to end, both included.
// It returns 0 when end is before start.
func DaysInclusive(start, end time.Time) int {
	s, e := DateOf(start), DateOf(end)
	if e.Before(s) {
		return 0
	}
	// Dates are UTC midnights so every day is exactly 24h.
	return int(e.Sub(s)/(24*time.Hour)) + 1
}

// RangeBounds returns the half-open instant range [start 00:00, end+1 00:00)
// covered by an inclusive date range.
func RangeBounds(start, end time.Time) (time.Time, time.Time) {
	return DateOf(start), DateOf(end).AddDate(0, 0, 1)
}

// EachDate lists every date from start to end inclusive.
func EachDate(start, end time.Time) []time.Time {
	n := DaysInclusive(start, end)
	dates := make([]time.Time, 0, n)
	d := DateOf(start)
	for i := 0; i < n; i++ {
		dates = append(dates, d.AddDate(0, 0, i))
	}
	return dates
}

// OverlapHours measures the overlap of [aStart, aEnd) with [bStart, bEnd) in
// hours, clipping both ends. Disjoint or inverted intervals yield 0.
func OverlapHours(aStart, aEnd, bStart, bEnd time.Time) float64 {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start).Hours()
}
