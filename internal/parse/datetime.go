package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

var clockRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)

// ParseDate parses a YYYY-MM-DD calendar date in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse date: %q", raw)
	}
	return d, nil
}

// ParseClock extracts hour and minute from "H:MM", "HH:MM" or "HH:MM:SS".
// Seconds are accepted but must be zero.
func ParseClock(raw string) (hour, minute int, err error) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, 0, fmt.Errorf("unable to parse time of day: %q", raw)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("time of day out of range: %q", raw)
	}
	if m[3] != "" && m[3] != "00" {
		return 0, 0, fmt.Errorf("time of day must not carry seconds: %q", raw)
	}
	return hour, minute, nil
}

// NormalizeClock returns raw as a zero-padded HH:MM string, the form slots are
// stored in so that lexical and chronological order agree.
func NormalizeClock(raw string) (string, error) {
	h, m, err := ParseClock(raw)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

// SlotStart combines a slot's date and start time into an instant in loc.
func SlotStart(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	h, m, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, d.Location()), nil
}

// MinutesBetween returns end-start in minutes for two HH:MM clocks on the same day.
func MinutesBetween(start, end string) (int, error) {
	sh, sm, err := ParseClock(start)
	if err != nil {
		return 0, err
	}
	eh, em, err := ParseClock(end)
	if err != nil {
		return 0, err
	}
	return (eh*60 + em) - (sh*60 + sm), nil
}
