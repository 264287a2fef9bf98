// Package timefmt canonicalizes the mixed clock-time formats stored by older
// parts of the platform. Everything downstream compares times as zero-padded
// 24-hour "HH:MM" strings; raw strings never leave this package.
package timefmt

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnparsable is returned when no HH:MM pattern can be extracted.
var ErrUnparsable = errors.New("timefmt: unparsable time")

// Canonical is the layout produced by Normalize.
const Canonical = "15:04"

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::\d{2})?\s*([AaPp][Mm])?$`)

// Normalize converts a raw clock-time string to canonical "HH:MM".
// Accepted inputs: 12-hour ("5:00 PM", "5:00PM"), 24-hour ("17:00",
// "17:00:00"), and range-prefixed ("17:00-18:00", the start is kept).
// Normalize is pure and idempotent; unrecognized input yields ErrUnparsable,
// never a guess.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty string", ErrUnparsable)
	}

	// Ranged values like "17:00-18:00" describe a slot by its start.
	if idx := strings.Index(s, "-"); idx > 0 {
		s = strings.TrimSpace(s[:idx])
	}

	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrUnparsable, raw)
	}

	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnparsable, raw)
	}
	minute, err := strconv.Atoi(m[2])
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnparsable, raw)
	}

	// A meridiem suffix on an hour that is already 24-hour ("13:00 PM") is
	// ignored; the 24-hour reading wins.
	if meridiem := strings.ToUpper(m[3]); meridiem != "" && hour <= 12 {
		switch meridiem {
		case "PM":
			if hour < 12 {
				hour += 12
			}
		case "AM":
			if hour == 12 {
				hour = 0
			}
		}
	}

	if hour > 23 || minute > 59 {
		return "", fmt.Errorf("%w: %q", ErrUnparsable, raw)
	}

	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// MustNormalize is Normalize for inputs known to be valid, e.g. literals in
// tests and seed data. It panics on error.
func MustNormalize(raw string) string {
	normalized, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return normalized
}
