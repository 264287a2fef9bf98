// Package gcal resolves externally sourced busy intervals from a provider's
// connected Google Calendar. Only the narrow client surface below touches the
// vendor API; everything else in the platform consumes BusyInterval values.
package gcal

import (
	"strings"
	"time"
)

// Event is a provider-independent calendar event as fetched for a range.
type Event struct {
	ID     string
	Title  string
	Status string
	Start  time.Time
	End    time.Time
}

// EventStatusCancelled marks events that no longer occupy time.
const EventStatusCancelled = "cancelled"

// BusyInterval is a time range during which the provider is unavailable,
// independent of this platform's own booking records. Intervals are transient:
// recomputed on every sync, never persisted verbatim.
type BusyInterval struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Title  string    `json:"title"`
	Status string    `json:"status"`
}

// Connection holds a provider's OAuth credentials for their calendar.
type Connection struct {
	ProviderID     string
	AccessToken    string
	RefreshToken   string
	TokenExpiry    time.Time
	NeedsReconnect bool
	UpdatedAt      time.Time
}

// ClipToDay restricts the interval to the local calendar day starting at
// dayStart. Multi-day events are evaluated per affected date: on the start
// date the interval runs to end of day, on the end date from start of day,
// and interior dates are covered entirely. Returns false when the interval
// does not touch the day at all.
func (b BusyInterval) ClipToDay(dayStart time.Time, loc *time.Location) (time.Time, time.Time, bool) {
	dayEnd := dayStart.AddDate(0, 0, 1)
	start := b.Start.In(loc)
	end := b.End.In(loc)
	if !start.Before(dayEnd) || !end.After(dayStart) {
		return time.Time{}, time.Time{}, false
	}
	if start.Before(dayStart) {
		start = dayStart
	}
	if end.After(dayEnd) {
		end = dayEnd
	}
	return start, end, true
}

// BlocksSlot reports whether the interval overlaps the slot starting at the
// canonical "HH:MM" time on the given "YYYY-MM-DD" date, both interpreted in
// loc. Overlap is the half-open test slotStart < end && slotEnd > start
// against the interval clipped to that date.
func (b BusyInterval) BlocksSlot(date, slot string, slotDuration time.Duration, loc *time.Location) bool {
	day, err := time.ParseInLocation(time.DateOnly, date, loc)
	if err != nil {
		return false
	}
	clock, err := time.Parse("15:04", slot)
	if err != nil {
		return false
	}
	slotStart := day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)
	slotEnd := slotStart.Add(slotDuration)

	start, end, ok := b.ClipToDay(day, loc)
	if !ok {
		return false
	}
	return slotStart.Before(end) && slotEnd.After(start)
}

// holidayVocabulary lists title fragments that exempt an event from blocking:
// all-day observances on a shared calendar do not make the provider busy.
var holidayVocabulary = []string{"holiday", "festival", "celebration", "observance"}

func matchesHolidayVocabulary(title string) bool {
	lower := strings.ToLower(title)
	for _, word := range holidayVocabulary {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
