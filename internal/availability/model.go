// Package availability owns the persisted candidate-slot records, the weekly
// recurring blocks, and the materializer that combines them with bookings and
// external busy intervals into the final free-slot set.
package availability

import (
	"errors"
	"time"
)

// SlotDuration is the fixed length of every bookable slot.
const SlotDuration = time.Hour

// Record is a provider's self-declared candidate slots for one date. The
// materializer reads it; the sync scheduler persists busy-interval removals
// into it. A slot here is only a candidate: bookings and blocks are applied
// on every read.
type Record struct {
	ProviderID  string    `json:"provider_id"`
	Date        string    `json:"date"`
	TimeSlots   []string  `json:"time_slots"`
	IsAvailable bool      `json:"is_available"`
	LastUpdated time.Time `json:"last_updated"`
}

// RecurringBlock is a perpetual weekly blackout rule. At most one exists per
// (provider, weekday); it is re-evaluated for every date, never snapshotted.
type RecurringBlock struct {
	ProviderID     string   `json:"provider_id"`
	DayOfWeek      int      `json:"day_of_week"` // 0=Sunday .. 6=Saturday
	BlockEntireDay bool     `json:"block_entire_day"`
	Slots          []string `json:"slots,omitempty"`
}

var (
	// ErrRecordNotFound is returned when no availability record exists for
	// the (provider, date).
	ErrRecordNotFound = errors.New("availability: record not found")

	// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("availability: invalid date, want YYYY-MM-DD")

	// ErrInvalidDayOfWeek is returned for weekday values outside 0..6.
	ErrInvalidDayOfWeek = errors.New("availability: day_of_week must be 0..6")
)
