package availability

import (
	"testing"
	"time"
)

var kolkata = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		panic(err)
	}
	return loc
}()

func TestDayOfWeek(t *testing.T) {
	cases := []struct {
		date string
		want int
	}{
		{"2025-01-05", 0}, // Sunday
		{"2025-01-06", 1},
		{"2025-01-10", 5}, // Friday
		{"2025-01-11", 6},
	}
	for _, tc := range cases {
		got, err := DayOfWeek(tc.date, kolkata)
		if err != nil {
			t.Fatalf("DayOfWeek(%q): %v", tc.date, err)
		}
		if got != tc.want {
			t.Errorf("DayOfWeek(%q) = %d, want %d", tc.date, got, tc.want)
		}
	}

	if _, err := DayOfWeek("10/01/2025", kolkata); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestIsBlockedEntireDay(t *testing.T) {
	blocks := []RecurringBlock{{ProviderID: "p1", DayOfWeek: 0, BlockEntireDay: true}}

	// Every Sunday is blocked, any slot.
	for _, date := range []string{"2025-01-05", "2025-01-12", "2025-06-01"} {
		for _, slot := range []string{"09:00", "14:00", "23:00"} {
			if !IsBlocked(blocks, date, slot, kolkata) {
				t.Errorf("slot %s on Sunday %s should be blocked", slot, date)
			}
		}
	}
	// Mondays untouched.
	if IsBlocked(blocks, "2025-01-06", "09:00", kolkata) {
		t.Error("Monday should not be blocked by a Sunday rule")
	}
}

func TestIsBlockedExplicitSlots(t *testing.T) {
	blocks := []RecurringBlock{{
		ProviderID: "p1",
		DayOfWeek:  5, // Friday
		Slots:      []string{"2:00 PM", "16:00"},
	}}

	cases := []struct {
		slot string
		want bool
	}{
		{"14:00", true},  // matches "2:00 PM" after normalization
		{"4:00 PM", true}, // matches "16:00" after normalization
		{"15:00", false},
	}
	for _, tc := range cases {
		if got := IsBlocked(blocks, "2025-01-10", tc.slot, kolkata); got != tc.want {
			t.Errorf("IsBlocked(%q) on Friday = %v, want %v", tc.slot, got, tc.want)
		}
	}

	// Same slots on another weekday are free.
	if IsBlocked(blocks, "2025-01-09", "14:00", kolkata) {
		t.Error("Thursday should not be blocked by a Friday rule")
	}
}

func TestIsBlockedNoBlocks(t *testing.T) {
	if IsBlocked(nil, "2025-01-10", "14:00", kolkata) {
		t.Error("no blocks should never block")
	}
}
