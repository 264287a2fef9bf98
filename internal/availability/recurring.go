package availability

import (
	"fmt"
	"time"

	"github.com/mindora-health/mindora-platform/internal/timefmt"
)

// DayOfWeek returns the weekday (0=Sunday) of a YYYY-MM-DD date in loc.
// The instant is anchored at local noon so DST shifts and timezone math can
// never drift the result onto a neighboring day.
func DayOfWeek(date string, loc *time.Location) (int, error) {
	day, err := time.ParseInLocation(time.DateOnly, date, loc)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	noon := time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, loc)
	return int(noon.Weekday()), nil
}

// IsBlocked reports whether the slot on the date is covered by one of the
// provider's recurring weekly blocks. Slot times on both sides are normalized
// before comparison because legacy rows store mixed formats.
func IsBlocked(blocks []RecurringBlock, date, slot string, loc *time.Location) bool {
	if len(blocks) == 0 {
		return false
	}
	weekday, err := DayOfWeek(date, loc)
	if err != nil {
		return false
	}

	slotCanonical, err := timefmt.Normalize(slot)
	if err != nil {
		return false
	}

	for _, block := range blocks {
		if block.DayOfWeek != weekday {
			continue
		}
		if block.BlockEntireDay {
			return true
		}
		for _, blocked := range block.Slots {
			blockedCanonical, err := timefmt.Normalize(blocked)
			if err != nil {
				continue
			}
			if blockedCanonical == slotCanonical {
				return true
			}
		}
	}
	return false
}
