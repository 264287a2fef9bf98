package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mindora-health/mindora-platform/internal/gcal"
	"github.com/mindora-health/mindora-platform/internal/timefmt"
	"github.com/mindora-health/mindora-platform/pkg/logging"
)

var availabilityTracer = otel.Tracer("mindora.internal.availability")

// RecordSource is the read slice of the availability store.
type RecordSource interface {
	Get(ctx context.Context, providerID, date string) (*Record, error)
}

// BlockSource lists a provider's recurring weekly blocks.
type BlockSource interface {
	ListByProvider(ctx context.Context, providerID string) ([]RecurringBlock, error)
}

// ConflictChecker reports the canonical times occupied by active bookings of
// any kind on a date. The booking package implements it as a union over both
// session tables so overlap logic lives in exactly one place.
type ConflictChecker interface {
	BookedTimes(ctx context.Context, providerID, date string) (map[string]struct{}, error)
}

// BusySource resolves external busy intervals for a window.
type BusySource interface {
	BusyIntervals(ctx context.Context, providerID string, from, to time.Time) ([]gcal.BusyInterval, error)
}

// Service materializes the free-slot set for a (provider, date). It is
// read-only and safe for concurrent use.
type Service struct {
	records  RecordSource
	blocks   BlockSource
	bookings ConflictChecker
	busy     BusySource
	loc      *time.Location
	logger   *logging.Logger
}

// ServiceConfig wires the materializer's collaborators.
type ServiceConfig struct {
	Records  RecordSource
	Blocks   BlockSource
	Bookings ConflictChecker
	Busy     BusySource
	Location *time.Location
	Logger   *logging.Logger
}

// NewService constructs the materializer.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Records == nil {
		return nil, errors.New("availability: record source required")
	}
	if cfg.Blocks == nil {
		return nil, errors.New("availability: block source required")
	}
	if cfg.Bookings == nil {
		return nil, errors.New("availability: conflict checker required")
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		records:  cfg.Records,
		blocks:   cfg.Blocks,
		bookings: cfg.Bookings,
		busy:     cfg.Busy,
		loc:      loc,
		logger:   logger,
	}, nil
}

// FreeSlots computes the provider's bookable slots on a date: the persisted
// candidates minus active bookings, recurring blocks, and blocking busy
// intervals. Booking and block filters are load-bearing and their failures
// propagate; a failed live calendar fetch falls back to the persisted record,
// which the last sync pass already scrubbed.
func (s *Service) FreeSlots(ctx context.Context, providerID, date string) ([]string, error) {
	ctx, span := availabilityTracer.Start(ctx, "availability.free_slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("mindora.provider_id", providerID),
		attribute.String("mindora.date", date),
	)

	if _, err := time.ParseInLocation(time.DateOnly, date, s.loc); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	rec, err := s.records.Get(ctx, providerID, date)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return []string{}, nil
		}
		span.RecordError(err)
		return nil, err
	}
	if !rec.IsAvailable || len(rec.TimeSlots) == 0 {
		return []string{}, nil
	}

	booked, err := s.bookings.BookedTimes(ctx, providerID, date)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("availability: load booked times: %w", err)
	}

	blocks, err := s.blocks.ListByProvider(ctx, providerID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("availability: load recurring blocks: %w", err)
	}

	intervals := s.busyForDate(ctx, providerID, date)

	free := make([]string, 0, len(rec.TimeSlots))
	seen := make(map[string]struct{}, len(rec.TimeSlots))
	for _, raw := range rec.TimeSlots {
		slot, err := timefmt.Normalize(raw)
		if err != nil {
			s.logger.Warn("availability: dropping unparsable stored slot",
				"provider_id", providerID, "date", date, "slot", raw)
			continue
		}
		if _, dup := seen[slot]; dup {
			continue
		}
		seen[slot] = struct{}{}

		if _, taken := booked[slot]; taken {
			continue
		}
		if IsBlocked(blocks, date, slot, s.loc) {
			continue
		}
		if overlapsAny(intervals, date, slot, s.loc) {
			continue
		}
		free = append(free, slot)
	}
	return free, nil
}

// FreeSlotsRange computes free slots for each date in [from, to], inclusive.
func (s *Service) FreeSlotsRange(ctx context.Context, providerID, from, to string) (map[string][]string, error) {
	start, err := time.ParseInLocation(time.DateOnly, from, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, from)
	}
	end, err := time.ParseInLocation(time.DateOnly, to, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, to)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: range %q..%q", ErrInvalidDate, from, to)
	}

	result := make(map[string][]string)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		date := day.Format(time.DateOnly)
		slots, err := s.FreeSlots(ctx, providerID, date)
		if err != nil {
			return nil, err
		}
		result[date] = slots
	}
	return result, nil
}

// busyForDate fetches busy intervals covering the local day. The window is
// the full local day, so multi-day events anchored on adjacent dates still
// overlap it and spill in correctly. Failures degrade to no live intervals.
func (s *Service) busyForDate(ctx context.Context, providerID, date string) []gcal.BusyInterval {
	if s.busy == nil {
		return nil
	}
	day, err := time.ParseInLocation(time.DateOnly, date, s.loc)
	if err != nil {
		return nil
	}
	from := day
	to := day.AddDate(0, 0, 1)

	intervals, err := s.busy.BusyIntervals(ctx, providerID, from, to)
	if err != nil {
		switch {
		case errors.Is(err, gcal.ErrNotConnected):
			// Nothing to consult, not an error.
		case errors.Is(err, gcal.ErrConnectionExpired):
			s.logger.Warn("availability: calendar connection expired, using persisted record",
				"provider_id", providerID)
		default:
			s.logger.Warn("availability: busy interval fetch failed, using persisted record",
				"provider_id", providerID, "error", err)
		}
		return nil
	}
	return intervals
}

func overlapsAny(intervals []gcal.BusyInterval, date, slot string, loc *time.Location) bool {
	for _, interval := range intervals {
		if interval.BlocksSlot(date, slot, SlotDuration, loc) {
			return true
		}
	}
	return false
}
