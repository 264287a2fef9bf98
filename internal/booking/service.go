package booking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mindora-health/mindora-platform/internal/observability/metrics"
	"github.com/mindora-health/mindora-platform/internal/timefmt"
	"github.com/mindora-health/mindora-platform/pkg/logging"
)

var bookingTracer = otel.Tracer("mindora.internal.booking")

// SessionRepo is the persistence surface the service needs.
type SessionRepo interface {
	Insert(ctx context.Context, session *Session) error
	Get(ctx context.Context, kind Kind, id uuid.UUID) (*Session, error)
	UpdateSchedule(ctx context.Context, kind Kind, id uuid.UUID, date, startTime string) (*Session, error)
	UpdateStatus(ctx context.Context, kind Kind, id uuid.UUID, status Status) (*Session, error)
}

// SlotSource re-validates availability immediately before commit, defending
// against stale client state. The storage index remains the authority.
type SlotSource interface {
	FreeSlots(ctx context.Context, providerID, date string) ([]string, error)
}

// RecordCleaner mutates the persisted candidate-slot list after commits.
// Every call through it is best-effort: the session row is the source of
// truth and later reads re-derive from it.
type RecordCleaner interface {
	RemoveSlot(ctx context.Context, providerID, date, slot string) error
	AddSlot(ctx context.Context, providerID, date, slot string) error
}

// Notifier delivers booking confirmations. Failures never unwind a commit.
type Notifier interface {
	SessionBooked(ctx context.Context, session *Session) error
	SessionRescheduled(ctx context.Context, session *Session) error
}

// Service implements the slot reservation protocol.
type Service struct {
	sessions SessionRepo
	slots    SlotSource
	records  RecordCleaner
	notifier Notifier
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
}

// ServiceConfig wires the reservation service.
type ServiceConfig struct {
	Sessions SessionRepo
	Slots    SlotSource
	Records  RecordCleaner
	Notifier Notifier
	Metrics  *metrics.BookingMetrics
	Logger   *logging.Logger
}

// NewService constructs the reservation service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("booking: session repo required")
	}
	if cfg.Slots == nil {
		return nil, errors.New("booking: slot source required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		sessions: cfg.Sessions,
		slots:    cfg.Slots,
		records:  cfg.Records,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		logger:   logger,
	}, nil
}

// ReserveInput describes a reservation request.
type ReserveInput struct {
	ProviderID string `json:"provider_id"`
	ClientID   string `json:"client_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Kind       Kind   `json:"kind"`
}

// Reserve turns a free slot into a committed session. The pre-check via the
// materializer rejects stale requests early; the commit itself relies on the
// storage uniqueness constraint, so concurrent requests for the same slot
// produce exactly one session and N-1 ConflictErrors.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) (*Session, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.reserve", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(
		attribute.String("mindora.provider_id", input.ProviderID),
		attribute.String("mindora.kind", string(input.Kind)),
	)

	slot, err := s.validateSlotInput(input.ProviderID, input.Date, input.Time)
	if err != nil {
		s.metrics.ObserveReservation(string(input.Kind), "invalid")
		return nil, err
	}
	if input.ClientID == "" {
		s.metrics.ObserveReservation(string(input.Kind), "invalid")
		return nil, &ValidationError{Reason: "client_id is required"}
	}
	if !input.Kind.Valid() {
		s.metrics.ObserveReservation(string(input.Kind), "invalid")
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown session kind %q", input.Kind)}
	}

	free, err := s.slots.FreeSlots(ctx, input.ProviderID, input.Date)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveReservation(string(input.Kind), "error")
		return nil, fmt.Errorf("booking: availability pre-check: %w", err)
	}
	if !slices.Contains(free, slot) {
		s.metrics.ObserveReservation(string(input.Kind), "conflict")
		return nil, &ConflictError{Reason: "slot is no longer available"}
	}

	session := &Session{
		ID:         uuid.New(),
		ProviderID: input.ProviderID,
		ClientID:   input.ClientID,
		Date:       input.Date,
		StartTime:  slot,
		Status:     StatusBooked,
		Kind:       input.Kind,
	}
	if err := s.sessions.Insert(ctx, session); err != nil {
		if IsConflict(err) {
			s.metrics.ObserveReservation(string(input.Kind), "conflict")
			return nil, err
		}
		span.RecordError(err)
		s.metrics.ObserveReservation(string(input.Kind), "error")
		return nil, err
	}

	s.metrics.ObserveReservation(string(input.Kind), "committed")
	s.logger.Info("session booked",
		"session_id", session.ID,
		"provider_id", session.ProviderID,
		"date", session.Date,
		"time", session.StartTime,
		"kind", session.Kind,
	)

	s.cleanupRecord(ctx, session.ProviderID, session.Date, slot)
	s.notifyBooked(ctx, session)
	return session, nil
}

// Reschedule moves a session to a new free slot. The old slot becomes free
// implicitly once the move commits; the reminder flag resets so the new time
// gets its own reminder.
func (s *Service) Reschedule(ctx context.Context, kind Kind, id uuid.UUID, newDate, newTime string) (*Session, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("mindora.session_id", id.String()))

	if !kind.Valid() {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown session kind %q", kind)}
	}

	current, err := s.sessions.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusCancelled {
		return nil, &ValidationError{Reason: "cannot reschedule a cancelled session"}
	}

	slot, err := s.validateSlotInput(current.ProviderID, newDate, newTime)
	if err != nil {
		s.metrics.ObserveReschedule(string(kind), "invalid")
		return nil, err
	}
	if newDate == current.Date && slot == current.StartTime {
		return current, nil
	}

	free, err := s.slots.FreeSlots(ctx, current.ProviderID, newDate)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveReschedule(string(kind), "error")
		return nil, fmt.Errorf("booking: availability pre-check: %w", err)
	}
	if !slices.Contains(free, slot) {
		s.metrics.ObserveReschedule(string(kind), "conflict")
		return nil, &ConflictError{Reason: "slot is no longer available"}
	}

	moved, err := s.sessions.UpdateSchedule(ctx, kind, id, newDate, slot)
	if err != nil {
		if IsConflict(err) {
			s.metrics.ObserveReschedule(string(kind), "conflict")
			return nil, err
		}
		span.RecordError(err)
		s.metrics.ObserveReschedule(string(kind), "error")
		return nil, err
	}

	s.metrics.ObserveReschedule(string(kind), "committed")
	s.logger.Info("session rescheduled",
		"session_id", moved.ID,
		"provider_id", moved.ProviderID,
		"from", current.Date+" "+current.StartTime,
		"to", moved.Date+" "+moved.StartTime,
	)

	s.cleanupRecord(ctx, moved.ProviderID, moved.Date, slot)
	s.restoreRecord(ctx, current.ProviderID, current.Date, current.StartTime)
	if s.notifier != nil {
		if err := s.notifier.SessionRescheduled(ctx, moved); err != nil {
			s.logger.Warn("booking: reschedule notification failed", "session_id", moved.ID, "error", err)
		}
	}
	return moved, nil
}

// Cancel releases a session's slot.
func (s *Service) Cancel(ctx context.Context, kind Kind, id uuid.UUID) (*Session, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.cancel")
	defer span.End()

	if !kind.Valid() {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown session kind %q", kind)}
	}

	cancelled, err := s.sessions.UpdateStatus(ctx, kind, id, StatusCancelled)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("session cancelled", "session_id", cancelled.ID, "provider_id", cancelled.ProviderID)
	s.restoreRecord(ctx, cancelled.ProviderID, cancelled.Date, cancelled.StartTime)
	return cancelled, nil
}

func (s *Service) validateSlotInput(providerID, date, rawTime string) (string, error) {
	if providerID == "" {
		return "", &ValidationError{Reason: "provider_id is required"}
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return "", &ValidationError{Reason: fmt.Sprintf("invalid date %q, want YYYY-MM-DD", date)}
	}
	slot, err := timefmt.Normalize(rawTime)
	if err != nil {
		return "", &ValidationError{Reason: fmt.Sprintf("unparsable time %q", rawTime)}
	}
	return slot, nil
}

// cleanupRecord removes the newly booked slot from the availability record.
// Failures are logged and swallowed: the session row already excludes the
// slot on every materializer read.
func (s *Service) cleanupRecord(ctx context.Context, providerID, date, slot string) {
	if s.records == nil {
		return
	}
	if err := s.records.RemoveSlot(ctx, providerID, date, slot); err != nil {
		s.logger.Warn("booking: availability record cleanup failed",
			"provider_id", providerID, "date", date, "slot", slot, "error", err)
	}
}

func (s *Service) restoreRecord(ctx context.Context, providerID, date, slot string) {
	if s.records == nil {
		return
	}
	if err := s.records.AddSlot(ctx, providerID, date, slot); err != nil {
		s.logger.Warn("booking: availability record restore failed",
			"provider_id", providerID, "date", date, "slot", slot, "error", err)
	}
}

func (s *Service) notifyBooked(ctx context.Context, session *Session) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SessionBooked(ctx, session); err != nil {
		s.logger.Warn("booking: confirmation notification failed", "session_id", session.ID, "error", err)
	}
}
