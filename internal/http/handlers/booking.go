package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mindora-health/mindora-platform/internal/booking"
	"github.com/mindora-health/mindora-platform/pkg/logging"
)

// Reserver is the reservation protocol the handler fronts.
type Reserver interface {
	Reserve(ctx context.Context, input booking.ReserveInput) (*booking.Session, error)
	Reschedule(ctx context.Context, kind booking.Kind, id uuid.UUID, newDate, newTime string) (*booking.Session, error)
	Cancel(ctx context.Context, kind booking.Kind, id uuid.UUID) (*booking.Session, error)
}

// BookingHandler serves session reservation, reschedule, and cancellation.
type BookingHandler struct {
	svc    Reserver
	logger *logging.Logger
}

// NewBookingHandler creates the booking handler.
func NewBookingHandler(svc Reserver, logger *logging.Logger) *BookingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingHandler{svc: svc, logger: logger}
}

// Reserve books a free slot.
// POST /bookings
func (h *BookingHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var input booking.ReserveInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if input.Kind == "" {
		input.Kind = booking.KindTherapy
	}

	session, err := h.svc.Reserve(r.Context(), input)
	if err != nil {
		if !booking.IsValidation(err) && !booking.IsConflict(err) {
			h.logger.Error("reserve failed", "provider_id", input.ProviderID, "error", err)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

type rescheduleRequest struct {
	Kind booking.Kind `json:"kind"`
	Date string       `json:"date"`
	Time string       `json:"time"`
}

// Reschedule moves an existing session.
// POST /bookings/{bookingID}/reschedule
func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseBookingID(w, r)
	if !ok {
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Kind == "" {
		req.Kind = booking.KindTherapy
	}

	session, err := h.svc.Reschedule(r.Context(), req.Kind, id, req.Date, req.Time)
	if err != nil {
		if !booking.IsValidation(err) && !booking.IsConflict(err) {
			h.logger.Error("reschedule failed", "booking_id", id, "error", err)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type cancelRequest struct {
	Kind booking.Kind `json:"kind"`
}

// Cancel releases a session's slot.
// POST /bookings/{bookingID}/cancel
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseBookingID(w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Kind == "" {
		req.Kind = booking.KindTherapy
	}

	session, err := h.svc.Cancel(r.Context(), req.Kind, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func parseBookingID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "bookingID")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid booking id"})
		return uuid.Nil, false
	}
	return id, true
}
