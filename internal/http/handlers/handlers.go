// Package handlers exposes the booking platform over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mindora-health/mindora-platform/internal/availability"
	"github.com/mindora-health/mindora-platform/internal/booking"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeDomainError maps the error taxonomy onto HTTP statuses: validation
// failures are 400, slot conflicts 409, missing rows 404, everything else a
// generic 500 so internals never leak to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	var verr *booking.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Reason})
		return
	}
	var cerr *booking.ConflictError
	if errors.As(err, &cerr) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": cerr.Reason})
		return
	}
	switch {
	case errors.Is(err, booking.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
	case errors.Is(err, availability.ErrInvalidDate):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date, want YYYY-MM-DD"})
	case errors.Is(err, availability.ErrInvalidDayOfWeek):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "day_of_week must be 0 (Sunday) through 6 (Saturday)"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
