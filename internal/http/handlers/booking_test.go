package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mindora-health/mindora-platform/internal/booking"
)

type stubReserver struct {
	session *booking.Session
	err     error

	gotInput booking.ReserveInput
	gotKind  booking.Kind
	gotID    uuid.UUID
}

func (s *stubReserver) Reserve(ctx context.Context, input booking.ReserveInput) (*booking.Session, error) {
	s.gotInput = input
	return s.session, s.err
}

func (s *stubReserver) Reschedule(ctx context.Context, kind booking.Kind, id uuid.UUID, newDate, newTime string) (*booking.Session, error) {
	s.gotKind, s.gotID = kind, id
	return s.session, s.err
}

func (s *stubReserver) Cancel(ctx context.Context, kind booking.Kind, id uuid.UUID) (*booking.Session, error) {
	s.gotKind, s.gotID = kind, id
	return s.session, s.err
}

func bookingRouter(svc Reserver) http.Handler {
	h := NewBookingHandler(svc, nil)
	r := chi.NewRouter()
	r.Post("/bookings", h.Reserve)
	r.Post("/bookings/{bookingID}/reschedule", h.Reschedule)
	r.Post("/bookings/{bookingID}/cancel", h.Cancel)
	return r
}

func TestReserveCreated(t *testing.T) {
	stub := &stubReserver{session: &booking.Session{
		ID:         uuid.New(),
		ProviderID: "p1",
		ClientID:   "c1",
		Date:       "2025-01-10",
		StartTime:  "15:00",
		Status:     booking.StatusBooked,
		Kind:       booking.KindTherapy,
	}}
	router := bookingRouter(stub)

	body := `{"provider_id":"p1","client_id":"c1","date":"2025-01-10","time":"3:00 PM"}`
	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", rec.Code, rec.Body.String())
	}
	if stub.gotInput.Kind != booking.KindTherapy {
		t.Errorf("kind should default to therapy, got %q", stub.gotInput.Kind)
	}

	var got booking.Session
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.StartTime != "15:00" {
		t.Errorf("start_time = %q", got.StartTime)
	}
}

func TestReserveConflictIs409(t *testing.T) {
	router := bookingRouter(&stubReserver{err: &booking.ConflictError{Reason: "slot already booked"}})

	body := `{"provider_id":"p1","client_id":"c1","date":"2025-01-10","time":"15:00"}`
	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "slot already booked") {
		t.Errorf("conflict reason missing: %s", rec.Body.String())
	}
}

func TestReserveValidationIs400(t *testing.T) {
	router := bookingRouter(&stubReserver{err: &booking.ValidationError{Reason: "provider_id is required"}})

	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(`{"date":"2025-01-10","time":"15:00"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestReserveBadJSON(t *testing.T) {
	router := bookingRouter(&stubReserver{})

	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRescheduleNotFoundIs404(t *testing.T) {
	router := bookingRouter(&stubReserver{err: booking.ErrSessionNotFound})

	body := `{"kind":"therapy","date":"2025-01-12","time":"10:00"}`
	req := httptest.NewRequest(http.MethodPost, "/bookings/"+uuid.NewString()+"/reschedule", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRescheduleInvalidID(t *testing.T) {
	router := bookingRouter(&stubReserver{})

	req := httptest.NewRequest(http.MethodPost, "/bookings/not-a-uuid/reschedule", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCancelOK(t *testing.T) {
	id := uuid.New()
	stub := &stubReserver{session: &booking.Session{ID: id, Status: booking.StatusCancelled, Kind: booking.KindAssessment}}
	router := bookingRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/bookings/"+id.String()+"/cancel", strings.NewReader(`{"kind":"assessment"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	if stub.gotKind != booking.KindAssessment || stub.gotID != id {
		t.Errorf("kind/id not forwarded: %s %s", stub.gotKind, stub.gotID)
	}
}

func TestUnexpectedErrorIs500(t *testing.T) {
	router := bookingRouter(&stubReserver{err: errors.New("pool exhausted")})

	body := `{"provider_id":"p1","client_id":"c1","date":"2025-01-10","time":"15:00"}`
	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "pool exhausted") {
		t.Error("internal error details must not leak to clients")
	}
}
