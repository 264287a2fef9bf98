package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mindora-health/mindora-platform/internal/http/handlers"
)

func TestHealthEndpoint(t *testing.T) {
	h := New(&Config{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != `{"status":"ok"}` {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestAdminRoutesRequireJWT(t *testing.T) {
	h := New(&Config{
		Sync:            handlers.NewSyncHandler(nil, nil),
		AdminAuthSecret: "secret",
	})

	req := httptest.NewRequest(http.MethodPost, "/admin/sync", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	h := New(&Config{})

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
