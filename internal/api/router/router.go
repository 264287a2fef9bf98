// Package router assembles the HTTP surface of the booking platform.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mindora-health/mindora-platform/internal/http/handlers"
	httpmiddleware "github.com/mindora-health/mindora-platform/internal/http/middleware"
	"github.com/mindora-health/mindora-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	Availability *handlers.AvailabilityHandler
	Booking      *handlers.BookingHandler
	Sync         *handlers.SyncHandler

	MetricsHandler http.Handler

	AdminAuthSecret    string
	CORSAllowedOrigins []string

	// Requests/sec and burst per client IP; zero disables rate limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitPerSecond > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Availability != nil {
		r.Route("/providers/{providerID}", func(r chi.Router) {
			r.Get("/availability", cfg.Availability.GetAvailability)
			r.Put("/slots", cfg.Availability.UpsertSlots)
			r.Get("/blocks", cfg.Availability.ListBlocks)
			r.Put("/blocks", cfg.Availability.UpsertBlock)
			r.Delete("/blocks", cfg.Availability.DeleteBlock)
		})
	}

	if cfg.Booking != nil {
		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", cfg.Booking.Reserve)
			r.Post("/{bookingID}/reschedule", cfg.Booking.Reschedule)
			r.Post("/{bookingID}/cancel", cfg.Booking.Cancel)
		})
	}

	if cfg.Sync != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			r.Post("/sync", cfg.Sync.SyncAll)
			r.Post("/sync/{providerID}", cfg.Sync.SyncProvider)
		})
	}

	return r
}
