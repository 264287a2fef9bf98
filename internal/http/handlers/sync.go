package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mindora-health/mindora-platform/internal/gcal"
	sched "github.com/mindora-health/mindora-platform/internal/sync"
	"github.com/mindora-health/mindora-platform/pkg/logging"
)

// Syncer triggers calendar reconciliation on demand.
type Syncer interface {
	SyncAll(ctx context.Context) (sched.Summary, error)
	SyncProvider(ctx context.Context, providerID string) error
}

// SyncHandler exposes admin-only manual sync triggers.
type SyncHandler struct {
	scheduler Syncer
	logger    *logging.Logger
}

// NewSyncHandler creates the sync handler.
func NewSyncHandler(scheduler Syncer, logger *logging.Logger) *SyncHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SyncHandler{scheduler: scheduler, logger: logger}
}

// SyncAll runs a full reconciliation pass and reports the outcome.
// POST /admin/sync
func (h *SyncHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.scheduler.SyncAll(r.Context())
	if err != nil {
		if errors.Is(err, sched.ErrPassInProgress) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "a sync pass is already running"})
			return
		}
		h.logger.Error("manual sync pass failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sync pass failed"})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// SyncProvider reconciles one provider immediately, bypassing the cooldown.
// POST /admin/sync/{providerID}
func (h *SyncHandler) SyncProvider(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	if providerID == "" {
		http.Error(w, "missing providerID", http.StatusBadRequest)
		return
	}

	if err := h.scheduler.SyncProvider(r.Context(), providerID); err != nil {
		if errors.Is(err, gcal.ErrConnectionExpired) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "calendar connection expired, provider must reconnect",
			})
			return
		}
		h.logger.Error("manual provider sync failed", "provider_id", providerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "provider sync failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced", "provider_id": providerID})
}
