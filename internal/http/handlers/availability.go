package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mindora-health/mindora-platform/internal/availability"
	"github.com/mindora-health/mindora-platform/internal/timefmt"
	"github.com/mindora-health/mindora-platform/pkg/logging"
)

// SlotReader materializes bookable slots.
type SlotReader interface {
	FreeSlots(ctx context.Context, providerID, date string) ([]string, error)
	FreeSlotsRange(ctx context.Context, providerID, from, to string) (map[string][]string, error)
}

// RecordWriter manages persisted candidate-slot records.
type RecordWriter interface {
	UpsertSlots(ctx context.Context, providerID, date string, slots []string) error
	RemoveSlot(ctx context.Context, providerID, date, slot string) error
}

// BlockWriter manages weekly recurring blocks.
type BlockWriter interface {
	Upsert(ctx context.Context, block availability.RecurringBlock) error
	Delete(ctx context.Context, providerID string, dayOfWeek int) error
	ListByProvider(ctx context.Context, providerID string) ([]availability.RecurringBlock, error)
}

// AvailabilityHandler serves provider availability reads and schedule-shape
// writes.
type AvailabilityHandler struct {
	slots   SlotReader
	records RecordWriter
	blocks  BlockWriter
	logger  *logging.Logger
}

// NewAvailabilityHandler creates the availability handler.
func NewAvailabilityHandler(slots SlotReader, records RecordWriter, blocks BlockWriter, logger *logging.Logger) *AvailabilityHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityHandler{slots: slots, records: records, blocks: blocks, logger: logger}
}

// GetAvailability returns free slots for one date (?date=) or an inclusive
// range (?from=&to=).
// GET /providers/{providerID}/availability
func (h *AvailabilityHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	if providerID == "" {
		http.Error(w, "missing providerID", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	if date := query.Get("date"); date != "" {
		slots, err := h.slots.FreeSlots(r.Context(), providerID, date)
		if err != nil {
			h.logger.Error("availability read failed", "provider_id", providerID, "date", date, "error", err)
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"provider_id": providerID,
			"date":        date,
			"slots":       slots,
		})
		return
	}

	from, to := query.Get("from"), query.Get("to")
	if from == "" || to == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "provide date= or from= and to="})
		return
	}
	days, err := h.slots.FreeSlotsRange(r.Context(), providerID, from, to)
	if err != nil {
		h.logger.Error("availability range read failed", "provider_id", providerID, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider_id": providerID,
		"days":        days,
	})
}

type upsertSlotsRequest struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

// UpsertSlots replaces the candidate slots for one date. Slots are
// canonicalized here so stored records only ever carry "HH:MM"; an
// unparsable slot rejects the whole request.
// PUT /providers/{providerID}/slots
func (h *AvailabilityHandler) UpsertSlots(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	if providerID == "" {
		http.Error(w, "missing providerID", http.StatusBadRequest)
		return
	}

	var req upsertSlotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if _, err := time.Parse(time.DateOnly, req.Date); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date, want YYYY-MM-DD"})
		return
	}

	slots := make([]string, 0, len(req.Slots))
	seen := make(map[string]struct{}, len(req.Slots))
	for _, raw := range req.Slots {
		canonical, err := timefmt.Normalize(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unparsable slot %q", raw)})
			return
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		slots = append(slots, canonical)
	}
	slices.Sort(slots)

	if err := h.records.UpsertSlots(r.Context(), providerID, req.Date, slots); err != nil {
		h.logger.Error("slot upsert failed", "provider_id", providerID, "date", req.Date, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type upsertBlockRequest struct {
	DayOfWeek      int      `json:"day_of_week"`
	BlockEntireDay bool     `json:"block_entire_day"`
	Slots          []string `json:"slots"`
}

// UpsertBlock creates or replaces a weekly recurring block.
// PUT /providers/{providerID}/blocks
func (h *AvailabilityHandler) UpsertBlock(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	if providerID == "" {
		http.Error(w, "missing providerID", http.StatusBadRequest)
		return
	}

	var req upsertBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	block := availability.RecurringBlock{
		ProviderID:     providerID,
		DayOfWeek:      req.DayOfWeek,
		BlockEntireDay: req.BlockEntireDay,
		Slots:          req.Slots,
	}
	if err := h.blocks.Upsert(r.Context(), block); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type deleteBlockRequest struct {
	DayOfWeek int `json:"day_of_week"`
}

// DeleteBlock removes the recurring block for one weekday.
// DELETE /providers/{providerID}/blocks
func (h *AvailabilityHandler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	if providerID == "" {
		http.Error(w, "missing providerID", http.StatusBadRequest)
		return
	}

	var req deleteBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := h.blocks.Delete(r.Context(), providerID, req.DayOfWeek); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListBlocks returns the provider's recurring blocks.
// GET /providers/{providerID}/blocks
func (h *AvailabilityHandler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	if providerID == "" {
		http.Error(w, "missing providerID", http.StatusBadRequest)
		return
	}
	blocks, err := h.blocks.ListByProvider(r.Context(), providerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider_id": providerID, "blocks": blocks})
}
