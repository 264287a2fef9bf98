// Package sync reconciles persisted availability records against providers'
// external calendars on a fixed cadence.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mindora-health/mindora-platform/internal/availability"
	"github.com/mindora-health/mindora-platform/internal/gcal"
	"github.com/mindora-health/mindora-platform/internal/observability/metrics"
	"github.com/mindora-health/mindora-platform/internal/timefmt"
	"github.com/mindora-health/mindora-platform/pkg/logging"
)

var schedulerTracer = otel.Tracer("mindora.internal.sync")

// ErrPassInProgress is returned when a pass is requested while another is
// still running.
var ErrPassInProgress = errors.New("sync: pass already in progress")

// BusySource resolves a provider's blocking calendar intervals.
type BusySource interface {
	BusyIntervals(ctx context.Context, providerID string, from, to time.Time) ([]gcal.BusyInterval, error)
	InvalidateCache(ctx context.Context, providerID string)
}

// ProviderSource lists providers with a usable calendar connection.
type ProviderSource interface {
	ListConnected(ctx context.Context) ([]string, error)
}

// RecordSource reads and prunes availability records.
type RecordSource interface {
	ListRange(ctx context.Context, providerID, from, to string) ([]availability.Record, error)
	RemoveSlotsBatch(ctx context.Context, providerID string, removals map[string][]string) error
}

// Summary reports the outcome of one full pass.
type Summary struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Expired int `json:"expired"`
}

// Scheduler runs periodic reconciliation passes. Passes never overlap: a tick
// arriving mid-pass is dropped. Per-provider sync times live in memory only,
// so a restart simply re-syncs everyone on the first pass.
type Scheduler struct {
	busy      BusySource
	providers ProviderSource
	records   RecordSource

	windowDays int
	cooldown   time.Duration
	batchSize  int
	batchPause time.Duration
	loc        *time.Location

	tick <-chan time.Time
	stop func()
	now  func() time.Time

	running  atomic.Bool
	mu       sync.Mutex
	lastSync map[string]time.Time

	metrics *metrics.SyncMetrics
	logger  *logging.Logger
}

// SchedulerConfig wires the scheduler. Tick/Stop override the internal ticker
// for tests; Now overrides the clock.
type SchedulerConfig struct {
	Busy      BusySource
	Providers ProviderSource
	Records   RecordSource

	Interval   time.Duration
	WindowDays int
	Cooldown   time.Duration
	BatchSize  int
	BatchPause time.Duration
	Location   *time.Location

	Tick <-chan time.Time
	Stop func()
	Now  func() time.Time

	Metrics *metrics.SyncMetrics
	Logger  *logging.Logger
}

// NewScheduler creates a sync scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Busy == nil {
		return nil, errors.New("sync: busy source required")
	}
	if cfg.Providers == nil {
		return nil, errors.New("sync: provider source required")
	}
	if cfg.Records == nil {
		return nil, errors.New("sync: record source required")
	}

	windowDays := cfg.WindowDays
	if windowDays <= 0 {
		windowDays = 14
	}
	if windowDays > 60 {
		windowDays = 60
	}

	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 3
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	tick := cfg.Tick
	stop := cfg.Stop
	if tick == nil {
		interval := cfg.Interval
		if interval <= 0 {
			interval = 15 * time.Minute
		}
		ticker := time.NewTicker(interval)
		tick = ticker.C
		stop = ticker.Stop
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Scheduler{
		busy:       cfg.Busy,
		providers:  cfg.Providers,
		records:    cfg.Records,
		windowDays: windowDays,
		cooldown:   cooldown,
		batchSize:  batchSize,
		batchPause: cfg.BatchPause,
		loc:        loc,
		tick:       tick,
		stop:       stop,
		now:        now,
		lastSync:   make(map[string]time.Time),
		metrics:    cfg.Metrics,
		logger:     logger,
	}, nil
}

// Start runs an immediate pass, then one per tick until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer func() {
		if s.stop != nil {
			s.stop()
		}
	}()

	if _, err := s.SyncAll(ctx); err != nil && !errors.Is(err, ErrPassInProgress) {
		s.logger.Error("sync: initial pass failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.tick:
			if _, err := s.SyncAll(ctx); err != nil {
				if errors.Is(err, ErrPassInProgress) {
					s.logger.Warn("sync: tick dropped, previous pass still running")
					continue
				}
				s.logger.Error("sync: pass failed", "error", err)
			}
		}
	}
}

// SyncAll runs one reconciliation pass over every connected provider.
// Providers synced within the cooldown window are skipped; expired calendar
// connections are counted but never abort the pass.
func (s *Scheduler) SyncAll(ctx context.Context) (Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Summary{}, ErrPassInProgress
	}
	defer s.running.Store(false)

	ctx, span := schedulerTracer.Start(ctx, "sync.pass")
	defer span.End()

	started := s.now()
	providerIDs, err := s.providers.ListConnected(ctx)
	if err != nil {
		s.metrics.ObservePass("error", s.now().Sub(started).Seconds())
		return Summary{}, fmt.Errorf("sync: list providers: %w", err)
	}

	var (
		summary   Summary
		summaryMu sync.Mutex
	)
	for start := 0; start < len(providerIDs); start += s.batchSize {
		end := min(start+s.batchSize, len(providerIDs))

		var wg sync.WaitGroup
		for _, providerID := range providerIDs[start:end] {
			if !s.cooldownElapsed(providerID) {
				summaryMu.Lock()
				summary.Skipped++
				summaryMu.Unlock()
				s.metrics.ObserveProvider("skipped")
				continue
			}

			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				status := s.syncOne(ctx, id)
				summaryMu.Lock()
				switch status {
				case "synced":
					summary.Synced++
				case "expired":
					summary.Expired++
				default:
					summary.Failed++
				}
				summaryMu.Unlock()
				s.metrics.ObserveProvider(status)
			}(providerID)
		}
		wg.Wait()

		if end < len(providerIDs) && s.batchPause > 0 {
			select {
			case <-ctx.Done():
				s.metrics.ObservePass("cancelled", s.now().Sub(started).Seconds())
				return summary, ctx.Err()
			case <-time.After(s.batchPause):
			}
		}
	}

	span.SetAttributes(
		attribute.Int("mindora.sync.synced", summary.Synced),
		attribute.Int("mindora.sync.skipped", summary.Skipped),
		attribute.Int("mindora.sync.failed", summary.Failed),
	)
	s.metrics.ObservePass("ok", s.now().Sub(started).Seconds())
	s.logger.Info("sync: pass complete",
		"synced", summary.Synced,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"expired", summary.Expired,
	)
	return summary, nil
}

// SyncProvider reconciles a single provider immediately, ignoring the
// cooldown. Used by the admin trigger endpoint.
func (s *Scheduler) SyncProvider(ctx context.Context, providerID string) error {
	switch status := s.syncOne(ctx, providerID); status {
	case "synced":
		s.metrics.ObserveProvider(status)
		return nil
	case "expired":
		s.metrics.ObserveProvider(status)
		return gcal.ErrConnectionExpired
	default:
		s.metrics.ObserveProvider(status)
		return fmt.Errorf("sync: provider %s sync failed", providerID)
	}
}

// syncOne fetches the provider's busy intervals over the sync window, removes
// every overlapped slot from their availability records in one batched write,
// and invalidates the busy cache. It returns a status label.
func (s *Scheduler) syncOne(ctx context.Context, providerID string) string {
	dayStart := s.now().In(s.loc)
	from := time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day(), 0, 0, 0, 0, s.loc)
	to := from.AddDate(0, 0, s.windowDays)

	intervals, err := s.busy.BusyIntervals(ctx, providerID, from, to)
	if err != nil {
		if errors.Is(err, gcal.ErrConnectionExpired) {
			s.logger.Warn("sync: calendar connection expired", "provider_id", providerID)
			return "expired"
		}
		if errors.Is(err, gcal.ErrNotConnected) {
			return "skipped"
		}
		s.logger.Error("sync: busy interval fetch failed", "provider_id", providerID, "error", err)
		return "failed"
	}

	records, err := s.records.ListRange(ctx, providerID,
		from.Format(time.DateOnly), to.AddDate(0, 0, -1).Format(time.DateOnly))
	if err != nil {
		s.logger.Error("sync: record load failed", "provider_id", providerID, "error", err)
		return "failed"
	}

	// Stored slots may still carry legacy formats; the overlap test needs
	// the canonical form, but removal must target the raw stored value.
	removals := make(map[string][]string)
	for _, record := range records {
		for _, slot := range record.TimeSlots {
			canonical, err := timefmt.Normalize(slot)
			if err != nil {
				s.logger.Warn("sync: unparsable stored slot", "provider_id", providerID, "date", record.Date, "slot", slot)
				continue
			}
			for _, interval := range intervals {
				if interval.BlocksSlot(record.Date, canonical, availability.SlotDuration, s.loc) {
					removals[record.Date] = append(removals[record.Date], slot)
					break
				}
			}
		}
	}

	if err := s.records.RemoveSlotsBatch(ctx, providerID, removals); err != nil {
		s.logger.Error("sync: record prune failed", "provider_id", providerID, "error", err)
		return "failed"
	}
	s.busy.InvalidateCache(ctx, providerID)
	s.recordSync(providerID)

	if len(removals) > 0 {
		s.logger.Info("sync: provider reconciled", "provider_id", providerID, "dates_pruned", len(removals))
	}
	return "synced"
}

func (s *Scheduler) cooldownElapsed(providerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastSync[providerID]
	return !ok || s.now().Sub(last) >= s.cooldown
}

func (s *Scheduler) recordSync(providerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync[providerID] = s.now()
}
