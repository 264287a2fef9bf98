package gcal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mindora-health/mindora-platform/internal/observability/metrics"
	"github.com/mindora-health/mindora-platform/pkg/logging"
)

var resolverTracer = otel.Tracer("mindora.internal.gcal")

// DefaultSystemEventMarkers are title fragments of events this platform writes
// into provider calendars. Those events already correspond to a booking row,
// so counting them as busy would double-block the slot. Matching on branded
// text is a heuristic: a renamed event reverts to blocking, which is the safe
// direction.
var DefaultSystemEventMarkers = []string{
	"mindora therapy session",
	"mindora assessment",
}

// ConnectionSource is the slice of the connection store the resolver needs;
// it allows injecting stubs in tests.
type ConnectionSource interface {
	Get(ctx context.Context, providerID string) (Connection, error)
	SaveTokens(ctx context.Context, conn Connection) error
	MarkNeedsReconnect(ctx context.Context, providerID string) error
}

// Resolver fetches and classifies a provider's busy intervals.
type Resolver struct {
	client        Client
	connections   ConnectionSource
	cache         *BusyCache
	systemMarkers []string
	metrics       *metrics.CalendarMetrics
	logger        *logging.Logger
}

// ResolverConfig wires the resolver's collaborators.
type ResolverConfig struct {
	Client        Client
	Connections   ConnectionSource
	Cache         *BusyCache
	SystemMarkers []string
	Metrics       *metrics.CalendarMetrics
	Logger        *logging.Logger
}

// NewResolver creates a busy-interval resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Client == nil {
		return nil, errors.New("gcal: resolver requires a calendar client")
	}
	if cfg.Connections == nil {
		return nil, errors.New("gcal: resolver requires a connection store")
	}
	source := cfg.SystemMarkers
	if len(source) == 0 {
		source = DefaultSystemEventMarkers
	}
	markers := make([]string, len(source))
	for i, marker := range source {
		markers[i] = strings.ToLower(marker)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{
		client:        cfg.Client,
		connections:   cfg.Connections,
		cache:         cfg.Cache,
		systemMarkers: markers,
		metrics:       cfg.Metrics,
		logger:        logger,
	}, nil
}

// BusyIntervals returns the blocking intervals for the provider over
// [from, to). A rejected access token triggers exactly one refresh + retry;
// a dead refresh token surfaces ErrConnectionExpired after flagging the
// connection for reconnection. ErrNotConnected means the provider never
// linked a calendar.
func (r *Resolver) BusyIntervals(ctx context.Context, providerID string, from, to time.Time) ([]BusyInterval, error) {
	ctx, span := resolverTracer.Start(ctx, "gcal.busy_intervals")
	defer span.End()
	span.SetAttributes(attribute.String("mindora.provider_id", providerID))

	if cached, ok := r.cache.Get(ctx, providerID, from, to); ok {
		span.SetAttributes(attribute.Bool("mindora.cache_hit", true))
		r.metrics.ObserveCacheHit()
		return cached, nil
	}

	conn, err := r.connections.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if conn.NeedsReconnect {
		return nil, ErrConnectionExpired
	}

	events, err := r.fetchWithRefresh(ctx, conn, from, to)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrConnectionExpired) {
			r.metrics.ObserveFetch("expired")
		} else {
			r.metrics.ObserveFetch("error")
		}
		return nil, err
	}
	r.metrics.ObserveFetch("ok")

	intervals := make([]BusyInterval, 0, len(events))
	for _, event := range events {
		if !r.blocks(event) {
			continue
		}
		intervals = append(intervals, BusyInterval{
			Start:  event.Start,
			End:    event.End,
			Title:  event.Title,
			Status: event.Status,
		})
	}

	r.cache.Put(ctx, providerID, from, to, intervals)
	return intervals, nil
}

// fetchWithRefresh lists events, refreshing the access token at most once.
func (r *Resolver) fetchWithRefresh(ctx context.Context, conn Connection, from, to time.Time) ([]Event, error) {
	events, err := r.client.ListEvents(ctx, conn, from, to)
	if !errors.Is(err, ErrUnauthorized) {
		return events, err
	}

	refreshed, refreshErr := r.client.Refresh(ctx, conn)
	if refreshErr != nil {
		if errors.Is(refreshErr, ErrConnectionExpired) {
			if markErr := r.connections.MarkNeedsReconnect(ctx, conn.ProviderID); markErr != nil {
				r.logger.Error("gcal: failed to flag expired connection", "provider_id", conn.ProviderID, "error", markErr)
			}
			r.logger.Warn("gcal: calendar connection expired", "provider_id", conn.ProviderID)
			return nil, ErrConnectionExpired
		}
		return nil, fmt.Errorf("gcal: refresh after 401: %w", refreshErr)
	}

	// New tokens are persisted best-effort; a lost update only costs another
	// refresh on the next fetch.
	if saveErr := r.connections.SaveTokens(ctx, refreshed); saveErr != nil {
		r.logger.Warn("gcal: failed to persist refreshed tokens", "provider_id", conn.ProviderID, "error", saveErr)
	}

	return r.client.ListEvents(ctx, refreshed, from, to)
}

// InvalidateCache drops cached busy windows for the provider, used after a
// sync pass mutates availability records.
func (r *Resolver) InvalidateCache(ctx context.Context, providerID string) {
	r.cache.Invalidate(ctx, providerID)
}

// blocks classifies a single event. Cancelled events, holiday/observance
// titles, and the platform's own system events are exempt; everything else —
// including events with no known correspondence — blocks.
func (r *Resolver) blocks(event Event) bool {
	if strings.EqualFold(event.Status, EventStatusCancelled) {
		return false
	}
	if matchesHolidayVocabulary(event.Title) {
		return false
	}
	lower := strings.ToLower(event.Title)
	for _, marker := range r.systemMarkers {
		if strings.Contains(lower, marker) {
			r.logger.Debug("gcal: skipping system event", "title", event.Title)
			return false
		}
	}
	return true
}
