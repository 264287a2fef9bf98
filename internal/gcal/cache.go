package gcal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// busyCacheTTL bounds how stale a cached busy window may be. Availability
// reads are frequent and the calendar API is rate limited; a minute of
// staleness only delays slot removal, it never resurrects a booked slot.
const busyCacheTTL = time.Minute

// BusyCache is a short-lived redis cache of resolved busy intervals keyed by
// provider and window. Nil is a valid receiver and disables caching.
type BusyCache struct {
	redis *redis.Client
}

// NewBusyCache creates a cache; a nil client yields a disabled cache.
func NewBusyCache(client *redis.Client) *BusyCache {
	if client == nil {
		return nil
	}
	return &BusyCache{redis: client}
}

func busyKey(providerID string, from, to time.Time) string {
	return fmt.Sprintf("busy:%s:%d:%d", providerID, from.Unix(), to.Unix())
}

// Get returns the cached intervals for the window, or ok=false on miss.
func (c *BusyCache) Get(ctx context.Context, providerID string, from, to time.Time) ([]BusyInterval, bool) {
	if c == nil || c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, busyKey(providerID, from, to)).Bytes()
	if err != nil {
		return nil, false
	}
	var intervals []BusyInterval
	if err := json.Unmarshal(data, &intervals); err != nil {
		return nil, false
	}
	return intervals, true
}

// Put stores the intervals for the window; failures are silent, the cache is
// an optimization only.
func (c *BusyCache) Put(ctx context.Context, providerID string, from, to time.Time, intervals []BusyInterval) {
	if c == nil || c.redis == nil {
		return
	}
	data, err := json.Marshal(intervals)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, busyKey(providerID, from, to), data, busyCacheTTL).Err()
}

// Invalidate drops every cached window for the provider. Called after a sync
// pass mutates availability so reads see fresh intervals.
func (c *BusyCache) Invalidate(ctx context.Context, providerID string) {
	if c == nil || c.redis == nil {
		return
	}
	pattern := fmt.Sprintf("busy:%s:*", providerID)
	iter := c.redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		_ = c.redis.Del(ctx, iter.Val()).Err()
	}
}
