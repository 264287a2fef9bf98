package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBookingMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveReservation("therapy", "committed")
	m.ObserveReservation("therapy", "committed")
	m.ObserveReservation("assessment", "conflict")
	m.ObserveReschedule("therapy", "committed")

	if got := testutil.ToFloat64(m.reservationsTotal.WithLabelValues("therapy", "committed")); got != 2 {
		t.Fatalf("therapy committed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.reservationsTotal.WithLabelValues("assessment", "conflict")); got != 1 {
		t.Fatalf("assessment conflict = %v, want 1", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var b *BookingMetrics
	var s *SyncMetrics
	var c *CalendarMetrics
	b.ObserveReservation("therapy", "committed")
	b.ObserveReschedule("therapy", "conflict")
	s.ObservePass("ok", 1.5)
	s.ObserveProvider("synced")
	c.ObserveFetch("ok")
	c.ObserveCacheHit()
}

func TestCalendarMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCalendarMetrics(reg)

	m.ObserveFetch("ok")
	m.ObserveFetch("expired")
	m.ObserveCacheHit()

	if got := testutil.ToFloat64(m.fetchesTotal.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok fetches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.cacheHits); got != 1 {
		t.Fatalf("cache hits = %v, want 1", got)
	}
}

func TestSyncMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)

	m.ObservePass("ok", 0.25)
	m.ObserveProvider("synced")
	m.ObserveProvider("skipped")

	if got := testutil.ToFloat64(m.providersTotal.WithLabelValues("synced")); got != 1 {
		t.Fatalf("synced = %v, want 1", got)
	}
}
