package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for the reservation protocol.
type BookingMetrics struct {
	reservationsTotal *prometheus.CounterVec
	reschedulesTotal  *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindora",
			Subsystem: "booking",
			Name:      "reservations_total",
			Help:      "Total slot reservation attempts",
		}, []string{"kind", "status"}),
		reschedulesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindora",
			Subsystem: "booking",
			Name:      "reschedules_total",
			Help:      "Total session reschedule attempts",
		}, []string{"kind", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservationsTotal, m.reschedulesTotal)
	return m
}

func (m *BookingMetrics) ObserveReservation(kind, status string) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(kind, status).Inc()
}

func (m *BookingMetrics) ObserveReschedule(kind, status string) {
	if m == nil {
		return
	}
	m.reschedulesTotal.WithLabelValues(kind, status).Inc()
}

// CalendarMetrics counts busy-interval resolutions against the external
// calendar API.
type CalendarMetrics struct {
	fetchesTotal *prometheus.CounterVec
	cacheHits    prometheus.Counter
}

func NewCalendarMetrics(reg prometheus.Registerer) *CalendarMetrics {
	m := &CalendarMetrics{
		fetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindora",
			Subsystem: "gcal",
			Name:      "busy_fetches_total",
			Help:      "Busy-interval fetches against the calendar API",
		}, []string{"status"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mindora",
			Subsystem: "gcal",
			Name:      "busy_cache_hits_total",
			Help:      "Busy-interval reads served from the cache",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.fetchesTotal, m.cacheHits)
	return m
}

func (m *CalendarMetrics) ObserveFetch(status string) {
	if m == nil {
		return
	}
	m.fetchesTotal.WithLabelValues(status).Inc()
}

func (m *CalendarMetrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// SyncMetrics exposes counters/histograms for calendar sync passes.
type SyncMetrics struct {
	passesTotal    *prometheus.CounterVec
	providersTotal *prometheus.CounterVec
	passDuration   prometheus.Histogram
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		passesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindora",
			Subsystem: "sync",
			Name:      "passes_total",
			Help:      "Total scheduler passes",
		}, []string{"status"}),
		providersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindora",
			Subsystem: "sync",
			Name:      "providers_total",
			Help:      "Per-provider sync outcomes",
		}, []string{"status"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mindora",
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Duration of full scheduler passes",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.passesTotal, m.providersTotal, m.passDuration)
	return m
}

func (m *SyncMetrics) ObservePass(status string, seconds float64) {
	if m == nil {
		return
	}
	m.passesTotal.WithLabelValues(status).Inc()
	m.passDuration.Observe(seconds)
}

func (m *SyncMetrics) ObserveProvider(status string) {
	if m == nil {
		return
	}
	m.providersTotal.WithLabelValues(status).Inc()
}
