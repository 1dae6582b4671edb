package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/econcal/internal/batcher"
	"github.com/rickgao/econcal/internal/ingest"
	"github.com/rickgao/econcal/internal/stream"
	"github.com/rickgao/econcal/internal/surface"
)

const namespace = "econcal"

// Cycle outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeError        = "error"
	OutcomeNoValidRange = "no_valid_range"
)

// Metrics holds every collector econcal exports. All methods are safe for
// concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	cycles           *prometheus.CounterVec
	cycleRequests    prometheus.Histogram
	cycleDuration    prometheus.Histogram
	abandoned        prometheus.Counter
	surfaceNow       *prometheus.GaugeVec
	surfaceNext      *prometheus.GaugeVec
	surfaceEvents    *prometheus.GaugeVec
	surfaceRefreshes *prometheus.CounterVec
	subscribers      prometheus.Gauge
	dropped          prometheus.Counter
	ingestRuns       *prometheus.CounterVec
	ingestEvents     *prometheus.CounterVec
	ingestLastOK     prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "batcher",
		Name:      "cycles_total",
		Help:      "Batch cycles executed, by outcome",
	}, []string{"outcome"})
	m.cycleRequests = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "batcher",
		Name:      "requests_per_cycle",
		Help:      "Requests coalesced into one batch cycle",
		Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
	})
	m.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "batcher",
		Name:      "cycle_duration_seconds",
		Help:      "Time from timer fire to distribution, including the upstream query",
		Buckets:   prometheus.DefBuckets,
	})
	m.abandoned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "batcher",
		Name:      "abandoned_requests_total",
		Help:      "Requests rejected by Abandon or Close",
	})
	m.surfaceNow = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "surface",
		Name:      "now_events",
		Help:      "Events currently classified NOW",
	}, []string{"surface"})
	m.surfaceNext = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "surface",
		Name:      "next_events",
		Help:      "Events currently classified NEXT",
	}, []string{"surface"})
	m.surfaceEvents = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "surface",
		Name:      "events",
		Help:      "Events in the surface dataset",
	}, []string{"surface"})
	m.surfaceRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "surface",
		Name:      "refreshes_total",
		Help:      "Dataset refreshes, by outcome",
	}, []string{"surface", "outcome"})
	m.subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "subscribers",
		Help:      "Connected live-stream subscribers",
	})
	m.dropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "dropped_messages_total",
		Help:      "Snapshots dropped for slow subscribers",
	})
	m.ingestRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "runs_total",
		Help:      "Ingest runs, by outcome",
	}, []string{"outcome"})
	m.ingestEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Events handled by ingest, by result",
	}, []string{"result"})
	m.ingestLastOK = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful ingest run",
	})

	m.registry.MustRegister(
		m.cycles, m.cycleRequests, m.cycleDuration, m.abandoned,
		m.surfaceNow, m.surfaceNext, m.surfaceEvents, m.surfaceRefreshes,
		m.subscribers, m.dropped,
		m.ingestRuns, m.ingestEvents, m.ingestLastOK,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCycle implements batcher.Observer.
func (m *Metrics) ObserveCycle(requests int, elapsed time.Duration, err error) {
	outcome := OutcomeOK
	switch {
	case errors.Is(err, batcher.ErrNoValidRange):
		outcome = OutcomeNoValidRange
	case err != nil:
		outcome = OutcomeError
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleRequests.Observe(float64(requests))
	m.cycleDuration.Observe(elapsed.Seconds())
}

// ObserveAbandoned implements batcher.Observer.
func (m *Metrics) ObserveAbandoned(requests int) {
	m.abandoned.Add(float64(requests))
}

// ObserveClassification records a surface's latest NOW/NEXT counts.
func (m *Metrics) ObserveClassification(surface string, events, now, next int) {
	m.surfaceEvents.WithLabelValues(surface).Set(float64(events))
	m.surfaceNow.WithLabelValues(surface).Set(float64(now))
	m.surfaceNext.WithLabelValues(surface).Set(float64(next))
}

// ObserveRefresh records one surface dataset refresh.
func (m *Metrics) ObserveRefresh(surface string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.surfaceRefreshes.WithLabelValues(surface, outcome).Inc()
}

// SetSubscribers records the number of live-stream subscribers.
func (m *Metrics) SetSubscribers(n int) {
	m.subscribers.Set(float64(n))
}

// ObserveDropped counts snapshots dropped for a slow subscriber.
func (m *Metrics) ObserveDropped() {
	m.dropped.Inc()
}

// ObserveIngest records one ingest run.
func (m *Metrics) ObserveIngest(written, unchanged, skipped int, err error) {
	if err != nil {
		m.ingestRuns.WithLabelValues(OutcomeError).Inc()
		return
	}
	m.ingestRuns.WithLabelValues(OutcomeOK).Inc()
	m.ingestEvents.WithLabelValues("written").Add(float64(written))
	m.ingestEvents.WithLabelValues("unchanged").Add(float64(unchanged))
	m.ingestEvents.WithLabelValues("skipped").Add(float64(skipped))
	m.ingestLastOK.SetToCurrentTime()
}

var (
	_ batcher.Observer = (*Metrics)(nil)
	_ surface.Observer = (*Metrics)(nil)
	_ stream.Observer  = (*Metrics)(nil)
	_ ingest.Observer  = (*Metrics)(nil)
)
