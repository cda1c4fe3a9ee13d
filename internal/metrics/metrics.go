package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the dashboard backend.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FetchTotal    *prometheus.CounterVec // labels: indicator, outcome=ok|error
	FetchDur      prometheus.Histogram
	CacheLookups  *prometheus.CounterVec // labels: result=hit|miss
	CacheEntries  prometheus.Gauge
	RenderDur     *prometheus.HistogramVec // labels: freq
	DegradedTotal *prometheus.CounterVec   // labels: indicator
	SnapshotSaves *prometheus.CounterVec   // labels: outcome
}

// NewMetrics registers and returns all metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canary_fetch_total",
			Help: "Raw series fetches from the data source",
		}, []string{"indicator", "outcome"}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "canary_fetch_duration_seconds",
			Help:    "Latency of a single raw series fetch",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canary_cache_lookups_total",
			Help: "Series store lookups by result",
		}, []string{"result"}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canary_cache_entries",
			Help: "Raw series currently held by the series store",
		}),
		RenderDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "canary_render_duration_seconds",
			Help:    "Resample, transform and window latency per dashboard request",
			Buckets: prometheus.DefBuckets,
		}, []string{"freq"}),
		DegradedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canary_degraded_indicators_total",
			Help: "Indicators omitted from a render because their series was unavailable",
		}, []string{"indicator"}),
		SnapshotSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canary_snapshot_saves_total",
			Help: "Snapshot persistence attempts by outcome",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.FetchTotal,
		m.FetchDur,
		m.CacheLookups,
		m.CacheEntries,
		m.RenderDur,
		m.DegradedTotal,
		m.SnapshotSaves,
	)
	return m
}

func (m *Metrics) ObserveFetch(indicator string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.FetchDur.Observe(d.Seconds())
	m.FetchTotal.WithLabelValues(indicator, outcome(err)).Inc()
}

func (m *Metrics) CacheHit(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.CacheLookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

func (m *Metrics) ObserveRender(freq string, d time.Duration) {
	if m == nil {
		return
	}
	m.RenderDur.WithLabelValues(freq).Observe(d.Seconds())
}

func (m *Metrics) Degraded(indicator string) {
	if m == nil {
		return
	}
	m.DegradedTotal.WithLabelValues(indicator).Inc()
}

func (m *Metrics) SnapshotSaved(err error) {
	if m == nil {
		return
	}
	m.SnapshotSaves.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
