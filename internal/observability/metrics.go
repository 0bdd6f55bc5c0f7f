package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geo_cascade"

// Metrics holds the Prometheus counters, histograms, and gauges for the cascade engine.
type Metrics struct {
	// Cascade fetch metrics, labelled by level={region,province,municipality}.
	FetchesIssued    *prometheus.CounterVec
	FetchesApplied   *prometheus.CounterVec
	FetchesDiscarded *prometheus.CounterVec
	FetchErrors      *prometheus.CounterVec
	FetchDuration    *prometheus.HistogramVec
	CascadeClears    *prometheus.CounterVec

	Navigations prometheus.Counter

	// Reverse resolution metrics.
	Resolutions     *prometheus.CounterVec // labels: outcome={success,not_found,hierarchy_not_found,transport_error,stale}
	ResolveDistance prometheus.Histogram

	// Name lookup metrics.
	NameRequests    *prometheus.CounterVec   // labels: provider, outcome={success,error,empty}
	NameCache       *prometheus.CounterVec   // labels: tier={memory,redis}, result={hit,miss}
	NameAPIDuration *prometheus.HistogramVec // labels: provider

	MapCommands    *prometheus.CounterVec // labels: command, outcome={ok,error}
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.FetchesIssued,
		m.FetchesApplied,
		m.FetchesDiscarded,
		m.FetchErrors,
		m.FetchDuration,
		m.CascadeClears,
		m.Navigations,
		m.Resolutions,
		m.ResolveDistance,
		m.NameRequests,
		m.NameCache,
		m.NameAPIDuration,
		m.MapCommands,
		m.ActiveSessions,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		FetchesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_issued_total",
			Help:      help("Candidate fetches issued by level."),
		}, []string{"level"}),
		FetchesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_applied_total",
			Help:      help("Candidate fetch results applied to state by level."),
		}, []string{"level"}),
		FetchesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_discarded_total",
			Help:      help("Stale candidate fetch results discarded on arrival by level."),
		}, []string{"level"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      help("Candidate fetches that failed with a transport error by level."),
		}, []string{"level"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      help("Candidate fetch duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"level"}),
		CascadeClears: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_clears_total",
			Help:      help("Descendant levels cleared by a forward selection change."),
		}, []string{"level"}),
		Navigations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigations_total",
			Help:      help("Fly-to and mark side effects emitted by municipality selection."),
		}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      help("Reverse resolutions by outcome."),
		}, []string{"outcome"}),
		ResolveDistance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_distance_meters",
			Help:      help("Distance between a placed marker and the centroid of the municipality it resolved to."),
			Buckets:   []float64{100, 500, 1000, 2500, 5000, 10000, 25000, 50000},
		}),
		NameRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "name_requests_total",
			Help:      help("Coordinate-to-name API requests by provider and outcome."),
		}, []string{"provider", "outcome"}),
		NameCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "name_cache_total",
			Help:      help("Name cache lookups by tier and result."),
		}, []string{"tier", "result"}),
		NameAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "name_api_duration_seconds",
			Help:      help("Coordinate-to-name API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"provider"}),
		MapCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "map_commands_total",
			Help:      help("Map side-effect commands published by command and outcome."),
		}, []string{"command", "outcome"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      help("Number of live cascade sessions."),
		}),
	}
}
