package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for upstream calls and both pipelines.
type Metrics struct {
	// labels: source={elevation,elevation_grid,overpass,rainfall,forecast}, outcome={success,error}
	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec // labels: source

	AnalysesPersisted prometheus.Counter
	PersistFailures   *prometheus.CounterVec // labels: kind={analysis,prediction}
	AnalysisDuration  prometheus.Histogram

	Predictions *prometheus.CounterVec // labels: risk
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.AnalysesPersisted,
		m.PersistFailures,
		m.AnalysisDuration,
		m.Predictions,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "terrain_invest",
			Name:      "upstream_requests_total",
			Help:      "Upstream API calls by source and outcome.",
		}, []string{"source", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "terrain_invest",
			Name:      "upstream_duration_seconds",
			Help:      "Upstream API call duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}, []string{"source"}),
		AnalysesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "terrain_invest",
			Name:      "analyses_persisted_total",
			Help:      "Terrain analysis results written to the store.",
		}),
		PersistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "terrain_invest",
			Name:      "persist_failures_total",
			Help:      "Records that could not be written to the store.",
		}, []string{"kind"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "terrain_invest",
			Name:      "location_analysis_duration_seconds",
			Help:      "Time to fetch, score and persist one location.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "terrain_invest",
			Name:      "predictions_total",
			Help:      "Rainfall risk predictions by label.",
		}, []string{"risk"}),
	}
}
