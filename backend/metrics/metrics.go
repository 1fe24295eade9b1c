package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// SummaryRequestsTotal counts summary cache lookups by outcome (hit, miss, shared, error).
	SummaryRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricemap",
		Subsystem: "summary",
		Name:      "requests_total",
		Help:      "Total number of entity summary lookups, labeled by result.",
	}, []string{"result"})

	SummaryFetchDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pricemap",
		Subsystem: "summary",
		Name:      "fetch_duration_seconds",
		Help:      "Time to fetch one entity summary from the source.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	// CollectionFetchesTotal counts map collection loads by collection and result.
	CollectionFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricemap",
		Subsystem: "map",
		Name:      "collection_fetches_total",
		Help:      "Total number of map collection fetches, labeled by collection and result.",
	}, []string{"collection", "result"})

	CollectionFetchDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pricemap",
		Subsystem: "map",
		Name:      "collection_fetch_duration_seconds",
		Help:      "Time to fetch a map collection from the source.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"collection"})

	// StaleResultsTotal counts fetch results dropped because a newer load was issued.
	StaleResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricemap",
		Subsystem: "map",
		Name:      "stale_results_total",
		Help:      "Total number of collection results discarded as stale.",
	}, []string{"collection"})

	RenderedMarkers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pricemap",
		Subsystem: "map",
		Name:      "rendered_markers",
		Help:      "Markers in the most recent render, labeled by kind.",
	}, []string{"kind"})

	ViewportFitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricemap",
		Subsystem: "map",
		Name:      "viewport_fits_total",
		Help:      "Total number of viewport fits, labeled by reason.",
	}, []string{"reason"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pricemap",
		Subsystem: "server",
		Name:      "active_sessions",
		Help:      "Number of open map sessions.",
	})
)

// Register registers pricemap metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SummaryRequestsTotal,
			SummaryFetchDurationSeconds,
			CollectionFetchesTotal,
			CollectionFetchDurationSeconds,
			StaleResultsTotal,
			RenderedMarkers,
			ViewportFitsTotal,
			ActiveSessions,
		)
	})
}
