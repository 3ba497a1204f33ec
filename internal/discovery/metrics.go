package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_discovery_runs_total",
			Help: "Total number of discovery runs",
		},
		[]string{"source", "status"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_discovery_duration_seconds",
			Help:    "Discovery run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	issuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_discovery_issues_total",
			Help: "Total number of discovery issues",
		},
		[]string{"severity", "phase"},
	)

	tablesDiscovered = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_discovery_tables",
			Help: "Number of tables found by the last discovery run of a source",
		},
		[]string{"source"},
	)
)

func recordMetrics(r *Result) {
	status := "success"
	if !r.IsSuccessful() {
		status = "failure"
	}
	runsTotal.WithLabelValues(r.Source, status).Inc()
	runDuration.WithLabelValues(r.Source).Observe(r.Duration.Seconds())
	tablesDiscovered.WithLabelValues(r.Source).Set(float64(len(r.Tables)))
	for _, i := range r.Issues {
		issuesTotal.WithLabelValues(string(i.Severity), string(i.Phase)).Inc()
	}
}
