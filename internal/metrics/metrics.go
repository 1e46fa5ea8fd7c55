package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "snapshots"

var (
	FetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Total number of per-task fetch transactions, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	FetchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of one per-task fetch transaction (seconds).",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	RefreshDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a full catalog refresh across all tasks (seconds).",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	RefreshTasksFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_tasks_failed_total",
			Help:      "Total number of tasks whose fetch transaction was rolled back during a refresh.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		FetchesTotal,
		FetchDurationSeconds,
		RefreshDurationSeconds,
		RefreshTasksFailedTotal,
	)
}
