package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the application's Prometheus instruments.
type Collector struct {
	RefreshCyclesTotal      prometheus.Counter
	CycleDuration           prometheus.Histogram
	FetchErrorsTotal        *prometheus.CounterVec
	SamplesUpsertedTotal    prometheus.Counter
	SamplesEvictedTotal     prometheus.Counter
	ProviderRequestDuration prometheus.Histogram
	APIRequestsTotal        *prometheus.CounterVec
}

// NewCollector registers the instruments on the default registry.
func NewCollector(namespace string) *Collector {
	return &Collector{
		RefreshCyclesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_cycles_total",
				Help:      "Total number of completed refresh cycles",
			},
		),

		CycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refresh_cycle_duration_seconds",
				Help:      "Duration of one full refresh cycle in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
		),

		FetchErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_errors_total",
				Help:      "Total number of failed per-city forecast fetches",
			},
			[]string{"city"},
		),

		SamplesUpsertedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "samples_upserted_total",
				Help:      "Total number of forecast samples written to the store",
			},
		),

		SamplesEvictedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "samples_evicted_total",
				Help:      "Total number of samples removed by the retention sweep",
			},
		),

		ProviderRequestDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Duration of forecast provider requests in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),

		APIRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by path, method and status",
			},
			[]string{"path", "method", "status"},
		),
	}
}
