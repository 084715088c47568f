// Package metrics exposes Prometheus collectors for the scanner service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scansTotal                 *prometheus.CounterVec
	placesProcessedTotal       prometheus.Counter
	placesSkippedTotal         *prometheus.CounterVec
	providerRequestsTotal      *prometheus.CounterVec
	providerPauseSeconds       prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	workerBusy                 prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scansTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscan_scans_total",
				Help: "Total number of scans finished, labeled by terminal status.",
			},
			[]string{"status"},
		)

		placesProcessedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadscan_places_processed_total",
				Help: "Total number of places that passed filters and were recorded.",
			},
		)

		placesSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscan_places_skipped_total",
				Help: "Total number of candidates skipped, labeled by reason.",
			},
			[]string{"reason"},
		)

		providerRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscan_provider_requests_total",
				Help: "Total requests issued to the place-search provider, labeled by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		)

		providerPauseSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadscan_provider_pause_seconds",
				Help:    "Histogram of delays spent waiting on provider pacing.",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		workerBusy = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadscan_worker_busy",
				Help: "1 while the worker is executing a scan, 0 otherwise.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScanFinished increments the scan counter for a terminal status.
func ObserveScanFinished(status string) {
	Init()
	scansTotal.WithLabelValues(status).Inc()
}

// ObservePlaceProcessed counts one recorded place.
func ObservePlaceProcessed() {
	Init()
	placesProcessedTotal.Inc()
}

// ObservePlaceSkipped counts one skipped candidate.
func ObservePlaceSkipped(reason string) {
	Init()
	placesSkippedTotal.WithLabelValues(reason).Inc()
}

// ObserveProviderRequest counts one provider request.
func ObserveProviderRequest(endpoint, outcome string) {
	Init()
	providerRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveProviderPause records time spent waiting between provider calls.
func ObserveProviderPause(d time.Duration) {
	Init()
	providerPauseSeconds.Observe(d.Seconds())
}

// SetWorkerBusy flips the worker gauge.
func SetWorkerBusy(busy bool) {
	Init()
	if busy {
		workerBusy.Set(1)
		return
	}
	workerBusy.Set(0)
}

// ObserveHTTPRequest records request count and latency for the API.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, httpStatusLabel(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}

func httpStatusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
