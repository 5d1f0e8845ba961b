// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingestRunsTotal                *prometheus.CounterVec
	ingestRowsInsertedTotal        prometheus.Counter
	providerRequestsTotal          *prometheus.CounterVec
	providerRequestDurationSeconds *prometheus.HistogramVec
	warehouseLoadDurationSeconds   prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		ingestRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_runs_total",
				Help: "Total number of ingestion runs, labeled by outcome.",
			},
			[]string{"status"},
		)

		ingestRowsInsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_rows_inserted_total",
				Help: "Total number of rows inserted into the warehouse.",
			},
		)

		providerRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_requests_total",
				Help: "Total number of analytics provider requests, labeled by endpoint and code.",
			},
			[]string{"endpoint", "code"},
		)

		providerRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "provider_request_duration_seconds",
				Help:    "Histogram of analytics provider request latencies, labeled by endpoint.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60},
			},
			[]string{"endpoint"},
		)

		warehouseLoadDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warehouse_load_duration_seconds",
				Help:    "Histogram of bulk load durations against the warehouse.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun increments the run counter for the given outcome.
func ObserveRun(status string) {
	Init()
	ingestRunsTotal.WithLabelValues(status).Inc()
}

// AddRowsInserted adds to the inserted-row counter.
func AddRowsInserted(n int) {
	Init()
	if n > 0 {
		ingestRowsInsertedTotal.Add(float64(n))
	}
}

// ObserveProviderRequest records a single provider request.
func ObserveProviderRequest(endpoint string, code int, duration time.Duration) {
	Init()
	providerRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	providerRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveWarehouseLoad records the duration of a bulk load.
func ObserveWarehouseLoad(duration time.Duration) {
	Init()
	warehouseLoadDurationSeconds.Observe(duration.Seconds())
}
