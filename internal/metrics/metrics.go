// Package metrics exposes Prometheus collectors for the menu ingestion service.
package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingestRunsTotal            *prometheus.CounterVec
	ingestRunDurationSeconds   prometheus.Histogram
	ingestRunInProgress        prometheus.Gauge
	fetchTotal                 *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	mealsStoredTotal           *prometheus.CounterVec
	storageFailuresTotal       *prometheus.CounterVec
	emptyPagesTotal            *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to
// call more than once.
func Init() {
	once.Do(func() {
		ingestRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menu_ingest_runs_total",
				Help: "Ingestion runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		ingestRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "menu_ingest_run_duration_seconds",
				Help:    "Wall time of completed ingestion runs.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		ingestRunInProgress = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "menu_ingest_run_in_progress",
				Help: "1 while an ingestion run holds the run lock.",
			},
		)

		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menu_fetch_total",
				Help: "Menu page fetches, labeled by restaurant and status.",
			},
			[]string{"restaurant", "status"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "menu_fetch_duration_seconds",
				Help:    "Latency of menu page fetches, labeled by restaurant.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"restaurant"},
		)

		mealsStoredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menu_meals_stored_total",
				Help: "Menu items written, labeled by restaurant and meal type.",
			},
			[]string{"restaurant", "meal_type"},
		)

		storageFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menu_storage_failures_total",
				Help: "Failed replace transactions, labeled by restaurant.",
			},
			[]string{"restaurant"},
		)

		emptyPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menu_empty_pages_total",
				Help: "Fetched pages that yielded no menu items, labeled by restaurant.",
			},
			[]string{"restaurant"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "menu_fetch_rate_limit_delay_seconds",
				Help:    "Time fetches spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"host"},
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
	})
}

var restaurantCodePattern = regexp.MustCompile(`^re\d{1,3}$`)

// SanitizeRestaurant bounds label cardinality to well-formed restaurant codes.
// Anything else is reported as "unknown".
func SanitizeRestaurant(code string) string {
	if !restaurantCodePattern.MatchString(code) {
		return "unknown"
	}
	return code
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records a finished run. Outcome is one of completed, rejected,
// or canceled; duration is ignored for rejected runs.
func ObserveRun(outcome string, duration time.Duration) {
	ingestRunsTotal.WithLabelValues(outcome).Inc()
	if outcome != "rejected" {
		ingestRunDurationSeconds.Observe(duration.Seconds())
	}
}

// SetRunInProgress flips the in-progress gauge.
func SetRunInProgress(running bool) {
	if running {
		ingestRunInProgress.Set(1)
		return
	}
	ingestRunInProgress.Set(0)
}

// ObserveFetch records one page fetch.
func ObserveFetch(restaurant string, err error, duration time.Duration) {
	code := SanitizeRestaurant(restaurant)
	status := "ok"
	if err != nil {
		status = "error"
	}
	fetchTotal.WithLabelValues(code, status).Inc()
	fetchDurationSeconds.WithLabelValues(code).Observe(duration.Seconds())
}

// ObserveStored counts items written for one meal key.
func ObserveStored(restaurant, mealType string, n int) {
	if n <= 0 {
		return
	}
	mealsStoredTotal.WithLabelValues(SanitizeRestaurant(restaurant), mealType).Add(float64(n))
}

// ObserveStorageFailure counts a failed replace transaction.
func ObserveStorageFailure(restaurant string) {
	storageFailuresTotal.WithLabelValues(SanitizeRestaurant(restaurant)).Inc()
}

// ObserveEmptyPage counts a page that parsed to no items.
func ObserveEmptyPage(restaurant string) {
	emptyPagesTotal.WithLabelValues(SanitizeRestaurant(restaurant)).Inc()
}

// ObserveRateLimitDelay records time spent waiting for a fetch token.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
