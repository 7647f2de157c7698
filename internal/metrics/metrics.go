// Package metrics exposes Prometheus collectors for the collection pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pageFetchesTotal           *prometheus.CounterVec
	pageBytesTotal             *prometheus.CounterVec
	recordsCollectedTotal      *prometheus.CounterVec
	itemsSkippedTotal          *prometheus.CounterVec
	cacheLookupsTotal          *prometheus.CounterVec
	storeOperationsTotal       *prometheus.CounterVec
	refreshDurationSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pageFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "legis_page_fetches_total",
				Help: "Upstream page fetches, labeled by source, page kind and result.",
			},
			[]string{"source", "kind", "result"},
		)

		pageBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "legis_page_bytes_total",
				Help: "Bytes fetched from upstream, labeled by site.",
			},
			[]string{"site"},
		)

		recordsCollectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "legis_records_collected_total",
				Help: "Records produced by a collection run, labeled by source.",
			},
			[]string{"source"},
		)

		itemsSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "legis_items_skipped_total",
				Help: "Detail items dropped during a scrape, labeled by source and reason.",
			},
			[]string{"source", "reason"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "legis_cache_lookups_total",
				Help: "Cache-aside reads, labeled by source and result (hit or miss).",
			},
			[]string{"source", "result"},
		)

		storeOperationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "legis_store_operations_total",
				Help: "Persistence operations, labeled by operation and status.",
			},
			[]string{"op", "status"},
		)

		refreshDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "legis_refresh_duration_seconds",
				Help:    "Duration of a per-source collection run.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"source"},
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

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "legis_rate_limit_delay_seconds",
				Help:    "Histogram of politeness wait durations.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"limiter", "host"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePageFetch records one upstream fetch. kind is "listing", "detail" or "api".
func ObservePageFetch(source, kind, rawURL string, bytesFetched int, err error) {
	Init()
	result := "ok"
	if err != nil {
		result = "error"
	}
	pageFetchesTotal.WithLabelValues(source, kind, result).Inc()
	if bytesFetched > 0 {
		pageBytesTotal.WithLabelValues(SanitizeSite(rawURL)).Add(float64(bytesFetched))
	}
}

// ObserveSkipped counts a dropped detail item.
func ObserveSkipped(source, reason string) {
	Init()
	itemsSkippedTotal.WithLabelValues(source, reason).Inc()
}

// ObserveCollected records the outcome of one per-source collection run.
func ObserveCollected(source string, count int, duration time.Duration) {
	Init()
	recordsCollectedTotal.WithLabelValues(source).Add(float64(count))
	refreshDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveCacheLookup counts a cache-aside read.
func ObserveCacheLookup(source string, hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(source, result).Inc()
}

// ObserveStoreOp counts a persistence call.
func ObserveStoreOp(op string, err error) {
	Init()
	status := "ok"
	if err != nil {
		status = "error"
	}
	storeOperationsTotal.WithLabelValues(op, status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(limiter, host string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(limiter, host).Observe(duration.Seconds())
}
