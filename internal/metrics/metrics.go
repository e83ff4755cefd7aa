// Package metrics exposes Prometheus collectors for the finder service.
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

// Candidate outcomes.
const (
	OutcomeBlacklisted  = "blacklisted"
	OutcomeNameMismatch = "name_mismatch"
	OutcomeDuplicate    = "duplicate"
	OutcomeFetched      = "fetched"
	OutcomeFailed       = "failed"
)

var (
	finderCandidatesTotal      *prometheus.CounterVec
	finderSearchRequestsTotal  *prometheus.CounterVec
	finderBytesTotal           *prometheus.CounterVec
	finderLedgerSavesTotal     *prometheus.CounterVec
	finderRunsTotal            *prometheus.CounterVec
	finderActiveRuns           prometheus.Gauge
	finderRateLimitDelay       *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		finderCandidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finder_candidates_total",
				Help: "Total number of search candidates handled, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		finderSearchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finder_search_requests_total",
				Help: "Total number of search API calls, labeled by result.",
			},
			[]string{"result"},
		)

		finderBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finder_bytes_total",
				Help: "Total number of payload bytes stored, labeled by site.",
			},
			[]string{"site"},
		)

		finderLedgerSavesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finder_ledger_saves_total",
				Help: "Total number of ledger writes, labeled by result.",
			},
			[]string{"result"},
		)

		finderRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finder_runs_total",
				Help: "Total number of finished runs, labeled by status.",
			},
			[]string{"status"},
		)

		finderActiveRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "finder_active_runs",
				Help: "Number of runs currently executing.",
			},
		)

		finderRateLimitDelay = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finder_rate_limit_delay_seconds",
				Help:    "Time spent waiting for a rate limiter token, labeled by key.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"key"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method, route and code.",
			},
			[]string{"method", "route", "code"},
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

// ObserveCandidate counts a candidate by outcome.
func ObserveCandidate(outcome string) {
	Init()
	finderCandidatesTotal.WithLabelValues(outcome).Inc()
}

// ObserveStored adds the size of a stored payload.
func ObserveStored(site string, size int) {
	Init()
	if size > 0 {
		finderBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(size))
	}
}

// ObserveSearch counts a search API call; err decides the result label.
func ObserveSearch(err error) {
	Init()
	finderSearchRequestsTotal.WithLabelValues(result(err)).Inc()
}

// ObserveLedgerSave counts a ledger write.
func ObserveLedgerSave(err error) {
	Init()
	finderLedgerSavesTotal.WithLabelValues(result(err)).Inc()
}

// ObserveRun increments the run counter for the given status.
func ObserveRun(status string) {
	Init()
	finderRunsTotal.WithLabelValues(status).Inc()
}

// IncActiveRuns increments the active runs gauge.
func IncActiveRuns() {
	Init()
	finderActiveRuns.Inc()
}

// DecActiveRuns decrements the active runs gauge.
func DecActiveRuns() {
	Init()
	finderActiveRuns.Dec()
}

// ObserveRateLimitDelay records time spent waiting for a rate limiter.
func ObserveRateLimitDelay(key string, d time.Duration) {
	Init()
	finderRateLimitDelay.WithLabelValues(key).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
