// Package metrics exposes Prometheus collectors for the archiver.
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
	fetchOutcomesTotal         *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	remoteRequestsTotal        *prometheus.CounterVec
	pipelineActiveWorkers      prometheus.Gauge
	storeWritesTotal           *prometheus.CounterVec
	storeCommitsTotal          *prometheus.CounterVec
	admissionWaitSeconds       prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hn_fetch_outcomes_total",
				Help: "Total number of fetch outcomes, labeled by kind.",
			},
			[]string{"kind"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hn_fetch_duration_seconds",
				Help:    "Histogram of item fetch latencies, labeled by outcome kind.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"kind"},
		)

		remoteRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hn_remote_requests_total",
				Help: "Total number of HTTP requests sent to the remote API, labeled by endpoint and code.",
			},
			[]string{"endpoint", "code"},
		)

		pipelineActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "hn_pipeline_active_workers",
				Help: "Number of fetch workers currently running.",
			},
		)

		storeWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hn_store_writes_total",
				Help: "Total number of item writes, labeled by operation and result.",
			},
			[]string{"op", "result"},
		)

		storeCommitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hn_store_commits_total",
				Help: "Total number of batch commits, labeled by result.",
			},
			[]string{"result"},
		)

		admissionWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hn_admission_wait_seconds",
				Help:    "Histogram of time spent waiting on the remote admission limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
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
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch outcome and its latency.
func ObserveFetch(kind string, duration time.Duration) {
	Init()
	fetchOutcomesTotal.WithLabelValues(kind).Inc()
	fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveRemoteRequest counts one HTTP round trip to the remote API. A code of
// zero means the request never produced a response.
func ObserveRemoteRequest(endpoint string, code int) {
	Init()
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	remoteRequestsTotal.WithLabelValues(endpoint, label).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	pipelineActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	pipelineActiveWorkers.Dec()
}

// ObserveWrite counts an item insert or update.
func ObserveWrite(op string, ok bool) {
	Init()
	storeWritesTotal.WithLabelValues(op, result(ok)).Inc()
}

// ObserveCommit counts a batch commit.
func ObserveCommit(ok bool) {
	Init()
	storeCommitsTotal.WithLabelValues(result(ok)).Inc()
}

// ObserveAdmissionWait records the duration of an admission limiter wait.
func ObserveAdmissionWait(duration time.Duration) {
	Init()
	admissionWaitSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
