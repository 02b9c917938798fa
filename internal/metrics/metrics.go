// Package metrics exposes Prometheus collectors for the report client.
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

// Poll modes used as label values.
const (
	ModeForeground = "foreground"
	ModeBackground = "background"
)

// Poll outcomes used as label values.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeMalformed = "malformed"
)

var (
	backendRequestsTotal          *prometheus.CounterVec
	backendRequestDurationSeconds *prometheus.HistogramVec
	pollsTotal                    *prometheus.CounterVec
	trackedJobs                   prometheus.Gauge
	jobsFinishedTotal             *prometheus.CounterVec
	apiRequestsTotal              *prometheus.CounterVec
	apiRequestDurationSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		backendRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "georeport_backend_requests_total",
				Help: "Total number of analysis backend requests, labeled by endpoint and code.",
			},
			[]string{"endpoint", "code"},
		)

		backendRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "georeport_backend_request_duration_seconds",
				Help:    "Histogram of analysis backend latencies, labeled by endpoint.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"endpoint"},
		)

		pollsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "georeport_status_polls_total",
				Help: "Total number of status polls, labeled by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		trackedJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "georeport_tracked_jobs",
				Help: "Number of jobs currently held by the background tracker.",
			},
		)

		jobsFinishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "georeport_jobs_finished_total",
				Help: "Total number of analyses observed reaching a terminal state, labeled by mode and status.",
			},
			[]string{"mode", "status"},
		)

		apiRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "georeport_api_requests_total",
				Help: "Total number of tracker API requests, labeled by method, route pattern and code.",
			},
			[]string{"method", "route", "code"},
		)

		apiRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "georeport_api_request_duration_seconds",
				Help:    "Histogram of tracker API latencies, labeled by method and route pattern.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// EndpointLabel reduces a backend request URL to a low-cardinality endpoint label.
// Analysis IDs in the path are replaced with a placeholder and "unknown" is
// returned for unparseable input.
func EndpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "unknown"
	}
	p := strings.TrimSuffix(u.Path, "/")
	for _, prefix := range []string{"/analysis-status/", "/analysis/"} {
		if strings.HasPrefix(p, prefix) && len(p) > len(prefix) {
			return prefix + "{id}"
		}
	}
	if p == "" {
		return "/"
	}
	return p
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveBackendRequest records one backend round trip. A code of 0 means the
// request failed before a response arrived.
func ObserveBackendRequest(endpoint string, code int, duration time.Duration) {
	Init()
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	backendRequestsTotal.WithLabelValues(endpoint, label).Inc()
	if code > 0 {
		backendRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
	}
}

// ObservePoll increments the poll counter.
func ObservePoll(mode, outcome string) {
	Init()
	pollsTotal.WithLabelValues(mode, outcome).Inc()
}

// SetTrackedJobs sets the tracked jobs gauge.
func SetTrackedJobs(n int) {
	Init()
	trackedJobs.Set(float64(n))
}

// ObserveJobFinished increments the terminal outcome counter.
func ObserveJobFinished(mode, status string) {
	Init()
	jobsFinishedTotal.WithLabelValues(mode, status).Inc()
}

// ObserveAPIRequest records one tracker API request. route is the matched
// route pattern, so job ids never become label values.
func ObserveAPIRequest(method, route string, code int, duration time.Duration) {
	Init()
	apiRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	apiRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
