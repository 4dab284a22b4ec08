package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/bitrot/internal/decay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	rateLimitRejected *prometheus.CounterVec
	queueEnqueued     *prometheus.CounterVec
	decayTotal        *prometheus.CounterVec
	decayIntegrity    prometheus.Histogram
	decayOutputBytes  prometheus.Histogram
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bitrot_api_requests_total",
			Help: "Total HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bitrot_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bitrot_api_rate_limit_rejections_total",
			Help: "Total API requests rejected by rate limiting.",
		}, []string{"route"}),
		queueEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bitrot_queue_jobs_enqueued_total",
			Help: "Total decay jobs enqueued.",
		}, []string{"queue"}),
		decayTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bitrot_api_decay_total",
			Help: "Synchronous decay requests by outcome (ok or the failed stage).",
		}, []string{"outcome"}),
		decayIntegrity: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bitrot_api_decay_integrity",
			Help:    "Clamped integrity requested on synchronous decay calls.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		decayOutputBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bitrot_api_decay_output_bytes",
			Help:    "Size of bodies returned by synchronous decay calls.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.rateLimitRejected,
		m.queueEnqueued,
		m.decayTotal,
		m.decayIntegrity,
		m.decayOutputBytes,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observeDecay(res decay.Result) {
	outcome := "ok"
	if !res.OK() {
		outcome = res.Reason()
	}
	m.decayTotal.WithLabelValues(outcome).Inc()
	m.decayIntegrity.Observe(res.Integrity)
	m.decayOutputBytes.Observe(float64(len(res.Data)))
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := strconv.Itoa(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// routeLabel folds job ids out of paths to keep label cardinality bounded.
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/jobs/") && strings.HasSuffix(path, "/start"):
		return "/v1/jobs/{id}/start"
	case strings.HasPrefix(path, "/v1/jobs/"):
		return "/v1/jobs/{id}"
	case path == "/v1/jobs", path == "/v1/decay", path == "/healthz", path == "/metrics":
		return path
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
