package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the back-office service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	syncTotal       *prometheus.CounterVec
	syncDuration    *prometheus.HistogramVec
	reportTotal     *prometheus.CounterVec
	reportDuration  *prometheus.HistogramVec
}

// NewMetrics initialises a private registry with the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backoffice_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	syncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_sync_total",
		Help: "Voucher sync calls by kind, operation and outcome.",
	}, []string{"kind", "op", "status"})
	syncDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backoffice_sync_duration_seconds",
		Help:    "Voucher sync latency by kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	reports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_report_builds_total",
		Help: "Report builds by name and outcome.",
	}, []string{"report", "status"})
	reportDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backoffice_report_build_seconds",
		Help:    "Report build latency by name.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"report"})
	registry.MustRegister(requests, duration, syncs, syncDuration, reports, reportDuration)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		syncTotal:       syncs,
		syncDuration:    syncDuration,
		reportTotal:     reports,
		reportDuration:  reportDuration,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveSync records one sync call.
func (m *Metrics) ObserveSync(kind string, op string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.syncTotal.WithLabelValues(kind, op, status(err)).Inc()
	m.syncDuration.WithLabelValues(kind).Observe(took.Seconds())
}

// ObserveReport records one report build.
func (m *Metrics) ObserveReport(name string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.reportTotal.WithLabelValues(name, status(err)).Inc()
	m.reportDuration.WithLabelValues(name).Observe(took.Seconds())
}

// Registerer exposes the registry for additional collectors such as job metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Gatherer exposes the registry for tests and exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.DefaultGatherer
	}
	return m.registry
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
