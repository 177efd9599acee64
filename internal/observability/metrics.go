package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the Prometheus registry for the posting service together with
// the HTTP and domain collectors.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	sodDecisions       *prometheus.CounterVec
	postingValidations *prometheus.CounterVec
	fxIngestions       *prometheus.CounterVec
	fxRateAge          *prometheus.GaugeVec
}

// NewMetrics creates a dedicated registry with the HTTP and domain metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "HTTP requests partitioned by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	sodDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_sod_decisions_total",
		Help: "Segregation-of-duties decisions by action and outcome.",
	}, []string{"action", "outcome"})
	postingValidations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_posting_validations_total",
		Help: "Journal and payment validations by operation and result code.",
	}, []string{"operation", "code"})
	fxIngestions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_fx_ingestions_total",
		Help: "FX source attempts by source and result.",
	}, []string{"source", "result"})
	fxRateAge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_fx_rate_age_minutes",
		Help: "Age in minutes of the oldest rate in the latest snapshot per base currency.",
	}, []string{"base"})
	registry.MustRegister(requests, duration, sodDecisions, postingValidations, fxIngestions, fxRateAge)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		sodDecisions:       sodDecisions,
		postingValidations: postingValidations,
		fxIngestions:       fxIngestions,
		fxRateAge:          fxRateAge,
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

// Middleware records request count and latency per chi route pattern.
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

// Registerer exposes the registry so other packages can add collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
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
