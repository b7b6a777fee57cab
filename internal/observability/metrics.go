package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets       = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	transitionDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Transition metrics
	TransitionsTotal      *prometheus.CounterVec
	TransitionFailures    *prometheus.CounterVec
	TransitionDuration    *prometheus.HistogramVec
	SideEffectDuration    *prometheus.HistogramVec
	DocumentsCreatedTotal *prometheus.CounterVec

	// Idempotency metrics
	IdempotentReplaysTotal prometheus.Counter

	// System metrics
	DefinitionsLoaded  prometheus.Gauge
	ActorLookupFailures prometheus.Counter
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifeline_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_transitions_total",
			Help: "Total number of executed transitions.",
		}, []string{"entity", "transition", "status"}),
		TransitionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_transition_failures_total",
			Help: "Total number of rejected or failed transitions.",
		}, []string{"entity", "transition", "code"}),
		TransitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifeline_transition_duration_seconds",
			Help:    "Transition execution duration in seconds.",
			Buckets: transitionDurationBuckets,
		}, []string{"entity", "transition"}),
		SideEffectDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifeline_side_effect_duration_seconds",
			Help:    "Side-effect handler duration in seconds.",
			Buckets: transitionDurationBuckets,
		}, []string{"handler"}),
		DocumentsCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_documents_created_total",
			Help: "Total number of documents created.",
		}, []string{"entity"}),

		IdempotentReplaysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_idempotent_replays_total",
			Help: "Total transition executions answered from the idempotency store.",
		}),

		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lifeline_definitions_loaded",
			Help: "Number of loaded workflow definitions.",
		}),
		ActorLookupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_actor_lookup_failures_total",
			Help: "Total audit-read actor lookups that fell back to the raw principal ID.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TransitionsTotal,
		m.TransitionFailures,
		m.TransitionDuration,
		m.SideEffectDuration,
		m.DocumentsCreatedTotal,
		m.IdempotentReplaysTotal,
		m.DefinitionsLoaded,
		m.ActorLookupFailures,
	)

	return m
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// HTTPMiddleware records request counts and durations labeled by the chi
// route pattern, so path parameters don't explode label cardinality.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &metricsWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(ww.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

type metricsWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *metricsWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}
