package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "cv_ai_agent"

	// RouteUnmatched labels requests that hit no registered route.
	RouteUnmatched = "unmatched"
	// MethodOther labels requests with a non-standard method.
	MethodOther = "OTHER"
)

type Metrics struct {
	registry      *prometheus.Registry
	routes        map[string]struct{}
	inFlight      prometheus.Gauge
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	probeFailures *prometheus.CounterVec
}

// New creates a registry with HTTP and readiness collectors. The given
// routes are the only path label values besides RouteUnmatched.
func New(routes ...string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		routes:   make(map[string]struct{}, len(routes)),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"method", "route"}),
		probeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "readiness",
			Name:      "probe_failures_total",
			Help:      "Total number of failed readiness probe runs.",
		}, []string{"probe"}),
	}

	for _, route := range routes {
		m.routes[route] = struct{}{}
	}

	m.registry.MustRegister(
		m.inFlight,
		m.requests,
		m.duration,
		m.probeFailures,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	return m
}

// Instrument wraps next with request counting, timing and in-flight tracking.
// A panic escaping next is counted as a 500 before it propagates.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		start := time.Now()

		code := 0
		wrapped := httpsnoop.Wrap(w, httpsnoop.Hooks{
			WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
				return func(c int) {
					if code == 0 {
						code = c
					}
					next(c)
				}
			},
			Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
				return func(b []byte) (int, error) {
					if code == 0 {
						code = http.StatusOK
					}
					return next(b)
				}
			},
		})

		defer func() {
			m.inFlight.Dec()
			if rec := recover(); rec != nil {
				m.observe(r, http.StatusInternalServerError, start)
				panic(rec)
			}
			if code == 0 {
				code = http.StatusOK
			}
			m.observe(r, code, start)
		}()

		next.ServeHTTP(wrapped, r)
	})
}

func (m *Metrics) observe(r *http.Request, code int, start time.Time) {
	route := m.route(r.URL.Path)
	method := methodLabel(r.Method)
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
}

// methodLabel keeps the method label set bounded.
func methodLabel(method string) string {
	switch m := strings.ToUpper(method); m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodOptions, http.MethodConnect, http.MethodTrace:
		return m
	default:
		return MethodOther
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordProbeFailure counts a failed readiness probe run.
func (m *Metrics) RecordProbeFailure(probe string) {
	m.probeFailures.WithLabelValues(probe).Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) route(path string) string {
	if _, ok := m.routes[path]; ok {
		return path
	}

	return RouteUnmatched
}
