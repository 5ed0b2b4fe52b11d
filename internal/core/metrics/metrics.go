// Package metrics holds the Prometheus collectors of the admin backend.
// Collectors are usable before Init so that tests never need a registry.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	SessionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rbac_sessions_created_total",
			Help: "Sessions created, by login mode.",
		},
		[]string{"mode"},
	)

	SessionsRevoked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rbac_sessions_revoked_total",
			Help: "Sessions transitioned to revoked, by cause.",
		},
		[]string{"cause"},
	)

	SessionValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rbac_session_validations_total",
			Help: "Session validations, by result.",
		},
		[]string{"result"},
	)

	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rbac_login_attempts_total",
			Help: "Login attempts, by result.",
		},
		[]string{"result"},
	)

	DataScopeResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rbac_data_scope_resolutions_total",
			Help: "Data scope resolutions, by outcome.",
		},
		[]string{"outcome"},
	)

	DeptIndexLoads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rbac_dept_index_loads_total",
		Help: "Department children index rebuilds from the database.",
	})

	RealtimeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rbac_realtime_connections",
		Help: "Open realtime channel connections.",
	})

	RealtimeSendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rbac_realtime_send_failures_total",
		Help: "Realtime events that could not be written to a connection.",
	})
)

const (
	CauseEviction = "eviction"
	CauseKick     = "kick"
	CauseLogout   = "logout"

	ResultValid    = "valid"
	ResultRejected = "rejected"
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultLimited  = "rate_limited"
)

var initOnce sync.Once

// Init registers every collector in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			SessionsCreated, SessionsRevoked, SessionValidations, LoginAttempts,
			DataScopeResolutions, DeptIndexLoads,
			RealtimeConnections, RealtimeSendFailures,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request count, latency and in-flight gauge. The route label
// is the matched chi pattern so path parameters do not explode cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack keeps websocket upgrades working behind the instrumentation wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
