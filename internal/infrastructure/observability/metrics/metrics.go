package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/domain/valueobject"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles prometheus collectors used by the dashboard.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
	AuthFailures       prometheus.Counter
	RateLimitDropped   prometheus.Counter

	FeedReports            *prometheus.CounterVec
	FeedErrors             *prometheus.CounterVec
	FeedSource             *prometheus.GaugeVec
	ConsecutiveErrorCycles prometheus.Gauge
	Live                   prometheus.Gauge
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_http_requests_total",
			Help: "Total number of dashboard HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_http_request_duration_seconds",
			Help:    "Dashboard request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_auth_failures_total",
			Help: "Total number of auth failures.",
		}),
		RateLimitDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_ratelimit_dropped_total",
			Help: "Total number of requests dropped by rate limiter.",
		}),
		FeedReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freshness_feed_reports_total",
			Help: "Poll results applied to the freshness controller by resulting source.",
		}, []string{"feed", "source"}),
		FeedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freshness_feed_errors_total",
			Help: "Failed polls by error kind.",
		}, []string{"feed", "error_kind"}),
		FeedSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "freshness_feed_source",
			Help: "Current snapshot source per feed: 1 for the active source, 0 otherwise.",
		}, []string{"feed", "source"}),
		ConsecutiveErrorCycles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "freshness_consecutive_error_cycles",
			Help: "Polling cycles in a row without a live feed.",
		}),
		Live: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "freshness_is_live",
			Help: "1 while at least one feed is live.",
		}),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDurationSec,
		m.AuthFailures,
		m.RateLimitDropped,
		m.FeedReports,
		m.FeedErrors,
		m.FeedSource,
		m.ConsecutiveErrorCycles,
		m.Live,
	)

	return m
}

// ObserveReport реализует port.FreshnessObserver
func (m *Metrics) ObserveReport(feedKey, source, errorKind string, consecutiveErrors int, isLive bool) {
	m.FeedReports.WithLabelValues(feedKey, source).Inc()
	if errorKind != "" {
		m.FeedErrors.WithLabelValues(feedKey, errorKind).Inc()
	}

	for _, s := range valueobject.AllSources() {
		value := 0.0
		if s.String() == source {
			value = 1
		}
		m.FeedSource.WithLabelValues(feedKey, s.String()).Set(value)
	}

	m.ConsecutiveErrorCycles.Set(float64(consecutiveErrors))
	if isLive {
		m.Live.Set(1)
	} else {
		m.Live.Set(0)
	}
}

// AuthFailed и RateLimited считают отказы middleware
func (m *Metrics) AuthFailed()  { m.AuthFailures.Inc() }
func (m *Metrics) RateLimited() { m.RateLimitDropped.Inc() }

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := normalizeRoute(r.URL.Path)
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())
	})
}

// normalizeRoute сворачивает имена фидов, чтобы не раздувать кардинальность меток
func normalizeRoute(path string) string {
	switch {
	case path == "/" || path == "/ws" || path == "/healthz" || path == "/readyz" || path == "/metrics":
		return path
	case path == "/api/v1/freshness" || path == "/api/v1/freshness/history" || path == "/api/v1/freshness/poller":
		return path
	case strings.HasPrefix(path, "/api/v1/freshness/poll/"):
		return "/api/v1/freshness/poll/{feed}"
	case strings.HasPrefix(path, "/api/v1/freshness/"):
		return "/api/v1/freshness/{feed}"
	case path == "/api/v1/auth/login" || path == "/api/v1/auth/logout" || path == "/api/v1/auth/status":
		return path
	case strings.HasPrefix(path, "/static/"):
		return "/static/*"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack passes websocket upgrades through wrapped ResponseWriter.
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// Flush keeps streaming behavior for handlers that require it.
func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
