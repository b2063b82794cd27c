package http

import (
	"io/fs"
	"net/http"

	"github.com/dreschagin/mainnet-dashboard/internal/infrastructure/observability/metrics"
	"github.com/dreschagin/mainnet-dashboard/internal/interfaces/http/handler"
	"github.com/dreschagin/mainnet-dashboard/internal/interfaces/http/middleware"
	"github.com/dreschagin/mainnet-dashboard/pkg/config"
	"github.com/dreschagin/mainnet-dashboard/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers обработчики, которые подключает Router
type Handlers struct {
	Dashboard *handler.DashboardHandler
	WebSocket *handler.WebSocketHandler
	Freshness *handler.FreshnessAPIHandler
	Poller    *handler.PollerAPIHandler
	Auth      *handler.AuthAPIHandler
}

// ReadinessChecker сообщает, что каждый фид хотя бы раз отчитался
type ReadinessChecker interface {
	Ready() bool
}

// Router настраивает маршруты приложения
type Router struct {
	mux       *http.ServeMux
	handlers  Handlers
	readiness ReadinessChecker
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	security  config.SecurityConfig
	logger    *logger.Logger
}

// NewRouter создает новый router
func NewRouter(
	handlers Handlers,
	readiness ReadinessChecker,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	security config.SecurityConfig,
	logger *logger.Logger,
) *Router {
	return &Router{
		mux:       http.NewServeMux(),
		handlers:  handlers,
		readiness: readiness,
		metrics:   m,
		gatherer:  gatherer,
		security:  security,
		logger:    logger,
	}
}

// Setup настраивает все маршруты
func (rt *Router) Setup() http.Handler {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic("failed to initialize embedded static assets: " + err.Error())
	}
	rt.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	// Пробы и scrape без авторизации
	rt.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rt.mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		if rt.readiness != nil && !rt.readiness.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("waiting for first poll of every feed"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	if rt.gatherer != nil {
		rt.mux.Handle("GET /metrics", promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))
	}

	var counter middleware.RejectionCounter
	if rt.metrics != nil {
		counter = rt.metrics
	}

	authMiddleware := middleware.Auth(middleware.AuthConfig{
		Enabled:     rt.security.AuthEnabled,
		BearerToken: rt.security.AuthToken,
	}, counter, rt.logger)

	var limiter *middleware.IPRateLimiter
	if rt.security.RateLimitRPS > 0 && rt.security.RateLimitBurst > 0 {
		limiter = middleware.NewIPRateLimiter(rt.security.RateLimitRPS, rt.security.RateLimitBurst)
	}
	rateLimit := middleware.RateLimit(limiter, counter)

	protect := func(h http.HandlerFunc) http.Handler {
		return rateLimit(authMiddleware(h))
	}

	h := rt.handlers

	// Dashboard
	rt.mux.Handle("GET /", protect(h.Dashboard.ShowDashboard))

	// WebSocket
	rt.mux.Handle("GET /ws", rateLimit(http.HandlerFunc(h.WebSocket.HandleConnection)))

	// Авторизация браузера через cookie
	rt.mux.Handle("POST /api/v1/auth/login", rateLimit(http.HandlerFunc(h.Auth.Login)))
	rt.mux.Handle("POST /api/v1/auth/logout", http.HandlerFunc(h.Auth.Logout))
	rt.mux.Handle("GET /api/v1/auth/status", http.HandlerFunc(h.Auth.Status))

	// API endpoints
	rt.mux.Handle("GET /api/v1/freshness", protect(h.Freshness.GetState))
	rt.mux.Handle("GET /api/v1/freshness/history", protect(h.Freshness.GetHistory))
	rt.mux.Handle("GET /api/v1/freshness/poller", protect(h.Poller.Status))
	rt.mux.Handle("GET /api/v1/freshness/{feed}", protect(h.Freshness.GetFeed))
	rt.mux.Handle("POST /api/v1/freshness/poll/{feed}", protect(h.Poller.TriggerPoll))

	// Применяем middleware
	var handler http.Handler = rt.mux
	handler = middleware.Compression(handler)
	handler = middleware.Logger(rt.logger)(handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(rt.logger)(handler)

	return handler
}
