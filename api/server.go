/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in the access log
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. Access log: zerolog line per request, plus the API request counter
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Read-only cross-origin access

ROUTE GROUPS:
  /healthz              Liveness
  /metrics              Prometheus exposition
  /api/tariffs/*        Stored tariffs
  /api/runs, /status    Run history and scheduler state
  /api/admin/*          Manual cycles, rate limited per client IP

SECURITY NOTE:
  No authentication middleware. Admin routes only start cycles that the
  scheduler runs anyway; expose the port on a private network.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/wb-tariffs/logging"
	"github.com/warp/wb-tariffs/metrics"
)

// RouterOptions tunes the router. Zero values take defaults.
type RouterOptions struct {
	AllowedOrigins []string

	// AdminRequests per AdminWindow per client IP on /api/admin/*.
	AdminRequests int
	AdminWindow   time.Duration
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.AdminRequests <= 0 {
		opts.AdminRequests = 10
	}
	if opts.AdminWindow <= 0 {
		opts.AdminWindow = time.Minute
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/tariffs", func(r chi.Router) {
			r.Get("/", h.GetTariffs)
			r.Get("/dates", h.ListDates)
		})

		r.Get("/runs", h.ListRuns)
		r.Get("/status", h.GetStatus)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(httprate.LimitByIP(opts.AdminRequests, opts.AdminWindow))
			r.Post("/ingest", h.TriggerIngest)
			r.Post("/export", h.TriggerExport)
		})
	})

	return r
}

// requestLogger logs one line per request and counts it by route pattern.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.RecordAPIRequest(r.Method, route, strconv.Itoa(status))

		ev := logging.Debug()
		if status >= http.StatusInternalServerError {
			ev = logging.Warn()
		}
		ev.Str("component", "api").
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}
