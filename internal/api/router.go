package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the chi router for the whole HTTP surface: job submission
// and inspection under /api/v1, plus the liveness/readiness probes from
// component J. chi's own middleware subpackage replaces the teacher's
// middlewares/ package here, since that package is written against the
// forge framework's internal.Context/internal.Middleware types, which this
// service does not carry forward (DESIGN.md).
func NewRouter(deps Deps, health HealthDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	h := &handler{deps: deps}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", h.submit)
		r.Get("/jobs", h.list)
		r.Get("/jobs/{id}", func(w http.ResponseWriter, req *http.Request) {
			h.get(w, req, chi.URLParam(req, "id"))
		})
	})

	hh := &healthHandler{deps: health}
	r.Get("/health/live", hh.live)
	r.Get("/health/ready", hh.ready)

	return r
}

// requestLogger logs one structured line per request, with the chi request
// id attached so it correlates with any job-related log lines emitted while
// handling it.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start).String(),
			)
		})
	}
}
