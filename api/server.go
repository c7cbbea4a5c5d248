/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:    Unique ID per request for tracing
  2. RequestLog:   zap access log (5xx error, 4xx warn, else info)
  3. Recoverer:    Panic recovery (500 instead of crash)
  4. CORS:         Cross-origin requests for the web app
  5. Authenticate: Bearer JWT on every /api route except /api/health

ROUTE GROUPS:
  /api/shifts/*     Shift lifecycle, clock actions, request submission
  /api/requests/*   Request listing and review
  /api/patients/*   Directory
  /api/caregivers/*
  /api/schedules/*  Roster import
  /api/admin/*      Manual sweeps
  /api/scenarios/*  Demo data

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token verification
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterOptions configures the cross-cutting parts of the router.
type RouterOptions struct {
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *Authenticator, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLog(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)

			r.Route("/shifts", func(r chi.Router) {
				r.Get("/", h.ListShifts)
				r.Post("/", h.CreateShift)
				r.Get("/{id}", h.GetShift)
				r.Delete("/{id}", h.DeleteShift)
				r.Put("/{id}/progress", h.UpdateProgress)
				r.Post("/{id}/clock-in", h.ClockIn)
				r.Post("/{id}/clock-out", h.ClockOut)
				r.Post("/{id}/admin-clock", h.AdminClock)
				r.Post("/{id}/expire", h.ForceExpire)
				r.Post("/{id}/requests/overtime", h.SubmitOvertime)
				r.Post("/{id}/requests/cancellation", h.SubmitCancellation)
			})

			r.Route("/requests", func(r chi.Router) {
				r.Get("/", h.ListRequests)
				r.Get("/{id}", h.GetRequest)
				r.Post("/{id}/review", h.ReviewRequest)
			})

			r.Put("/patients/{id}", h.PutPatient)
			r.Put("/caregivers/{id}", h.PutCaregiver)
			r.Post("/schedules/import", h.ImportSchedule)

			r.Route("/admin/sweeps", func(r chi.Router) {
				r.Post("/expire-pending", h.RunExpireSweep)
				r.Post("/auto-clock-out", h.RunAutoClockOutSweep)
			})

			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetData)
			})
		})
	})

	return r
}

// RequestLog logs one line per request with zap.
func RequestLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.Int("status", status),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.String("ip", r.RemoteAddr),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Duration("latency", time.Since(start)),
			}

			switch {
			case status >= 500:
				logger.Error("request failed", fields...)
			case status >= 400:
				logger.Warn("client error", fields...)
			default:
				logger.Info("request completed", fields...)
			}
		})
	}
}
