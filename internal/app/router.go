// Package app assembles the HTTP router, readiness probes and background
// loops from the adapters and use cases.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/interview-coach/internal/adapter/auth"
	httpserver "github.com/fairyhunter13/interview-coach/internal/adapter/httpserver"
	"github.com/fairyhunter13/interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/interview-coach/internal/config"
	"github.com/fairyhunter13/interview-coach/internal/service/ratelimiter"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// Deps are the pieces BuildRouter mounts. Limiter and WS may be nil.
type Deps struct {
	Server   *httpserver.Server
	Verifier *auth.Verifier
	Limiter  ratelimiter.Limiter
	WS       http.Handler
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, d Deps) http.Handler {
	srv := d.Server
	r := chi.NewRouter()
	// Tracing first so request loggers carry the trace and span ids.
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.RequestID())
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		if d.WS != nil {
			// Browsers cannot set headers on websocket upgrades; the hub reads ?token=.
			v1.Handle("/ws", d.WS)
		}
		v1.Group(func(api chi.Router) {
			api.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
			api.Use(httpserver.Authenticate(d.Verifier))

			api.Get("/credits/balance", srv.BalanceHandler())

			api.Route("/interviews/{id}", func(iv chi.Router) {
				iv.Get("/", srv.GetHandler())
				iv.Get("/summary", srv.SummaryHandler())
				iv.Post("/open", srv.OpenHandler())
				iv.Post("/reset", srv.ResetHandler())
				iv.Post("/close", srv.CloseHandler())
				iv.Put("/view", srv.ViewHandler())
				iv.Group(func(ai chi.Router) {
					ai.Use(httpserver.AIRateLimit(d.Limiter))
					ai.Post("/start", srv.StartHandler())
					ai.Post("/answer", srv.AnswerHandler())
				})
			})

			api.Group(func(ai chi.Router) {
				ai.Use(httpserver.AIRateLimit(d.Limiter))
				ai.Post("/analysis/resume", srv.ResumeAnalysisHandler())
				ai.Post("/analysis/job", srv.JobAnalysisHandler())
			})
		})
	})

	return httpserver.SecurityHeaders(r)
}
