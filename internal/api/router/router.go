package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pratik-mahalle/costlens/internal/api/handlers"
	"github.com/pratik-mahalle/costlens/internal/api/middleware"
	"github.com/pratik-mahalle/costlens/internal/config"
	"github.com/pratik-mahalle/costlens/internal/pkg/logger"
	"github.com/pratik-mahalle/costlens/internal/pkg/metrics"
	httpSwagger "github.com/swaggo/http-swagger"
)

// detectRPS bounds detection runs per user
const (
	detectRPS   = 0.2
	detectBurst = 3
)

type Handlers struct {
	Health  *handlers.HealthHandler
	Anomaly *handlers.AnomalyHandler
	Cost    *handlers.CostHandler
}

func New(cfg *config.Config, log *logger.Logger, h *Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(metrics.Middleware)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.RateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))

	// Public routes
	r.Group(func(r chi.Router) {
		r.Get("/swagger/*", httpSwagger.WrapHandler)
		r.Handle("/metrics", metrics.Handler())

		r.Get("/healthz", h.Health.Healthz)
		r.Get("/readyz", h.Health.Readyz)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(middleware.SecurityHeaders)
		r.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret))

		r.Route("/api/v1/anomalies", func(r chi.Router) {
			r.Get("/", h.Anomaly.List)
			r.Get("/summary", h.Anomaly.GetSummary)
			r.With(middleware.UserRateLimit(detectRPS, detectBurst)).Post("/detect", h.Anomaly.Detect)
			r.Get("/{id}", h.Anomaly.Get)
			r.Patch("/{id}/status", h.Anomaly.UpdateStatus)
			r.Delete("/{id}", h.Anomaly.Delete)
		})

		r.Route("/api/v1/costs", func(r chi.Router) {
			r.Get("/", h.Cost.List)
			r.Post("/", h.Cost.Ingest)
			r.Get("/summary", h.Cost.GetSummary)
			r.Post("/sync", h.Cost.SyncAll)
			r.Post("/sync/{provider}", h.Cost.Sync)
		})
	})

	return r
}
