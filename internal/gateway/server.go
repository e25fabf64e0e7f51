package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/examportal/realtime-platform/internal/config"
	"github.com/examportal/realtime-platform/internal/middleware"
	"github.com/examportal/realtime-platform/pkg/logger"
)

// NewRouter assembles the gateway HTTP surface.
func NewRouter(cfg *config.Config, store EventStore, log *logger.Logger) http.Handler {
	healthHandler := NewHealthHandler(store)
	logHandler := NewLogHandler(store, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/support/messages", func(r chi.Router) {
			r.Get("/", logHandler.SupportMessages)
			r.Post("/", logHandler.PostSupportMessage)
		})

		r.Route("/exams/{id}/events", func(r chi.Router) {
			r.Get("/", logHandler.ExamEvents)
			r.Post("/", logHandler.PostExamEvent)
		})
	})

	return r
}
