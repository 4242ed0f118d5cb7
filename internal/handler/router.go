package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/conversations-api/internal/middleware"
	"github.com/capitalize-ai/conversations-api/pkg/logger"
)

// RouterConfig holds what the HTTP surface needs.
type RouterConfig struct {
	APIPrefix         string
	CORSOrigins       []string
	JWTSecret         string
	DefaultOwnerID    uuid.UUID
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter mounts health, metrics and the conversation API.
func NewRouter(cfg RouterConfig, conversations *ConversationHandler, health *HealthHandler, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORSOrigins))
	}

	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route(cfg.APIPrefix, func(r chi.Router) {
		r.Use(middleware.Identity(cfg.JWTSecret, cfg.DefaultOwnerID))
		r.Use(middleware.OwnerRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversations.List)
			r.Post("/", conversations.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversations.Get)
				r.Patch("/", conversations.Update)
				r.Put("/", conversations.Update)
				r.Delete("/", conversations.Delete)
			})
		})
	})

	return r
}
