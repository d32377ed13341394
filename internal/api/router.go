package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/sendmessage/internal/api/middleware"
	"github.com/eldtechnologies/sendmessage/internal/handlers"
)

// RelayPath is where relay requests are accepted.
const RelayPath = "/plugins/sendmessage/sendmessage"

// Options configures the router.
type Options struct {
	AdminToken        string // Admin routes are mounted only when set
	TrustProxyHeaders bool
	RateLimitClient   *redis.Client // Rate limiting is disabled when nil
	RateLimit         middleware.RateLimiterConfig
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024)) // 64KB max body
	r.Use(middleware.ValidateRequest(RelayPath))

	// Standard middleware
	r.Use(chimw.RequestID)
	if opts.TrustProxyHeaders {
		// Rewrites RemoteAddr, which the relay's IP allowlist reads
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	if opts.RateLimitClient != nil {
		limiter := middleware.NewRateLimiter(opts.RateLimitClient, logger, opts.RateLimit)
		r.Use(limiter.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// Relay endpoint; the shared secret is checked by the relay itself
	r.Post(RelayPath, h.SendMessage)
	r.Get(RelayPath, h.SendMessageGet)

	if opts.AdminToken != "" {
		auth := middleware.NewAdminAuth(opts.AdminToken, logger)
		r.Route("/admin/sendmessage", func(r chi.Router) {
			r.Use(auth.RequireToken)

			r.Get("/", h.GetSettings)
			r.Put("/", h.UpdateSettings)
			r.Post("/secret", h.RegenerateSecret)
			r.Post("/test", h.TestSend)
		})
	}

	return r
}
