package handler

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/chatmeter/chatmeter/internal/metrics"
	"github.com/chatmeter/chatmeter/internal/middleware"
)

// RouterConfig collects the handlers and middleware settings for NewRouter.
type RouterConfig struct {
	Logger   *slog.Logger
	Metrics  metrics.Recorder
	Resolver middleware.CredentialResolver
	Security middleware.SecurityConfig
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string

	Root     *Handler
	Health   *HealthHandler
	Exporter *MetricsHandler
	Accounts *AccountHandler
	Chat     *ChatHandler
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(cfg.Security))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	if cfg.Exporter != nil {
		r.Get("/metrics", cfg.Exporter.Metrics)
	}
	r.Get("/", cfg.Root.Info)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.MaxBodySize(cfg.Security.MaxRequestBodySize))
		r.Use(middleware.Authenticate(middleware.AuthConfig{
			Logger:   cfg.Logger,
			Resolver: cfg.Resolver,
		}))

		r.Post("/register", cfg.Accounts.Register)
		r.Post("/login", cfg.Accounts.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAccount)
			r.Post("/chat", cfg.Chat.Chat)
			r.Get("/tokens", cfg.Chat.Tokens)
		})
	})

	r.NotFound(cfg.Root.NotFound)
	r.MethodNotAllowed(cfg.Root.MethodNotAllowed)

	return r
}
