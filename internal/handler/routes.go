package handler

import (
	"database/sql"
	"net/http"

	"cookie-auth/internal/middleware"
	"cookie-auth/internal/respond"
	"cookie-auth/internal/security"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig collects the collaborators the HTTP surface is built from.
type RouterConfig struct {
	Auth          *AuthHandler
	CSRF          *CSRFHandler
	Authenticator middleware.Authenticator
	AntiForgery   security.AntiForgeryStore
	Limiter       middleware.Limiter

	AllowedOrigins []string
	Production     bool
	OpenAPI        *middleware.OpenAPIValidatorConfig
	RequestLogging bool
	// TrustProxy takes the client address from X-Forwarded-For or X-Real-IP.
	// Only set it behind a proxy that overwrites those headers.
	TrustProxy bool

	DB     *sql.DB
	Broker BrokerStatus
}

// NewRouter wires the auth endpoints. Health and metrics sit outside the
// rate limiter; every other route shares one per-IP quota. Anti-forgery is
// enforced only on the state-mutating auth routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	if cfg.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	if cfg.RequestLogging {
		r.Use(chimiddleware.Logger)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders(cfg.Production))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", Health)
	r.Get("/health/ready", Ready(cfg.DB, cfg.Broker))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.Limiter))
		r.Use(middleware.OpenAPIValidator(cfg.OpenAPI))

		r.Get("/csrf-token", cfg.CSRF.Token)

		r.Group(func(r chi.Router) {
			r.Use(middleware.CSRF(cfg.AntiForgery))
			r.Post("/signup", cfg.Auth.Signup)
			r.Post("/login", cfg.Auth.Login)
			r.Post("/logout", cfg.Auth.Logout)
		})

		r.With(middleware.Auth(cfg.Authenticator)).Get("/check-auth", cfg.Auth.CheckAuth)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.Message(w, http.StatusNotFound, "Not found")
	})

	return r
}
