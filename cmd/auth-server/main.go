package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cookie-auth/internal/config"
	"cookie-auth/internal/domain"
	"cookie-auth/internal/handler"
	"cookie-auth/internal/messaging"
	"cookie-auth/internal/middleware"
	"cookie-auth/internal/observability"
	"cookie-auth/internal/repository/postgres"
	"cookie-auth/internal/repository/sqlite"
	"cookie-auth/internal/security"
	"cookie-auth/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting auth server",
		slog.String("environment", cfg.Environment),
		slog.String("database_driver", cfg.DatabaseDriver))

	connCtx, connCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer connCancel()

	db, err := config.OpenDatabase(connCtx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database ready", slog.String("driver", cfg.DatabaseDriver))

	users, closeUsers, err := newUserRepository(cfg.DatabaseDriver, db)
	if err != nil {
		slog.Error("failed to prepare user repository", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeUsers()

	var (
		events domain.EventPublisher = messaging.NopPublisher{}
		broker handler.BrokerStatus
	)
	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(context.Background(), 60*time.Second)
		rmq, err := messaging.NewRabbitMQ(rmqCtx, cfg.RabbitMQURL)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()
		events, broker = rmq, rmq
		slog.Info("publishing auth events", slog.String("exchange", messaging.AuthEventsExchange))
	} else {
		slog.Info("auth event publishing disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	antiForgery, err := security.NewCacheAntiForgeryStore(ctx, cfg.CSRFTTL)
	if err != nil {
		slog.Error("failed to create anti-forgery store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer antiForgery.Close()

	limiter := newLimiter(cfg)
	defer limiter.Stop()

	tokens := security.NewTokenIssuer(cfg.JWTSecret)
	hasher := security.NewPasswordHasher(cfg.BcryptCost)
	authService := service.NewAuthService(users, hasher, tokens, events)

	go recordDBStats(ctx, db)

	var openapi *middleware.OpenAPIValidatorConfig
	if cfg.OpenAPIValidation {
		openapi = middleware.DefaultOpenAPIValidatorConfig(cfg.OpenAPISpecPath)
		openapi.ValidateResponses = cfg.IsDevelopment()
	}

	router := handler.NewRouter(handler.RouterConfig{
		Auth: handler.NewAuthHandler(authService,
			handler.WithSecureCookies(cfg.IsProduction()),
			handler.WithTokenInBody(cfg.ExposeTokenInBody),
		),
		CSRF:           handler.NewCSRFHandler(antiForgery, cfg.IsProduction()),
		Authenticator:  authService,
		AntiForgery:    antiForgery,
		Limiter:        limiter,
		AllowedOrigins: cfg.Origins(),
		Production:     cfg.IsProduction(),
		OpenAPI:        openapi,
		RequestLogging: cfg.IsDevelopment(),
		TrustProxy:     cfg.TrustProxy,
		DB:             db,
		Broker:         broker,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("auth server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()

	slog.Info("server stopped gracefully")
}

// stoppableLimiter is a limiter with a background sweep.
type stoppableLimiter interface {
	middleware.Limiter
	Stop()
}

func newLimiter(cfg *config.Config) stoppableLimiter {
	if cfg.RateLimitStrategy == "token" {
		slog.Info("rate limiting with token bucket",
			slog.Int("max", cfg.RateLimitMax),
			slog.Duration("window", cfg.RateLimitWindow))
		return middleware.NewTokenBucketLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	slog.Info("rate limiting with fixed window",
		slog.Int("max", cfg.RateLimitMax),
		slog.Duration("window", cfg.RateLimitWindow))
	return middleware.NewFixedWindowLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
}

// newUserRepository picks the store implementation for driver.
func newUserRepository(driver string, db *sql.DB) (domain.UserRepository, func(), error) {
	switch driver {
	case config.DriverPostgres:
		repo, err := postgres.NewUserRepository(db)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				slog.Warn("failed to close statements", slog.String("error", err.Error()))
			}
		}, nil
	case config.DriverSQLite:
		return sqlite.NewUserRepository(db), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// recordDBStats publishes connection pool gauges until ctx is done
func recordDBStats(ctx context.Context, db *sql.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.RecordDBStats(db)
		}
	}
}
