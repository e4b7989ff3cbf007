package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cookie-auth/internal/config"
	"cookie-auth/internal/messaging"
	"cookie-auth/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting auth audit consumer")

	if cfg.RabbitMQURL == "" {
		slog.Error("RABBITMQ_URL is required")
		os.Exit(1)
	}

	connCtx, connCancel := context.WithTimeout(context.Background(), 60*time.Second)
	rmq, err := messaging.NewRabbitMQ(connCtx, cfg.RabbitMQURL)
	connCancel()
	if err != nil {
		slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rmq.Close()

	slog.Info("connected to rabbitmq", slog.String("queue", messaging.AuditQueue))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := messaging.NewAuditConsumer(rmq, messaging.LogSink(slog.Default().With(slog.String("component", "audit"))))
	if err := consumer.Run(ctx); err != nil {
		slog.Error("audit consumer stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("auth audit consumer stopped")
}
