package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"cookie-auth/internal/respond"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// BrokerStatus reports whether the event broker connection is alive.
type BrokerStatus interface {
	IsClosed() bool
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// ReadyResponse is the body of the readiness check
type ReadyResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Checks    map[string]HealthCheckResult `json:"checks"`
}

// Ready returns readiness check with dependencies. A nil broker means auth
// events are disabled and does not affect readiness.
func Ready(db *sql.DB, broker BrokerStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		// Check dependencies in parallel
		dbResult := make(chan HealthCheckResult, 1)
		brokerResult := make(chan HealthCheckResult, 1)

		go func() {
			dbResult <- checkDatabase(ctx, db)
		}()

		go func() {
			brokerResult <- checkBroker(broker)
		}()

		dbCheck := <-dbResult
		brokerCheck := <-brokerResult

		resp := ReadyResponse{
			Status:    "ready",
			Timestamp: time.Now().Format(time.RFC3339),
			Checks: map[string]HealthCheckResult{
				"database": dbCheck,
				"rabbitmq": brokerCheck,
			},
		}

		status := http.StatusOK
		if dbCheck.Status == "down" || brokerCheck.Status == "down" {
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
		}

		respond.JSON(w, status, resp)
	}
}

// checkDatabase verifies database connectivity
func checkDatabase(ctx context.Context, db *sql.DB) HealthCheckResult {
	if db == nil {
		return HealthCheckResult{Status: "down", Error: "not configured"}
	}

	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	stats := db.Stats()
	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
		Metadata: map[string]interface{}{
			"connections_open":   stats.OpenConnections,
			"connections_in_use": stats.InUse,
			"connections_idle":   stats.Idle,
			"max_open":           stats.MaxOpenConnections,
		},
	}
}

// checkBroker verifies RabbitMQ connectivity
func checkBroker(broker BrokerStatus) HealthCheckResult {
	if broker == nil {
		return HealthCheckResult{Status: "disabled"}
	}
	if broker.IsClosed() {
		return HealthCheckResult{
			Status: "down",
			Error:  "connection closed",
		}
	}
	return HealthCheckResult{Status: "up"}
}
