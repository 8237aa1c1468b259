package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// DatabaseChecker is the part of *sql.DB the readiness probe uses
type DatabaseChecker interface {
	PingContext(ctx context.Context) error
	Stats() sql.DBStats
}

// BrokerChecker reports whether the broker connection is gone
type BrokerChecker interface {
	IsClosed() bool
}

// CacheChecker is satisfied by any go-redis client
type CacheChecker interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// Ready returns readiness check with dependencies. The cache only holds
// last-seen times, so a nil cache is reported as disabled and never
// fails the probe.
func Ready(db DatabaseChecker, rmq BrokerChecker, cache CacheChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		// Check dependencies in parallel
		dbResult := make(chan HealthCheckResult, 1)
		rmqResult := make(chan HealthCheckResult, 1)
		cacheResult := make(chan HealthCheckResult, 1)

		go func() {
			dbResult <- checkDatabase(ctx, db)
		}()

		go func() {
			rmqResult <- checkRabbitMQ(rmq)
		}()

		go func() {
			cacheResult <- checkRedis(ctx, cache)
		}()

		dbCheck := <-dbResult
		rmqCheck := <-rmqResult
		cacheCheck := <-cacheResult

		response := map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks": map[string]HealthCheckResult{
				"database": dbCheck,
				"rabbitmq": rmqCheck,
				"redis":    cacheCheck,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		if dbCheck.Status == "up" && rmqCheck.Status == "up" && cacheCheck.Status != "down" {
			response["status"] = "ready"
			w.WriteHeader(http.StatusOK)
		} else {
			response["status"] = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(response)
	}
}

// checkDatabase verifies database connectivity
func checkDatabase(ctx context.Context, db DatabaseChecker) HealthCheckResult {
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

// checkRabbitMQ verifies the platform event connection is still open
func checkRabbitMQ(rmq BrokerChecker) HealthCheckResult {
	if rmq == nil || rmq.IsClosed() {
		return HealthCheckResult{
			Status: "down",
			Error:  "connection closed",
		}
	}
	return HealthCheckResult{Status: "up"}
}

func checkRedis(ctx context.Context, cache CacheChecker) HealthCheckResult {
	if cache == nil {
		return HealthCheckResult{Status: "disabled"}
	}

	start := time.Now()
	err := cache.Ping(ctx).Err()
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}
	return HealthCheckResult{Status: "up", LatencyMs: latency.Milliseconds()}
}
