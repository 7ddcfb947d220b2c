package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/signalix/accounts/internal/logging"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db    Pinger
	redis *redis.Client
}

// NewHealthHandler creates a health handler. redis may be nil.
func NewHealthHandler(db Pinger, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient}
}

// HandleHealthCheck handles GET /health-check. It never touches a dependency.
func (h *HealthHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"health": "API OK"})
}

// HandleReady handles GET /ready
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	status := http.StatusOK

	if h.db != nil {
		checks["database"] = "ok"
		if err := h.db.PingContext(ctx); err != nil {
			logging.FromContext(ctx).Error().Err(err).Msg("Readiness: database ping failed")
			checks["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	if h.redis != nil {
		checks["redis"] = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			logging.FromContext(ctx).Error().Err(err).Msg("Readiness: redis ping failed")
			checks["redis"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, map[string]any{"statusCode": status, "checks": checks})
}
