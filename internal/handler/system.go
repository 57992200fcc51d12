package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

type SystemHandler struct {
	store       Pinger
	redisClient *redis.Client
	logger      Logger
	startTime   time.Time
}

// NewSystemHandler wires liveness and readiness probes. redisClient may be nil
// when Redis is not configured.
func NewSystemHandler(store Pinger, redisClient *redis.Client, log Logger) *SystemHandler {
	return &SystemHandler{
		store:       store,
		redisClient: redisClient,
		logger:      log,
		startTime:   time.Now(),
	}
}

type componentStatus struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}

// Ready reports 503 when the store or a configured Redis cannot be reached.
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]componentStatus{
		"store": h.check(ctx, "store", h.store.Ping),
	}
	if h.redisClient != nil {
		components["redis"] = h.check(ctx, "redis", func(ctx context.Context) error {
			return h.redisClient.Ping(ctx).Err()
		})
	}

	status := http.StatusOK
	overall := "ready"
	for _, c := range components {
		if c.Status != "operational" {
			status = http.StatusServiceUnavailable
			overall = "unavailable"
		}
	}

	respondJSON(w, status, map[string]interface{}{
		"status":     overall,
		"components": components,
	})
}

func (h *SystemHandler) check(ctx context.Context, name string, ping func(context.Context) error) componentStatus {
	start := time.Now()
	err := ping(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		h.logger.Error("Readiness check failed", map[string]interface{}{"component": name, "error": err.Error()})
		return componentStatus{Status: "outage", LatencyMs: latency, Error: err.Error()}
	}
	return componentStatus{Status: "operational", LatencyMs: latency}
}

type Pinger interface {
	Ping(ctx context.Context) error
}
