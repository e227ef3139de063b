package handlers

import (
	"context"
	"net/http"
	"time"

	"postcraft/internal/httpkit"
)

const checkTimeout = 5 * time.Second

// Health reports liveness. With ?deep=true it also pings Postgres and Redis
// when configured and round-trips a probe object through the destination.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	health := map[string]any{
		"status":  "ok",
		"service": "postcraft-api",
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := map[string]map[string]any{
			"storage": h.checkStorage(ctx),
		}
		if h.pool != nil {
			checks["postgres"] = timed(ctx, func(ctx context.Context) error { return h.pool.Ping(ctx) })
		}
		if h.rdb != nil {
			checks["redis"] = timed(ctx, func(ctx context.Context) error { return h.rdb.Ping(ctx).Err() })
		}
		for name, c := range checks {
			if c["status"] != "ok" {
				health["status"] = "degraded"
				h.log.FromContext(ctx).Warn("health check degraded", "check", name, "error", c["error"])
			}
		}
		health["checks"] = checks
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) checkStorage(ctx context.Context) map[string]any {
	if h.storage == nil {
		return map[string]any{"status": "error", "error": "no publish destination configured"}
	}
	res := timed(ctx, h.storage.Probe)
	res["provider"] = h.storage.Provider()
	return res
}

func timed(ctx context.Context, check func(context.Context) error) map[string]any {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	res := map[string]any{"status": "ok"}
	if err := check(ctx); err != nil {
		res["status"] = "error"
		res["error"] = err.Error()
	}
	res["latency_ms"] = time.Since(start).Milliseconds()
	return res
}
