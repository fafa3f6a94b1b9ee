package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger checks the liveness of one backing dependency.
type Pinger interface {
	Health(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	deps   map[string]Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler over the named dependencies.
// A nil Pinger value is reported as "skipped".
func NewHealthHandler(deps map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{deps: deps, logger: logger}
}

// HealthCheck reports overall liveness plus a per-dependency breakdown.
// Any failing dependency degrades the response to 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	overall := "ok"
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if dep == nil {
			checks[name] = "skipped"
			continue
		}
		if err := dep.Health(ctx); err != nil {
			checks[name] = err.Error()
			overall = "degraded"
			status = http.StatusServiceUnavailable
			h.logger.WarnContext(ctx, "handler: health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, status, map[string]any{
		"status":    overall,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
