package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/tasks"
)

// HealthCheck reports one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	stats   func() tasks.Stats
	checks  map[string]HealthCheck
	started time.Time
}

// NewHealthHandler stats may be nil.
func NewHealthHandler(stats func() tasks.Stats, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{stats: stats, checks: checks, started: time.Now()}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]any{
		"status":       status,
		"uptime":       time.Since(h.started).Round(time.Second).String(),
		"dependencies": deps,
	}
	if h.stats != nil {
		body["tasks"] = h.stats()
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, Result{Success: status == "ok", Data: body})
}
