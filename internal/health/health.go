// Package health reports the readiness of the service's dependencies.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/xiaoshiliu/mediaservice/internal/response"
)

// Pinger is implemented by dependencies that support health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Handler runs every registered check on each request.
type Handler struct {
	checks  map[string]Pinger
	timeout time.Duration
}

// NewHandler creates a health Handler with the given named checks.
func NewHandler(checks map[string]Pinger) *Handler {
	return &Handler{checks: checks, timeout: 3 * time.Second}
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Check responds 200 with status "ok" when all checks pass, else 503 "degraded".
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	out := report{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	for name, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			out.Checks[name] = "error: " + err.Error()
			out.Status = "degraded"
			continue
		}
		out.Checks[name] = "ok"
	}

	status := http.StatusOK
	if out.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, status, out)
}
