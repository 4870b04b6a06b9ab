package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/telhawk-systems/accesslog/common/httputil"
)

// Check reports whether one dependency is usable.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type HealthHandler struct {
	checks  []Check
	status  func() any
	timeout time.Duration
}

// NewHealthHandler returns liveness and readiness handlers. status, when
// set, is included in the readiness body.
func NewHealthHandler(status func() any, checks ...Check) *HealthHandler {
	return &HealthHandler{checks: checks, status: status, timeout: 2 * time.Second}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready runs every check; any failure answers 503.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	code := http.StatusOK
	body := map[string]any{"status": "ready"}
	results := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Fn(ctx); err != nil {
			results[c.Name] = err.Error()
			code = http.StatusServiceUnavailable
			body["status"] = "not ready"
			continue
		}
		results[c.Name] = "ok"
	}
	body["checks"] = results
	if h.status != nil {
		body["stats"] = h.status()
	}
	httputil.WriteJSON(w, code, body)
}
