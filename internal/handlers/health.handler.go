package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/fasthttp/router"
	xhttp "github.com/nimasrn/school-treasury/pkg/http"
	"github.com/nimasrn/school-treasury/pkg/logger"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]HealthCheck
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	c, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	status := xhttp.StatusOK
	for _, name := range names {
		if err := h.checks[name](c); err != nil {
			logger.Warn("[health] dependency check failed", "check", name, "error", err)
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = xhttp.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(ctx, status, resp)
}
