package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/erp/voucher-export/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Pinger checks a backing dependency
type Pinger interface {
	Ping() error
}

// PingFunc adapts a context-aware check, such as a Redis ping, to Pinger
type PingFunc func() error

// Ping calls f
func (f PingFunc) Ping() error { return f() }

// SystemHandler serves health and build information
type SystemHandler struct {
	BaseHandler
	version   string
	startTime time.Time
	checks    map[string]Pinger
}

// NewSystemHandler creates a new SystemHandler. Every check must pass for the
// service to report healthy.
func NewSystemHandler(version string, checks map[string]Pinger) *SystemHandler {
	return &SystemHandler{
		version:   version,
		startTime: time.Now(),
		checks:    checks,
	}
}

// HealthResponse reports the state of the service and its dependencies
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	GoVersion string            `json:"go_version"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
}

// RegisterRoutes mounts the health endpoint under rg
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.Health)
}

// Health handles GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    make(map[string]string, len(h.checks)),
	}

	status := http.StatusOK
	for name, check := range h.checks {
		if err := check.Ping(); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	c.JSON(status, dto.Response{Success: status == http.StatusOK, Data: resp})
}

// ContextPing bounds a context-aware check with a timeout
func ContextPing(timeout time.Duration, check func(ctx context.Context) error) PingFunc {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return check(ctx)
	}
}
