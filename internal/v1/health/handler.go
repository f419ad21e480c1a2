// Package health exposes the Kubernetes-style liveness and readiness
// probes.
package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HubStatus is the hub surface the readiness probe inspects.
type HubStatus interface {
	Running() bool
	RoomCount() int
}

// BreakerStatus reports the metadata circuit breaker state.
type BreakerStatus interface {
	BreakerState() string
}

// Handler manages health check endpoints
type Handler struct {
	hub     HubStatus
	breaker BreakerStatus
}

// NewHandler creates a new health check handler
func NewHandler(hub HubStatus, breaker BreakerStatus) *Handler {
	return &Handler{hub: hub, breaker: breaker}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint
// GET /health/live
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// Returns 200 only when the hub loop is running; an open metadata
// breaker is reported but does not fail readiness, since lookups
// degrade to fallback metadata.
func (h *Handler) Readiness(c *gin.Context) {
	checks := make(map[string]string)
	allHealthy := true

	if h.hub != nil && h.hub.Running() {
		checks["hub"] = "healthy"
	} else {
		checks["hub"] = "unhealthy"
		allHealthy = false
	}

	if h.breaker != nil {
		state := h.breaker.BreakerState()
		if state == "open" {
			checks["metadata"] = "degraded"
		} else {
			checks["metadata"] = "healthy"
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
