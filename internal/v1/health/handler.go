package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ReadyChecker reports whether the signaling server is accepting
// connections. Satisfied by *server.Server.
type ReadyChecker interface {
	Running() bool
}

// Handler manages health check endpoints
type Handler struct {
	ready ReadyChecker
}

// NewHandler creates a new health check handler
func NewHandler(ready ReadyChecker) *Handler {
	return &Handler{ready: ready}
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
	response := LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, response)
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// Returns 200 only while the signaling server is started, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	checks := make(map[string]string)

	status := "ready"
	statusCode := http.StatusOK
	if h.ready == nil || !h.ready.Running() {
		checks["signaling"] = "unhealthy"
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["signaling"] = "healthy"
	}

	response := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(statusCode, response)
}
