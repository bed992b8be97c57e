package api

import (
	"net/http"
	"time"

	"stock-chat/backend/pkg/health"

	"github.com/gin-gonic/gin"
)

// Version is reported by the liveness endpoint
var Version = "dev"

var startTime = time.Now()

// HealthHandler serves liveness and readiness
type HealthHandler struct {
	checker *health.Checker
	live    func() int
}

// HealthResponse represents the liveness response structure
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	Sessions  int       `json:"sessions"`
}

// NewHealthHandler creates a health handler. live reports the number of
// connected chat sessions and may be nil.
func NewHealthHandler(checker *health.Checker, live func() int) *HealthHandler {
	return &HealthHandler{checker: checker, live: live}
}

// Liveness reports that the process is serving requests
func (h *HealthHandler) Liveness(c *gin.Context) {
	sessions := 0
	if h.live != nil {
		sessions = h.live()
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   Version,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Sessions:  sessions,
	})
}

// RegisterHealthRoutes registers /health for the component report and
// /health/live for liveness
func (h *HealthHandler) RegisterHealthRoutes(router gin.IRoutes) {
	router.GET("/health/live", h.Liveness)
	if h.checker != nil {
		router.GET("/health", h.checker.Handler())
	} else {
		router.GET("/health", h.Liveness)
	}
}
