// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gauge-service/internal/config"
	"gauge-service/internal/model"
	"gauge-service/internal/utils"
	"gauge-service/pkg/driver"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	gauge     driver.GaugeDriver
	config    *config.Config
	logger    *utils.ServiceLogger
	startedAt time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(gauge driver.GaugeDriver, cfg *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		gauge:     gauge,
		config:    cfg,
		logger:    utils.NewServiceLogger(logger, "health-handler"),
		startedAt: time.Now(),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck reports service and controller communication health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	report := h.gauge.Health()

	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult),
	}

	comm := CheckResult{
		Status:  "healthy",
		Message: report.Report,
		Data: map[string]interface{}{
			"errors":       report.Comm.Errors,
			"registers":    report.Comm.Registers,
			"last_success": report.Comm.LastSuccess,
			"state":        report.State,
		},
	}
	if !report.Healthy {
		health.Status = "unhealthy"
		comm.Status = "unhealthy"
	}
	health.Checks["controller"] = comm

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		h.logger.Warn("Health check failed", zap.String("report", report.Report))
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, health)
}

// ReadinessCheck is ready once the first poll cycle has completed
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	report := h.gauge.Health()
	if !report.Comm.Initialized || report.State == model.StateInit {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "hardware values not read yet",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"state":     report.State,
		"timestamp": time.Now(),
	})
}

// LivenessCheck reports that the process answers
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
