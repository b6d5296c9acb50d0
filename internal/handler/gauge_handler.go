// internal/handler/gauge_handler.go
package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gauge-service/internal/model"
	"gauge-service/internal/utils"
	"gauge-service/pkg/driver"
)

// GaugeHandler exposes the controller attributes and commands over HTTP
type GaugeHandler struct {
	gauge  driver.GaugeDriver
	bus    *EventBus
	logger *utils.ServiceLogger
}

// NewGaugeHandler creates a new gauge handler
func NewGaugeHandler(gauge driver.GaugeDriver, bus *EventBus, logger *zap.Logger) *GaugeHandler {
	return &GaugeHandler{
		gauge:  gauge,
		bus:    bus,
		logger: utils.NewServiceLogger(logger, "gauge-handler"),
	}
}

// SetpointRequest carries the values of a setpoint write
type SetpointRequest struct {
	Values []float64 `json:"values" binding:"required"`
}

// CommandRequest carries the optional argument of a command
type CommandRequest struct {
	Argument string `json:"argument"`
}

// CommandResponse is the reply of an executed command
type CommandResponse struct {
	Command  string `json:"command"`
	Argument string `json:"argument,omitempty"`
	Reply    string `json:"reply"`
}

// RegisterRoutes registers gauge routes
func (h *GaugeHandler) RegisterRoutes(router *gin.RouterGroup) {
	gauge := router.Group("/gauge")
	{
		gauge.GET("", h.GetSnapshot)
		gauge.GET("/state", h.GetState)
		gauge.GET("/channels/:channel", h.GetChannel)
		gauge.PUT("/setpoints/:kind", h.WriteSetpoints)
		gauge.GET("/commands", h.ListCommands)
		gauge.POST("/commands/:name", h.ExecuteCommand)
		gauge.GET("/events", h.ListEvents)
	}
}

// GetSnapshot returns every attribute of the controller
func (h *GaugeHandler) GetSnapshot(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Gauge snapshot", h.gauge.Snapshot())
}

// GetState returns the visible state and status
func (h *GaugeHandler) GetState(c *gin.Context) {
	snap := h.gauge.Snapshot()
	utils.SuccessResponse(c, http.StatusOK, "Gauge state", gin.H{
		"state":  snap.State,
		"status": snap.Status,
	})
}

// GetChannel reads one pressure or setpoint register
func (h *GaugeHandler) GetChannel(c *gin.Context) {
	ch, err := model.ParseChannel(c.Param("channel"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid channel", err)
		return
	}

	reading, err := h.gauge.ReadChannel(ch)
	if err != nil {
		h.logger.Debug("Channel read failed", zap.String("channel", ch.String()), zap.Error(err))
		utils.GaugeErrorResponse(c, fmt.Sprintf("Channel %s unavailable", ch), err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Channel reading", reading)
}

// WriteSetpoints writes the protect or relay setpoints
func (h *GaugeHandler) WriteSetpoints(c *gin.Context) {
	kind, ok := setpointKind(c.Param("kind"))
	if !ok {
		utils.ValidationErrorResponse(c, map[string]string{"kind": "must be protect or relay"})
		return
	}

	var req SetpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reply, err := h.gauge.WriteSetpoints(c.Request.Context(), kind, req.Values)
	if err != nil {
		h.logger.Error("Setpoint write failed", zap.String("kind", string(kind)), zap.Error(err))
		utils.GaugeErrorResponse(c, "Failed to write setpoints", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Setpoints written", CommandResponse{Command: string(kind), Reply: reply})
}

// ListCommands returns the available commands
func (h *GaugeHandler) ListCommands(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Available commands", h.gauge.Commands())
}

// ExecuteCommand runs a named command with an optional argument
func (h *GaugeHandler) ExecuteCommand(c *gin.Context) {
	name := c.Param("name")

	var req CommandRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	if req.Argument == "" {
		req.Argument = c.Query("argument")
	}

	reply, err := h.gauge.DispatchCommand(c.Request.Context(), name, req.Argument)
	if err != nil {
		utils.GaugeErrorResponse(c, fmt.Sprintf("Command %s failed", name), err)
		return
	}

	h.logger.Info("Command executed", zap.String("command", name), zap.String("argument", req.Argument))
	utils.SuccessResponse(c, http.StatusOK, "Command executed", CommandResponse{
		Command:  name,
		Argument: req.Argument,
		Reply:    reply,
	})
}

// ListEvents returns the recent gauge events
func (h *GaugeHandler) ListEvents(c *gin.Context) {
	var events []model.DeviceEvent
	if h.bus != nil {
		events = h.bus.History()
	}
	utils.SuccessResponse(c, http.StatusOK, "Recent events", events)
}

func setpointKind(s string) (driver.SetpointKind, bool) {
	switch strings.ToLower(s) {
	case "protect", strings.ToLower(string(driver.SetpointProtect)):
		return driver.SetpointProtect, true
	case "relay", strings.ToLower(string(driver.SetpointRelay)):
		return driver.SetpointRelay, true
	}
	return "", false
}
