// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gauge-service/internal/config"
	"gauge-service/internal/handler"
	"gauge-service/internal/middleware"
	"gauge-service/internal/utils"
	"gauge-service/pkg/driver"
)

// Router holds all dependencies for routing
type Router struct {
	config    *config.Config
	logger    *zap.Logger
	gauge     driver.GaugeDriver
	bus       *handler.EventBus
	websocket *handler.WebSocketHandler
	metrics   http.Handler
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	gauge driver.GaugeDriver,
	bus *handler.EventBus,
	websocket *handler.WebSocketHandler,
	metrics http.Handler,
) *Router {
	return &Router{
		config:    config,
		logger:    logger,
		gauge:     gauge,
		bus:       bus,
		websocket: websocket,
		metrics:   metrics,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	r.addMiddleware(router)
	r.addRoutes(router)
	return router
}

func (r *Router) addMiddleware(router *gin.Engine) {
	httpLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(httpLogger))
	router.Use(middleware.LoggingMiddleware(httpLogger))
	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Debug("Middleware configured")
}

func (r *Router) addRoutes(router *gin.Engine) {
	handler.NewHealthHandler(r.gauge, r.config, r.logger).RegisterRoutes(router)

	apiV1 := router.Group("/api/v1")
	handler.NewGaugeHandler(r.gauge, r.bus, r.logger).RegisterRoutes(apiV1)

	if r.websocket != nil {
		ws := router.Group("/ws")
		r.websocket.RegisterRoutes(ws)
		ws.GET("/stats", func(c *gin.Context) {
			utils.SuccessResponse(c, http.StatusOK, "WebSocket connections", r.websocket.GetConnectionStats())
		})
	}

	if r.metrics != nil {
		router.GET("/metrics", gin.WrapH(r.metrics))
	}

	r.logger.Info("All routes configured successfully")
}
