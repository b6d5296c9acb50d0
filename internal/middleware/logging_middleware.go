// internal/middleware/logging_middleware.go
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"gauge-service/internal/utils"
)

// targetParams are the route parameters naming what a gauge request acts on
var targetParams = []string{"channel", "kind", "name"}

// LoggingMiddleware logs every request once it has been served
func LoggingMiddleware(logger *utils.ServiceLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		logger.LogAPIRequest(utils.APIRequest{
			Method:    c.Request.Method,
			Route:     route,
			Path:      c.Request.URL.Path,
			ClientIP:  c.ClientIP(),
			RequestID: c.GetString(utils.RequestIDKey),
			Target:    requestTarget(c),
			Status:    c.Writer.Status(),
			Size:      c.Writer.Size(),
			Duration:  time.Since(started),
		})
	}
}

func requestTarget(c *gin.Context) string {
	for _, name := range targetParams {
		if v := c.Param(name); v != "" {
			return v
		}
	}
	return ""
}
