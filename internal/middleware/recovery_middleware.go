// internal/middleware/recovery_middleware.go
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gauge-service/internal/utils"
)

// RecoveryMiddleware turns handler panics into a 500 envelope.
// It expects RequestIDMiddleware ahead of it so the log and the reply share the request ID.
func RecoveryMiddleware(logger *utils.ServiceLogger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.LogPanic(recovered, c.Request.Method, c.Request.URL.Path, c.GetString(utils.RequestIDKey))

		if c.Writer.Written() {
			c.Abort()
			return
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error", nil)
		c.Abort()
	})
}
