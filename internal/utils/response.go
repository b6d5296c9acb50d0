// internal/utils/response.go
package utils

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gauge-service/internal/model"
)

// RequestIDKey is the gin context key holding the request ID
const RequestIDKey = "request_id"

// APIResponse represents standard API response structure
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError represents error information
type APIError struct {
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	})
}

// ErrorResponse sends an error response
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	apiError := &APIError{
		Code:    getErrorCode(statusCode),
		Message: message,
	}
	if err != nil {
		apiError.Details = err.Error()
		if kind, ok := model.KindOf(err); ok {
			apiError.Kind = string(kind)
		}
	}

	c.JSON(statusCode, APIResponse{
		Success:   false,
		Message:   message,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	})
}

// GaugeErrorResponse sends an error response with the status mapped from the error kind
func GaugeErrorResponse(c *gin.Context, message string, err error) {
	ErrorResponse(c, StatusForError(err), message, err)
}

// StatusForError maps gauge errors onto HTTP status codes
func StatusForError(err error) int {
	if errors.Is(err, model.ErrInvalidArgument) {
		return http.StatusBadRequest
	}

	kind, ok := model.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case model.ErrorKindCommandRejected:
		return http.StatusConflict
	case model.ErrorKindTransportError:
		return http.StatusBadGateway
	case model.ErrorKindChannelFault, model.ErrorKindWrongModuleConfiguration:
		return http.StatusFailedDependency
	case model.ErrorKindCommFailure:
		return http.StatusServiceUnavailable
	case model.ErrorKindRangeAnomaly, model.ErrorKindProtocolViolation:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// ValidationErrorResponse sends validation error response
func ValidationErrorResponse(c *gin.Context, errors map[string]string) {
	c.JSON(http.StatusBadRequest, APIResponse{
		Success: false,
		Message: "Validation failed",
		Error: &APIError{
			Code:    "VALIDATION_ERROR",
			Message: "Request validation failed",
		},
		Data:      gin.H{"validation_errors": errors},
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	})
}

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	if requestID, ok := c.Get(RequestIDKey); ok {
		if s, ok := requestID.(string); ok {
			return s
		}
	}
	return ""
}

// getErrorCode returns error code based on HTTP status
func getErrorCode(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "COMMAND_REJECTED"
	case http.StatusFailedDependency:
		return "CHANNEL_FAULT"
	case http.StatusUnprocessableEntity:
		return "INVALID_READING"
	case http.StatusInternalServerError:
		return "INTERNAL_SERVER_ERROR"
	case http.StatusBadGateway:
		return "TRANSPORT_ERROR"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "UNKNOWN_ERROR"
	}
}
