package response

import (
	"time"

	"github.com/gin-gonic/gin"

	"nexus-catalog/internal/utils"
)

// CorrelationIDKey is the gin context key the correlation middleware sets.
const CorrelationIDKey = "correlation_id"

// StandardResponse represents a standardized API response
type StandardResponse struct {
	Success       bool       `json:"success"`
	Data          any        `json:"data,omitempty"`
	Error         *ErrorInfo `json:"error,omitempty"`
	Message       string     `json:"message,omitempty"`
	CorrelationID string     `json:"correlationId"`
	Timestamp     time.Time  `json:"timestamp"`
}

// ErrorInfo represents error information in responses
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func SuccessResponse(data any, correlationID string) *StandardResponse {
	return &StandardResponse{
		Success:       true,
		Data:          data,
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
	}
}

func SuccessMessageResponse(message, correlationID string) *StandardResponse {
	return &StandardResponse{
		Success:       true,
		Message:       message,
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
	}
}

func ErrorResponse(code, message, details, correlationID string) *StandardResponse {
	return &StandardResponse{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
			Details: details,
		},
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
	}
}

func ErrorResponseFromAppError(appErr *utils.AppError, correlationID string) *StandardResponse {
	return ErrorResponse(appErr.Code, appErr.Message, appErr.Details, correlationID)
}

func UnauthorizedResponse(message string, correlationID string) *StandardResponse {
	if message == "" {
		message = "Unauthorized access"
	}
	return ErrorResponse(utils.ErrCodeUnauthorized, message, "", correlationID)
}

func ForbiddenResponse(message string, correlationID string) *StandardResponse {
	if message == "" {
		message = "Forbidden access"
	}
	return ErrorResponse(utils.ErrCodeForbidden, message, "", correlationID)
}

// CorrelationID returns the request's correlation id, if any.
func CorrelationID(c *gin.Context) string {
	if id, ok := c.Get(CorrelationIDKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// OK writes data with the given status.
func OK(c *gin.Context, status int, data any) {
	c.JSON(status, SuccessResponse(data, CorrelationID(c)))
}

// Fail writes err with the status of its error code and aborts the chain.
func Fail(c *gin.Context, err error) {
	appErr := utils.AsAppError(err)
	c.AbortWithStatusJSON(utils.GetErrorStatus(appErr), ErrorResponseFromAppError(appErr, CorrelationID(c)))
}
