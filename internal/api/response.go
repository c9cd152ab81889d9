package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"deduction-matching-service/pkg/errors"
)

// Error codes used in the response envelope for failures that do not carry an EngineError
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	if id := requestID(c); id != "" {
		if details == nil {
			details = make(map[string]interface{})
		}
		details["requestId"] = id
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Status:  status,
			Details: details,
		},
	})
}

func writeBadRequest(c *gin.Context, message string) {
	writeError(c, http.StatusBadRequest, CodeBadRequest, message, nil)
}

// writeEngineError maps an error onto the envelope, using the EngineError code and
// category to pick the HTTP status.
func writeEngineError(c *gin.Context, err error) {
	engineErr, ok := errors.AsEngineError(err)
	if !ok {
		writeError(c, http.StatusInternalServerError, CodeInternal, err.Error(), nil)
		return
	}

	details := make(map[string]interface{}, len(engineErr.Context)+1)
	for k, v := range engineErr.Context {
		details[k] = v
	}
	if engineErr.Suggestion != "" {
		details["suggestion"] = engineErr.Suggestion
	}

	message := engineErr.Message
	if engineErr.Cause != nil {
		message += ": " + engineErr.Cause.Error()
	}

	writeError(c, statusFor(engineErr), strings.ToUpper(string(engineErr.Code)), message, details)
}

func statusFor(err *errors.EngineError) int {
	switch err.Code {
	case errors.CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case errors.CodeCancelled, errors.CodeTimeout:
		return http.StatusServiceUnavailable
	case errors.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case errors.CodeSourceFailed, errors.CodeConnectionFailed:
		return http.StatusBadGateway
	}

	switch err.Category {
	case errors.CategoryValidation, errors.CategoryParse:
		return http.StatusBadRequest
	case errors.CategoryConfiguration:
		return http.StatusUnprocessableEntity
	case errors.CategoryNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
