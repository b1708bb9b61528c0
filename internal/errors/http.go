package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/curatarr/curatarr/internal/logger"
)

// ToGinResponse sends the error as a standardized JSON response with a
// machine-readable kind.
func ToGinResponse(c *gin.Context, err error) {
	var appErr *AppError
	if !As(err, &appErr) {
		appErr = Internal("internal error", err)
	}

	status := appErr.HTTPStatus()
	response := gin.H{
		"error": appErr.Message,
		"kind":  string(appErr.Kind),
	}
	if len(appErr.Context) > 0 {
		response["details"] = appErr.Context
	}

	if status >= http.StatusInternalServerError {
		logger.Error("HTTP error response",
			"status", status,
			"kind", string(appErr.Kind),
			"message", appErr.Message,
			"path", c.Request.URL.Path,
			"method", c.Request.Method)
	}

	c.JSON(status, response)
}

// HandleNotFound sends a not found error response
func HandleNotFound(c *gin.Context, resource string, id string) {
	ToGinResponse(c, NotFound(resource, id))
}

// HandleValidationError sends a validation error response
func HandleValidationError(c *gin.Context, message string, field string) {
	ToGinResponse(c, Validation(message, field))
}

// HandleInternalError sends an internal server error response
func HandleInternalError(c *gin.Context, message string, err error) {
	ToGinResponse(c, Internal(message, err))
}
