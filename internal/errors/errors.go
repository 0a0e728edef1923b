package errors

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stwalsh4118/urbex/api/internal/middleware"
)

// Error code constants for standardized error responses
const (
	ErrNotFound           = "NOT_FOUND"
	ErrBadRequest         = "BAD_REQUEST"
	ErrInternalServer     = "INTERNAL_SERVER_ERROR"
	ErrValidation         = "VALIDATION_ERROR"
	ErrDatabaseConnection = "DATABASE_CONNECTION_ERROR"
	ErrConflict           = "CONFLICT"
)

// ErrorResponse is the top-level error response structure.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// NotFound returns a 404 Not Found error response.
func NotFound(c *gin.Context, message string) {
	respond(c, http.StatusNotFound, ErrNotFound, message, nil, func(fields map[string]interface{}) {
		if log := middleware.GetLogger(c); log != nil {
			log.Warn("Resource not found", fields)
		}
	})
}

// BadRequest returns a 400 Bad Request error response with optional details.
func BadRequest(c *gin.Context, message string, details map[string]interface{}) {
	respond(c, http.StatusBadRequest, ErrBadRequest, message, details, func(fields map[string]interface{}) {
		if log := middleware.GetLogger(c); log != nil {
			log.Warn("Bad request", fields)
		}
	})
}

// Conflict returns a 409 response for a write that duplicates an existing
// resource.
func Conflict(c *gin.Context, message string) {
	respond(c, http.StatusConflict, ErrConflict, message, nil, func(fields map[string]interface{}) {
		if log := middleware.GetLogger(c); log != nil {
			log.Warn("Conflict", fields)
		}
	})
}

// InternalServerError returns a 500 response. The underlying error is logged
// with full context; only message is sent to the client.
func InternalServerError(c *gin.Context, message string, err error) {
	respond(c, http.StatusInternalServerError, ErrInternalServer, message, nil, func(fields map[string]interface{}) {
		fields["method"] = c.Request.Method
		if log := middleware.GetLogger(c); log != nil {
			log.Error("Internal server error", err, fields)
		}
	})
}

// ServiceUnavailable returns a 503 response for an unreachable property store.
func ServiceUnavailable(c *gin.Context, message string, err error) {
	respond(c, http.StatusServiceUnavailable, ErrDatabaseConnection, message, nil, func(fields map[string]interface{}) {
		if log := middleware.GetLogger(c); log != nil {
			log.Error("Store unavailable", err, fields)
		}
	})
}

// ValidationError returns a 400 response with one message per failing field.
func ValidationError(c *gin.Context, validationErrors validator.ValidationErrors) {
	details := make(map[string]interface{}, len(validationErrors))
	for _, err := range validationErrors {
		details[err.Field()] = formatValidationError(err)
	}

	respond(c, http.StatusBadRequest, ErrValidation, "Validation failed for one or more fields", details,
		func(fields map[string]interface{}) {
			if log := middleware.GetLogger(c); log != nil {
				log.Warn("Validation error", fields)
			}
		})
}

// BindingError reports a failed ShouldBind call. Validator failures get the
// field-level envelope; anything else (malformed numbers, bad JSON) is a
// plain bad request.
func BindingError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		ValidationError(c, verrs)
		return
	}
	BadRequest(c, "Invalid request parameters", map[string]interface{}{"reason": err.Error()})
}

func respond(c *gin.Context, status int, code, message string, details map[string]interface{}, logFn func(map[string]interface{})) {
	requestID := middleware.GetRequestID(c)

	fields := map[string]interface{}{
		"message":    message,
		"request_id": requestID,
		"path":       c.Request.URL.Path,
	}
	if details != nil {
		fields["details"] = details
	}
	logFn(fields)

	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
	})
}

var validationMessages = map[string]string{
	"required":  "This field is required",
	"min":       "Value is too short or small (minimum: %s)",
	"max":       "Value is too long or large (maximum: %s)",
	"len":       "Must have length of %s",
	"gt":        "Must be greater than %s",
	"gte":       "Must be greater than or equal to %s",
	"lt":        "Must be less than %s",
	"lte":       "Must be less than or equal to %s",
	"oneof":     "Must be one of: %s",
	"url":       "Must be a valid URL",
	"uuid":      "Must be a valid UUID",
	"latitude":  "Must be a valid latitude",
	"longitude": "Must be a valid longitude",
}

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(err validator.FieldError) string {
	msg, ok := validationMessages[err.Tag()]
	if !ok {
		return "Validation failed for tag: " + err.Tag()
	}
	return strings.Replace(msg, "%s", err.Param(), 1)
}
