package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/urbex/api/internal/logger"
	"github.com/stwalsh4118/urbex/api/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	c.Set(middleware.LoggerKey, logger.Nop())
	c.Set(middleware.RequestIDKey, "test-request-id")
	return c, w
}

func parseErrorResponse(t *testing.T, body *bytes.Buffer) ErrorResponse {
	t.Helper()
	var response ErrorResponse
	require.NoError(t, json.Unmarshal(body.Bytes(), &response), "Failed to parse error response JSON")
	return response
}

func TestNotFound(t *testing.T) {
	c, w := setupTestContext("/api/v1/properties/42")

	NotFound(c, "Property not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	response := parseErrorResponse(t, w.Body)
	assert.Equal(t, ErrNotFound, response.Error.Code)
	assert.Equal(t, "Property not found", response.Error.Message)
	assert.Equal(t, "test-request-id", response.Error.RequestID)
	assert.Nil(t, response.Error.Details)
}

func TestBadRequest(t *testing.T) {
	t.Run("without details", func(t *testing.T) {
		c, w := setupTestContext("/api/v1/search")

		BadRequest(c, "Invalid input", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		response := parseErrorResponse(t, w.Body)
		assert.Equal(t, ErrBadRequest, response.Error.Code)
		assert.Nil(t, response.Error.Details)
	})

	t.Run("with details", func(t *testing.T) {
		c, w := setupTestContext("/api/v1/properties/nearby")

		BadRequest(c, "Invalid coordinates", map[string]interface{}{"lat": 91.0})

		response := parseErrorResponse(t, w.Body)
		assert.Equal(t, ErrBadRequest, response.Error.Code)
		assert.Equal(t, 91.0, response.Error.Details["lat"])
	})
}

func TestConflict(t *testing.T) {
	c, w := setupTestContext("/api/v1/properties/3/news")

	Conflict(c, "News mention already recorded")

	assert.Equal(t, http.StatusConflict, w.Code)
	response := parseErrorResponse(t, w.Body)
	assert.Equal(t, ErrConflict, response.Error.Code)
	assert.Equal(t, "test-request-id", response.Error.RequestID)
}

func TestInternalServerError(t *testing.T) {
	c, w := setupTestContext("/api/v1/stats")

	InternalServerError(c, "Failed to compute statistics", errors.New("disk I/O error"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	response := parseErrorResponse(t, w.Body)
	assert.Equal(t, ErrInternalServer, response.Error.Code)
	assert.Equal(t, "Failed to compute statistics", response.Error.Message)
	assert.NotContains(t, w.Body.String(), "disk I/O error", "internal detail must not leak")
}

func TestServiceUnavailable(t *testing.T) {
	c, w := setupTestContext("/health/ready")

	ServiceUnavailable(c, "Store is unavailable", errors.New("connection refused"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	response := parseErrorResponse(t, w.Body)
	assert.Equal(t, ErrDatabaseConnection, response.Error.Code)
}

func TestValidationError(t *testing.T) {
	c, w := setupTestContext("/api/v1/properties")

	type listQuery struct {
		State    string `validate:"omitempty,len=2"`
		MinScore int    `validate:"gte=0,lte=10"`
	}

	err := validator.New().Struct(listQuery{State: "Illinois", MinScore: 11})
	require.Error(t, err)
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))

	ValidationError(c, verrs)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	response := parseErrorResponse(t, w.Body)
	assert.Equal(t, ErrValidation, response.Error.Code)
	assert.Equal(t, "Must have length of 2", response.Error.Details["State"])
	assert.Equal(t, "Must be less than or equal to 10", response.Error.Details["MinScore"])
}

func TestBindingError(t *testing.T) {
	t.Run("validator errors use the validation envelope", func(t *testing.T) {
		c, w := setupTestContext("/api/v1/properties")
		type q struct {
			Limit int `validate:"gte=1"`
		}
		BindingError(c, validator.New().Struct(q{}))

		response := parseErrorResponse(t, w.Body)
		assert.Equal(t, ErrValidation, response.Error.Code)
	})

	t.Run("parse errors are bad requests", func(t *testing.T) {
		c, w := setupTestContext("/api/v1/properties")
		_, parseErr := strconv.Atoi("ten")
		BindingError(c, parseErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		response := parseErrorResponse(t, w.Body)
		assert.Equal(t, ErrBadRequest, response.Error.Code)
		assert.Contains(t, response.Error.Details["reason"], "invalid syntax")
	})
}

func TestFormatValidationError(t *testing.T) {
	tests := []struct {
		tag      string
		param    string
		expected string
	}{
		{tag: "required", expected: "This field is required"},
		{tag: "min", param: "3", expected: "Value is too short or small (minimum: 3)"},
		{tag: "max", param: "500", expected: "Value is too long or large (maximum: 500)"},
		{tag: "len", param: "2", expected: "Must have length of 2"},
		{tag: "gt", param: "0", expected: "Must be greater than 0"},
		{tag: "gte", param: "1", expected: "Must be greater than or equal to 1"},
		{tag: "lt", param: "100", expected: "Must be less than 100"},
		{tag: "lte", param: "10", expected: "Must be less than or equal to 10"},
		{tag: "oneof", param: "success partial failure", expected: "Must be one of: success partial failure"},
		{tag: "url", expected: "Must be a valid URL"},
		{tag: "uuid", expected: "Must be a valid UUID"},
		{tag: "latitude", expected: "Must be a valid latitude"},
		{tag: "longitude", expected: "Must be a valid longitude"},
		{tag: "unknown_tag", expected: "Validation failed for tag: unknown_tag"},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			result := formatValidationError(&mockFieldError{tag: tt.tag, param: tt.param})
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestErrorResponseWithoutContext(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)

	NotFound(c, "Resource not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	response := parseErrorResponse(t, w.Body)
	assert.Empty(t, response.Error.RequestID)
}

// mockFieldError is a mock implementation of validator.FieldError for testing.
type mockFieldError struct {
	tag   string
	param string
}

func (m *mockFieldError) Tag() string                    { return m.tag }
func (m *mockFieldError) ActualTag() string              { return m.tag }
func (m *mockFieldError) Namespace() string              { return "" }
func (m *mockFieldError) StructNamespace() string        { return "" }
func (m *mockFieldError) Field() string                  { return "TestField" }
func (m *mockFieldError) StructField() string            { return "TestField" }
func (m *mockFieldError) Value() interface{}             { return nil }
func (m *mockFieldError) Param() string                  { return m.param }
func (m *mockFieldError) Kind() reflect.Kind             { return reflect.String }
func (m *mockFieldError) Type() reflect.Type             { return nil }
func (m *mockFieldError) Translate(ut.Translator) string { return "" }
func (m *mockFieldError) Error() string                  { return "" }
