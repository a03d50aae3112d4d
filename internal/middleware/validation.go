package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vestra/vestra/internal/validation"
)

// ValidationMiddleware validates request bodies against JSON schemas before
// handlers bind them.
type ValidationMiddleware struct {
	validator *validation.SchemaValidator
}

func NewValidationMiddleware(validator *validation.SchemaValidator) *ValidationMiddleware {
	return &ValidationMiddleware{
		validator: validator,
	}
}

// ValidateFeedback validates outfit feedback submissions.
func (vm *ValidationMiddleware) ValidateFeedback() gin.HandlerFunc {
	return vm.validateRequestBody("outfit-feedback")
}

// ValidateRecommendationRequest validates recommendation requests.
func (vm *ValidationMiddleware) ValidateRecommendationRequest() gin.HandlerFunc {
	return vm.validateRequestBody("recommendation-request")
}

// ValidateAuthRequest validates token requests.
func (vm *ValidationMiddleware) ValidateAuthRequest() gin.HandlerFunc {
	return vm.validateRequestBody("auth-request")
}

func (vm *ValidationMiddleware) validateRequestBody(schemaName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodDelete {
			c.Next()
			return
		}

		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			vm.sendValidationError(c, "BODY_READ_ERROR", "Failed to read request body")
			return
		}

		// Restore request body for downstream handlers
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		if len(bodyBytes) == 0 {
			vm.sendValidationError(c, "EMPTY_BODY", "Request body is required")
			return
		}

		var jsonData interface{}
		if err := json.Unmarshal(bodyBytes, &jsonData); err != nil {
			vm.sendValidationError(c, "INVALID_JSON", "Request body must be valid JSON")
			return
		}

		result := vm.validator.ValidateJSONString(schemaName, string(bodyBytes))
		if !result.Valid {
			apiError := result.ToAPIError()
			if errorObj, ok := apiError["error"].(map[string]interface{}); ok {
				errorObj["timestamp"] = time.Now().UTC().Format(time.RFC3339)
				errorObj["requestId"] = uuid.New().String()
				errorObj["path"] = c.Request.URL.Path
			}

			c.JSON(http.StatusBadRequest, apiError)
			c.Abort()
			return
		}

		c.Next()
	}
}

func (vm *ValidationMiddleware) sendValidationError(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":      code,
			"message":   message,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"path":      c.Request.URL.Path,
		},
	})
	c.Abort()
}
