package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/vestra/vestra/internal/middleware"
	"github.com/vestra/vestra/internal/services"
	"github.com/vestra/vestra/pkg/models"
)

type AuthHandler struct {
	logger      *logrus.Logger
	authService *services.AuthService
	validator   *validator.Validate
}

func NewAuthHandler(logger *logrus.Logger, authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		logger:      logger,
		authService: authService,
		validator:   validator.New(),
	}
}

// IssueToken exchanges an API key for a JWT session token.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req models.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Invalid request body format",
				"details": err.Error(),
			},
		})
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Request validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	userID, resp, err := h.authService.Authenticate(&req)
	if err != nil {
		h.logger.WithError(err).Warn("Token issuance rejected")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"code":    "AUTHENTICATION_FAILED",
				"message": "Invalid API key or user ID",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"user_id":    userID,
			"token":      resp.Token,
			"expires_at": resp.ExpiresAt,
			"plan":       resp.Plan,
		},
	})
}

// RevokeToken invalidates the caller's session.
func (h *AuthHandler) RevokeToken(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)
	if err := h.authService.RevokeToken(userID); err != nil {
		h.logger.WithError(err).Error("Failed to revoke session")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "REVOCATION_FAILED",
				"message": "Failed to revoke session",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session revoked"})
}
