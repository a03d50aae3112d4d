package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/vestra/vestra/internal/middleware"
	"github.com/vestra/vestra/internal/services"
	"github.com/vestra/vestra/pkg/models"
)

type RecommendationHandler struct {
	logger                *logrus.Logger
	recommendationService *services.RecommendationService
	validator             *validator.Validate
}

func NewRecommendationHandler(logger *logrus.Logger, recommendationService *services.RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{
		logger:                logger,
		recommendationService: recommendationService,
		validator:             validator.New(),
	}
}

// Generate produces an outfit recommendation for the calling user.
func (h *RecommendationHandler) Generate(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	var req models.RecommendationRequest
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

	outfit, err := h.recommendationService.GenerateRecommendation(c.Request.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInsufficientWardrobe):
			services.ObserveRecommendation("insufficient_wardrobe")
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": gin.H{
					"code":    "INSUFFICIENT_WARDROBE",
					"message": "Not enough usable wardrobe items for this request",
					"details": err.Error(),
				},
			})
		case errors.Is(err, services.ErrLocationNotSet):
			services.ObserveRecommendation("location_not_set")
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": gin.H{
					"code":    "LOCATION_NOT_SET",
					"message": "Set a location or provide weather in the request",
					"details": err.Error(),
				},
			})
		case errors.Is(err, services.ErrWeatherUnavailable):
			services.ObserveRecommendation("weather_failed")
			h.logger.WithError(err).WithField("user_id", userID).Error("Weather lookup failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": gin.H{
					"code":    "WEATHER_UNAVAILABLE",
					"message": "Could not fetch weather data; provide weather manually",
				},
			})
		case errors.Is(err, services.ErrAIRecommendation):
			services.ObserveRecommendation("ai_failed")
			h.logger.WithError(err).WithField("user_id", userID).Error("Outfit generation failed")
			c.JSON(http.StatusBadGateway, gin.H{
				"error": gin.H{
					"code":    "AI_UNAVAILABLE",
					"message": "Outfit generation is temporarily unavailable",
				},
			})
		default:
			services.ObserveRecommendation("error")
			h.logger.WithError(err).WithField("user_id", userID).Error("Failed to generate recommendation")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "RECOMMENDATION_FAILED",
					"message": "Failed to generate recommendation",
				},
			})
		}
		return
	}

	services.ObserveRecommendation("generated")
	c.JSON(http.StatusCreated, gin.H{
		"data":    outfit,
		"message": "Outfit generated successfully",
	})
}
