package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vestra/vestra/internal/middleware"
	"github.com/vestra/vestra/internal/services"
	"github.com/vestra/vestra/pkg/models"
)

type FeedbackHandler struct {
	logger          *logrus.Logger
	feedbackService *services.FeedbackService
	validator       *validator.Validate
}

func NewFeedbackHandler(logger *logrus.Logger, feedbackService *services.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{
		logger:          logger,
		feedbackService: feedbackService,
		validator:       validator.New(),
	}
}

// Submit records feedback on a generated outfit and triggers preference
// learning for the calling user.
func (h *FeedbackHandler) Submit(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	outfitID, err := uuid.Parse(c.Param("outfitId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_OUTFIT_ID",
				"message": "Invalid outfit ID format",
			},
		})
		return
	}

	var req models.FeedbackRequest
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

	feedback, err := h.feedbackService.SubmitFeedback(c.Request.Context(), userID, outfitID, &req)
	if err != nil {
		if errors.Is(err, services.ErrOutfitNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "OUTFIT_NOT_FOUND",
					"message": "Outfit not found for this user",
				},
			})
			return
		}

		h.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":   userID,
			"outfit_id": outfitID,
		}).Error("Failed to submit feedback")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "FEEDBACK_SUBMISSION_FAILED",
				"message": "Failed to record feedback",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data":    feedback,
		"message": "Feedback recorded successfully",
	})
}
