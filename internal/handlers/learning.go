package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vestra/vestra/internal/middleware"
	"github.com/vestra/vestra/internal/services"
)

type LearningHandler struct {
	logger          *logrus.Logger
	learningService *services.LearningService
	insightService  *services.InsightService
	pairGraph       *services.PairGraphMirror
}

func NewLearningHandler(
	logger *logrus.Logger,
	learningService *services.LearningService,
	insightService *services.InsightService,
	pairGraph *services.PairGraphMirror,
) *LearningHandler {
	return &LearningHandler{
		logger:          logger,
		learningService: learningService,
		insightService:  insightService,
		pairGraph:       pairGraph,
	}
}

// GetProfile returns the caller's learned preference profile.
func (h *LearningHandler) GetProfile(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	profile, err := h.learningService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to load learning profile")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "PROFILE_LOAD_FAILED",
				"message": "Failed to load learning profile",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": profile})
}

// Recompute rebuilds the caller's profile from full feedback history.
func (h *LearningHandler) Recompute(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	if err := h.learningService.RecomputeProfile(c.Request.Context(), userID); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Profile recompute failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "RECOMPUTE_FAILED",
				"message": "Failed to recompute learning profile",
			},
		})
		return
	}
	services.ObserveProfileRecompute("manual")

	profile, err := h.learningService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to load recomputed profile")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "PROFILE_LOAD_FAILED",
				"message": "Failed to load learning profile",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":    profile,
		"message": "Profile recomputed",
	})
}

// GetPreferences returns the compact learned-preference summary used to
// steer outfit generation.
func (h *LearningHandler) GetPreferences(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	prefs, err := h.learningService.GetLearnedPreferences(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to load learned preferences")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "PREFERENCES_LOAD_FAILED",
				"message": "Failed to load learned preferences",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": prefs})
}

// GetInsights returns active, unacknowledged style insights.
func (h *LearningHandler) GetInsights(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	insights, err := h.insightService.GetActiveInsights(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to load insights")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "INSIGHTS_LOAD_FAILED",
				"message": "Failed to load style insights",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": insights})
}

// GenerateInsights derives fresh insights from the current profile snapshot
// and returns the active set. This is the only path that creates insights.
func (h *LearningHandler) GenerateInsights(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	profile, err := h.learningService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to load profile for insight generation")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "PROFILE_LOAD_FAILED",
				"message": "Failed to load learning profile",
			},
		})
		return
	}

	if err := h.insightService.GenerateInsights(c.Request.Context(), profile); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Insight generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "INSIGHT_GENERATION_FAILED",
				"message": "Failed to generate style insights",
			},
		})
		return
	}

	insights, err := h.insightService.GetActiveInsights(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to load insights")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "INSIGHTS_LOAD_FAILED",
				"message": "Failed to load style insights",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":    insights,
		"message": "Insights generated",
	})
}

// AcknowledgeInsight marks a single insight as seen.
func (h *LearningHandler) AcknowledgeInsight(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	insightID, err := uuid.Parse(c.Param("insightId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_INSIGHT_ID",
				"message": "Invalid insight ID format",
			},
		})
		return
	}

	if err := h.insightService.AcknowledgeInsight(c.Request.Context(), userID, insightID); err != nil {
		if errors.Is(err, services.ErrInsightNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "INSIGHT_NOT_FOUND",
					"message": "Insight not found for this user",
				},
			})
			return
		}

		h.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":    userID,
			"insight_id": insightID,
		}).Error("Failed to acknowledge insight")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "ACKNOWLEDGE_FAILED",
				"message": "Failed to acknowledge insight",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Insight acknowledged"})
}

// GetBestPairs returns the caller's highest-scoring item combinations.
func (h *LearningHandler) GetBestPairs(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)
	limit := parseLimit(c, 10, 50)

	pairs, err := h.learningService.GetBestItemPairs(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to load item pairs")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "PAIRS_LOAD_FAILED",
				"message": "Failed to load item pairs",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pairs})
}

// GetItemPairings returns scored partners for a single wardrobe item,
// plus graph-discovered suggestions when the pair graph is enabled.
func (h *LearningHandler) GetItemPairings(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	itemID, err := uuid.Parse(c.Param("itemId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_ITEM_ID",
				"message": "Invalid item ID format",
			},
		})
		return
	}

	limit := parseLimit(c, 10, 50)

	pairings, err := h.learningService.GetItemPairings(c.Request.Context(), userID, itemID, limit)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"item_id": itemID,
		}).Error("Failed to load item pairings")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "PAIRINGS_LOAD_FAILED",
				"message": "Failed to load item pairings",
			},
		})
		return
	}

	response := gin.H{"data": pairings}

	if h.pairGraph != nil {
		suggestions, err := h.pairGraph.SuggestPartners(c.Request.Context(), userID, itemID, limit)
		if err != nil {
			// Graph suggestions are best-effort; the direct pairings
			// above are still valid without them.
			h.logger.WithError(err).WithField("item_id", itemID).Warn("Pair graph suggestions unavailable")
		} else if len(suggestions) > 0 {
			response["discover"] = suggestions
		}
	}

	c.JSON(http.StatusOK, response)
}

func parseLimit(c *gin.Context, def, max int) int {
	limit := def
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= max {
			limit = parsed
		}
	}
	return limit
}
