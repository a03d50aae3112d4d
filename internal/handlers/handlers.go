package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/vestra/vestra/internal/services"
)

type Handlers struct {
	Health         *HealthHandler
	Auth           *AuthHandler
	Feedback       *FeedbackHandler
	Recommendation *RecommendationHandler
	Learning       *LearningHandler
}

func New(logger *logrus.Logger, services *services.Services) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, services.Health),
		Auth:           NewAuthHandler(logger, services.Auth),
		Feedback:       NewFeedbackHandler(logger, services.Feedback),
		Recommendation: NewRecommendationHandler(logger, services.Recommendation),
		Learning:       NewLearningHandler(logger, services.Learning, services.Insights, services.PairGraph),
	}
}
