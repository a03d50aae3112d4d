package services

import (
	"github.com/sirupsen/logrus"

	"github.com/vestra/vestra/internal/config"
	"github.com/vestra/vestra/internal/database"
	"github.com/vestra/vestra/internal/messaging"
)

type Services struct {
	Auth           *AuthService
	Health         *HealthService
	RateLimit      *RateLimitService
	MessageBus     *messaging.MessageBus
	PairGraph      *PairGraphMirror
	Learning       *LearningService
	Insights       *InsightService
	Feedback       *FeedbackService
	Recommendation *RecommendationService
	Refresher      *ProfileRefresher
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database, generator TextGenerator, weather WeatherProvider) (*Services, error) {
	authService := NewAuthService(cfg, logger, db.Redis)
	healthService := NewHealthService(cfg, logger, db)
	rateLimitService := NewRateLimitService(cfg, logger, db.Redis)

	var messageBus *messaging.MessageBus
	var publisher FeedbackPublisher
	if cfg.Kafka.Enabled {
		mb, err := messaging.NewMessageBus(cfg, logger)
		if err != nil {
			return nil, err
		}
		messageBus = mb
		publisher = mb
	}

	var pairGraph *PairGraphMirror
	if cfg.Neo4j.Enabled && db.Neo4j != nil {
		pairGraph = NewPairGraphMirror(db.Neo4j, cfg, logger)
	}

	learningService := NewLearningService(db.PG, db.Redis, cfg, logger, publisher, pairGraph)
	insightService := NewInsightService(db.PG, cfg, logger)
	feedbackService := NewFeedbackService(db.PG, cfg, logger, learningService)
	recommendationService := NewRecommendationService(db.PG, cfg, logger, learningService, generator, weather)
	refresher := NewProfileRefresher(db.PG, cfg, logger, learningService)
	refresher.Start()

	return &Services{
		Auth:           authService,
		Health:         healthService,
		RateLimit:      rateLimitService,
		MessageBus:     messageBus,
		PairGraph:      pairGraph,
		Learning:       learningService,
		Insights:       insightService,
		Feedback:       feedbackService,
		Recommendation: recommendationService,
		Refresher:      refresher,
	}, nil
}

// Stop shuts down background workers and the message bus.
func (s *Services) Stop() {
	if s.Refresher != nil {
		s.Refresher.Stop()
	}
	if s.PairGraph != nil {
		s.PairGraph.Stop()
	}
	if s.MessageBus != nil {
		if err := s.MessageBus.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close message bus")
		}
	}
}
