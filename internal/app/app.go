package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/vestra/vestra/internal/ai"
	"github.com/vestra/vestra/internal/config"
	"github.com/vestra/vestra/internal/database"
	"github.com/vestra/vestra/internal/handlers"
	"github.com/vestra/vestra/internal/middleware"
	"github.com/vestra/vestra/internal/services"
	"github.com/vestra/vestra/internal/validation"
	"github.com/vestra/vestra/internal/weather"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	// External clients: the outfit generator and the forecast provider
	aiClient := ai.NewClient(&cfg.AI, app.logger)
	weatherClient := weather.NewClient(&cfg.Weather, app.logger)

	// Initialize services
	svcs, err := services.New(cfg, app.logger, db, aiClient, weatherClient)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svcs

	// Initialize handlers
	app.handlers = handlers.New(app.logger, svcs)

	// Setup router
	if err := app.setupRouter(); err != nil {
		return nil, err
	}

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	a.services.Stop()

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() error {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	schemaValidator, err := validation.NewSchemaValidator()
	if err != nil {
		return fmt.Errorf("failed to compile request schemas: %w", err)
	}
	vm := middleware.NewValidationMiddleware(schemaValidator)

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))

	// Health check endpoint (no auth required)
	router.GET("/health", a.handlers.Health.Check)

	// Prometheus metrics endpoint (no auth required)
	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	// Token exchange (API key in body, so no auth middleware)
	router.POST("/api/v1/auth/token", vm.ValidateAuthRequest(), a.handlers.Auth.IssueToken)

	// API routes
	api := router.Group("/api/v1")
	{
		api.Use(middleware.Auth(a.services.Auth, a.logger))
		api.Use(middleware.RateLimit(a.services.RateLimit, a.logger))

		api.POST("/auth/revoke", a.handlers.Auth.RevokeToken)

		// Outfit generation and feedback
		api.POST("/recommendations", vm.ValidateRecommendationRequest(), a.handlers.Recommendation.Generate)
		api.POST("/outfits/:outfitId/feedback", vm.ValidateFeedback(), a.handlers.Feedback.Submit)

		// Learning routes
		learning := api.Group("/learning")
		{
			learning.GET("/profile", a.handlers.Learning.GetProfile)
			learning.POST("/recompute", a.handlers.Learning.Recompute)
			learning.GET("/preferences", a.handlers.Learning.GetPreferences)
			learning.GET("/insights", a.handlers.Learning.GetInsights)
			learning.POST("/insights/generate", a.handlers.Learning.GenerateInsights)
			learning.POST("/insights/:insightId/acknowledge", a.handlers.Learning.AcknowledgeInsight)
			learning.GET("/pairs", a.handlers.Learning.GetBestPairs)
		}

		// Item routes
		api.GET("/items/:itemId/pairings", a.handlers.Learning.GetItemPairings)
	}

	a.router = router
	return nil
}
