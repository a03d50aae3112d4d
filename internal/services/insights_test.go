package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestra/vestra/internal/config"
	"github.com/vestra/vestra/pkg/models"
)

func testInsightService() *InsightService {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := &config.Config{
		Learning: config.LearningConfig{InsightExpiry: 30 * 24 * time.Hour},
	}
	return NewInsightService(nil, cfg, logger)
}

func computedProfile() *models.UserLearningProfile {
	now := time.Now()
	return &models.UserLearningProfile{
		UserID:                    uuid.New(),
		LearnedColorScores:        map[string]float64{},
		LearnedStyleScores:        map[string]float64{},
		LearnedOccasionPatterns:   map[string]models.OccasionPattern{},
		LearnedWeatherPreferences: map[string]models.WeatherPreference{},
		LastComputedAt:            &now,
	}
}

func TestGenerateInsights_AppendsOnly(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := &config.Config{
		Learning: config.LearningConfig{InsightExpiry: 30 * 24 * time.Hour},
	}
	service := NewInsightService(mockDB, cfg, logger)

	profile := computedProfile()
	profile.LearnedColorScores["navy"] = 0.6

	// Existing rows are untouched: the only statements are the inserts.
	mockDB.ExpectExec("INSERT INTO style_insights").
		WithArgs(pgxmock.AnyArg(), profile.UserID, "color", models.InsightPositive,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, service.GenerateInsights(context.Background(), profile))
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestDeriveInsights_PositiveColor(t *testing.T) {
	service := testInsightService()

	profile := computedProfile()
	profile.LearnedColorScores = map[string]float64{
		"navy":  0.6,
		"olive": 0.35,
		"grey":  0.1,
	}

	insights := service.deriveInsights(profile)

	require.Len(t, insights, 1)
	assert.Equal(t, "color", insights[0].Category)
	assert.Equal(t, models.InsightPositive, insights[0].InsightType)
	assert.Equal(t, "Navy works for you", insights[0].Title)
	assert.InDelta(t, 0.6, insights[0].Confidence, 1e-9)
}

func TestDeriveInsights_NegativeColor(t *testing.T) {
	service := testInsightService()

	profile := computedProfile()
	profile.LearnedColorScores = map[string]float64{
		"orange": -0.5,
		"grey":   -0.1,
	}

	insights := service.deriveInsights(profile)

	require.Len(t, insights, 1)
	assert.Equal(t, models.InsightNegative, insights[0].InsightType)
	assert.Equal(t, "Orange may not be your color", insights[0].Title)
	assert.InDelta(t, 0.5, insights[0].Confidence, 1e-9)
}

func TestDeriveInsights_AcceptanceRate(t *testing.T) {
	service := testInsightService()

	t.Run("high acceptance", func(t *testing.T) {
		profile := computedProfile()
		profile.OverallAcceptanceRate = floatPtr(0.9)
		profile.FeedbackCount = 10

		insights := service.deriveInsights(profile)
		require.Len(t, insights, 1)
		assert.Equal(t, "acceptance", insights[0].Category)
		assert.Equal(t, models.InsightPositive, insights[0].InsightType)
	})

	t.Run("low acceptance becomes a suggestion", func(t *testing.T) {
		profile := computedProfile()
		profile.OverallAcceptanceRate = floatPtr(0.2)
		profile.FeedbackCount = 10

		insights := service.deriveInsights(profile)
		require.Len(t, insights, 1)
		assert.Equal(t, models.InsightSuggestion, insights[0].InsightType)
	})

	t.Run("too little feedback stays silent", func(t *testing.T) {
		profile := computedProfile()
		profile.OverallAcceptanceRate = floatPtr(0.9)
		profile.FeedbackCount = 4

		assert.Empty(t, service.deriveInsights(profile))
	})

	t.Run("mid-range acceptance stays silent", func(t *testing.T) {
		profile := computedProfile()
		profile.OverallAcceptanceRate = floatPtr(0.6)
		profile.FeedbackCount = 10

		assert.Empty(t, service.deriveInsights(profile))
	})
}

func TestDeriveInsights_StylePattern(t *testing.T) {
	service := testInsightService()

	t.Run("single style", func(t *testing.T) {
		profile := computedProfile()
		profile.LearnedStyleScores = map[string]float64{"minimal": 0.4}

		insights := service.deriveInsights(profile)
		require.Len(t, insights, 1)
		assert.Equal(t, models.InsightPattern, insights[0].InsightType)
		assert.Equal(t, "You gravitate toward minimal looks", insights[0].Title)
	})

	t.Run("two styles", func(t *testing.T) {
		profile := computedProfile()
		profile.LearnedStyleScores = map[string]float64{
			"minimal": 0.4,
			"classic": 0.3,
			"bold":    0.1,
		}

		insights := service.deriveInsights(profile)
		require.Len(t, insights, 1)
		assert.Equal(t, "You gravitate toward minimal and classic looks", insights[0].Title)
	})
}

func TestDeriveInsights_EmptyProfile(t *testing.T) {
	service := testInsightService()
	assert.Empty(t, service.deriveInsights(computedProfile()))
}

func TestStrongestFeature(t *testing.T) {
	scores := map[string]float64{"navy": 0.6, "olive": 0.6, "grey": 0.2}

	tag, score, ok := strongestFeature(scores, func(v float64) bool { return v > 0.3 })
	require.True(t, ok)
	assert.Equal(t, "navy", tag, "ties break alphabetically")
	assert.InDelta(t, 0.6, score, 1e-9)

	_, _, ok = strongestFeature(scores, func(v float64) bool { return v < -0.3 })
	assert.False(t, ok)
}
