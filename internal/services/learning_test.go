package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestra/vestra/internal/config"
	"github.com/vestra/vestra/pkg/models"
)

func testLearningConfig() *config.Config {
	return &config.Config{
		Learning: config.LearningConfig{
			MinFeedbackForLearning: 3,
			MinSignalsPerFeature:   2,
			MinPairsForScoring:     3,
			SubstituteRating:       5,
			ScoreShrinkage:         0,
			WashInterval:           3,
			PreferenceCacheTTL:     time.Hour,
		},
		Recommendation: config.RecommendationConfig{
			GoodPairLimit: 5,
		},
	}
}

func testLearningService(db DatabaseQuerier) *LearningService {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewLearningService(db, nil, testLearningConfig(), logger, nil, nil)
}

func TestCanonicalPair(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	first, second := canonicalPair(a, b)
	assert.Equal(t, a, first)
	assert.Equal(t, b, second)

	first, second = canonicalPair(b, a)
	assert.Equal(t, a, first)
	assert.Equal(t, b, second)
}

func TestComputePairCompatibility(t *testing.T) {
	tests := []struct {
		name          string
		timesPaired   int
		timesAccepted int
		timesRejected int
		ratingSum     int
		ratingCount   int
		expected      float64
	}{
		{
			name:        "below minimum history scores zero",
			timesPaired: 2, timesAccepted: 2,
			expected: 0.0,
		},
		{
			name:        "all accepted without ratings",
			timesPaired: 4, timesAccepted: 4,
			// acceptance 1.0, rating defaults to neutral 0.5
			expected: 0.6,
		},
		{
			name:        "no responses stays neutral",
			timesPaired: 4,
			// both components default to 0.5
			expected: 0.0,
		},
		{
			name:        "one accept among unanswered co-occurrences",
			timesPaired: 3, timesAccepted: 1,
			// acceptance is over the one response, not all three pairings
			expected: 0.6,
		},
		{
			name:        "all accepted with top ratings",
			timesPaired: 4, timesAccepted: 4,
			ratingSum: 20, ratingCount: 4,
			expected: 1.0,
		},
		{
			name:        "always rejected with bottom ratings",
			timesPaired: 4, timesRejected: 4,
			ratingSum: 4, ratingCount: 4,
			expected: -1.0,
		},
		{
			name:        "mixed history",
			timesPaired: 4, timesAccepted: 2, timesRejected: 2,
			ratingSum: 12, ratingCount: 4,
			// acceptance 0.5, normalized rating (3-1)/4 = 0.5
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := computePairCompatibility(
				tt.timesPaired, tt.timesAccepted, tt.timesRejected,
				tt.ratingSum, tt.ratingCount, 3)
			assert.InDelta(t, tt.expected, score, 1e-9)
		})
	}
}

func TestBuildProfile(t *testing.T) {
	service := testLearningService(nil)
	userID := uuid.New()

	navyShirt := models.ClothingItem{
		ID:           uuid.New(),
		Type:         "shirt",
		Colors:       []string{"Navy", "White"},
		PrimaryColor: strPtr("Navy"),
		Style:        []string{"Casual"},
	}
	navyJeans := models.ClothingItem{
		ID:           uuid.New(),
		Type:         "jeans",
		Colors:       []string{"navy "},
		PrimaryColor: strPtr("navy "),
		Style:        []string{"casual"},
	}
	orangeJacket := models.ClothingItem{
		ID:           uuid.New(),
		Type:         "jacket",
		Colors:       []string{"orange"},
		PrimaryColor: strPtr("orange"),
		Style:        []string{"bold"},
	}

	outfits := []respondedOutfit{
		{
			ID:       uuid.New(),
			Status:   models.OutfitStatusAccepted,
			Occasion: "Work",
			Weather:  &models.WeatherData{Temperature: 10},
			Feedback: &models.UserFeedback{Rating: intPtr(5), ComfortRating: intPtr(4)},
			Items:    []models.ClothingItem{navyShirt, navyJeans},
		},
		{
			ID:       uuid.New(),
			Status:   models.OutfitStatusAccepted,
			Occasion: "work",
			Weather:  &models.WeatherData{Temperature: 12},
			Feedback: &models.UserFeedback{Rating: intPtr(4)},
			Items:    []models.ClothingItem{navyShirt},
		},
		{
			ID:       uuid.New(),
			Status:   models.OutfitStatusRejected,
			Occasion: "work",
			Weather:  &models.WeatherData{Temperature: 30},
			Items:    []models.ClothingItem{orangeJacket},
		},
	}

	profile := service.buildProfile(userID, outfits)

	assert.Equal(t, userID, profile.UserID)
	assert.True(t, profile.Computed())

	// Navy appears in three positive item occurrences across two outfits;
	// orange only once so it falls under min_signals_per_feature.
	assert.Contains(t, profile.LearnedColorScores, "navy")
	assert.Greater(t, profile.LearnedColorScores["navy"], 0.0)
	assert.NotContains(t, profile.LearnedColorScores, "orange")
	// The shirt's secondary color never earns a score of its own.
	assert.NotContains(t, profile.LearnedColorScores, "white")

	assert.Contains(t, profile.LearnedStyleScores, "casual")
	assert.NotContains(t, profile.LearnedStyleScores, "bold")

	require.Contains(t, profile.LearnedOccasionPatterns, "work")
	work := profile.LearnedOccasionPatterns["work"]
	assert.InDelta(t, 2.0/3.0, work.SuccessRate, 1e-9)
	assert.Equal(t, []string{"navy"}, work.PreferredColors)

	require.Contains(t, profile.LearnedWeatherPreferences, "cool")
	cool := profile.LearnedWeatherPreferences["cool"]
	assert.InDelta(t, 1.0, cool.SuccessRate, 1e-9)
	assert.InDelta(t, 1.5, cool.PreferredLayers, 1e-9)

	require.Contains(t, profile.LearnedWeatherPreferences, "hot")
	hot := profile.LearnedWeatherPreferences["hot"]
	assert.InDelta(t, 0.0, hot.SuccessRate, 1e-9)
	// Layer counts average every outfit in the bucket, rejected ones too.
	assert.InDelta(t, 1.0, hot.PreferredLayers, 1e-9)

	require.NotNil(t, profile.OverallAcceptanceRate)
	assert.InDelta(t, 2.0/3.0, *profile.OverallAcceptanceRate, 1e-9)

	require.NotNil(t, profile.AverageOverallRating)
	assert.InDelta(t, 4.5, *profile.AverageOverallRating, 1e-9)
	require.NotNil(t, profile.AverageComfortRating)
	assert.InDelta(t, 4.0, *profile.AverageComfortRating, 1e-9)
	assert.Nil(t, profile.AverageStyleRating)

	// Every replayed outfit counts, including the one without a feedback row.
	assert.Equal(t, 3, profile.FeedbackCount)
	assert.Equal(t, 2, profile.OutfitsRated)
}

func TestBuildProfile_Deterministic(t *testing.T) {
	service := testLearningService(nil)
	userID := uuid.New()

	outfits := []respondedOutfit{
		{
			ID:       uuid.New(),
			Status:   models.OutfitStatusAccepted,
			Occasion: "work",
			Weather:  &models.WeatherData{Temperature: 10},
			Feedback: &models.UserFeedback{Rating: intPtr(4)},
			Items: []models.ClothingItem{
				{ID: uuid.New(), Type: "shirt", PrimaryColor: strPtr("navy"), Style: []string{"casual"}},
				{ID: uuid.New(), Type: "jeans", PrimaryColor: strPtr("navy"), Style: []string{"casual"}},
			},
		},
		{
			ID:       uuid.New(),
			Status:   models.OutfitStatusRejected,
			Occasion: "work",
			Items: []models.ClothingItem{
				{ID: uuid.New(), Type: "jacket", PrimaryColor: strPtr("navy"), Style: []string{"bold"}},
			},
		},
	}

	first := service.buildProfile(userID, outfits)
	second := service.buildProfile(userID, outfits)

	assert.Equal(t, first.LearnedColorScores, second.LearnedColorScores)
	assert.Equal(t, first.LearnedStyleScores, second.LearnedStyleScores)
	assert.Equal(t, first.LearnedOccasionPatterns, second.LearnedOccasionPatterns)
	assert.Equal(t, first.LearnedWeatherPreferences, second.LearnedWeatherPreferences)
	assert.Equal(t, first.OverallAcceptanceRate, second.OverallAcceptanceRate)
	assert.Equal(t, first.FeedbackCount, second.FeedbackCount)
	assert.Equal(t, first.OutfitsRated, second.OutfitsRated)
}

func TestBuildProfile_NoStaleState(t *testing.T) {
	service := testLearningService(nil)
	userID := uuid.New()

	navyOutfit := respondedOutfit{
		ID:       uuid.New(),
		Status:   models.OutfitStatusAccepted,
		Occasion: "work",
		Weather:  &models.WeatherData{Temperature: 10},
		Items: []models.ClothingItem{
			{ID: uuid.New(), Type: "shirt", PrimaryColor: strPtr("navy")},
			{ID: uuid.New(), Type: "jeans", PrimaryColor: strPtr("navy")},
		},
	}
	greyOutfit := respondedOutfit{
		ID:       uuid.New(),
		Status:   models.OutfitStatusAccepted,
		Occasion: "gym",
		Items: []models.ClothingItem{
			{ID: uuid.New(), Type: "shirt", PrimaryColor: strPtr("grey")},
			{ID: uuid.New(), Type: "shorts", PrimaryColor: strPtr("grey")},
		},
	}

	before := service.buildProfile(userID, []respondedOutfit{navyOutfit})
	assert.Contains(t, before.LearnedColorScores, "navy")

	// Replaying a history that no longer contains navy leaves nothing of it
	// behind: every map is rebuilt from the outfits alone.
	after := service.buildProfile(userID, []respondedOutfit{greyOutfit})
	assert.NotContains(t, after.LearnedColorScores, "navy")
	assert.Contains(t, after.LearnedColorScores, "grey")
	assert.NotContains(t, after.LearnedOccasionPatterns, "work")
	assert.Empty(t, after.LearnedWeatherPreferences)
}

func TestUpdateItemPairScores_RejectedOutfit(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	service := testLearningService(mockDB)
	userID := uuid.New()
	item1 := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	item2 := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	fb := &models.UserFeedback{Accepted: boolPtr(false), Rating: intPtr(2)}
	oc := &outfitContext{
		Status:   models.OutfitStatusRejected,
		Occasion: "work",
		Weather:  &models.WeatherData{Temperature: 10},
		Feedback: fb,
		Items: []models.ClothingItem{
			{ID: item1, Type: "shirt"},
			{ID: item2, Type: "jeans"},
		},
	}
	assert.InDelta(t, -0.7, ComputeSignal(oc.Status, fb), 1e-9)

	mockDB.ExpectBegin()
	mockDB.ExpectExec("INSERT INTO item_pair_scores").
		WithArgs(pgxmock.AnyArg(), userID, item1, item2).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockDB.ExpectQuery("SELECT times_paired").
		WithArgs(userID, item1, item2).
		WillReturnRows(pgxmock.NewRows([]string{
			"times_paired", "times_accepted", "times_rejected",
			"total_rating_sum", "rating_count",
			"occasion_performance", "weather_performance",
		}).AddRow(0, 0, 0, 0, 0, []byte(nil), []byte(nil)))
	// One pairing with one rejection and a 2-star rating; still below the
	// scoring floor, so the compatibility score stays 0.
	mockDB.ExpectExec("UPDATE item_pair_scores").
		WithArgs(userID, item1, item2, 1, 0, 1, 2, 1,
			[]byte(`{"work":{"count":1,"positive":0}}`),
			[]byte(`{"cool":{"count":1,"positive":0}}`),
			0.0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mockDB.ExpectCommit()

	require.NoError(t, service.updateItemPairScores(context.Background(), userID, oc))
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestBuildProfile_Empty(t *testing.T) {
	service := testLearningService(nil)

	profile := service.buildProfile(uuid.New(), nil)

	assert.Empty(t, profile.LearnedColorScores)
	assert.Empty(t, profile.LearnedOccasionPatterns)
	assert.Nil(t, profile.OverallAcceptanceRate)
	assert.Equal(t, 0, profile.FeedbackCount)
}

func TestFeatureScores(t *testing.T) {
	service := testLearningService(nil)

	t.Run("drops sparse tags", func(t *testing.T) {
		scores := service.featureScores(map[string][]float64{
			"navy":   {0.6, 0.4},
			"orange": {-0.5},
		})
		assert.InDelta(t, 0.5, scores["navy"], 1e-9)
		assert.NotContains(t, scores, "orange")
	})

	t.Run("shrinkage pulls toward zero", func(t *testing.T) {
		service.config.Learning.ScoreShrinkage = 2
		defer func() { service.config.Learning.ScoreShrinkage = 0 }()

		scores := service.featureScores(map[string][]float64{
			"navy": {0.6, 0.6},
		})
		// mean 0.6 scaled by n/(n+k) = 2/4
		assert.InDelta(t, 0.3, scores["navy"], 1e-9)
	})
}

func TestTopColors(t *testing.T) {
	counts := map[string]int{"navy": 3, "white": 3, "black": 5, "red": 1}

	assert.Equal(t, []string{"black", "navy", "white"}, topColors(counts, 3))
	assert.Equal(t, []string{"black"}, topColors(counts, 1))
	assert.Empty(t, topColors(nil, 3))
}

func TestRankedAboveBelow(t *testing.T) {
	scores := map[string]float64{
		"navy":   0.8,
		"black":  0.5,
		"white":  0.21,
		"grey":   0.1,
		"orange": -0.6,
		"neon":   -0.25,
	}

	assert.Equal(t, []string{"navy", "black", "white"}, rankedAbove(scores, 0.2, 5))
	assert.Equal(t, []string{"navy", "black"}, rankedAbove(scores, 0.2, 2))
	assert.Equal(t, []string{"orange", "neon"}, rankedBelow(scores, -0.2, 3))
}

func TestGetProfile_NoRow(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	service := testLearningService(mockDB)
	userID := uuid.New()

	mockDB.ExpectQuery("SELECT learned_color_scores").
		WithArgs(userID).
		WillReturnError(pgx.ErrNoRows)

	profile, err := service.GetProfile(context.Background(), userID)
	require.NoError(t, err)

	assert.False(t, profile.Computed())
	assert.NotNil(t, profile.LearnedColorScores)
	assert.Empty(t, profile.LearnedColorScores)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestGetProfile_DecodesStoredMaps(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	service := testLearningService(mockDB)
	userID := uuid.New()

	colorJSON, _ := json.Marshal(map[string]float64{"navy": 0.6})
	styleJSON, _ := json.Marshal(map[string]float64{"casual": 0.3})
	occasionJSON, _ := json.Marshal(map[string]models.OccasionPattern{
		"work": {PreferredColors: []string{"navy"}, SuccessRate: 0.9},
	})
	weatherJSON, _ := json.Marshal(map[string]models.WeatherPreference{
		"cool": {PreferredLayers: 2, SuccessRate: 0.8},
	})

	rate := 0.75
	avgRating := 4.2
	computedAt := time.Now().Add(-time.Hour)

	rows := pgxmock.NewRows([]string{
		"learned_color_scores", "learned_style_scores",
		"learned_occasion_patterns", "learned_weather_preferences",
		"overall_acceptance_rate", "average_overall_rating",
		"average_comfort_rating", "average_style_rating",
		"feedback_count", "outfits_rated", "last_computed_at",
	}).AddRow(
		colorJSON, styleJSON, occasionJSON, weatherJSON,
		&rate, &avgRating, (*float64)(nil), (*float64)(nil),
		12, 8, &computedAt,
	)

	mockDB.ExpectQuery("SELECT learned_color_scores").
		WithArgs(userID).
		WillReturnRows(rows)

	profile, err := service.GetProfile(context.Background(), userID)
	require.NoError(t, err)

	assert.True(t, profile.Computed())
	assert.InDelta(t, 0.6, profile.LearnedColorScores["navy"], 1e-9)
	assert.InDelta(t, 0.3, profile.LearnedStyleScores["casual"], 1e-9)
	assert.Equal(t, []string{"navy"}, profile.LearnedOccasionPatterns["work"].PreferredColors)
	assert.InDelta(t, 0.8, profile.LearnedWeatherPreferences["cool"].SuccessRate, 1e-9)
	require.NotNil(t, profile.OverallAcceptanceRate)
	assert.InDelta(t, 0.75, *profile.OverallAcceptanceRate, 1e-9)
	assert.Nil(t, profile.AverageComfortRating)
	assert.Equal(t, 12, profile.FeedbackCount)
	assert.Equal(t, 8, profile.OutfitsRated)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestGetLearnedPreferences_UncomputedProfile(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	service := testLearningService(mockDB)
	userID := uuid.New()

	mockDB.ExpectQuery("SELECT learned_color_scores").
		WithArgs(userID).
		WillReturnError(pgx.ErrNoRows)

	prefs, err := service.GetLearnedPreferences(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, prefs.Empty())
	assert.NoError(t, mockDB.ExpectationsWereMet())
}
