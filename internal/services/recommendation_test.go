package services

import (
	"context"
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

func strPtr(v string) *string     { return &v }
func floatPtr(v float64) *float64 { return &v }

func itemWithSeason(seasons ...string) models.ClothingItem {
	return models.ClothingItem{ID: uuid.New(), Type: "shirt", Season: seasons}
}

func itemWithFormality(formality string) models.ClothingItem {
	item := models.ClothingItem{ID: uuid.New(), Type: "shirt"}
	if formality != "" {
		item.Formality = strPtr(formality)
	}
	return item
}

func TestFilterBySeason(t *testing.T) {
	winter := itemWithSeason("winter")
	summer := itemWithSeason("summer")
	allSeason := itemWithSeason("all")
	untagged := itemWithSeason()
	multi := itemWithSeason("fall", "winter")

	items := []models.ClothingItem{winter, summer, allSeason, untagged, multi}

	kept := filterBySeason(items, time.January)
	keptIDs := itemIDSet(kept)

	assert.True(t, keptIDs[winter.ID])
	assert.False(t, keptIDs[summer.ID])
	assert.True(t, keptIDs[allSeason.ID])
	assert.True(t, keptIDs[untagged.ID])
	assert.True(t, keptIDs[multi.ID])

	kept = filterBySeason(items, time.July)
	keptIDs = itemIDSet(kept)
	assert.False(t, keptIDs[winter.ID])
	assert.True(t, keptIDs[summer.ID])
	assert.False(t, keptIDs[multi.ID])
}

func TestFilterByWeather(t *testing.T) {
	cfg := &config.RecommendationConfig{
		DefaultColdThreshold: 10,
		DefaultHotThreshold:  24,
		SensitivityShift:     3,
	}

	summerOnly := itemWithSeason("summer")
	winterOnly := itemWithSeason("winter")
	versatile := itemWithSeason("summer", "winter")
	untagged := itemWithSeason()

	items := []models.ClothingItem{summerOnly, winterOnly, versatile, untagged}

	t.Run("nil weather passes everything", func(t *testing.T) {
		assert.Len(t, filterByWeather(items, nil, nil, cfg), 4)
	})

	t.Run("mild temperature passes everything", func(t *testing.T) {
		weather := &models.WeatherData{Temperature: 18}
		assert.Len(t, filterByWeather(items, weather, nil, cfg), 4)
	})

	t.Run("cold drops summer-only items", func(t *testing.T) {
		weather := &models.WeatherData{Temperature: 5}
		keptIDs := itemIDSet(filterByWeather(items, weather, nil, cfg))
		assert.False(t, keptIDs[summerOnly.ID])
		assert.True(t, keptIDs[winterOnly.ID])
		assert.True(t, keptIDs[versatile.ID])
		assert.True(t, keptIDs[untagged.ID])
	})

	t.Run("hot drops winter-only items", func(t *testing.T) {
		weather := &models.WeatherData{Temperature: 30}
		keptIDs := itemIDSet(filterByWeather(items, weather, nil, cfg))
		assert.True(t, keptIDs[summerOnly.ID])
		assert.False(t, keptIDs[winterOnly.ID])
	})

	t.Run("personal thresholds override defaults", func(t *testing.T) {
		prefs := &models.UserPreference{ColdThreshold: floatPtr(15)}
		weather := &models.WeatherData{Temperature: 12}
		keptIDs := itemIDSet(filterByWeather(items, weather, prefs, cfg))
		assert.False(t, keptIDs[summerOnly.ID])
	})

	t.Run("cold sensitivity shifts thresholds up", func(t *testing.T) {
		prefs := &models.UserPreference{TemperatureSensitivity: "cold"}
		// 12 degrees is above the default cold threshold but below the
		// shifted one.
		weather := &models.WeatherData{Temperature: 12}
		keptIDs := itemIDSet(filterByWeather(items, weather, prefs, cfg))
		assert.False(t, keptIDs[summerOnly.ID])
	})

	t.Run("warm sensitivity shifts thresholds down", func(t *testing.T) {
		prefs := &models.UserPreference{TemperatureSensitivity: "warm"}
		// 22 degrees reads as hot once the threshold drops to 21.
		weather := &models.WeatherData{Temperature: 22}
		keptIDs := itemIDSet(filterByWeather(items, weather, prefs, cfg))
		assert.False(t, keptIDs[winterOnly.ID])
	})
}

func TestFilterByFormality(t *testing.T) {
	business := itemWithFormality("business")
	casual := itemWithFormality("casual")
	athletic := itemWithFormality("athletic")
	untagged := itemWithFormality("")

	items := []models.ClothingItem{business, casual, athletic, untagged}

	t.Run("work keeps business band and untagged", func(t *testing.T) {
		keptIDs := itemIDSet(filterByFormality(items, "Work"))
		assert.True(t, keptIDs[business.ID])
		assert.False(t, keptIDs[casual.ID])
		assert.False(t, keptIDs[athletic.ID])
		assert.True(t, keptIDs[untagged.ID])
	})

	t.Run("gym keeps only athletic and untagged", func(t *testing.T) {
		keptIDs := itemIDSet(filterByFormality(items, "gym"))
		assert.False(t, keptIDs[business.ID])
		assert.True(t, keptIDs[athletic.ID])
		assert.True(t, keptIDs[untagged.ID])
	})

	t.Run("unknown occasion passes everything", func(t *testing.T) {
		assert.Len(t, filterByFormality(items, "wedding-crash"), 4)
	})
}

func TestFilterPairsByScore(t *testing.T) {
	pairs := []models.ItemPairScore{
		{CompatibilityScore: 0.8},
		{CompatibilityScore: 0.3},
		{CompatibilityScore: -0.2},
	}

	kept := filterPairsByScore(pairs, 0.3)
	assert.Len(t, kept, 2)

	assert.Empty(t, filterPairsByScore(pairs, 0.9))
}

func TestUserToday(t *testing.T) {
	t.Run("nil user falls back to UTC", func(t *testing.T) {
		now := userToday(nil)
		assert.Equal(t, time.UTC, now.Location())
	})

	t.Run("unknown timezone falls back to UTC", func(t *testing.T) {
		now := userToday(&models.User{Timezone: "Mars/Olympus_Mons"})
		assert.Equal(t, time.UTC, now.Location())
	})

	t.Run("valid timezone is honored", func(t *testing.T) {
		now := userToday(&models.User{Timezone: "Europe/Berlin"})
		assert.Equal(t, "Europe/Berlin", now.Location().String())
	})
}

func TestMonthToSeason(t *testing.T) {
	assert.Equal(t, "winter", monthToSeason[time.January])
	assert.Equal(t, "spring", monthToSeason[time.May])
	assert.Equal(t, "summer", monthToSeason[time.August])
	assert.Equal(t, "fall", monthToSeason[time.November])
	assert.Equal(t, "winter", monthToSeason[time.December])
}

func itemIDSet(items []models.ClothingItem) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(items))
	for _, item := range items {
		set[item.ID] = true
	}
	return set
}

func testRecommendationService(db DatabaseQuerier) *RecommendationService {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := testLearningConfig()
	cfg.Recommendation.MinCandidates = 2
	return NewRecommendationService(db, cfg, logger, nil, nil, nil)
}

func wardrobeRows(count int) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "user_id", "type", "subtype", "name", "colors", "primary_color",
		"pattern", "material", "style", "formality", "season",
		"wear_count", "last_worn_at",
	})
	for i := 0; i < count; i++ {
		rows.AddRow(
			uuid.New(), uuid.New(), "shirt", (*string)(nil), (*string)(nil),
			[]string{"navy"}, strPtr("navy"), (*string)(nil), (*string)(nil),
			[]string{}, (*string)(nil), []string{},
			0, (*time.Time)(nil),
		)
	}
	return rows
}

type stubWeather struct {
	data *models.WeatherData
	err  error
}

func (s stubWeather) Current(ctx context.Context, lat, lon float64) (*models.WeatherData, error) {
	return s.data, s.err
}

func TestGenerateRecommendation_WeatherErrors(t *testing.T) {
	userID := uuid.New()
	req := &models.RecommendationRequest{Occasion: "casual"}

	t.Run("no weather source", func(t *testing.T) {
		mockDB, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockDB.Close()

		mockDB.ExpectQuery("SELECT timezone").
			WithArgs(userID).
			WillReturnError(pgx.ErrNoRows)

		service := testRecommendationService(mockDB)
		_, err = service.GenerateRecommendation(context.Background(), userID, req)
		assert.ErrorIs(t, err, ErrWeatherUnavailable)
	})

	t.Run("no location on record", func(t *testing.T) {
		mockDB, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockDB.Close()

		mockDB.ExpectQuery("SELECT timezone").
			WithArgs(userID).
			WillReturnError(pgx.ErrNoRows)

		service := testRecommendationService(mockDB)
		service.weather = stubWeather{data: &models.WeatherData{Temperature: 18}}

		_, err = service.GenerateRecommendation(context.Background(), userID, req)
		assert.ErrorIs(t, err, ErrLocationNotSet)
	})
}

func TestGetCandidateItems_MinimumPool(t *testing.T) {
	userID := uuid.New()
	req := &models.RecommendationRequest{Occasion: "casual"}

	t.Run("one usable item is not enough", func(t *testing.T) {
		mockDB, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockDB.Close()

		mockDB.ExpectQuery("SELECT id, user_id, type").
			WithArgs(userID).
			WillReturnRows(wardrobeRows(1))
		mockDB.ExpectQuery("SELECT color_favorites").
			WithArgs(userID).
			WillReturnError(pgx.ErrNoRows)

		service := testRecommendationService(mockDB)
		_, err = service.GetCandidateItems(context.Background(), userID, nil, req, nil)
		assert.ErrorIs(t, err, ErrInsufficientWardrobe)
	})

	t.Run("two usable items clear the floor", func(t *testing.T) {
		mockDB, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockDB.Close()

		mockDB.ExpectQuery("SELECT id, user_id, type").
			WithArgs(userID).
			WillReturnRows(wardrobeRows(2))
		mockDB.ExpectQuery("SELECT color_favorites").
			WithArgs(userID).
			WillReturnError(pgx.ErrNoRows)

		service := testRecommendationService(mockDB)
		candidates, err := service.GetCandidateItems(context.Background(), userID, nil, req, nil)
		require.NoError(t, err)
		assert.Len(t, candidates, 2)
	})
}
