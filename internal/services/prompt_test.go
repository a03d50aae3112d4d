package services

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestra/vestra/pkg/models"
)

func TestFormatItemsForPrompt(t *testing.T) {
	items := []models.ClothingItem{
		{ID: uuid.New(), Type: "shirt", Name: strPtr("Favorite oxford")},
		{ID: uuid.New(), Type: "jeans"},
		{ID: uuid.New(), Type: "jacket"},
	}

	list, numberMap := FormatItemsForPrompt(items)

	require.Len(t, numberMap, 3)
	assert.Equal(t, items[0].ID, numberMap[1])
	assert.Equal(t, items[1].ID, numberMap[2])
	assert.Equal(t, items[2].ID, numberMap[3])

	assert.Contains(t, list, "[1] Favorite oxford")
	assert.Contains(t, list, "[2] ")
	assert.Contains(t, list, "[3] ")
}

func TestDescribeItem(t *testing.T) {
	t.Run("name wins", func(t *testing.T) {
		item := models.ClothingItem{
			Type:         "shirt",
			Name:         strPtr("Favorite oxford"),
			PrimaryColor: strPtr("white"),
			Colors:       []string{"white"},
			Formality:    strPtr("business_casual"),
		}
		desc := describeItem(item)
		assert.True(t, strings.HasPrefix(desc, "Favorite oxford ("))
		assert.Contains(t, desc, "colors: white")
		assert.Contains(t, desc, "business_casual")
	})

	t.Run("attributes assemble without name", func(t *testing.T) {
		item := models.ClothingItem{
			Type:         "shirt",
			Subtype:      strPtr("oxford"),
			PrimaryColor: strPtr("navy"),
			Material:     strPtr("cotton"),
			Pattern:      strPtr("solid"),
			Style:        []string{"classic"},
		}
		desc := describeItem(item)
		assert.True(t, strings.HasPrefix(desc, "navy cotton oxford ("))
		assert.NotContains(t, desc, "solid")
		assert.Contains(t, desc, "style: classic")
	})

	t.Run("non-solid pattern is included", func(t *testing.T) {
		item := models.ClothingItem{
			Type:    "shirt",
			Pattern: strPtr("striped"),
		}
		assert.Contains(t, describeItem(item), "striped")
	})
}

func TestFormatPreferences(t *testing.T) {
	t.Run("empty inputs render nothing", func(t *testing.T) {
		assert.Empty(t, formatPreferences(nil, models.LearnedPreferences{}))
	})

	t.Run("explicit and learned blocks are labeled apart", func(t *testing.T) {
		prefs := &models.UserPreference{
			ColorFavorites: []string{"navy", "white"},
			ColorAvoid:     []string{"neon"},
			VarietyLevel:   "adventurous",
		}
		learned := models.LearnedPreferences{
			FavoriteColors:  []string{"olive"},
			AvoidColors:     []string{"orange"},
			PreferredStyles: []string{"minimal"},
		}

		block := formatPreferences(prefs, learned)
		assert.Contains(t, block, "Favorite colors: navy, white")
		assert.Contains(t, block, "Colors to avoid: neon")
		assert.Contains(t, block, "Variety preference: adventurous")
		assert.Contains(t, block, "Observed: responds well to olive")
		assert.Contains(t, block, "Observed: tends to reject orange")
		assert.Contains(t, block, "Observed: gravitates toward minimal styles")
	})
}

func TestBuildRecommendationPrompt(t *testing.T) {
	items := []models.ClothingItem{
		{ID: uuid.New(), Type: "shirt"},
		{ID: uuid.New(), Type: "jeans"},
		{ID: uuid.New(), Type: "jacket"},
	}

	pc := promptContext{
		Occasion: "work",
		Weather: &models.WeatherData{
			Temperature:         8,
			FeelsLike:           5,
			Condition:           "light rain",
			PrecipitationChance: 60,
		},
		GoodPairs:  [][2]int{{1, 2}},
		WornRecent: [][]int{{1, 3}},
		Items:      items,
	}

	prompt, numberMap := BuildRecommendationPrompt(pc)

	assert.Len(t, numberMap, 3)
	assert.Contains(t, prompt, "Occasion: work")
	assert.Contains(t, prompt, "8°C (feels like 5°C), light rain, 60% chance of precipitation")
	assert.Contains(t, prompt, "[1 + 2]")
	assert.Contains(t, prompt, "{1, 3}")
	assert.Contains(t, prompt, "Respond with ONLY a JSON object")
	assert.NotContains(t, prompt, items[0].ID.String(), "prompt should use numbers, not UUIDs")
}

func TestBuildRecommendationPrompt_Minimal(t *testing.T) {
	prompt, numberMap := BuildRecommendationPrompt(promptContext{
		Occasion: "casual",
		Items:    []models.ClothingItem{{ID: uuid.New(), Type: "dress"}},
	})

	assert.Len(t, numberMap, 1)
	assert.NotContains(t, prompt, "Weather:")
	assert.NotContains(t, prompt, "Style preferences:")
	assert.NotContains(t, prompt, "loved before")
}

func TestMapPairsToNumbers(t *testing.T) {
	id1, id2, id3, outside := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	numberMap := map[int]uuid.UUID{1: id1, 2: id2, 3: id3}

	pairs := []models.ItemPairScore{
		{Item1ID: id2, Item2ID: id3},
		{Item1ID: id1, Item2ID: id2},
		{Item1ID: id1, Item2ID: outside},
	}

	result := mapPairsToNumbers(pairs, numberMap)
	assert.Equal(t, [][2]int{{1, 2}, {2, 3}}, result)
}

func TestMapCombosToNumbers(t *testing.T) {
	id1, id2, outside := uuid.New(), uuid.New(), uuid.New()
	numberMap := map[int]uuid.UUID{1: id1, 2: id2}

	combos := [][]uuid.UUID{
		{id2, id1},
		{id1, outside},
		{},
	}

	result := mapCombosToNumbers(combos, numberMap)
	assert.Equal(t, [][]int{{1, 2}}, result)
}
