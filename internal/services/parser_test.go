package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelResponse(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected map[string]interface{}
	}{
		{
			name:     "clean json object",
			content:  `{"items": [1, 2], "headline": "Casual Friday"}`,
			expected: map[string]interface{}{"items": []interface{}{1.0, 2.0}, "headline": "Casual Friday"},
		},
		{
			name: "json with line comments",
			content: `{
				"items": [1, 3], // the jacket and the jeans
				"headline": "Layered"
			}`,
			expected: map[string]interface{}{"items": []interface{}{1.0, 3.0}, "headline": "Layered"},
		},
		{
			name:     "json with block comment",
			content:  `{"items": [2] /* just the dress */}`,
			expected: map[string]interface{}{"items": []interface{}{2.0}},
		},
		{
			name:     "fenced code block with language tag",
			content:  "Here is your outfit:\n```json\n{\"items\": [1, 4]}\n```\nEnjoy!",
			expected: map[string]interface{}{"items": []interface{}{1.0, 4.0}},
		},
		{
			name:     "fenced code block without language tag",
			content:  "```\n{\"items\": [5]}\n```",
			expected: map[string]interface{}{"items": []interface{}{5.0}},
		},
		{
			name:     "object embedded in prose",
			content:  `Sure! I suggest {"items": [1, 2], "styling_tip": "roll the cuffs"} for today.`,
			expected: map[string]interface{}{"items": []interface{}{1.0, 2.0}, "styling_tip": "roll the cuffs"},
		},
		{
			name:     "bare number array",
			content:  `[1, 2, 3]`,
			expected: map[string]interface{}{"items": []interface{}{1.0, 2.0, 3.0}},
		},
		{
			name:     "array of objects takes first",
			content:  `[{"items": [1]}, {"items": [2]}]`,
			expected: map[string]interface{}{"items": []interface{}{1.0}},
		},
		{
			name:     "bare array embedded in prose",
			content:  `The best picks are [2, 4] today.`,
			expected: map[string]interface{}{"items": []interface{}{2.0, 4.0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseModelResponse(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseModelResponse_Failures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"pure prose", "I could not pick an outfit for this weather."},
		{"empty input", ""},
		{"unbalanced object", `{"items": [1, 2`},
		{"string array", `["shirt", "jeans"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModelResponse(tt.content)
			assert.Error(t, err)
		})
	}
}

func TestResolveSelection(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	id1 := uuid.New()
	id2 := uuid.New()
	numberMap := map[int]uuid.UUID{1: id1, 2: id2}

	t.Run("maps numbers and narrative fields", func(t *testing.T) {
		data := map[string]interface{}{
			"items":       []interface{}{1.0, 2.0},
			"headline":    "Rainy day armor",
			"highlights":  []interface{}{"waterproof", "warm layers"},
			"styling_tip": "tuck the scarf in",
		}

		sel, err := ResolveSelection(data, numberMap, logger)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{id1, id2}, sel.ItemIDs)
		require.NotNil(t, sel.Headline)
		assert.Equal(t, "Rainy day armor", *sel.Headline)
		assert.Equal(t, []string{"waterproof", "warm layers"}, sel.Highlights)
		require.NotNil(t, sel.StylingTip)
		assert.Equal(t, "tuck the scarf in", *sel.StylingTip)
	})

	t.Run("accepts numbers encoded as strings", func(t *testing.T) {
		data := map[string]interface{}{"items": []interface{}{"1", " 2 "}}

		sel, err := ResolveSelection(data, numberMap, logger)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{id1, id2}, sel.ItemIDs)
	})

	t.Run("drops unknown and invalid numbers", func(t *testing.T) {
		data := map[string]interface{}{
			"items": []interface{}{1.0, 99.0, "not-a-number", true},
		}

		sel, err := ResolveSelection(data, numberMap, logger)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{id1}, sel.ItemIDs)
	})

	t.Run("zero surviving items is an error", func(t *testing.T) {
		data := map[string]interface{}{"items": []interface{}{42.0}}

		_, err := ResolveSelection(data, numberMap, logger)
		assert.True(t, errors.Is(err, ErrAIRecommendation))
	})

	t.Run("missing items key is an error", func(t *testing.T) {
		data := map[string]interface{}{"headline": "no items"}

		_, err := ResolveSelection(data, numberMap, logger)
		assert.True(t, errors.Is(err, ErrAIRecommendation))
	})
}
