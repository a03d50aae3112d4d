package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchemaValidator(t *testing.T) {
	sv, err := NewSchemaValidator()
	require.NoError(t, err)

	assert.True(t, sv.SchemaExists("outfit-feedback"))
	assert.True(t, sv.SchemaExists("recommendation-request"))
	assert.True(t, sv.SchemaExists("auth-request"))
	assert.False(t, sv.SchemaExists("nope"))
}

func TestValidateFeedback(t *testing.T) {
	sv, err := NewSchemaValidator()
	require.NoError(t, err)

	tests := []struct {
		name  string
		body  string
		valid bool
	}{
		{"accepted only", `{"accepted": true}`, true},
		{"full feedback", `{"accepted": true, "rating": 5, "worn_at": "2026-03-14", "worn_with_modifications": true}`, true},
		{"rating too high", `{"rating": 6}`, false},
		{"rating too low", `{"rating": 0}`, false},
		{"rating wrong type", `{"rating": "five"}`, false},
		{"unknown field", `{"accepted": true, "mood": "great"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sv.ValidateFeedback(tt.body)
			assert.Equal(t, tt.valid, result.Valid)
			if !tt.valid {
				assert.NotEmpty(t, result.Errors)
			}
		})
	}
}

func TestValidateRecommendationRequest(t *testing.T) {
	sv, err := NewSchemaValidator()
	require.NoError(t, err)

	tests := []struct {
		name  string
		body  string
		valid bool
	}{
		{"occasion only", `{"occasion": "work"}`, true},
		{"with weather override", `{"occasion": "date", "weather": {"temperature": 18.5, "condition": "clear"}}`, true},
		{"missing occasion", `{"weather": {"temperature": 10}}`, false},
		{"empty occasion", `{"occasion": ""}`, false},
		{"weather without temperature", `{"occasion": "work", "weather": {"condition": "rain"}}`, false},
		{"precipitation out of range", `{"occasion": "work", "weather": {"temperature": 10, "precipitation_chance": 120}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sv.ValidateRecommendationRequest(tt.body)
			assert.Equal(t, tt.valid, result.Valid)
		})
	}
}

func TestValidateAuthRequest(t *testing.T) {
	sv, err := NewSchemaValidator()
	require.NoError(t, err)

	assert.True(t, sv.ValidateAuthRequest(`{"api_key": "vestra-dev-key"}`).Valid)
	assert.False(t, sv.ValidateAuthRequest(`{}`).Valid)
	assert.False(t, sv.ValidateAuthRequest(`{"api_key": ""}`).Valid)
}

func TestToAPIError(t *testing.T) {
	sv, err := NewSchemaValidator()
	require.NoError(t, err)

	result := sv.ValidateFeedback(`{"rating": 6}`)
	require.False(t, result.Valid)

	apiErr := result.ToAPIError()
	require.NotNil(t, apiErr)
	errObj := apiErr["error"].(map[string]interface{})
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])

	valid := sv.ValidateFeedback(`{"accepted": true}`)
	assert.Nil(t, valid.ToAPIError())
}
