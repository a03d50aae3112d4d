package services

import "errors"

var (
	// ErrInsufficientWardrobe is returned when fewer than the minimum number
	// of candidate items survive filtering. No recommendation is attempted
	// below that floor.
	ErrInsufficientWardrobe = errors.New("not enough wardrobe items for a recommendation")

	// ErrAIRecommendation is returned when the generative model is
	// unreachable, its response contains no parseable JSON, or no valid item
	// selections survive cross-referencing.
	ErrAIRecommendation = errors.New("ai recommendation failed")

	// ErrWeatherUnavailable is returned when current weather cannot be
	// fetched and no override was supplied. Weather is never fabricated.
	ErrWeatherUnavailable = errors.New("weather data unavailable")

	// ErrLocationNotSet is returned when a weather lookup is needed but the
	// user has no stored coordinates.
	ErrLocationNotSet = errors.New("user location not set")

	// ErrOutfitNotFound is returned when feedback references an unknown
	// outfit.
	ErrOutfitNotFound = errors.New("outfit not found")

	// ErrInsightNotFound is returned when acknowledging an insight that does
	// not exist or belongs to another user.
	ErrInsightNotFound = errors.New("insight not found")
)
