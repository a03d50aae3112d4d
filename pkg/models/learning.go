package models

import (
	"time"

	"github.com/google/uuid"
)

// PerfBucket counts how often a grouping (occasion, temperature bucket) was
// seen and how often the outcome was positive.
type PerfBucket struct {
	Count    int `json:"count"`
	Positive int `json:"positive"`
}

// ItemPairScore tracks how well two specific items work together based on
// joint appearance and outcome history. Rows are keyed with item1 < item2 so
// each unordered pair maps to exactly one row. CompatibilityScore is derived
// from the counters and never written independently.
type ItemPairScore struct {
	ID                 uuid.UUID             `json:"id" db:"id"`
	UserID             uuid.UUID             `json:"user_id" db:"user_id"`
	Item1ID            uuid.UUID             `json:"item1_id" db:"item1_id"`
	Item2ID            uuid.UUID             `json:"item2_id" db:"item2_id"`
	CompatibilityScore float64               `json:"compatibility_score" db:"compatibility_score"`
	TimesPaired        int                   `json:"times_paired" db:"times_paired"`
	TimesAccepted      int                   `json:"times_accepted" db:"times_accepted"`
	TimesRejected      int                   `json:"times_rejected" db:"times_rejected"`
	TotalRatingSum     int                   `json:"total_rating_sum" db:"total_rating_sum"`
	RatingCount        int                   `json:"rating_count" db:"rating_count"`
	OccasionPerf       map[string]PerfBucket `json:"occasion_performance" db:"occasion_performance"`
	WeatherPerf        map[string]PerfBucket `json:"weather_performance" db:"weather_performance"`
	UpdatedAt          time.Time             `json:"updated_at" db:"updated_at"`
}

// OccasionPattern is the learned summary for one occasion.
type OccasionPattern struct {
	PreferredColors []string `json:"preferred_colors"`
	SuccessRate     float64  `json:"success_rate"`
}

// WeatherPreference is the learned summary for one temperature bucket.
type WeatherPreference struct {
	PreferredLayers float64 `json:"preferred_layers"`
	SuccessRate     float64 `json:"success_rate"`
}

// UserLearningProfile holds everything the system has learned about one
// user's taste. It is entirely derived: recomputing from the same feedback
// history is deterministic and fully overwrites every field.
type UserLearningProfile struct {
	UserID                    uuid.UUID                    `json:"user_id" db:"user_id"`
	LearnedColorScores        map[string]float64           `json:"learned_color_scores" db:"learned_color_scores"`
	LearnedStyleScores        map[string]float64           `json:"learned_style_scores" db:"learned_style_scores"`
	LearnedOccasionPatterns   map[string]OccasionPattern   `json:"learned_occasion_patterns" db:"learned_occasion_patterns"`
	LearnedWeatherPreferences map[string]WeatherPreference `json:"learned_weather_preferences" db:"learned_weather_preferences"`
	OverallAcceptanceRate     *float64                     `json:"overall_acceptance_rate,omitempty" db:"overall_acceptance_rate"`
	AverageOverallRating      *float64                     `json:"average_overall_rating,omitempty" db:"average_overall_rating"`
	AverageComfortRating      *float64                     `json:"average_comfort_rating,omitempty" db:"average_comfort_rating"`
	AverageStyleRating        *float64                     `json:"average_style_rating,omitempty" db:"average_style_rating"`
	FeedbackCount             int                          `json:"feedback_count" db:"feedback_count"`
	OutfitsRated              int                          `json:"outfits_rated" db:"outfits_rated"`
	LastComputedAt            *time.Time                   `json:"last_computed_at,omitempty" db:"last_computed_at"`
}

// Computed reports whether the profile has ever been derived from feedback.
func (p *UserLearningProfile) Computed() bool {
	return p != nil && p.LastComputedAt != nil
}

type InsightType string

const (
	InsightPositive   InsightType = "positive"
	InsightNegative   InsightType = "negative"
	InsightSuggestion InsightType = "suggestion"
	InsightPattern    InsightType = "pattern"
)

// StyleInsight is a human-readable observation generated from a profile
// snapshot. Insights are informational only and never feed back into scoring.
type StyleInsight struct {
	ID             uuid.UUID              `json:"id" db:"id"`
	UserID         uuid.UUID              `json:"user_id" db:"user_id"`
	Category       string                 `json:"category" db:"category"`
	InsightType    InsightType            `json:"insight_type" db:"insight_type"`
	Title          string                 `json:"title" db:"title"`
	Description    string                 `json:"description" db:"description"`
	Confidence     float64                `json:"confidence" db:"confidence"`
	SupportingData map[string]interface{} `json:"supporting_data,omitempty" db:"supporting_data"`
	IsAcknowledged bool                   `json:"is_acknowledged" db:"is_acknowledged"`
	AcknowledgedAt *time.Time             `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	ExpiresAt      *time.Time             `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt      time.Time              `json:"created_at" db:"created_at"`
}

// OutfitPerformance stores per-outfit component scores so repeated feedback
// submissions stay idempotent: the row is upserted, never accumulated.
type OutfitPerformance struct {
	OutfitID         uuid.UUID          `json:"outfit_id" db:"outfit_id"`
	UserID           uuid.UUID          `json:"user_id" db:"user_id"`
	PerformanceScore float64            `json:"performance_score" db:"performance_score"`
	AcceptanceScore  *float64           `json:"acceptance_score,omitempty" db:"acceptance_score"`
	RatingScore      *float64           `json:"rating_score,omitempty" db:"rating_score"`
	WearScore        *float64           `json:"wear_score,omitempty" db:"wear_score"`
	Occasion         string             `json:"occasion" db:"occasion"`
	WeatherTemp      *float64           `json:"weather_temp,omitempty" db:"weather_temp"`
	WeatherCondition *string            `json:"weather_condition,omitempty" db:"weather_condition"`
	ItemComposition  map[string]string  `json:"item_composition" db:"item_composition"`
	ColorComposition map[string][]string `json:"color_composition" db:"color_composition"`
	WasModified      bool               `json:"was_modified" db:"was_modified"`
	ComputedAt       time.Time          `json:"computed_at" db:"computed_at"`
}

// LearnedPreferences is the subset of a profile the prompt assembler feeds to
// the generative model as advisory context.
type LearnedPreferences struct {
	FavoriteColors  []string `json:"learned_favorite_colors,omitempty"`
	AvoidColors     []string `json:"learned_avoid_colors,omitempty"`
	PreferredStyles []string `json:"learned_preferred_styles,omitempty"`
}

// Empty reports whether no preference was learned at all.
func (lp LearnedPreferences) Empty() bool {
	return len(lp.FavoriteColors) == 0 && len(lp.AvoidColors) == 0 && len(lp.PreferredStyles) == 0
}
