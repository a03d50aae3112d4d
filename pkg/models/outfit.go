package models

import (
	"time"

	"github.com/google/uuid"
)

type OutfitStatus string

const (
	OutfitStatusPending  OutfitStatus = "pending"
	OutfitStatusSent     OutfitStatus = "sent"
	OutfitStatusViewed   OutfitStatus = "viewed"
	OutfitStatusAccepted OutfitStatus = "accepted"
	OutfitStatusRejected OutfitStatus = "rejected"
)

type OutfitSource string

const (
	OutfitSourceOnDemand  OutfitSource = "on_demand"
	OutfitSourceScheduled OutfitSource = "scheduled"
)

// WeatherData is the weather context an outfit was generated for.
type WeatherData struct {
	Temperature         float64 `json:"temperature"`
	FeelsLike           float64 `json:"feels_like"`
	Condition           string  `json:"condition"`
	PrecipitationChance int     `json:"precipitation_chance"`
}

type Outfit struct {
	ID            uuid.UUID              `json:"id" db:"id"`
	UserID        uuid.UUID              `json:"user_id" db:"user_id"`
	Occasion      string                 `json:"occasion" db:"occasion"`
	Weather       *WeatherData           `json:"weather,omitempty" db:"weather_data"`
	ScheduledFor  time.Time              `json:"scheduled_for" db:"scheduled_for"`
	Reasoning     *string                `json:"reasoning,omitempty" db:"reasoning"`
	StyleNotes    *string                `json:"style_notes,omitempty" db:"style_notes"`
	AIRawResponse map[string]interface{} `json:"ai_raw_response,omitempty" db:"ai_raw_response"`
	Status        OutfitStatus           `json:"status" db:"status"`
	Source        OutfitSource           `json:"source" db:"source"`
	RespondedAt   *time.Time             `json:"responded_at,omitempty" db:"responded_at"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`

	Items    []OutfitItem  `json:"items,omitempty"`
	Feedback *UserFeedback `json:"feedback,omitempty"`
}

type OutfitItem struct {
	OutfitID  uuid.UUID     `json:"outfit_id" db:"outfit_id"`
	ItemID    uuid.UUID     `json:"item_id" db:"item_id"`
	Position  int           `json:"position" db:"position"`
	LayerType *string       `json:"layer_type,omitempty" db:"layer_type"`
	Item      *ClothingItem `json:"item,omitempty"`
}

// UserFeedback is the persisted feedback record for one outfit. All fields
// except the bookkeeping ones are optional: users may rate without marking an
// outfit worn, or vice versa.
type UserFeedback struct {
	ID                    uuid.UUID   `json:"id" db:"id"`
	OutfitID              uuid.UUID   `json:"outfit_id" db:"outfit_id"`
	Accepted              *bool       `json:"accepted,omitempty" db:"accepted"`
	Rating                *int        `json:"rating,omitempty" db:"rating"`
	ComfortRating         *int        `json:"comfort_rating,omitempty" db:"comfort_rating"`
	StyleRating           *int        `json:"style_rating,omitempty" db:"style_rating"`
	Comment               *string     `json:"comment,omitempty" db:"comment"`
	WornAt                *time.Time  `json:"worn_at,omitempty" db:"worn_at"`
	WornWithModifications bool        `json:"worn_with_modifications" db:"worn_with_modifications"`
	ModificationNotes     *string     `json:"modification_notes,omitempty" db:"modification_notes"`
	ActuallyWorn          *bool       `json:"actually_worn,omitempty" db:"actually_worn"`
	WoreInsteadItems      []uuid.UUID `json:"wore_instead_items,omitempty" db:"wore_instead_items"`
	CreatedAt             time.Time   `json:"created_at" db:"created_at"`
}

// FeedbackRequest is the inbound payload for submitting outfit feedback.
type FeedbackRequest struct {
	Accepted              *bool    `json:"accepted,omitempty"`
	Rating                *int     `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	ComfortRating         *int     `json:"comfort_rating,omitempty" validate:"omitempty,min=1,max=5"`
	StyleRating           *int     `json:"style_rating,omitempty" validate:"omitempty,min=1,max=5"`
	Comment               *string  `json:"comment,omitempty"`
	WornAt                *string  `json:"worn_at,omitempty"`
	WornWithModifications bool     `json:"worn_with_modifications"`
	ModificationNotes     *string  `json:"modification_notes,omitempty"`
	ActuallyWorn          *bool    `json:"actually_worn,omitempty"`
	WoreInsteadItems      []string `json:"wore_instead_items,omitempty"`
}

// RecommendationRequest is the inbound payload for generating an outfit.
type RecommendationRequest struct {
	Occasion     string       `json:"occasion" validate:"required"`
	Weather      *WeatherData `json:"weather,omitempty"`
	ExcludeItems []string     `json:"exclude_items,omitempty"`
	IncludeItems []string     `json:"include_items,omitempty"`
}
