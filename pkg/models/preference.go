package models

import "github.com/google/uuid"

// UserPreference holds the user's explicit settings that steer candidate
// filtering and the prompt's preference block. The learning engine reads
// these; it never writes them.
type UserPreference struct {
	UserID                 uuid.UUID   `json:"user_id" db:"user_id"`
	ColorFavorites         []string    `json:"color_favorites" db:"color_favorites"`
	ColorAvoid             []string    `json:"color_avoid" db:"color_avoid"`
	ExcludedItemIDs        []uuid.UUID `json:"excluded_item_ids" db:"excluded_item_ids"`
	AvoidRepeatDays        int         `json:"avoid_repeat_days" db:"avoid_repeat_days"`
	ColdThreshold          *float64    `json:"cold_threshold,omitempty" db:"cold_threshold"`
	HotThreshold           *float64    `json:"hot_threshold,omitempty" db:"hot_threshold"`
	TemperatureSensitivity string      `json:"temperature_sensitivity" db:"temperature_sensitivity"` // "cold", "warm" or ""
	VarietyLevel           string      `json:"variety_level" db:"variety_level"`
}

// User carries the identity fields the engine needs: the timezone for
// computing the user's local "today" and the location for weather lookups.
type User struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Timezone    string    `json:"timezone" db:"timezone"`
	LocationLat *float64  `json:"location_lat,omitempty" db:"location_lat"`
	LocationLon *float64  `json:"location_lon,omitempty" db:"location_lon"`
}
