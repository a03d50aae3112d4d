package models

import (
	"time"

	"github.com/google/uuid"
)

type ItemStatus string

const (
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusReady      ItemStatus = "ready"
	ItemStatusFailed     ItemStatus = "failed"
)

// ClothingItem is the recommendation-time view of a wardrobe item: the
// attributes the candidate filters and the prompt formatter need, plus the
// wear/wash state the feedback transaction mutates.
type ClothingItem struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	UserID       uuid.UUID  `json:"user_id" db:"user_id"`
	Type         string     `json:"type" db:"type"`
	Subtype      *string    `json:"subtype,omitempty" db:"subtype"`
	Name         *string    `json:"name,omitempty" db:"name"`
	Colors       []string   `json:"colors" db:"colors"`
	PrimaryColor *string    `json:"primary_color,omitempty" db:"primary_color"`
	Pattern      *string    `json:"pattern,omitempty" db:"pattern"`
	Material     *string    `json:"material,omitempty" db:"material"`
	Style        []string   `json:"style" db:"style"`
	Formality    *string    `json:"formality,omitempty" db:"formality"`
	Season       []string   `json:"season" db:"season"`
	Status       ItemStatus `json:"status" db:"status"`
	IsArchived   bool       `json:"is_archived" db:"is_archived"`
	NeedsWash    bool       `json:"needs_wash" db:"needs_wash"`
	WearCount    int        `json:"wear_count" db:"wear_count"`
	LastWornAt   *time.Time `json:"last_worn_at,omitempty" db:"last_worn_at"`
	// WashInterval overrides the configured default wear count between
	// washes; nil means the default applies.
	WashInterval   *int `json:"wash_interval,omitempty" db:"wash_interval"`
	WearsSinceWash int  `json:"wears_since_wash" db:"wears_since_wash"`
}

// ItemWearRecord is one row of an item's wear history.
type ItemWearRecord struct {
	ID       uuid.UUID  `json:"id" db:"id"`
	ItemID   uuid.UUID  `json:"item_id" db:"item_id"`
	OutfitID *uuid.UUID `json:"outfit_id,omitempty" db:"outfit_id"`
	WornAt   time.Time  `json:"worn_at" db:"worn_at"`
}

// PairedItem is an item returned by pairing suggestions together with its
// learned compatibility score.
type PairedItem struct {
	Item               ClothingItem `json:"item"`
	CompatibilityScore float64      `json:"compatibility_score"`
	TimesPaired        int          `json:"times_paired"`
}
