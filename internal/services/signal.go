package services

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/vestra/vestra/pkg/models"
)

// Signal weights. Every aggregate the learning engine maintains is an average
// or weighted combination of ComputeSignal across outfits, so these constants
// are the single source of truth for "how good was this outcome".
const (
	signalAccepted      = 0.3
	signalRejected      = -0.5
	signalRatingWeight  = 0.4
	signalWorn          = 0.3
	signalModifications = -0.1
	signalNotWorn       = -0.4
	signalSubstituted   = -0.2
)

// ComputeSignal converts one outfit's resolved outcome into a normalized
// scalar in [-1, 1]. Feedback is multi-dimensional and partial; collapsing it
// here lets every downstream aggregate share one accumulation strategy.
// The function is pure: no I/O, no clock.
func ComputeSignal(status models.OutfitStatus, fb *models.UserFeedback) float64 {
	signal := 0.0

	switch status {
	case models.OutfitStatusAccepted:
		signal += signalAccepted
	case models.OutfitStatusRejected:
		signal += signalRejected
	}

	if fb != nil {
		if fb.Rating != nil {
			// Maps 1-5 to -0.4 .. +0.4
			signal += float64(*fb.Rating-3) / 2 * signalRatingWeight
		}

		if fb.WornAt != nil {
			signal += signalWorn
			if fb.WornWithModifications {
				signal += signalModifications
			}
		}

		// Explicit "did not wear it" is a strong negative, stronger still
		// when the user named what they wore instead.
		if fb.ActuallyWorn != nil && !*fb.ActuallyWorn {
			signal += signalNotWorn
			if len(fb.WoreInsteadItems) > 0 {
				signal += signalSubstituted
			}
		}
	}

	return clamp(signal, -1.0, 1.0)
}

// pairSignal derives the per-pair sentiment used to mark occasion and weather
// buckets positive. It intentionally weighs ratings lighter than
// ComputeSignal does: a pair occurrence is weaker evidence than a whole
// outfit outcome.
func pairSignal(fb *models.UserFeedback) (float64, bool) {
	strength := 0.0
	positive := false

	if fb == nil {
		return strength, positive
	}

	if fb.Accepted != nil {
		if *fb.Accepted {
			positive = true
			strength = 0.3
		} else {
			strength = -0.3
		}
	}

	if fb.Rating != nil {
		strength += float64(*fb.Rating-3) / 2 * 0.3
		positive = strength > 0
	}

	if fb.WornAt != nil {
		strength += 0.2
		positive = true
	}

	return strength, positive
}

// TempBucket discretizes an ambient temperature in °C into one of the four
// buckets shared by pair aggregation, profile recomputation and candidate
// filtering. Cut points are exact: 4.9 is cold, 5.0 is cool.
func TempBucket(temp float64) string {
	switch {
	case temp < 5:
		return "cold"
	case temp < 15:
		return "cool"
	case temp < 25:
		return "mild"
	default:
		return "hot"
	}
}

// normalizeTag canonicalizes a color or style tag before it is used as an
// aggregation key, so "Navy " and "navy" land in the same bucket.
func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(tag)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
