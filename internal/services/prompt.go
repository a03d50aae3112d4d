package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/vestra/vestra/pkg/models"
)

// promptContext is everything the prompt assembler folds into one request.
type promptContext struct {
	Occasion    string
	Weather     *models.WeatherData
	Preferences *models.UserPreference
	Learned     models.LearnedPreferences
	GoodPairs   [][2]int // item numbers of proven pairs, already mapped
	WornRecent  [][]int  // item number sets worn within the repeat window
	Items       []models.ClothingItem
}

// BuildRecommendationPrompt renders the full prompt and the number-to-id map
// needed to resolve the model's answer. Items are presented as a numbered
// list so the model selects by small integers instead of echoing UUIDs,
// which small models mangle.
func BuildRecommendationPrompt(pc promptContext) (string, map[int]uuid.UUID) {
	var b strings.Builder

	b.WriteString("You are a personal stylist assembling one outfit from the wardrobe below.\n\n")

	b.WriteString(fmt.Sprintf("Occasion: %s\n", pc.Occasion))
	if pc.Weather != nil {
		b.WriteString(fmt.Sprintf("Weather: %.0f°C (feels like %.0f°C), %s",
			pc.Weather.Temperature, pc.Weather.FeelsLike, pc.Weather.Condition))
		if pc.Weather.PrecipitationChance > 0 {
			b.WriteString(fmt.Sprintf(", %d%% chance of precipitation", pc.Weather.PrecipitationChance))
		}
		b.WriteString("\n")
	}

	if prefBlock := formatPreferences(pc.Preferences, pc.Learned); prefBlock != "" {
		b.WriteString("\nStyle preferences:\n")
		b.WriteString(prefBlock)
	}

	if len(pc.GoodPairs) > 0 {
		b.WriteString("\nCombinations this person has loved before (item numbers): ")
		pairs := make([]string, len(pc.GoodPairs))
		for i, p := range pc.GoodPairs {
			pairs[i] = fmt.Sprintf("[%d + %d]", p[0], p[1])
		}
		b.WriteString(strings.Join(pairs, ", "))
		b.WriteString("\n")
	}

	if len(pc.WornRecent) > 0 {
		b.WriteString("\nRecently worn combinations to avoid repeating exactly: ")
		combos := make([]string, len(pc.WornRecent))
		for i, combo := range pc.WornRecent {
			parts := make([]string, len(combo))
			for j, n := range combo {
				parts[j] = fmt.Sprintf("%d", n)
			}
			combos[i] = "{" + strings.Join(parts, ", ") + "}"
		}
		b.WriteString(strings.Join(combos, ", "))
		b.WriteString("\n")
	}

	itemList, numberMap := FormatItemsForPrompt(pc.Items)
	b.WriteString("\nAvailable items:\n")
	b.WriteString(itemList)

	b.WriteString(`
Respond with ONLY a JSON object, no other text:
{
  "items": [<numbers of the chosen items>],
  "headline": "<short outfit name>",
  "highlights": ["<why this works, 1-3 points>"],
  "styling_tip": "<one optional styling tip>"
}
Choose complete, coherent outfits. Use only the item numbers listed above.`)

	return b.String(), numberMap
}

// FormatItemsForPrompt renders items as a numbered list and returns the map
// from assigned number back to item id. Numbering starts at 1.
func FormatItemsForPrompt(items []models.ClothingItem) (string, map[int]uuid.UUID) {
	var b strings.Builder
	numberMap := make(map[int]uuid.UUID, len(items))

	for i, item := range items {
		n := i + 1
		numberMap[n] = item.ID
		b.WriteString(fmt.Sprintf("[%d] %s\n", n, describeItem(item)))
	}

	return b.String(), numberMap
}

// describeItem builds a compact one-line item description. Name wins when
// present; otherwise attributes are assembled front to back.
func describeItem(item models.ClothingItem) string {
	var head string
	if item.Name != nil && *item.Name != "" {
		head = *item.Name
	} else {
		var parts []string
		if item.PrimaryColor != nil && *item.PrimaryColor != "" {
			parts = append(parts, *item.PrimaryColor)
		}
		if item.Pattern != nil && *item.Pattern != "" && *item.Pattern != "solid" {
			parts = append(parts, *item.Pattern)
		}
		if item.Material != nil && *item.Material != "" {
			parts = append(parts, *item.Material)
		}
		if item.Subtype != nil && *item.Subtype != "" {
			parts = append(parts, *item.Subtype)
		} else {
			parts = append(parts, item.Type)
		}
		head = strings.Join(parts, " ")
	}

	var details []string
	details = append(details, item.Type)
	if len(item.Colors) > 0 {
		details = append(details, "colors: "+strings.Join(item.Colors, "/"))
	}
	if len(item.Style) > 0 {
		details = append(details, "style: "+strings.Join(item.Style, "/"))
	}
	if item.Formality != nil && *item.Formality != "" {
		details = append(details, *item.Formality)
	}

	return fmt.Sprintf("%s (%s)", head, strings.Join(details, "; "))
}

// formatPreferences merges explicit settings with learned preferences into
// the prompt's preference block. Learned entries are advisory and labeled as
// observed so the model weighs them below explicit choices.
func formatPreferences(prefs *models.UserPreference, learned models.LearnedPreferences) string {
	var lines []string

	if prefs != nil {
		if len(prefs.ColorFavorites) > 0 {
			lines = append(lines, "- Favorite colors: "+strings.Join(prefs.ColorFavorites, ", "))
		}
		if len(prefs.ColorAvoid) > 0 {
			lines = append(lines, "- Colors to avoid: "+strings.Join(prefs.ColorAvoid, ", "))
		}
		if prefs.VarietyLevel != "" {
			lines = append(lines, "- Variety preference: "+prefs.VarietyLevel)
		}
	}

	if len(learned.FavoriteColors) > 0 {
		lines = append(lines, "- Observed: responds well to "+strings.Join(learned.FavoriteColors, ", "))
	}
	if len(learned.AvoidColors) > 0 {
		lines = append(lines, "- Observed: tends to reject "+strings.Join(learned.AvoidColors, ", "))
	}
	if len(learned.PreferredStyles) > 0 {
		lines = append(lines, "- Observed: gravitates toward "+strings.Join(learned.PreferredStyles, ", ")+" styles")
	}

	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// mapPairsToNumbers converts id pairs to prompt numbers, dropping pairs with
// either side outside the candidate list.
func mapPairsToNumbers(pairs []models.ItemPairScore, numberMap map[int]uuid.UUID) [][2]int {
	reverse := make(map[uuid.UUID]int, len(numberMap))
	for n, id := range numberMap {
		reverse[id] = n
	}

	var result [][2]int
	for _, p := range pairs {
		n1, ok1 := reverse[p.Item1ID]
		n2, ok2 := reverse[p.Item2ID]
		if ok1 && ok2 {
			result = append(result, [2]int{n1, n2})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i][0] != result[j][0] {
			return result[i][0] < result[j][0]
		}
		return result[i][1] < result[j][1]
	})
	return result
}

// mapCombosToNumbers converts recently worn id sets to prompt number sets,
// dropping combinations that no longer resolve fully.
func mapCombosToNumbers(combos [][]uuid.UUID, numberMap map[int]uuid.UUID) [][]int {
	reverse := make(map[uuid.UUID]int, len(numberMap))
	for n, id := range numberMap {
		reverse[id] = n
	}

	var result [][]int
	for _, combo := range combos {
		numbers := make([]int, 0, len(combo))
		complete := true
		for _, id := range combo {
			n, ok := reverse[id]
			if !ok {
				complete = false
				break
			}
			numbers = append(numbers, n)
		}
		if complete && len(numbers) > 0 {
			sort.Ints(numbers)
			result = append(result, numbers)
		}
	}
	return result
}
