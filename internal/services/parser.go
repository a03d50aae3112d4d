package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	lineCommentRe  = regexp.MustCompile(`//[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	fencedBlockRe  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
)

// ParseModelResponse extracts a JSON object from raw generative-model output.
// Models routinely wrap JSON in prose, fence it in markdown, or decorate it
// with comments despite instructions, so a cascade of strategies is tried in
// order: direct parse, comment-stripped parse, fenced code block, first
// balanced {...} span, first balanced [...] span. A top-level list is reduced
// to its first object element; a bare list of numbers becomes
// {"items": [...]}. The function never panics on malformed input; if every
// strategy fails it returns an error naming the problem.
func ParseModelResponse(content string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(content)

	if result, ok := tryParse(trimmed); ok {
		return result, nil
	}

	if result, ok := tryParse(stripComments(trimmed)); ok {
		return result, nil
	}

	if match := fencedBlockRe.FindStringSubmatch(content); match != nil {
		if result, ok := tryParse(match[1]); ok {
			return result, nil
		}
		if result, ok := tryParse(stripComments(match[1])); ok {
			return result, nil
		}
	}

	if span := balancedSpan(content, '{', '}'); span != "" {
		if result, ok := tryParse(span); ok {
			return result, nil
		}
		if result, ok := tryParse(stripComments(span)); ok {
			return result, nil
		}
	}

	// Small models sometimes answer with a bare array
	if span := balancedSpan(content, '[', ']'); span != "" {
		if result, ok := tryParse(span); ok {
			return result, nil
		}
	}

	preview := content
	if len(preview) > 200 {
		preview = preview[:200]
	}
	return nil, fmt.Errorf("no valid JSON found in model response: %q", preview)
}

// tryParse attempts a single JSON parse and normalizes the shapes the
// cascade accepts into a map.
func tryParse(s string) (map[string]interface{}, bool) {
	var value interface{}
	if err := json.Unmarshal([]byte(s), &value); err != nil {
		return nil, false
	}

	switch v := value.(type) {
	case map[string]interface{}:
		return v, true
	case []interface{}:
		if len(v) == 0 {
			return nil, false
		}
		if obj, ok := v[0].(map[string]interface{}); ok {
			return obj, true
		}
		// A plain number list is an implicit item selection
		for _, elem := range v {
			if _, ok := elem.(float64); !ok {
				return nil, false
			}
		}
		return map[string]interface{}{"items": v}, true
	default:
		return nil, false
	}
}

func stripComments(s string) string {
	s = lineCommentRe.ReplaceAllString(s, "")
	return blockCommentRe.ReplaceAllString(s, "")
}

// balancedSpan returns the first balanced open..close span in s, or "".
func balancedSpan(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start == -1 {
		return ""
	}

	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// OutfitSelection is the structured result of a parsed model response after
// item numbers have been mapped back to wardrobe item ids.
type OutfitSelection struct {
	ItemIDs    []uuid.UUID
	Headline   *string
	Highlights []string
	StylingTip *string
	Raw        map[string]interface{}
}

// ResolveSelection cross-references the model's picked numbers against the
// prompt-local number map. Numbers outside the map are dropped with a
// warning; non-numeric entries likewise. Zero surviving ids is a hard
// failure: a recommendation with no items is meaningless.
func ResolveSelection(data map[string]interface{}, numberMap map[int]uuid.UUID, logger *logrus.Logger) (*OutfitSelection, error) {
	rawItems, _ := data["items"].([]interface{})

	var itemIDs []uuid.UUID
	for _, raw := range rawItems {
		num, ok := asItemNumber(raw)
		if !ok {
			logger.WithField("value", raw).Warn("Model returned non-numeric item selection")
			continue
		}
		id, ok := numberMap[num]
		if !ok {
			logger.WithField("number", num).Warn("Model selected item number outside the offered list")
			continue
		}
		itemIDs = append(itemIDs, id)
	}

	if len(itemIDs) == 0 {
		return nil, fmt.Errorf("%w: no valid items selected", ErrAIRecommendation)
	}

	sel := &OutfitSelection{
		ItemIDs: itemIDs,
		Raw:     data,
	}

	if headline, ok := data["headline"].(string); ok && headline != "" {
		sel.Headline = &headline
	}
	if tip, ok := data["styling_tip"].(string); ok && tip != "" {
		sel.StylingTip = &tip
	}
	if highlights, ok := data["highlights"].([]interface{}); ok {
		for _, h := range highlights {
			if s, ok := h.(string); ok {
				sel.Highlights = append(sel.Highlights, s)
			}
		}
	}

	return sel, nil
}

func asItemNumber(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
