package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/vestra/vestra/internal/config"
	"github.com/vestra/vestra/pkg/models"
)

// TextGenerator is the single capability the recommendation flow needs from
// a generative model: a prompt in, raw text out.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// WeatherProvider returns current conditions for a coordinate.
type WeatherProvider interface {
	Current(ctx context.Context, lat, lon float64) (*models.WeatherData, error)
}

// monthToSeason maps calendar months to wardrobe seasons (northern
// hemisphere).
var monthToSeason = map[time.Month]string{
	time.December: "winter", time.January: "winter", time.February: "winter",
	time.March: "spring", time.April: "spring", time.May: "spring",
	time.June: "summer", time.July: "summer", time.August: "summer",
	time.September: "fall", time.October: "fall", time.November: "fall",
}

// occasionFormality maps known occasions to acceptable formality levels.
// Occasions outside the map skip formality filtering entirely.
var occasionFormality = map[string][]string{
	"work":       {"business", "business_casual", "smart_casual"},
	"business":   {"business", "formal"},
	"formal":     {"formal", "business"},
	"date":       {"smart_casual", "business_casual", "formal"},
	"casual":     {"casual", "smart_casual"},
	"weekend":    {"casual", "smart_casual"},
	"athletic":   {"athletic"},
	"gym":        {"athletic"},
	"loungewear": {"casual"},
}

// RecommendationService assembles candidate wardrobes, builds prompts and
// turns model output into persisted outfits.
type RecommendationService struct {
	db       DatabaseQuerier
	config   *config.Config
	logger   *logrus.Logger
	learning *LearningService
	ai       TextGenerator
	weather  WeatherProvider
}

func NewRecommendationService(
	db DatabaseQuerier,
	cfg *config.Config,
	logger *logrus.Logger,
	learning *LearningService,
	ai TextGenerator,
	weather WeatherProvider,
) *RecommendationService {
	return &RecommendationService{
		db:       db,
		config:   cfg,
		logger:   logger,
		learning: learning,
		ai:       ai,
		weather:  weather,
	}
}

// GenerateRecommendation runs the full pipeline for one on-demand request:
// resolve weather, gather candidates, assemble the prompt, call the model,
// parse its answer and persist the outfit. Weather is never fabricated: when
// the request does not carry it and the lookup fails, the typed error goes
// back to the caller so the client can supply weather manually.
func (s *RecommendationService) GenerateRecommendation(ctx context.Context, userID uuid.UUID, req *models.RecommendationRequest) (*models.Outfit, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	weather := req.Weather
	if weather == nil {
		weather, err = s.fetchWeather(ctx, user)
		if err != nil {
			return nil, err
		}
	}

	candidates, err := s.GetCandidateItems(ctx, userID, user, req, weather)
	if err != nil {
		return nil, err
	}

	prefs, err := s.loadPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	learned, err := s.learning.GetLearnedPreferences(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Skipping learned preferences")
		learned = models.LearnedPreferences{}
	}

	goodPairs, err := s.learning.GetBestItemPairs(ctx, userID, s.config.Recommendation.GoodPairLimit)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Skipping learned pairs")
		goodPairs = nil
	}
	goodPairs = filterPairsByScore(goodPairs, s.config.Recommendation.GoodPairScoreFloor)

	wornCombos, err := s.recentlyWornCombinations(ctx, userID, user)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Skipping recently worn combinations")
		wornCombos = nil
	}

	// Numbering is positional, so deriving the map up front for the pair and
	// combo blocks yields the same numbers the item list will use.
	_, numberMap := FormatItemsForPrompt(candidates)
	prompt, _ := BuildRecommendationPrompt(promptContext{
		Occasion:    req.Occasion,
		Weather:     weather,
		Preferences: prefs,
		Learned:     learned,
		GoodPairs:   mapPairsToNumbers(goodPairs, numberMap),
		WornRecent:  mapCombosToNumbers(wornCombos, numberMap),
		Items:       candidates,
	})

	aiCtx, cancel := context.WithTimeout(ctx, s.config.AI.Timeout)
	defer cancel()

	raw, err := s.ai.Generate(aiCtx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAIRecommendation, err)
	}

	data, err := ParseModelResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAIRecommendation, err)
	}

	selection, err := ResolveSelection(data, numberMap, s.logger)
	if err != nil {
		return nil, err
	}

	outfit, err := s.storeOutfit(ctx, userID, req.Occasion, weather, selection, candidates)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"outfit_id": outfit.ID,
		"occasion":  req.Occasion,
		"items":     len(outfit.Items),
	}).Info("Generated outfit recommendation")

	return outfit, nil
}

// GetCandidateItems produces the filtered numbered-list wardrobe for one
// request. Force-included items bypass every exclusion and filter; a final
// pool under min_candidates is an ErrInsufficientWardrobe.
func (s *RecommendationService) GetCandidateItems(ctx context.Context, userID uuid.UUID, user *models.User, req *models.RecommendationRequest, weather *models.WeatherData) ([]models.ClothingItem, error) {
	wardrobe, err := s.loadReadyWardrobe(ctx, userID)
	if err != nil {
		return nil, err
	}

	prefs, err := s.loadPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	excluded := make(map[uuid.UUID]bool)
	for _, raw := range req.ExcludeItems {
		if id, err := uuid.Parse(raw); err == nil {
			excluded[id] = true
		}
	}
	if prefs != nil {
		for _, id := range prefs.ExcludedItemIDs {
			excluded[id] = true
		}
	}

	var forcedIDs []uuid.UUID
	for _, raw := range req.IncludeItems {
		if id, err := uuid.Parse(raw); err == nil {
			forcedIDs = append(forcedIDs, id)
		}
	}

	recentlyWorn, err := s.recentlyWornItemIDs(ctx, userID, user, prefs)
	if err != nil {
		return nil, err
	}

	forced := make(map[uuid.UUID]bool, len(forcedIDs))
	for _, id := range forcedIDs {
		forced[id] = true
	}

	var pool []models.ClothingItem
	for _, item := range wardrobe {
		if forced[item.ID] {
			continue // appended after filtering
		}
		if excluded[item.ID] || recentlyWorn[item.ID] {
			continue
		}
		pool = append(pool, item)
	}

	if s.config.Recommendation.ApplyContextFilters {
		pool = filterBySeason(pool, userToday(user).Month())
		pool = filterByWeather(pool, weather, prefs, &s.config.Recommendation)
		pool = filterByFormality(pool, req.Occasion)
	}

	// Forced items bypass the wash and readiness gates too, so they are
	// loaded by id rather than taken from the filtered wardrobe.
	forcedItems, err := s.loadItemsByID(ctx, userID, forcedIDs)
	if err != nil {
		return nil, err
	}
	pool = append(pool, forcedItems...)

	if len(pool) < s.config.Recommendation.MinCandidates {
		return nil, fmt.Errorf("%w: %d usable items", ErrInsufficientWardrobe, len(pool))
	}

	return pool, nil
}

// filterBySeason keeps items tagged for the current season, for all seasons,
// or not tagged at all.
func filterBySeason(items []models.ClothingItem, month time.Month) []models.ClothingItem {
	season := monthToSeason[month]

	var kept []models.ClothingItem
	for _, item := range items {
		if len(item.Season) == 0 {
			kept = append(kept, item)
			continue
		}
		for _, tag := range item.Season {
			if tag == season || tag == "all" {
				kept = append(kept, item)
				break
			}
		}
	}
	return kept
}

// filterByWeather drops single-season items that contradict the current
// temperature. A "cold"-sensitive user shifts both thresholds up; a "warm"
// one shifts them down.
func filterByWeather(items []models.ClothingItem, weather *models.WeatherData, prefs *models.UserPreference, cfg *config.RecommendationConfig) []models.ClothingItem {
	if weather == nil {
		return items
	}

	cold := cfg.DefaultColdThreshold
	hot := cfg.DefaultHotThreshold
	if prefs != nil {
		if prefs.ColdThreshold != nil {
			cold = *prefs.ColdThreshold
		}
		if prefs.HotThreshold != nil {
			hot = *prefs.HotThreshold
		}
		switch prefs.TemperatureSensitivity {
		case "cold":
			cold += cfg.SensitivityShift
			hot += cfg.SensitivityShift
		case "warm":
			cold -= cfg.SensitivityShift
			hot -= cfg.SensitivityShift
		}
	}

	temp := weather.Temperature
	isCold := temp <= cold
	isHot := temp >= hot
	if !isCold && !isHot {
		return items
	}

	var kept []models.ClothingItem
	for _, item := range items {
		if isCold && onlySeason(item, "summer") {
			continue
		}
		if isHot && onlySeason(item, "winter") {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

func onlySeason(item models.ClothingItem, season string) bool {
	return len(item.Season) == 1 && item.Season[0] == season
}

// filterByFormality keeps items matching the occasion's formality band.
// Unknown occasions and untagged items pass through.
func filterByFormality(items []models.ClothingItem, occasion string) []models.ClothingItem {
	allowed, ok := occasionFormality[normalizeTag(occasion)]
	if !ok {
		return items
	}

	var kept []models.ClothingItem
	for _, item := range items {
		if item.Formality == nil || *item.Formality == "" {
			kept = append(kept, item)
			continue
		}
		for _, f := range allowed {
			if *item.Formality == f {
				kept = append(kept, item)
				break
			}
		}
	}
	return kept
}

func filterPairsByScore(pairs []models.ItemPairScore, floor float64) []models.ItemPairScore {
	var kept []models.ItemPairScore
	for _, p := range pairs {
		if p.CompatibilityScore >= floor {
			kept = append(kept, p)
		}
	}
	return kept
}

// userToday returns the current time in the user's timezone. An unknown or
// empty timezone falls back to UTC.
func userToday(user *models.User) time.Time {
	loc := time.UTC
	if user != nil && user.Timezone != "" {
		if parsed, err := time.LoadLocation(user.Timezone); err == nil {
			loc = parsed
		}
	}
	return time.Now().In(loc)
}

func (s *RecommendationService) loadUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user := &models.User{ID: userID}
	err := s.db.QueryRow(ctx, `
		SELECT timezone, location_lat, location_lon
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.Timezone, &user.LocationLat, &user.LocationLon)
	if errors.Is(err, pgx.ErrNoRows) {
		return user, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

func (s *RecommendationService) loadPreferences(ctx context.Context, userID uuid.UUID) (*models.UserPreference, error) {
	prefs := &models.UserPreference{UserID: userID}
	var excludedJSON []byte

	err := s.db.QueryRow(ctx, `
		SELECT color_favorites, color_avoid, excluded_item_ids,
		       avoid_repeat_days, cold_threshold, hot_threshold,
		       temperature_sensitivity, variety_level
		FROM user_preferences
		WHERE user_id = $1
	`, userID).Scan(
		&prefs.ColorFavorites, &prefs.ColorAvoid, &excludedJSON,
		&prefs.AvoidRepeatDays, &prefs.ColdThreshold, &prefs.HotThreshold,
		&prefs.TemperatureSensitivity, &prefs.VarietyLevel,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	if len(excludedJSON) > 0 {
		_ = json.Unmarshal(excludedJSON, &prefs.ExcludedItemIDs)
	}

	return prefs, nil
}

func (s *RecommendationService) loadReadyWardrobe(ctx context.Context, userID uuid.UUID) ([]models.ClothingItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, type, subtype, name, colors, primary_color,
		       pattern, material, style, formality, season,
		       wear_count, last_worn_at
		FROM clothing_items
		WHERE user_id = $1
		  AND status = 'ready'
		  AND is_archived = false
		  AND needs_wash = false
		ORDER BY type, created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load wardrobe: %w", err)
	}
	defer rows.Close()

	var items []models.ClothingItem
	for rows.Next() {
		var item models.ClothingItem
		if err := rows.Scan(
			&item.ID, &item.UserID, &item.Type, &item.Subtype, &item.Name,
			&item.Colors, &item.PrimaryColor, &item.Pattern, &item.Material,
			&item.Style, &item.Formality, &item.Season,
			&item.WearCount, &item.LastWornAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan wardrobe item: %w", err)
		}
		item.Status = models.ItemStatusReady
		items = append(items, item)
	}

	return items, rows.Err()
}

// loadItemsByID fetches specific items regardless of wash or readiness
// state, preserving the caller's order.
func (s *RecommendationService) loadItemsByID(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.ClothingItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, type, subtype, name, colors, primary_color,
		       pattern, material, style, formality, season,
		       wear_count, last_worn_at
		FROM clothing_items
		WHERE user_id = $1 AND id = ANY($2) AND is_archived = false
	`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load forced items: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]models.ClothingItem, len(ids))
	for rows.Next() {
		var item models.ClothingItem
		if err := rows.Scan(
			&item.ID, &item.UserID, &item.Type, &item.Subtype, &item.Name,
			&item.Colors, &item.PrimaryColor, &item.Pattern, &item.Material,
			&item.Style, &item.Formality, &item.Season,
			&item.WearCount, &item.LastWornAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan forced item: %w", err)
		}
		byID[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items := make([]models.ClothingItem, 0, len(byID))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// recentlyWornItemIDs returns items worn within the repeat window, measured
// in whole days from the user's local midnight, not from now.
func (s *RecommendationService) recentlyWornItemIDs(ctx context.Context, userID uuid.UUID, user *models.User, prefs *models.UserPreference) (map[uuid.UUID]bool, error) {
	repeatDays := 0
	if prefs != nil {
		repeatDays = prefs.AvoidRepeatDays
	}
	if repeatDays <= 0 {
		return map[uuid.UUID]bool{}, nil
	}

	today := userToday(user)
	midnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	cutoff := midnight.AddDate(0, 0, -repeatDays)

	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT h.item_id
		FROM item_history h
		JOIN clothing_items i ON i.id = h.item_id
		WHERE i.user_id = $1 AND h.worn_at >= $2
	`, userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load recently worn items: %w", err)
	}
	defer rows.Close()

	worn := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan worn item: %w", err)
		}
		worn[id] = true
	}

	return worn, rows.Err()
}

// recentlyWornCombinations collects the item sets of outfits worn in the
// combination window, for the prompt's avoid-repeating block.
func (s *RecommendationService) recentlyWornCombinations(ctx context.Context, userID uuid.UUID, user *models.User) ([][]uuid.UUID, error) {
	days := s.config.Recommendation.WornCombinationDays
	if days <= 0 {
		return nil, nil
	}

	today := userToday(user)
	cutoff := today.AddDate(0, 0, -days)

	rows, err := s.db.Query(ctx, `
		SELECT o.id, oi.item_id
		FROM outfits o
		JOIN user_feedback f ON f.outfit_id = o.id
		JOIN outfit_items oi ON oi.outfit_id = o.id
		WHERE o.user_id = $1 AND f.worn_at >= $2
		ORDER BY o.id, oi.position
	`, userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load worn combinations: %w", err)
	}
	defer rows.Close()

	var combos [][]uuid.UUID
	var current []uuid.UUID
	var currentOutfit uuid.UUID

	for rows.Next() {
		var outfitID, itemID uuid.UUID
		if err := rows.Scan(&outfitID, &itemID); err != nil {
			return nil, fmt.Errorf("failed to scan worn combination: %w", err)
		}
		if outfitID != currentOutfit {
			if len(current) > 0 {
				combos = append(combos, current)
			}
			current = nil
			currentOutfit = outfitID
		}
		current = append(current, itemID)
	}
	if len(current) > 0 {
		combos = append(combos, current)
	}

	return combos, rows.Err()
}

func (s *RecommendationService) fetchWeather(ctx context.Context, user *models.User) (*models.WeatherData, error) {
	if s.weather == nil {
		return nil, ErrWeatherUnavailable
	}
	if user.LocationLat == nil || user.LocationLon == nil {
		return nil, ErrLocationNotSet
	}
	data, err := s.weather.Current(ctx, *user.LocationLat, *user.LocationLon)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeatherUnavailable, err)
	}
	return data, nil
}

func (s *RecommendationService) storeOutfit(ctx context.Context, userID uuid.UUID, occasion string, weather *models.WeatherData, selection *OutfitSelection, candidates []models.ClothingItem) (*models.Outfit, error) {
	byID := make(map[uuid.UUID]models.ClothingItem, len(candidates))
	for _, item := range candidates {
		byID[item.ID] = item
	}

	outfit := &models.Outfit{
		ID:         uuid.New(),
		UserID:     userID,
		Occasion:   occasion,
		Weather:    weather,
		StyleNotes: selection.StylingTip,
		Status:     models.OutfitStatusPending,
		Source:     models.OutfitSourceOnDemand,
		CreatedAt:  time.Now(),
	}
	if selection.Headline != nil {
		outfit.Reasoning = selection.Headline
	}
	if len(selection.Highlights) > 0 {
		reasoning := ""
		if outfit.Reasoning != nil {
			reasoning = *outfit.Reasoning + ": "
		}
		for i, h := range selection.Highlights {
			if i > 0 {
				reasoning += " "
			}
			reasoning += h
		}
		outfit.Reasoning = &reasoning
	}
	outfit.AIRawResponse = selection.Raw

	var weatherJSON, rawJSON []byte
	var err error
	if weather != nil {
		if weatherJSON, err = json.Marshal(weather); err != nil {
			return nil, fmt.Errorf("failed to marshal weather: %w", err)
		}
	}
	if selection.Raw != nil {
		if rawJSON, err = json.Marshal(selection.Raw); err != nil {
			return nil, fmt.Errorf("failed to marshal raw response: %w", err)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin outfit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO outfits (
			id, user_id, occasion, weather_data, scheduled_for, reasoning,
			style_notes, ai_raw_response, status, source, created_at
		) VALUES ($1, $2, $3, $4, NOW(), $5, $6, $7, $8, $9, NOW())
	`, outfit.ID, userID, occasion, weatherJSON, outfit.Reasoning,
		outfit.StyleNotes, rawJSON, outfit.Status, outfit.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to insert outfit: %w", err)
	}

	for i, itemID := range selection.ItemIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO outfit_items (outfit_id, item_id, position)
			VALUES ($1, $2, $3)
		`, outfit.ID, itemID, i)
		if err != nil {
			return nil, fmt.Errorf("failed to insert outfit item: %w", err)
		}

		oi := models.OutfitItem{OutfitID: outfit.ID, ItemID: itemID, Position: i}
		if item, ok := byID[itemID]; ok {
			oi.Item = &item
		}
		outfit.Items = append(outfit.Items, oi)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit outfit transaction: %w", err)
	}

	return outfit, nil
}
