package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/vestra/vestra/internal/config"
	"github.com/vestra/vestra/internal/messaging"
	"github.com/vestra/vestra/pkg/models"
)

// DatabaseQuerier interface for database operations
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// FeedbackPublisher publishes processed-feedback events to the message bus.
type FeedbackPublisher interface {
	PublishFeedbackEvent(event messaging.FeedbackEvent) error
}

// LearningService turns outfit feedback into pair scores, learning profiles
// and cached preference summaries.
type LearningService struct {
	db        DatabaseQuerier
	redis     *redis.Client
	config    *config.Config
	logger    *logrus.Logger
	bus       FeedbackPublisher
	pairGraph *PairGraphMirror
}

func NewLearningService(
	db DatabaseQuerier,
	redis *redis.Client,
	cfg *config.Config,
	logger *logrus.Logger,
	bus FeedbackPublisher,
	pairGraph *PairGraphMirror,
) *LearningService {
	return &LearningService{
		db:        db,
		redis:     redis,
		config:    cfg,
		logger:    logger,
		bus:       bus,
		pairGraph: pairGraph,
	}
}

// outfitContext is everything ProcessFeedback needs about one responded outfit.
type outfitContext struct {
	Status   models.OutfitStatus
	Occasion string
	Weather  *models.WeatherData
	Feedback *models.UserFeedback
	Items    []models.ClothingItem
}

// ProcessFeedback folds a responded outfit's feedback into the learning
// state: outfit performance row, pair score counters, wore-instead pairs,
// then a full profile recompute. It is the single entry point the feedback
// handler calls after persisting the feedback row.
func (s *LearningService) ProcessFeedback(ctx context.Context, outfitID, userID uuid.UUID) error {
	oc, err := s.loadOutfitContext(ctx, outfitID, userID)
	if err != nil {
		return err
	}
	if oc.Feedback == nil {
		return fmt.Errorf("outfit %s has no feedback to process", outfitID)
	}

	signal := ComputeSignal(oc.Status, oc.Feedback)

	if err := s.updateOutfitPerformance(ctx, outfitID, userID, oc, signal); err != nil {
		return fmt.Errorf("failed to update outfit performance: %w", err)
	}

	if err := s.updateItemPairScores(ctx, userID, oc); err != nil {
		return fmt.Errorf("failed to update item pair scores: %w", err)
	}

	if len(oc.Feedback.WoreInsteadItems) >= 2 {
		if err := s.processWoreInstead(ctx, userID, oc.Feedback.WoreInsteadItems); err != nil {
			return fmt.Errorf("failed to process wore-instead items: %w", err)
		}
	}

	if err := s.RecomputeProfile(ctx, userID); err != nil {
		return fmt.Errorf("failed to recompute learning profile: %w", err)
	}

	s.invalidatePreferenceCache(ctx, userID)

	if s.bus != nil {
		event := messaging.FeedbackEvent{
			UserID:   userID,
			OutfitID: outfitID,
			Status:   string(oc.Status),
			Rating:   oc.Feedback.Rating,
			Signal:   signal,
		}
		if err := s.bus.PublishFeedbackEvent(event); err != nil {
			s.logger.WithError(err).WithField("outfit_id", outfitID).Warn("Feedback event publish failed")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"outfit_id": outfitID,
		"status":    oc.Status,
		"signal":    signal,
	}).Info("Processed outfit feedback")

	return nil
}

func (s *LearningService) loadOutfitContext(ctx context.Context, outfitID, userID uuid.UUID) (*outfitContext, error) {
	oc := &outfitContext{}

	var weatherJSON []byte
	err := s.db.QueryRow(ctx, `
		SELECT status, occasion, weather_data
		FROM outfits
		WHERE id = $1 AND user_id = $2
	`, outfitID, userID).Scan(&oc.Status, &oc.Occasion, &weatherJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOutfitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load outfit: %w", err)
	}
	if len(weatherJSON) > 0 {
		var weather models.WeatherData
		if err := json.Unmarshal(weatherJSON, &weather); err == nil {
			oc.Weather = &weather
		}
	}

	fb, err := s.loadFeedback(ctx, outfitID)
	if err != nil {
		return nil, err
	}
	oc.Feedback = fb

	items, err := s.loadOutfitItems(ctx, outfitID)
	if err != nil {
		return nil, err
	}
	oc.Items = items

	return oc, nil
}

func (s *LearningService) loadFeedback(ctx context.Context, outfitID uuid.UUID) (*models.UserFeedback, error) {
	fb := &models.UserFeedback{}
	var woreInsteadJSON []byte

	err := s.db.QueryRow(ctx, `
		SELECT id, outfit_id, accepted, rating, comfort_rating, style_rating,
		       comment, worn_at, worn_with_modifications, modification_notes,
		       actually_worn, wore_instead_items, created_at
		FROM user_feedback
		WHERE outfit_id = $1
	`, outfitID).Scan(
		&fb.ID, &fb.OutfitID, &fb.Accepted, &fb.Rating, &fb.ComfortRating,
		&fb.StyleRating, &fb.Comment, &fb.WornAt, &fb.WornWithModifications,
		&fb.ModificationNotes, &fb.ActuallyWorn, &woreInsteadJSON, &fb.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}

	if len(woreInsteadJSON) > 0 {
		if err := json.Unmarshal(woreInsteadJSON, &fb.WoreInsteadItems); err != nil {
			s.logger.WithError(err).WithField("feedback_id", fb.ID).Warn("Malformed wore_instead_items, ignoring")
		}
	}

	return fb, nil
}

func (s *LearningService) loadOutfitItems(ctx context.Context, outfitID uuid.UUID) ([]models.ClothingItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT i.id, i.user_id, i.type, i.subtype, i.colors, i.primary_color,
		       i.pattern, i.style, i.formality, i.season
		FROM outfit_items oi
		JOIN clothing_items i ON i.id = oi.item_id
		WHERE oi.outfit_id = $1
		ORDER BY oi.position
	`, outfitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load outfit items: %w", err)
	}
	defer rows.Close()

	var items []models.ClothingItem
	for rows.Next() {
		var item models.ClothingItem
		if err := rows.Scan(
			&item.ID, &item.UserID, &item.Type, &item.Subtype, &item.Colors,
			&item.PrimaryColor, &item.Pattern, &item.Style, &item.Formality,
			&item.Season,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outfit item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// updateOutfitPerformance upserts the per-outfit score decomposition. The row
// is keyed on outfit id so re-submitted feedback replaces rather than
// accumulates.
func (s *LearningService) updateOutfitPerformance(ctx context.Context, outfitID, userID uuid.UUID, oc *outfitContext, signal float64) error {
	fb := oc.Feedback

	var acceptanceScore, ratingScore, wearScore *float64
	if fb.Accepted != nil {
		v := signalRejected
		if *fb.Accepted {
			v = signalAccepted
		}
		acceptanceScore = &v
	}
	if fb.Rating != nil {
		v := (float64(*fb.Rating) - 3) / 2 * signalRatingWeight
		ratingScore = &v
	}
	if fb.WornAt != nil {
		v := signalWorn
		if fb.WornWithModifications {
			v += signalModifications
		}
		wearScore = &v
	} else if fb.ActuallyWorn != nil && !*fb.ActuallyWorn {
		v := signalNotWorn
		if len(fb.WoreInsteadItems) > 0 {
			v += signalSubstituted
		}
		wearScore = &v
	}

	itemComposition := make(map[string]string, len(oc.Items))
	colorComposition := make(map[string][]string, len(oc.Items))
	for _, item := range oc.Items {
		itemComposition[item.ID.String()] = item.Type
		colorComposition[item.ID.String()] = item.Colors
	}
	itemCompJSON, err := json.Marshal(itemComposition)
	if err != nil {
		return fmt.Errorf("failed to marshal item composition: %w", err)
	}
	colorCompJSON, err := json.Marshal(colorComposition)
	if err != nil {
		return fmt.Errorf("failed to marshal color composition: %w", err)
	}

	var weatherTemp *float64
	var weatherCondition *string
	if oc.Weather != nil {
		weatherTemp = &oc.Weather.Temperature
		weatherCondition = &oc.Weather.Condition
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO outfit_performance (
			outfit_id, user_id, performance_score, acceptance_score,
			rating_score, wear_score, occasion, weather_temp,
			weather_condition, item_composition, color_composition,
			was_modified, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (outfit_id) DO UPDATE SET
			performance_score = EXCLUDED.performance_score,
			acceptance_score = EXCLUDED.acceptance_score,
			rating_score = EXCLUDED.rating_score,
			wear_score = EXCLUDED.wear_score,
			occasion = EXCLUDED.occasion,
			weather_temp = EXCLUDED.weather_temp,
			weather_condition = EXCLUDED.weather_condition,
			item_composition = EXCLUDED.item_composition,
			color_composition = EXCLUDED.color_composition,
			was_modified = EXCLUDED.was_modified,
			computed_at = NOW()
	`, outfitID, userID, signal, acceptanceScore, ratingScore, wearScore,
		oc.Occasion, weatherTemp, weatherCondition, itemCompJSON, colorCompJSON,
		fb.WornWithModifications)
	if err != nil {
		return fmt.Errorf("failed to upsert outfit performance: %w", err)
	}

	return nil
}

// updateItemPairScores increments pair counters for every unordered item
// pair in the outfit. Rows are created with DO NOTHING then locked with
// FOR UPDATE so concurrent submissions for the same pair serialize instead
// of losing increments.
func (s *LearningService) updateItemPairScores(ctx context.Context, userID uuid.UUID, oc *outfitContext) error {
	if len(oc.Items) < 2 {
		return nil
	}

	fb := oc.Feedback
	pSignal, pPositive := pairSignal(fb)

	accepted := oc.Status == models.OutfitStatusAccepted
	rejected := oc.Status == models.OutfitStatusRejected

	var weatherBucket string
	if oc.Weather != nil {
		weatherBucket = TempBucket(oc.Weather.Temperature)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin pair score transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := 0; i < len(oc.Items); i++ {
		for j := i + 1; j < len(oc.Items); j++ {
			item1, item2 := canonicalPair(oc.Items[i].ID, oc.Items[j].ID)

			delta := pairDelta{
				Accepted: accepted,
				Rejected: rejected,
				Rating:   fb.Rating,
			}
			if oc.Occasion != "" {
				delta.Occasion = oc.Occasion
				delta.OccasionPositive = pPositive && pSignal != 0
			}
			if weatherBucket != "" {
				delta.WeatherBucket = weatherBucket
				delta.WeatherPositive = pPositive && pSignal != 0
			}

			if err := s.applyPairDelta(ctx, tx, userID, item1, item2, delta); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit pair score transaction: %w", err)
	}

	return nil
}

// processWoreInstead credits the combination the user actually wore: a
// substitution names a proven-good outfit, so the named pairs get a paired
// count, an acceptance and a synthetic top rating.
func (s *LearningService) processWoreInstead(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) error {
	substituteRating := s.config.Learning.SubstituteRating

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin wore-instead transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := 0; i < len(itemIDs); i++ {
		for j := i + 1; j < len(itemIDs); j++ {
			item1, item2 := canonicalPair(itemIDs[i], itemIDs[j])
			delta := pairDelta{
				Accepted: true,
				Rating:   &substituteRating,
			}
			if err := s.applyPairDelta(ctx, tx, userID, item1, item2, delta); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit wore-instead transaction: %w", err)
	}

	return nil
}

// pairDelta is one outfit's contribution to a pair score row.
type pairDelta struct {
	Accepted         bool
	Rejected         bool
	Rating           *int
	Occasion         string
	OccasionPositive bool
	WeatherBucket    string
	WeatherPositive  bool
}

func (s *LearningService) applyPairDelta(ctx context.Context, tx pgx.Tx, userID, item1, item2 uuid.UUID, delta pairDelta) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO item_pair_scores (id, user_id, item1_id, item2_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, item1_id, item2_id) DO NOTHING
	`, uuid.New(), userID, item1, item2)
	if err != nil {
		return fmt.Errorf("failed to insert pair row: %w", err)
	}

	var pair models.ItemPairScore
	var occasionJSON, weatherJSON []byte
	err = tx.QueryRow(ctx, `
		SELECT times_paired, times_accepted, times_rejected,
		       total_rating_sum, rating_count,
		       occasion_performance, weather_performance
		FROM item_pair_scores
		WHERE user_id = $1 AND item1_id = $2 AND item2_id = $3
		FOR UPDATE
	`, userID, item1, item2).Scan(
		&pair.TimesPaired, &pair.TimesAccepted, &pair.TimesRejected,
		&pair.TotalRatingSum, &pair.RatingCount, &occasionJSON, &weatherJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to lock pair row: %w", err)
	}

	pair.OccasionPerf = decodePerfMap(occasionJSON)
	pair.WeatherPerf = decodePerfMap(weatherJSON)

	pair.TimesPaired++
	if delta.Accepted {
		pair.TimesAccepted++
	} else if delta.Rejected {
		pair.TimesRejected++
	}
	if delta.Rating != nil {
		pair.TotalRatingSum += *delta.Rating
		pair.RatingCount++
	}
	if delta.Occasion != "" {
		bucket := pair.OccasionPerf[normalizeTag(delta.Occasion)]
		bucket.Count++
		if delta.OccasionPositive {
			bucket.Positive++
		}
		pair.OccasionPerf[normalizeTag(delta.Occasion)] = bucket
	}
	if delta.WeatherBucket != "" {
		bucket := pair.WeatherPerf[delta.WeatherBucket]
		bucket.Count++
		if delta.WeatherPositive {
			bucket.Positive++
		}
		pair.WeatherPerf[delta.WeatherBucket] = bucket
	}

	score := computePairCompatibility(
		pair.TimesPaired, pair.TimesAccepted, pair.TimesRejected,
		pair.TotalRatingSum, pair.RatingCount,
		s.config.Learning.MinPairsForScoring,
	)

	occasionOut, err := json.Marshal(pair.OccasionPerf)
	if err != nil {
		return fmt.Errorf("failed to marshal occasion performance: %w", err)
	}
	weatherOut, err := json.Marshal(pair.WeatherPerf)
	if err != nil {
		return fmt.Errorf("failed to marshal weather performance: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE item_pair_scores SET
			times_paired = $4, times_accepted = $5, times_rejected = $6,
			total_rating_sum = $7, rating_count = $8,
			occasion_performance = $9, weather_performance = $10,
			compatibility_score = $11, updated_at = NOW()
		WHERE user_id = $1 AND item1_id = $2 AND item2_id = $3
	`, userID, item1, item2,
		pair.TimesPaired, pair.TimesAccepted, pair.TimesRejected,
		pair.TotalRatingSum, pair.RatingCount, occasionOut, weatherOut, score)
	if err != nil {
		return fmt.Errorf("failed to update pair row: %w", err)
	}

	if s.pairGraph != nil {
		s.pairGraph.Enqueue(PairEdge{
			UserID:      userID,
			Item1ID:     item1,
			Item2ID:     item2,
			Score:       score,
			TimesPaired: pair.TimesPaired,
		})
	}

	return nil
}

func decodePerfMap(data []byte) map[string]models.PerfBucket {
	m := make(map[string]models.PerfBucket)
	if len(data) > 0 {
		_ = json.Unmarshal(data, &m)
	}
	return m
}

// computePairCompatibility maps raw pair counters to a [-1, 1] score.
// Acceptance rate is over responded co-occurrences only (accepted+rejected);
// it and the normalized average rating both default to a neutral 0.5 when
// unobserved. Pairs seen fewer than minPairs times score 0 so a single lucky
// outfit cannot dominate ranking.
func computePairCompatibility(timesPaired, timesAccepted, timesRejected, ratingSum, ratingCount, minPairs int) float64 {
	if timesPaired < minPairs {
		return 0.0
	}

	acceptanceRate := 0.5
	if responses := timesAccepted + timesRejected; responses > 0 {
		acceptanceRate = float64(timesAccepted) / float64(responses)
	}

	normalizedRating := 0.5
	if ratingCount > 0 {
		avg := float64(ratingSum) / float64(ratingCount)
		normalizedRating = (avg - 1) / 4
	}

	return (acceptanceRate*0.6+normalizedRating*0.4)*2 - 1
}

func canonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if strings.Compare(a.String(), b.String()) > 0 {
		return b, a
	}
	return a, b
}

// respondedOutfit is one replayed outfit during profile recomputation.
type respondedOutfit struct {
	ID       uuid.UUID
	Status   models.OutfitStatus
	Occasion string
	Weather  *models.WeatherData
	Feedback *models.UserFeedback
	Items    []models.ClothingItem
}

// RecomputeProfile rebuilds the user's learning profile from scratch by
// replaying every responded outfit. The whole recompute runs in one
// transaction holding a per-user advisory lock, so two concurrent triggers
// serialize and the second one simply recomputes over the newer state.
// Every profile field is overwritten: the profile is a pure function of the
// feedback history.
func (s *LearningService) RecomputeProfile(ctx context.Context, userID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin profile transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID.String()); err != nil {
		return fmt.Errorf("failed to acquire profile lock: %w", err)
	}

	outfits, err := s.loadRespondedOutfits(ctx, tx, userID)
	if err != nil {
		return err
	}

	if len(outfits) < s.config.Learning.MinFeedbackForLearning {
		s.logger.WithFields(logrus.Fields{
			"user_id":  userID,
			"outfits":  len(outfits),
			"required": s.config.Learning.MinFeedbackForLearning,
		}).Debug("Not enough responded outfits to learn from")
		return tx.Commit(ctx)
	}

	profile := s.buildProfile(userID, outfits)

	if err := s.storeProfile(ctx, tx, profile); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit profile transaction: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":        userID,
		"outfits":        len(outfits),
		"colors_learned": len(profile.LearnedColorScores),
		"styles_learned": len(profile.LearnedStyleScores),
	}).Info("Recomputed learning profile")

	return nil
}

func (s *LearningService) loadRespondedOutfits(ctx context.Context, tx pgx.Tx, userID uuid.UUID) ([]respondedOutfit, error) {
	rows, err := tx.Query(ctx, `
		SELECT o.id, o.status, o.occasion, o.weather_data,
		       f.id, f.accepted, f.rating, f.comfort_rating, f.style_rating,
		       f.worn_at, f.worn_with_modifications, f.actually_worn,
		       f.wore_instead_items
		FROM outfits o
		LEFT JOIN user_feedback f ON f.outfit_id = o.id
		WHERE o.user_id = $1 AND o.status IN ('accepted', 'rejected')
		ORDER BY o.created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responded outfits: %w", err)
	}
	defer rows.Close()

	var outfits []respondedOutfit
	for rows.Next() {
		var o respondedOutfit
		var weatherJSON, woreInsteadJSON []byte
		var fbID *uuid.UUID
		fb := models.UserFeedback{}
		var wornWithMods *bool

		if err := rows.Scan(
			&o.ID, &o.Status, &o.Occasion, &weatherJSON,
			&fbID, &fb.Accepted, &fb.Rating, &fb.ComfortRating, &fb.StyleRating,
			&fb.WornAt, &wornWithMods, &fb.ActuallyWorn, &woreInsteadJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan responded outfit: %w", err)
		}

		if len(weatherJSON) > 0 {
			var weather models.WeatherData
			if json.Unmarshal(weatherJSON, &weather) == nil {
				o.Weather = &weather
			}
		}
		if fbID != nil {
			fb.ID = *fbID
			fb.OutfitID = o.ID
			if wornWithMods != nil {
				fb.WornWithModifications = *wornWithMods
			}
			if len(woreInsteadJSON) > 0 {
				_ = json.Unmarshal(woreInsteadJSON, &fb.WoreInsteadItems)
			}
			o.Feedback = &fb
		}

		outfits = append(outfits, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachOutfitItems(ctx, tx, outfits); err != nil {
		return nil, err
	}

	return outfits, nil
}

func (s *LearningService) attachOutfitItems(ctx context.Context, tx pgx.Tx, outfits []respondedOutfit) error {
	if len(outfits) == 0 {
		return nil
	}

	index := make(map[uuid.UUID]int, len(outfits))
	ids := make([]uuid.UUID, len(outfits))
	for i, o := range outfits {
		index[o.ID] = i
		ids[i] = o.ID
	}

	rows, err := tx.Query(ctx, `
		SELECT oi.outfit_id, i.id, i.type, i.primary_color, i.style, i.formality
		FROM outfit_items oi
		JOIN clothing_items i ON i.id = oi.item_id
		WHERE oi.outfit_id = ANY($1)
		ORDER BY oi.outfit_id, oi.position
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to load items for responded outfits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var outfitID uuid.UUID
		var item models.ClothingItem
		if err := rows.Scan(&outfitID, &item.ID, &item.Type, &item.PrimaryColor, &item.Style, &item.Formality); err != nil {
			return fmt.Errorf("failed to scan responded outfit item: %w", err)
		}
		if i, ok := index[outfitID]; ok {
			outfits[i].Items = append(outfits[i].Items, item)
		}
	}

	return rows.Err()
}

// buildProfile replays outfits into a fresh profile. Pure aggregation, no IO.
func (s *LearningService) buildProfile(userID uuid.UUID, outfits []respondedOutfit) *models.UserLearningProfile {
	type occasionAgg struct {
		count       int
		positive    int
		colorCounts map[string]int
	}
	type weatherAgg struct {
		count    int
		positive int
		layers   []float64
	}

	colorSignals := make(map[string][]float64)
	styleSignals := make(map[string][]float64)
	occasions := make(map[string]*occasionAgg)
	weatherBuckets := make(map[string]*weatherAgg)

	var overallRatings, comfortRatings, styleRatings []float64
	accepted, rejected, feedbackCount, outfitsRated := 0, 0, 0, 0

	for _, o := range outfits {
		signal := ComputeSignal(o.Status, o.Feedback)
		positive := signal > 0
		feedbackCount++

		switch o.Status {
		case models.OutfitStatusAccepted:
			accepted++
		case models.OutfitStatusRejected:
			rejected++
		}

		if o.Feedback != nil {
			if o.Feedback.Rating != nil {
				outfitsRated++
				overallRatings = append(overallRatings, float64(*o.Feedback.Rating))
			}
			if o.Feedback.ComfortRating != nil {
				comfortRatings = append(comfortRatings, float64(*o.Feedback.ComfortRating))
			}
			if o.Feedback.StyleRating != nil {
				styleRatings = append(styleRatings, float64(*o.Feedback.StyleRating))
			}
		}

		outfitColors := make(map[string]bool)
		for _, item := range o.Items {
			// Only the primary color is credited; secondary colors stay out
			// of the learned maps.
			if item.PrimaryColor != nil {
				if tag := normalizeTag(*item.PrimaryColor); tag != "" {
					colorSignals[tag] = append(colorSignals[tag], signal)
					outfitColors[tag] = true
				}
			}
			for _, style := range item.Style {
				tag := normalizeTag(style)
				if tag == "" {
					continue
				}
				styleSignals[tag] = append(styleSignals[tag], signal)
			}
		}

		if o.Occasion != "" {
			tag := normalizeTag(o.Occasion)
			agg := occasions[tag]
			if agg == nil {
				agg = &occasionAgg{colorCounts: make(map[string]int)}
				occasions[tag] = agg
			}
			agg.count++
			if positive {
				agg.positive++
				for color := range outfitColors {
					agg.colorCounts[color]++
				}
			}
		}

		if o.Weather != nil {
			bucket := TempBucket(o.Weather.Temperature)
			agg := weatherBuckets[bucket]
			if agg == nil {
				agg = &weatherAgg{}
				weatherBuckets[bucket] = agg
			}
			agg.count++
			agg.layers = append(agg.layers, float64(len(o.Items)))
			if positive {
				agg.positive++
			}
		}
	}

	now := time.Now()
	profile := &models.UserLearningProfile{
		UserID:                    userID,
		LearnedColorScores:        s.featureScores(colorSignals),
		LearnedStyleScores:        s.featureScores(styleSignals),
		LearnedOccasionPatterns:   make(map[string]models.OccasionPattern, len(occasions)),
		LearnedWeatherPreferences: make(map[string]models.WeatherPreference, len(weatherBuckets)),
		FeedbackCount:             feedbackCount,
		OutfitsRated:              outfitsRated,
		LastComputedAt:            &now,
	}

	if accepted+rejected > 0 {
		rate := float64(accepted) / float64(accepted+rejected)
		profile.OverallAcceptanceRate = &rate
	}
	if len(overallRatings) > 0 {
		avg := stat.Mean(overallRatings, nil)
		profile.AverageOverallRating = &avg
	}
	if len(comfortRatings) > 0 {
		avg := stat.Mean(comfortRatings, nil)
		profile.AverageComfortRating = &avg
	}
	if len(styleRatings) > 0 {
		avg := stat.Mean(styleRatings, nil)
		profile.AverageStyleRating = &avg
	}

	for occasion, agg := range occasions {
		profile.LearnedOccasionPatterns[occasion] = models.OccasionPattern{
			PreferredColors: topColors(agg.colorCounts, 3),
			SuccessRate:     float64(agg.positive) / float64(agg.count),
		}
	}

	for bucket, agg := range weatherBuckets {
		pref := models.WeatherPreference{
			SuccessRate: float64(agg.positive) / float64(agg.count),
		}
		if len(agg.layers) > 0 {
			pref.PreferredLayers = stat.Mean(agg.layers, nil)
		}
		profile.LearnedWeatherPreferences[bucket] = pref
	}

	return profile
}

// featureScores averages the signals collected for each tag, dropping tags
// seen fewer than min_signals_per_feature times. A non-zero score_shrinkage
// k pulls sparse tags toward zero by n/(n+k).
func (s *LearningService) featureScores(signals map[string][]float64) map[string]float64 {
	minSamples := s.config.Learning.MinSignalsPerFeature
	if minSamples < 1 {
		minSamples = 1
	}
	shrinkage := s.config.Learning.ScoreShrinkage

	scores := make(map[string]float64, len(signals))
	for tag, values := range signals {
		if len(values) < minSamples {
			continue
		}
		score := stat.Mean(values, nil)
		if shrinkage > 0 {
			n := float64(len(values))
			score *= n / (n + shrinkage)
		}
		scores[tag] = score
	}
	return scores
}

func topColors(counts map[string]int, limit int) []string {
	type colorCount struct {
		color string
		count int
	}
	ranked := make([]colorCount, 0, len(counts))
	for color, count := range counts {
		ranked = append(ranked, colorCount{color, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].color < ranked[j].color
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	colors := make([]string, len(ranked))
	for i, cc := range ranked {
		colors[i] = cc.color
	}
	return colors
}

func (s *LearningService) storeProfile(ctx context.Context, tx pgx.Tx, profile *models.UserLearningProfile) error {
	colorJSON, err := json.Marshal(profile.LearnedColorScores)
	if err != nil {
		return fmt.Errorf("failed to marshal color scores: %w", err)
	}
	styleJSON, err := json.Marshal(profile.LearnedStyleScores)
	if err != nil {
		return fmt.Errorf("failed to marshal style scores: %w", err)
	}
	occasionJSON, err := json.Marshal(profile.LearnedOccasionPatterns)
	if err != nil {
		return fmt.Errorf("failed to marshal occasion patterns: %w", err)
	}
	weatherJSON, err := json.Marshal(profile.LearnedWeatherPreferences)
	if err != nil {
		return fmt.Errorf("failed to marshal weather preferences: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_learning_profiles (
			user_id, learned_color_scores, learned_style_scores,
			learned_occasion_patterns, learned_weather_preferences,
			overall_acceptance_rate, average_overall_rating,
			average_comfort_rating, average_style_rating,
			feedback_count, outfits_rated, last_computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			learned_color_scores = EXCLUDED.learned_color_scores,
			learned_style_scores = EXCLUDED.learned_style_scores,
			learned_occasion_patterns = EXCLUDED.learned_occasion_patterns,
			learned_weather_preferences = EXCLUDED.learned_weather_preferences,
			overall_acceptance_rate = EXCLUDED.overall_acceptance_rate,
			average_overall_rating = EXCLUDED.average_overall_rating,
			average_comfort_rating = EXCLUDED.average_comfort_rating,
			average_style_rating = EXCLUDED.average_style_rating,
			feedback_count = EXCLUDED.feedback_count,
			outfits_rated = EXCLUDED.outfits_rated,
			last_computed_at = NOW()
	`, profile.UserID, colorJSON, styleJSON, occasionJSON, weatherJSON,
		profile.OverallAcceptanceRate, profile.AverageOverallRating,
		profile.AverageComfortRating, profile.AverageStyleRating,
		profile.FeedbackCount, profile.OutfitsRated)
	if err != nil {
		return fmt.Errorf("failed to upsert learning profile: %w", err)
	}

	return nil
}

// GetProfile returns the stored profile, or an empty never-computed profile
// when the user has no row yet.
func (s *LearningService) GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserLearningProfile, error) {
	profile := &models.UserLearningProfile{UserID: userID}
	var colorJSON, styleJSON, occasionJSON, weatherJSON []byte

	err := s.db.QueryRow(ctx, `
		SELECT learned_color_scores, learned_style_scores,
		       learned_occasion_patterns, learned_weather_preferences,
		       overall_acceptance_rate, average_overall_rating,
		       average_comfort_rating, average_style_rating,
		       feedback_count, outfits_rated, last_computed_at
		FROM user_learning_profiles
		WHERE user_id = $1
	`, userID).Scan(
		&colorJSON, &styleJSON, &occasionJSON, &weatherJSON,
		&profile.OverallAcceptanceRate, &profile.AverageOverallRating,
		&profile.AverageComfortRating, &profile.AverageStyleRating,
		&profile.FeedbackCount, &profile.OutfitsRated, &profile.LastComputedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		profile.LearnedColorScores = map[string]float64{}
		profile.LearnedStyleScores = map[string]float64{}
		profile.LearnedOccasionPatterns = map[string]models.OccasionPattern{}
		profile.LearnedWeatherPreferences = map[string]models.WeatherPreference{}
		return profile, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load learning profile: %w", err)
	}

	profile.LearnedColorScores = decodeFloatMap(colorJSON)
	profile.LearnedStyleScores = decodeFloatMap(styleJSON)

	profile.LearnedOccasionPatterns = make(map[string]models.OccasionPattern)
	if len(occasionJSON) > 0 {
		_ = json.Unmarshal(occasionJSON, &profile.LearnedOccasionPatterns)
	}
	profile.LearnedWeatherPreferences = make(map[string]models.WeatherPreference)
	if len(weatherJSON) > 0 {
		_ = json.Unmarshal(weatherJSON, &profile.LearnedWeatherPreferences)
	}

	return profile, nil
}

func decodeFloatMap(data []byte) map[string]float64 {
	m := make(map[string]float64)
	if len(data) > 0 {
		_ = json.Unmarshal(data, &m)
	}
	return m
}

const (
	learnedFavoriteThreshold = 0.2
	learnedAvoidThreshold    = -0.2
	learnedFavoriteLimit     = 5
	learnedAvoidLimit        = 3
	learnedStyleLimit        = 3
)

// GetLearnedPreferences distills the profile into the short advisory summary
// the prompt assembler uses. Results are cached in Redis because every
// recommendation request reads them.
func (s *LearningService) GetLearnedPreferences(ctx context.Context, userID uuid.UUID) (models.LearnedPreferences, error) {
	cacheKey := fmt.Sprintf("learned_prefs:%s", userID)

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			var prefs models.LearnedPreferences
			if json.Unmarshal([]byte(cached), &prefs) == nil {
				return prefs, nil
			}
		}
	}

	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return models.LearnedPreferences{}, err
	}
	if !profile.Computed() {
		return models.LearnedPreferences{}, nil
	}

	prefs := models.LearnedPreferences{
		FavoriteColors:  rankedAbove(profile.LearnedColorScores, learnedFavoriteThreshold, learnedFavoriteLimit),
		AvoidColors:     rankedBelow(profile.LearnedColorScores, learnedAvoidThreshold, learnedAvoidLimit),
		PreferredStyles: rankedAbove(profile.LearnedStyleScores, learnedFavoriteThreshold, learnedStyleLimit),
	}

	if s.redis != nil {
		if data, err := json.Marshal(prefs); err == nil {
			s.redis.Set(ctx, cacheKey, data, s.config.Learning.PreferenceCacheTTL)
		}
	}

	return prefs, nil
}

func (s *LearningService) invalidatePreferenceCache(ctx context.Context, userID uuid.UUID) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, fmt.Sprintf("learned_prefs:%s", userID)).Err(); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to invalidate preference cache")
	}
}

func rankedAbove(scores map[string]float64, threshold float64, limit int) []string {
	return rankedBy(scores, limit, func(v float64) bool { return v > threshold }, func(a, b float64) bool { return a > b })
}

func rankedBelow(scores map[string]float64, threshold float64, limit int) []string {
	return rankedBy(scores, limit, func(v float64) bool { return v < threshold }, func(a, b float64) bool { return a < b })
}

func rankedBy(scores map[string]float64, limit int, keep func(float64) bool, better func(a, b float64) bool) []string {
	type entry struct {
		tag   string
		score float64
	}
	var entries []entry
	for tag, score := range scores {
		if keep(score) {
			entries = append(entries, entry{tag, score})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return better(entries[i].score, entries[j].score)
		}
		return entries[i].tag < entries[j].tag
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	tags := make([]string, len(entries))
	for i, e := range entries {
		tags[i] = e.tag
	}
	return tags
}

// GetBestItemPairs returns the user's highest scoring pairs with enough
// joint history to trust.
func (s *LearningService) GetBestItemPairs(ctx context.Context, userID uuid.UUID, limit int) ([]models.ItemPairScore, error) {
	if limit <= 0 {
		limit = s.config.Recommendation.GoodPairLimit
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, item1_id, item2_id, compatibility_score,
		       times_paired, times_accepted, times_rejected,
		       total_rating_sum, rating_count, updated_at
		FROM item_pair_scores
		WHERE user_id = $1 AND times_paired >= $2
		ORDER BY compatibility_score DESC
		LIMIT $3
	`, userID, s.config.Learning.MinPairsForScoring, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load item pairs: %w", err)
	}
	defer rows.Close()

	var pairs []models.ItemPairScore
	for rows.Next() {
		var p models.ItemPairScore
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Item1ID, &p.Item2ID, &p.CompatibilityScore,
			&p.TimesPaired, &p.TimesAccepted, &p.TimesRejected,
			&p.TotalRatingSum, &p.RatingCount, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item pair: %w", err)
		}
		pairs = append(pairs, p)
	}

	return pairs, rows.Err()
}

// GetItemPairings returns partner items for one wardrobe item ordered by
// compatibility, with the partner's details attached.
func (s *LearningService) GetItemPairings(ctx context.Context, userID, itemID uuid.UUID, limit int) ([]models.PairedItem, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(ctx, `
		SELECT i.id, i.user_id, i.type, i.subtype, i.name, i.colors,
		       i.primary_color, i.style, i.formality,
		       p.compatibility_score, p.times_paired
		FROM item_pair_scores p
		JOIN clothing_items i
		  ON i.id = CASE WHEN p.item1_id = $2 THEN p.item2_id ELSE p.item1_id END
		WHERE p.user_id = $1
		  AND (p.item1_id = $2 OR p.item2_id = $2)
		  AND p.times_paired >= $3
		ORDER BY p.compatibility_score DESC
		LIMIT $4
	`, userID, itemID, s.config.Learning.MinPairsForScoring, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load item pairings: %w", err)
	}
	defer rows.Close()

	var paired []models.PairedItem
	for rows.Next() {
		var p models.PairedItem
		if err := rows.Scan(
			&p.Item.ID, &p.Item.UserID, &p.Item.Type, &p.Item.Subtype,
			&p.Item.Name, &p.Item.Colors, &p.Item.PrimaryColor,
			&p.Item.Style, &p.Item.Formality,
			&p.CompatibilityScore, &p.TimesPaired,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item pairing: %w", err)
		}
		paired = append(paired, p)
	}

	return paired, rows.Err()
}
