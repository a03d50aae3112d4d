package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/vestra/vestra/internal/config"
	"github.com/vestra/vestra/pkg/models"
)

const (
	insightColorThreshold      = 0.3
	insightStyleThreshold      = 0.2
	insightHighAcceptanceRate  = 0.8
	insightLowAcceptanceRate   = 0.4
	insightMinFeedbackForRates = 5
)

// InsightService derives human-readable style observations from a computed
// learning profile. Generation only runs when a client asks for it; the
// learning pipeline never triggers it on its own.
type InsightService struct {
	db     DatabaseQuerier
	config *config.Config
	logger *logrus.Logger
	titler cases.Caser
}

func NewInsightService(db DatabaseQuerier, cfg *config.Config, logger *logrus.Logger) *InsightService {
	return &InsightService{
		db:     db,
		config: cfg,
		logger: logger,
		titler: cases.Title(language.English),
	}
}

// GenerateInsights appends insights derived from the given profile snapshot.
// Existing rows are left alone: superseded insights age out via expires_at or
// get acknowledged, they are never deleted here. A never-computed profile
// generates nothing.
func (s *InsightService) GenerateInsights(ctx context.Context, profile *models.UserLearningProfile) error {
	if !profile.Computed() {
		return nil
	}

	insights := s.deriveInsights(profile)

	expiresAt := time.Now().Add(s.config.Learning.InsightExpiry)
	for _, insight := range insights {
		var supportingJSON []byte
		if insight.SupportingData != nil {
			var err error
			supportingJSON, err = json.Marshal(insight.SupportingData)
			if err != nil {
				return fmt.Errorf("failed to marshal supporting data: %w", err)
			}
		}

		if _, err := s.db.Exec(ctx, `
			INSERT INTO style_insights (
				id, user_id, category, insight_type, title, description,
				confidence, supporting_data, expires_at, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		`, uuid.New(), profile.UserID, insight.Category, insight.InsightType,
			insight.Title, insight.Description, insight.Confidence,
			supportingJSON, expiresAt); err != nil {
			return fmt.Errorf("failed to insert insight: %w", err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":  profile.UserID,
		"insights": len(insights),
	}).Debug("Regenerated style insights")

	return nil
}

// deriveInsights applies the insight rules to a profile snapshot. Pure.
func (s *InsightService) deriveInsights(profile *models.UserLearningProfile) []models.StyleInsight {
	var insights []models.StyleInsight

	if color, score, ok := strongestFeature(profile.LearnedColorScores, func(v float64) bool { return v > insightColorThreshold }); ok {
		insights = append(insights, models.StyleInsight{
			Category:    "color",
			InsightType: models.InsightPositive,
			Title:       fmt.Sprintf("%s works for you", s.titler.String(color)),
			Description: fmt.Sprintf("Outfits featuring %s consistently get your best responses.", color),
			Confidence:  clamp(score, 0, 1),
			SupportingData: map[string]interface{}{
				"color": color,
				"score": score,
			},
		})
	}

	if color, score, ok := strongestFeature(profile.LearnedColorScores, func(v float64) bool { return v < -insightColorThreshold }); ok {
		insights = append(insights, models.StyleInsight{
			Category:    "color",
			InsightType: models.InsightNegative,
			Title:       fmt.Sprintf("%s may not be your color", s.titler.String(color)),
			Description: fmt.Sprintf("You tend to pass on outfits featuring %s.", color),
			Confidence:  clamp(-score, 0, 1),
			SupportingData: map[string]interface{}{
				"color": color,
				"score": score,
			},
		})
	}

	if profile.OverallAcceptanceRate != nil && profile.FeedbackCount >= insightMinFeedbackForRates {
		rate := *profile.OverallAcceptanceRate
		if rate > insightHighAcceptanceRate {
			insights = append(insights, models.StyleInsight{
				Category:    "acceptance",
				InsightType: models.InsightPositive,
				Title:       "Your recommendations are landing",
				Description: fmt.Sprintf("You accept %.0f%% of suggested outfits. The system has a good read on your taste.", rate*100),
				Confidence:  clamp(rate, 0, 1),
				SupportingData: map[string]interface{}{
					"acceptance_rate": rate,
					"feedback_count":  profile.FeedbackCount,
				},
			})
		} else if rate < insightLowAcceptanceRate {
			insights = append(insights, models.StyleInsight{
				Category:    "acceptance",
				InsightType: models.InsightSuggestion,
				Title:       "Help us learn your style",
				Description: fmt.Sprintf("You accept %.0f%% of suggestions. Rating the outfits you reject teaches the system what to avoid.", rate*100),
				Confidence:  clamp(1-rate, 0, 1),
				SupportingData: map[string]interface{}{
					"acceptance_rate": rate,
					"feedback_count":  profile.FeedbackCount,
				},
			})
		}
	}

	styles := rankedAbove(profile.LearnedStyleScores, insightStyleThreshold, 2)
	if len(styles) > 0 {
		title := fmt.Sprintf("You gravitate toward %s looks", styles[0])
		description := fmt.Sprintf("Your highest-rated outfits lean %s.", styles[0])
		if len(styles) == 2 {
			title = fmt.Sprintf("You gravitate toward %s and %s looks", styles[0], styles[1])
			description = fmt.Sprintf("Your highest-rated outfits lean %s and %s.", styles[0], styles[1])
		}
		topScore := profile.LearnedStyleScores[styles[0]]
		insights = append(insights, models.StyleInsight{
			Category:    "style",
			InsightType: models.InsightPattern,
			Title:       title,
			Description: description,
			Confidence:  clamp(topScore, 0, 1),
			SupportingData: map[string]interface{}{
				"styles": styles,
			},
		})
	}

	return insights
}

func strongestFeature(scores map[string]float64, keep func(float64) bool) (string, float64, bool) {
	best := ""
	bestMagnitude := 0.0
	bestScore := 0.0
	for tag, score := range scores {
		if !keep(score) {
			continue
		}
		magnitude := score
		if magnitude < 0 {
			magnitude = -magnitude
		}
		if best == "" || magnitude > bestMagnitude || (magnitude == bestMagnitude && tag < best) {
			best = tag
			bestMagnitude = magnitude
			bestScore = score
		}
	}
	return best, bestScore, best != ""
}

// GetActiveInsights returns unacknowledged, unexpired insights, newest first.
func (s *InsightService) GetActiveInsights(ctx context.Context, userID uuid.UUID) ([]models.StyleInsight, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, category, insight_type, title, description,
		       confidence, supporting_data, is_acknowledged, acknowledged_at,
		       expires_at, created_at
		FROM style_insights
		WHERE user_id = $1
		  AND is_acknowledged = false
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load insights: %w", err)
	}
	defer rows.Close()

	var insights []models.StyleInsight
	for rows.Next() {
		var insight models.StyleInsight
		var supportingJSON []byte
		if err := rows.Scan(
			&insight.ID, &insight.UserID, &insight.Category, &insight.InsightType,
			&insight.Title, &insight.Description, &insight.Confidence,
			&supportingJSON, &insight.IsAcknowledged, &insight.AcknowledgedAt,
			&insight.ExpiresAt, &insight.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		if len(supportingJSON) > 0 {
			_ = json.Unmarshal(supportingJSON, &insight.SupportingData)
		}
		insights = append(insights, insight)
	}

	return insights, rows.Err()
}

// AcknowledgeInsight marks an insight as seen so regeneration keeps it.
func (s *InsightService) AcknowledgeInsight(ctx context.Context, userID, insightID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE style_insights
		SET is_acknowledged = true, acknowledged_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, insightID, userID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge insight: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsightNotFound
	}
	return nil
}
