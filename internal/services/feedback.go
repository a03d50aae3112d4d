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

// FeedbackService persists outfit feedback and hands it to the learning
// pipeline. The write always succeeds independently of learning: a learning
// failure is logged and the user's feedback is kept.
type FeedbackService struct {
	db       DatabaseQuerier
	config   *config.Config
	logger   *logrus.Logger
	learning *LearningService
}

func NewFeedbackService(db DatabaseQuerier, cfg *config.Config, logger *logrus.Logger, learning *LearningService) *FeedbackService {
	return &FeedbackService{
		db:       db,
		config:   cfg,
		logger:   logger,
		learning: learning,
	}
}

// SubmitFeedback records feedback for one outfit. Resubmission replaces the
// stored fields. An accepted/rejected verdict also moves the outfit's
// status; a worn timestamp marks every outfit item worn.
func (s *FeedbackService) SubmitFeedback(ctx context.Context, userID, outfitID uuid.UUID, req *models.FeedbackRequest) (*models.UserFeedback, error) {
	var status models.OutfitStatus
	err := s.db.QueryRow(ctx, `
		SELECT status FROM outfits WHERE id = $1 AND user_id = $2
	`, outfitID, userID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOutfitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load outfit: %w", err)
	}

	fb, err := s.buildFeedback(outfitID, req)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin feedback transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.upsertFeedback(ctx, tx, fb); err != nil {
		return nil, err
	}

	if req.Accepted != nil {
		newStatus := models.OutfitStatusRejected
		if *req.Accepted {
			newStatus = models.OutfitStatusAccepted
		}
		if _, err := tx.Exec(ctx, `
			UPDATE outfits
			SET status = $2, responded_at = COALESCE(responded_at, NOW())
			WHERE id = $1
		`, outfitID, newStatus); err != nil {
			return nil, fmt.Errorf("failed to update outfit status: %w", err)
		}
	}

	if fb.WornAt != nil {
		if err := s.markItemsWorn(ctx, tx, outfitID, *fb.WornAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit feedback transaction: %w", err)
	}

	// Learning runs after the write so a pipeline failure never loses
	// the user's feedback.
	if err := s.learning.ProcessFeedback(ctx, outfitID, userID); err != nil {
		ObserveFeedback("learning_failed")
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":   userID,
			"outfit_id": outfitID,
		}).Error("Learning pipeline failed, feedback stored")
	} else {
		ObserveFeedback("processed")
		ObserveProfileRecompute("feedback")
	}

	return fb, nil
}

func (s *FeedbackService) buildFeedback(outfitID uuid.UUID, req *models.FeedbackRequest) (*models.UserFeedback, error) {
	fb := &models.UserFeedback{
		ID:                    uuid.New(),
		OutfitID:              outfitID,
		Accepted:              req.Accepted,
		Rating:                req.Rating,
		ComfortRating:         req.ComfortRating,
		StyleRating:           req.StyleRating,
		Comment:               req.Comment,
		WornWithModifications: req.WornWithModifications,
		ModificationNotes:     req.ModificationNotes,
		ActuallyWorn:          req.ActuallyWorn,
		CreatedAt:             time.Now(),
	}

	if req.WornAt != nil && *req.WornAt != "" {
		wornAt, err := parseWornAt(*req.WornAt)
		if err != nil {
			return nil, fmt.Errorf("invalid worn_at: %w", err)
		}
		fb.WornAt = &wornAt
	}

	for _, raw := range req.WoreInsteadItems {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.logger.WithField("value", raw).Warn("Dropping malformed wore_instead item id")
			continue
		}
		fb.WoreInsteadItems = append(fb.WoreInsteadItems, id)
	}

	return fb, nil
}

func parseWornAt(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func (s *FeedbackService) upsertFeedback(ctx context.Context, tx pgx.Tx, fb *models.UserFeedback) error {
	woreInsteadJSON, err := json.Marshal(fb.WoreInsteadItems)
	if err != nil {
		return fmt.Errorf("failed to marshal wore_instead_items: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO user_feedback (
			id, outfit_id, accepted, rating, comfort_rating, style_rating,
			comment, worn_at, worn_with_modifications, modification_notes,
			actually_worn, wore_instead_items, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (outfit_id) DO UPDATE SET
			accepted = COALESCE(EXCLUDED.accepted, user_feedback.accepted),
			rating = COALESCE(EXCLUDED.rating, user_feedback.rating),
			comfort_rating = COALESCE(EXCLUDED.comfort_rating, user_feedback.comfort_rating),
			style_rating = COALESCE(EXCLUDED.style_rating, user_feedback.style_rating),
			comment = COALESCE(EXCLUDED.comment, user_feedback.comment),
			worn_at = COALESCE(EXCLUDED.worn_at, user_feedback.worn_at),
			worn_with_modifications = EXCLUDED.worn_with_modifications,
			modification_notes = COALESCE(EXCLUDED.modification_notes, user_feedback.modification_notes),
			actually_worn = COALESCE(EXCLUDED.actually_worn, user_feedback.actually_worn),
			wore_instead_items = EXCLUDED.wore_instead_items
		RETURNING id, created_at
	`, fb.ID, fb.OutfitID, fb.Accepted, fb.Rating, fb.ComfortRating,
		fb.StyleRating, fb.Comment, fb.WornAt, fb.WornWithModifications,
		fb.ModificationNotes, fb.ActuallyWorn, woreInsteadJSON,
	).Scan(&fb.ID, &fb.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert feedback: %w", err)
	}

	return nil
}

func (s *FeedbackService) markItemsWorn(ctx context.Context, tx pgx.Tx, outfitID uuid.UUID, wornAt time.Time) error {
	rows, err := tx.Query(ctx, `
		SELECT item_id FROM outfit_items WHERE outfit_id = $1
	`, outfitID)
	if err != nil {
		return fmt.Errorf("failed to load outfit items: %w", err)
	}

	var itemIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan outfit item: %w", err)
		}
		itemIDs = append(itemIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, itemID := range itemIDs {
		// Re-submitting the same worn date must not double-count a wear.
		tag, err := tx.Exec(ctx, `
			INSERT INTO item_history (id, item_id, outfit_id, worn_at)
			SELECT $1, $2, $3, $4
			WHERE NOT EXISTS (
				SELECT 1 FROM item_history
				WHERE item_id = $2 AND outfit_id = $3 AND worn_at = $4
			)
		`, uuid.New(), itemID, outfitID, wornAt)
		if err != nil {
			return fmt.Errorf("failed to record wear: %w", err)
		}
		if tag.RowsAffected() == 0 {
			continue
		}

		// needs_wash flips once the item hits its wash interval, not on
		// the first wear. Items with no interval of their own use the
		// configured default.
		if _, err := tx.Exec(ctx, `
			UPDATE clothing_items
			SET wear_count = wear_count + 1,
			    last_worn_at = GREATEST(COALESCE(last_worn_at, $2), $2),
			    wears_since_wash = wears_since_wash + 1,
			    needs_wash = wears_since_wash + 1 >= COALESCE(wash_interval, $3)
			WHERE id = $1
		`, itemID, wornAt, s.config.Learning.WashInterval); err != nil {
			return fmt.Errorf("failed to update item wear state: %w", err)
		}
	}

	return nil
}
