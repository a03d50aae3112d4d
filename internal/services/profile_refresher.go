package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vestra/vestra/internal/config"
)

// ProfileRefresher periodically recomputes profiles that have fallen behind
// their feedback, catching users whose inline recompute failed or who only
// receive scheduled outfits. A profile is stale when a responded outfit is
// newer than its last computation and the computation is older than the
// configured window. Insights are not touched here; they only regenerate on
// the explicit endpoint.
type ProfileRefresher struct {
	db       DatabaseQuerier
	config   *config.Config
	logger   *logrus.Logger
	learning *LearningService

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewProfileRefresher(db DatabaseQuerier, cfg *config.Config, logger *logrus.Logger, learning *LearningService) *ProfileRefresher {
	return &ProfileRefresher{
		db:       db,
		config:   cfg,
		logger:   logger,
		learning: learning,
		stopChan: make(chan struct{}),
	}
}

func (r *ProfileRefresher) Start() {
	r.wg.Add(1)
	go r.run()
}

func (r *ProfileRefresher) Stop() {
	close(r.stopChan)
	r.wg.Wait()
}

func (r *ProfileRefresher) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Learning.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopChan:
			return
		}
	}
}

func (r *ProfileRefresher) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	userIDs, err := r.staleProfileUsers(ctx)
	if err != nil {
		r.logger.WithError(err).Error("Stale profile sweep query failed")
		return
	}
	if len(userIDs) == 0 {
		return
	}

	refreshed := 0
	for _, userID := range userIDs {
		if err := r.learning.RecomputeProfile(ctx, userID); err != nil {
			r.logger.WithError(err).WithField("user_id", userID).Warn("Background profile recompute failed")
			continue
		}
		refreshed++
		ObserveProfileRecompute("background")
	}

	r.logger.WithFields(logrus.Fields{
		"stale":     len(userIDs),
		"refreshed": refreshed,
	}).Info("Completed stale profile sweep")
}

func (r *ProfileRefresher) staleProfileUsers(ctx context.Context) ([]uuid.UUID, error) {
	staleCutoff := time.Now().Add(-r.config.Learning.ProfileStaleAfter)

	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT o.user_id
		FROM outfits o
		LEFT JOIN user_learning_profiles p ON p.user_id = o.user_id
		WHERE o.status IN ('accepted', 'rejected')
		  AND o.responded_at IS NOT NULL
		  AND (
			p.last_computed_at IS NULL
			OR (o.responded_at > p.last_computed_at AND p.last_computed_at < $1)
		  )
	`, staleCutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale profiles: %w", err)
	}
	defer rows.Close()

	var userIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan stale profile user: %w", err)
		}
		userIDs = append(userIDs, id)
	}

	return userIDs, rows.Err()
}
